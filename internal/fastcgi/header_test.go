package fastcgi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := newHeader(typeStdout, 42, 100)
	b := encodeHeader(h)

	got, err := decodeHeader(b[:])
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestNewHeaderPadding(t *testing.T) {
	cases := []struct {
		contentLength int
		wantPadding   uint8
	}{
		{0, 0},
		{1, 7},
		{7, 1},
		{8, 0},
		{9, 7},
		{65535, 1},
	}

	for _, c := range cases {
		h := newHeader(typeStdout, 1, c.contentLength)
		assert.Equalf(t, c.wantPadding, h.padding, "contentLength=%d", c.contentLength)
		assert.Zero(t, (int(h.contentLength)+int(h.padding))%8)
	}
}

func TestDecodeHeaderRejectsBadVersion(t *testing.T) {
	b := [8]byte{2, byte(typeStdout), 0, 1, 0, 0, 0, 0}
	_, err := decodeHeader(b[:])
	require.Error(t, err)
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	_, err := decodeHeader([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestBeginRequestBodyKeepConn(t *testing.T) {
	b, err := decodeBeginRequestBody([]byte{0, byte(RoleResponder), keepConnFlag, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, RoleResponder, b.role)
	assert.True(t, b.keepConn())

	b, err = decodeBeginRequestBody([]byte{0, byte(RoleResponder), 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.False(t, b.keepConn())
}

func TestEncodeEndRequestBody(t *testing.T) {
	b := encodeEndRequestBody(300, StatusRequestComplete)
	// only the low byte of app_status is populated, per spec.
	assert.Equal(t, byte(300&0xff), b[3])
	assert.Equal(t, StatusRequestComplete, b[4])
}
