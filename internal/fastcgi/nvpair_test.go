package fastcgi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNVPairRoundTrip(t *testing.T) {
	buf := encodeNVPair(nil, "SCRIPT_NAME", "/search")

	pair, ok := decodeNVPair(buf)
	require.True(t, ok)
	assert.Equal(t, "SCRIPT_NAME", pair.name)
	assert.Equal(t, "/search", pair.value)
	assert.Equal(t, len(buf), pair.consumed)
	assert.False(t, pair.nameTooLong)
}

func TestNVPairSizeEncodingThreshold(t *testing.T) {
	var b [4]byte

	n := encodeSize(b[:], 127)
	assert.Equal(t, 1, n)

	n = encodeSize(b[:], 128)
	assert.Equal(t, 4, n)
	assert.True(t, b[0]&0x80 != 0)
}

func TestNVPairLongValueUsesFourByteLength(t *testing.T) {
	value := make([]byte, 200)
	for i := range value {
		value[i] = 'x'
	}

	buf := encodeNVPair(nil, "QUERY_STRING", string(value))
	pair, ok := decodeNVPair(buf)
	require.True(t, ok)
	assert.Equal(t, string(value), pair.value)
}

func TestNVPairIncompleteReturnsNotOK(t *testing.T) {
	full := encodeNVPair(nil, "REQUEST_METHOD", "GET")

	for i := 0; i < len(full)-1; i++ {
		_, ok := decodeNVPair(full[:i])
		assert.Falsef(t, ok, "expected incomplete at prefix length %d", i)
	}
}

func TestNVPairNameTooLongIsDroppedButConsumed(t *testing.T) {
	longName := make([]byte, 32)
	for i := range longName {
		longName[i] = 'a'
	}

	buf := encodeNVPair(nil, string(longName), "value")
	pair, ok := decodeNVPair(buf)
	require.True(t, ok)
	assert.True(t, pair.nameTooLong)
	assert.Equal(t, len(buf), pair.consumed)
}

func TestNVPairMultipleInOneBuffer(t *testing.T) {
	var buf []byte
	buf = encodeNVPair(buf, "SERVER_NAME", "example.gmi")
	buf = encodeNVPair(buf, "REQUEST_METHOD", "GET")

	pair, ok := decodeNVPair(buf)
	require.True(t, ok)
	assert.Equal(t, "SERVER_NAME", pair.name)
	buf = buf[pair.consumed:]

	pair, ok = decodeNVPair(buf)
	require.True(t, ok)
	assert.Equal(t, "REQUEST_METHOD", pair.name)
	buf = buf[pair.consumed:]

	assert.Empty(t, buf)
}
