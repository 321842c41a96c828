package routes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnquotePassthrough(t *testing.T) {
	got, err := unquote("hello world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
}

func TestUnquotePercentEncoded(t *testing.T) {
	got, err := unquote("C%2B%2B")
	require.NoError(t, err)
	assert.Equal(t, "C++", got)
}

func TestUnquoteRejectsNullByte(t *testing.T) {
	_, err := unquote("a%00b")
	require.Error(t, err)
}

func TestUnquoteRejectsBadHex(t *testing.T) {
	_, err := unquote("a%zzb")
	require.Error(t, err)
}

func TestUnquoteRejectsTruncatedEscape(t *testing.T) {
	_, err := unquote("a%2")
	require.Error(t, err)
}

func TestFTSEscapeExample(t *testing.T) {
	got, err := ftsEscape(`C++ "framework"`)
	require.NoError(t, err)
	assert.Equal(t, `"C++" """framework""" `, got)
}

func TestFTSEscapeCollapsesWhitespace(t *testing.T) {
	got, err := ftsEscape("foo   bar\tbaz")
	require.NoError(t, err)
	assert.Equal(t, `"foo" "bar" "baz" `, got)
}

func TestFTSEscapeTooLong(t *testing.T) {
	long := make([]byte, maxFTSExprLen)
	for i := range long {
		long[i] = 'a'
	}
	_, err := ftsEscape(string(long))
	require.Error(t, err)
}

func TestFTSEscapeEmpty(t *testing.T) {
	got, err := ftsEscape("   ")
	require.NoError(t, err)
	assert.Empty(t, got)
}
