package routes

import (
	"strings"

	"github.com/pkg/errors"
)

var errBadPercentEncoding = errors.New("routes: bad percent-encoding")

// unquote percent-decodes s in place: "%XX" where both are hex digits
// and not both zero; any other "%" sequence is an error. Mirrors the
// original unquote()'s single left-to-right
// pass.
func unquote(s string) (string, error) {
	if !strings.ContainsRune(s, '%') {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}

		if i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2]) {
			return "", errBadPercentEncoding
		}
		if s[i+1] == '0' && s[i+2] == '0' {
			return "", errBadPercentEncoding
		}

		b.WriteByte(hexVal(s[i+1])<<4 | hexVal(s[i+2]))
		i += 2
	}

	return b.String(), nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// maxFTSExprLen bounds the escaped full-text query to 1024 bytes,
// including the terminator.
const maxFTSExprLen = 1024

var errFTSExprTooLong = errors.New("routes: fts expression too long")

// ftsEscape splits query on ASCII whitespace, wraps each token in
// double quotes, doubles embedded quotes, and joins with single spaces,
// the same transform as the original fts_escape(). Trailing whitespace
// in the result is expected and tolerated.
func ftsEscape(query string) (string, error) {
	var b strings.Builder

	for _, tok := range strings.FieldsFunc(query, isFTSSpace) {
		b.WriteByte('"')
		for i := 0; i < len(tok); i++ {
			if tok[i] == '"' {
				b.WriteByte('"')
			}
			b.WriteByte(tok[i])
		}
		b.WriteString(`" `)

		if b.Len() >= maxFTSExprLen {
			return "", errFTSExprTooLong
		}
	}

	if b.Len() >= maxFTSExprLen {
		return "", errFTSExprTooLong
	}

	return b.String(), nil
}

// isFTSSpace matches the whitespace set fts_escape splits on: " \f\n\r\t\v".
func isFTSSpace(r rune) bool {
	switch r {
	case ' ', '\f', '\n', '\r', '\t', '\v':
		return true
	default:
		return false
	}
}
