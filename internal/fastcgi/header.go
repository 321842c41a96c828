package fastcgi

import (
	"github.com/pkg/errors"
)

// header is the 8-byte FastCGI/1.0 record header. Fields mirror
// struct fcgi_header in the original C implementation: version, type, a
// 16-bit request id split hi/lo, a 16-bit content length split hi/lo, a
// padding length, and a reserved byte.
type header struct {
	version       uint8
	typ           recType
	requestID     uint16
	contentLength uint16
	padding       uint8
	reserved      uint8
}

var errBadVersion = errors.New("fastcgi: invalid header version")
var errBadLength = errors.New("fastcgi: negative content length or padding")

// encodeHeader serializes h into the 8-byte wire form.
func encodeHeader(h header) [headerLen]byte {
	var b [headerLen]byte
	b[0] = h.version
	b[1] = byte(h.typ)
	b[2] = byte(h.requestID >> 8)
	b[3] = byte(h.requestID)
	b[4] = byte(h.contentLength >> 8)
	b[5] = byte(h.contentLength)
	b[6] = h.padding
	b[7] = h.reserved
	return b
}

// decodeHeader parses an 8-byte buffer into a header. It rejects any
// version other than 1; content length and padding are unsigned in the
// wire format so they cannot decode negative, but callers that compute
// them from signed arithmetic elsewhere should still check errBadLength.
func decodeHeader(b []byte) (header, error) {
	if len(b) < headerLen {
		return header{}, errors.New("fastcgi: short header")
	}

	h := header{
		version:       b[0],
		typ:           recType(b[1]),
		requestID:     uint16(b[2])<<8 | uint16(b[3]),
		contentLength: uint16(b[4])<<8 | uint16(b[5]),
		padding:       b[6],
		reserved:      b[7],
	}

	if h.version != 1 {
		return header{}, errors.Wrapf(errBadVersion, "got version %d", h.version)
	}

	return h, nil
}

// newHeader builds a header for an outgoing record, computing padding so
// that content+padding is a multiple of 8, the same rounding the
// original fcgi.c (*header).init applies.
func newHeader(typ recType, requestID uint16, contentLength int) header {
	return header{
		version:       1,
		typ:           typ,
		requestID:     requestID,
		contentLength: uint16(contentLength),
		padding:       uint8(-contentLength & 7),
	}
}

// beginRequestBody is the 8-byte FCGI_BEGIN_REQUEST payload.
type beginRequestBody struct {
	role  Role
	flags uint8
}

func decodeBeginRequestBody(b []byte) (beginRequestBody, error) {
	if len(b) < 8 {
		return beginRequestBody{}, errors.New("fastcgi: short begin-request body")
	}
	return beginRequestBody{
		role:  Role(uint16(b[0])<<8 | uint16(b[1])),
		flags: b[2],
	}, nil
}

func (b beginRequestBody) keepConn() bool {
	return b.flags&keepConnFlag != 0
}

// encodeEndRequestBody renders the 8-byte FCGI_END_REQUEST payload. Only
// the low byte of appStatus is populated.
func encodeEndRequestBody(appStatus int, protoStatus uint8) [8]byte {
	var b [8]byte
	b[3] = byte(appStatus)
	b[4] = protoStatus
	return b
}
