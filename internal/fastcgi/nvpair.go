package fastcgi

// Name/value pair length encoding, per FastCGI/1.0 §3.4: a length under
// 128 is a single byte with the high bit clear; a length of 128 or more
// is four bytes with the high bit of the first byte set and the
// remaining 31 bits holding the value.

// encodeSize writes the wire encoding of size into the front of b, which
// must hold at least 4 bytes, and returns the number of bytes written
// (1 or 4).
func encodeSize(b []byte, size uint32) int {
	if size > 127 {
		b[0] = byte(size>>24) | 0x80
		b[1] = byte(size >> 16)
		b[2] = byte(size >> 8)
		b[3] = byte(size)
		return 4
	}

	b[0] = byte(size)
	return 1
}

// decodeSize reads a length field from the front of s, returning the
// decoded value and the number of bytes consumed. It returns (0, 0) if s
// does not hold a complete length field.
func decodeSize(s []byte) (uint32, int) {
	if len(s) == 0 {
		return 0, 0
	}

	if s[0]&0x80 == 0 {
		return uint32(s[0]), 1
	}

	if len(s) < 4 {
		return 0, 0
	}

	size := (uint32(s[0]&0x7F) << 24) | (uint32(s[1]) << 16) | (uint32(s[2]) << 8) | uint32(s[3])
	return size, 4
}

// sizeLen reports how many bytes encodeSize would need for size.
func sizeLen(size int) int {
	if size > 127 {
		return 4
	}
	return 1
}

// encodeNVPair appends name/value in FastCGI's length-prefixed form.
func encodeNVPair(buf []byte, name, value string) []byte {
	var lb [4]byte

	n := encodeSize(lb[:], uint32(len(name)))
	buf = append(buf, lb[:n]...)

	n = encodeSize(lb[:], uint32(len(value)))
	buf = append(buf, lb[:n]...)

	buf = append(buf, name...)
	buf = append(buf, value...)
	return buf
}

// nvPair is a single decoded name/value pair together with the raw byte
// count it occupied, used by the PARAMS reader to advance its cursor.
type nvPair struct {
	name  string
	value string
	// nameTooLong is set when name's length exceeded the 31-byte
	// 31-byte limit; value is empty and the caller must
	// still account for consumed bytes via consumed.
	nameTooLong bool
	consumed    int
}

// maxParamNameLen bounds PARAMS name length: a longer name causes
// that pair to be dropped (both fields still drained from the stream).
const maxParamNameLen = 31

// decodeNVPair parses one name/value pair from the front of s. ok is
// false if s does not contain a complete pair yet.
func decodeNVPair(s []byte) (pair nvPair, ok bool) {
	nameLen, n1 := decodeSize(s)
	if n1 == 0 {
		return nvPair{}, false
	}
	rest := s[n1:]

	valLen, n2 := decodeSize(rest)
	if n2 == 0 {
		return nvPair{}, false
	}
	rest = rest[n2:]

	total := int(nameLen) + int(valLen)
	if len(rest) < total {
		return nvPair{}, false
	}

	consumed := n1 + n2 + total

	if nameLen > maxParamNameLen {
		return nvPair{nameTooLong: true, consumed: consumed}, true
	}

	name := string(rest[:nameLen])
	value := string(rest[nameLen : nameLen+valLen])

	return nvPair{name: name, value: value, consumed: consumed}, true
}
