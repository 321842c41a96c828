package fastcgi

import (
	"fmt"
)

// outBufCap is the fixed capacity of a request's output scratch region,
// fixed at 1024 bytes.
const outBufCap = 1024

// outBuf accumulates body bytes for one request and packages them into
// FCGI_STDOUT records on flush. It is the Go counterpart of clt_buf /
// clt_write / clt_flush in original_source/fcgi.c.
type outBuf struct {
	buf [outBufCap]byte
	len int

	requestID uint16
	flushFn   func(requestID uint16, payload []byte) error
}

func newOutBuf(requestID uint16, flushFn func(uint16, []byte) error) *outBuf {
	return &outBuf{requestID: requestID, flushFn: flushFn}
}

// append writes p into the buffer, flushing as many times as necessary
// when p does not fit. An append larger than the whole region is split
// across successive flushes, matching clt_write's copy-then-flush loop.
func (o *outBuf) append(p []byte) error {
	for len(p) > 0 {
		left := outBufCap - o.len
		if left == 0 {
			if err := o.flush(); err != nil {
				return err
			}
			left = outBufCap
		}

		n := len(p)
		if n > left {
			n = left
		}

		copy(o.buf[o.len:], p[:n])
		o.len += n
		p = p[n:]
	}

	return nil
}

// printf formats into a heap string and appends it, mirroring
// clt_printf's vasprintf-then-clt_write-then-free.
func (o *outBuf) printf(format string, args ...interface{}) error {
	s := fmt.Sprintf(format, args...)
	return o.append([]byte(s))
}

func (o *outBuf) puts(s string) error {
	return o.append([]byte(s))
}

// flush packages the current contents as a single FCGI_STDOUT record and
// resets the cursor. Flushing an empty buffer is a no-op, matching
// clt_flush's clt_buflen == 0 check.
func (o *outBuf) flush() error {
	if o.len == 0 {
		return nil
	}

	if err := o.flushFn(o.requestID, o.buf[:o.len]); err != nil {
		return err
	}

	o.len = 0
	return nil
}
