package fastcgi

import (
	"bufio"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Handler serves one fully-received request. appStatus becomes the
// FCGI_END_REQUEST app_status; a non-nil error means the body write
// itself failed and the connection must be torn down without an
// END_REQUEST, distinguishing a "request-level" from a "transport"
// error.
type Handler func(req *Request) (appStatus int, err error)

// errConnDone is treated by Serve as a clean end of the connection, like
// io.EOF. The normal close path does not return it: finish sets the done
// flag, which Serve checks before reading the next record.
var errConnDone = errors.New("fastcgi: connection done")

// Conn drives the FastCGI/1.0 responder state machine for one accepted
// stream connection, demultiplexing records to Request contexts keyed by
// request id. One Conn is owned by exactly one goroutine; Serve blocks
// until the peer disconnects or a protocol error tears the connection
// down.
type Conn struct {
	id      uint64
	rwc     io.ReadWriteCloser
	br      *bufio.Reader
	log     logrus.FieldLogger
	handler Handler

	writeMu sync.Mutex

	requests map[uint16]*Request

	// keepConn tracks FCGI_KEEP_CONN from the most recently begun
	// request; assumed true until a BEGIN_REQUEST says otherwise,
	// matching fcgi_accept's "assume it's enabled" comment.
	keepConn bool
	done     bool
}

// NewConn wraps rwc in a FastCGI connection driven by handler. id is an
// opaque, monotonically assigned identity used only for logging.
func NewConn(id uint64, rwc io.ReadWriteCloser, handler Handler, log logrus.FieldLogger) *Conn {
	return &Conn{
		id:       id,
		rwc:      rwc,
		br:       bufio.NewReaderSize(rwc, maxWrite+headerLen),
		log:      log,
		handler:  handler,
		requests: make(map[uint16]*Request),
		keepConn: true,
	}
}

// Serve reads and dispatches records until the connection is done or an
// unrecoverable error occurs. It always closes rwc before returning.
func (c *Conn) Serve() error {
	defer c.rwc.Close()

	for {
		if c.done {
			return nil
		}

		if err := c.serveOneRecord(); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, errConnDone) {
				return nil
			}
			return err
		}
	}
}

func (c *Conn) serveOneRecord() error {
	var hb [headerLen]byte
	if _, err := io.ReadFull(c.br, hb[:]); err != nil {
		return err
	}

	h, err := decodeHeader(hb[:])
	if err != nil {
		return errors.Wrap(err, "fastcgi: tearing down connection")
	}

	total := int(h.contentLength) + int(h.padding)
	content := make([]byte, total)
	if total > 0 {
		if _, err := io.ReadFull(c.br, content); err != nil {
			return errors.Wrap(err, "fastcgi: short record body")
		}
	}
	content = content[:h.contentLength]

	switch h.typ {
	case typeBeginRequest:
		return c.handleBeginRequest(h.requestID, content)
	case typeParams:
		return c.handleParams(h.requestID, content)
	case typeStdin:
		// Not interested in request bodies; drained, not consumed
		// into any buffer.
		return nil
	case typeAbortRequest:
		return c.handleAbort(h.requestID)
	case typeGetValues:
		// Not answered.
		return nil
	default:
		c.log.WithField("type", h.typ.String()).Debug("fastcgi: ignoring record")
		return nil
	}
}

func (c *Conn) handleBeginRequest(id uint16, content []byte) error {
	body, err := decodeBeginRequestBody(content)
	if err != nil {
		return errors.Wrap(err, "fastcgi: malformed begin-request")
	}

	if body.role != RoleResponder {
		c.log.WithField("role", body.role).Warn("fastcgi: unknown role")
		if err := c.writeEndRequest(id, 1, StatusUnknownRole); err != nil {
			return err
		}
		// A wrong role is a protocol error: close the connection once
		// the END_REQUEST has been written.
		c.done = true
		return nil
	}

	if !c.keepConn {
		return errors.New("fastcgi: connection reused without FCGI_KEEP_CONN")
	}
	c.keepConn = body.keepConn()

	if _, exists := c.requests[id]; exists {
		c.log.WithField("id", id).Warn("fastcgi: ignoring begin-request for active id")
		return nil
	}

	c.requests[id] = newRequest(id, c.writeStdout)
	return nil
}

func (c *Conn) handleParams(id uint16, content []byte) error {
	req, ok := c.requests[id]
	if !ok {
		return nil // unknown id: payload already drained above
	}

	if len(content) == 0 {
		return c.dispatch(req)
	}

	for len(content) > 0 {
		pair, ok := decodeNVPair(content)
		if !ok {
			return errors.New("fastcgi: truncated PARAMS record")
		}
		content = content[pair.consumed:]

		if pair.nameTooLong {
			continue
		}

		req.applyParam(pair.name, pair.value)
	}

	return nil
}

func (c *Conn) handleAbort(id uint16) error {
	req, ok := c.requests[id]
	if !ok {
		return nil
	}

	delete(c.requests, id)
	if err := req.out.flush(); err != nil {
		return errors.Wrap(err, "fastcgi: flush on abort")
	}
	return c.finish(req.ID, 1, StatusRequestComplete)
}

// dispatch invokes the handler once a request's PARAMS stream has
// terminated. It owns the request exclusively until the handler
// returns.
func (c *Conn) dispatch(req *Request) error {
	appStatus, err := c.handler(req)
	if err != nil {
		delete(c.requests, req.ID)
		return errors.Wrap(err, "fastcgi: handler failed")
	}

	if err := req.out.flush(); err != nil {
		delete(c.requests, req.ID)
		return errors.Wrap(err, "fastcgi: final flush")
	}

	delete(c.requests, req.ID)
	return c.finish(req.ID, appStatus, StatusRequestComplete)
}

// finish emits END_REQUEST and, if the connection isn't being kept
// alive, marks it done so the Serve loop exits after this record is
// flushed to the wire.
func (c *Conn) finish(id uint16, appStatus int, protoStatus uint8) error {
	if err := c.writeEndRequest(id, appStatus, protoStatus); err != nil {
		return err
	}

	if !c.keepConn {
		c.done = true
	}

	return nil
}

// writeStdout is the flush callback every Request's outBuf uses.
func (c *Conn) writeStdout(requestID uint16, payload []byte) error {
	return c.writeRecord(typeStdout, requestID, payload)
}

func (c *Conn) writeEndRequest(id uint16, appStatus int, protoStatus uint8) error {
	body := encodeEndRequestBody(appStatus, protoStatus)
	return c.writeRecord(typeEndRequest, id, body[:])
}

// writeRecord frames payload into one or more records of at most
// maxWrite content bytes and writes them to rwc, matching
// streamWriter.Write in fcgi.c's record splitting.
func (c *Conn) writeRecord(typ recType, id uint16, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for {
		chunk := payload
		if len(chunk) > maxWrite {
			chunk = chunk[:maxWrite]
		}

		h := newHeader(typ, id, len(chunk))
		hb := encodeHeader(h)

		if _, err := c.rwc.Write(hb[:]); err != nil {
			return errors.Wrap(err, "fastcgi: write header")
		}
		if len(chunk) > 0 {
			if _, err := c.rwc.Write(chunk); err != nil {
				return errors.Wrap(err, "fastcgi: write content")
			}
		}
		if h.padding > 0 {
			if _, err := c.rwc.Write(pad[:h.padding]); err != nil {
				return errors.Wrap(err, "fastcgi: write padding")
			}
		}

		payload = payload[len(chunk):]
		if len(payload) == 0 {
			return nil
		}
	}
}

var pad [maxPad]byte
