// Package worker runs one pre-forked, chrooted, unprivileged responder
// process: it owns the listening socket passed down on fd 3, accepts
// connections with the same fd-reservation backpressure as fcgi.c's
// accept_reserve, and serves each one with internal/fastcgi.
package worker

import (
	"context"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/omar-polo/pkg-fcgi/internal/fastcgi"
)

// fdReserve is the number of file descriptors accept_reserve always
// keeps free, so the worker never hits the hard RLIMIT_NOFILE ceiling
// mid-request (original: FD_RESERVE in pkg.h).
const fdReserve = 5

// pauseDuration is how long the acceptor backs off after hitting the
// descriptor limit, matching fcgi_accept's one-second evtimer pause.
const pauseDuration = time.Second

// Acceptor owns the pre-bound listening socket (always fd 3 in the
// worker process) and hands every accepted connection to handler.
type Acceptor struct {
	listener *net.UnixListener
	handler  fastcgi.Handler
	log      logrus.FieldLogger

	mu       sync.Mutex
	inflight int

	// dispatchMu serializes handler invocations within this worker,
	// so the catalog's prepared statements never see two queries
	// interleaved on the same *sql.Stmt from this process: the
	// single-threaded scheduling guarantee the original gets for
	// free from being one libevent loop per worker.
	dispatchMu sync.Mutex

	nextConnID uint64
}

// NewAcceptor wraps an already-listening fd 3 socket.
func NewAcceptor(fd int, handler fastcgi.Handler, log logrus.FieldLogger) (*Acceptor, error) {
	f := os.NewFile(uintptr(fd), "listen")
	l, err := net.FileListener(f)
	if err != nil {
		return nil, errors.Wrap(err, "worker: wrap listen fd")
	}
	f.Close()

	ul, ok := l.(*net.UnixListener)
	if !ok {
		l.Close()
		return nil, errors.New("worker: fd 3 is not a unix socket")
	}

	return &Acceptor{listener: ul, handler: handler, log: log}, nil
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed. It never returns an error for a clean shutdown.
func (a *Acceptor) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		a.listener.Close()
	}()

	for {
		if dtableAlmostFull(a.currentInflight()) {
			a.log.Debug("worker: deferring connections")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pauseDuration):
			}
			continue
		}

		c, err := a.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isTemporary(err) {
				time.Sleep(pauseDuration)
				continue
			}
			return errors.Wrap(err, "worker: accept")
		}

		a.incInflight()
		a.nextConnID++
		id := a.nextConnID

		go a.serveConn(id, c)
	}
}

func (a *Acceptor) serveConn(id uint64, c net.Conn) {
	defer a.decInflight()

	conn := fastcgi.NewConn(id, c, a.serialize(a.handler), a.log.WithField("conn", id))
	if err := conn.Serve(); err != nil {
		a.log.WithError(err).WithField("conn", id).Debug("worker: connection ended")
	}
}

// serialize wraps h so every call across every connection in this
// worker runs under dispatchMu.
func (a *Acceptor) serialize(h fastcgi.Handler) fastcgi.Handler {
	return func(req *fastcgi.Request) (int, error) {
		a.dispatchMu.Lock()
		defer a.dispatchMu.Unlock()
		return h(req)
	}
}

func (a *Acceptor) incInflight() {
	a.mu.Lock()
	a.inflight++
	a.mu.Unlock()
}

func (a *Acceptor) decInflight() {
	a.mu.Lock()
	a.inflight--
	a.mu.Unlock()
}

func (a *Acceptor) currentInflight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inflight
}

// dtableAlmostFull mirrors accept_reserve's check: refuse to even try
// accepting once open descriptors plus the reserve plus in-flight
// connections would reach the process' soft RLIMIT_NOFILE.
func dtableAlmostFull(inflight int) bool {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return false
	}

	open := openFDCount()
	return uint64(open+fdReserve+inflight) >= rlim.Cur
}

// openFDCount counts entries under /proc/self/fd, the Linux analogue
// of BSD's getdtablecount().
func openFDCount() int {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return 0
	}
	return len(entries)
}

func isTemporary(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EMFILE || errno == syscall.ENFILE
	}
	return false
}
