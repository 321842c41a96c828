package worker

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/omar-polo/pkg-fcgi/internal/fastcgi"
)

func discardLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(testWriter{})
	return log
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

// TestSerializeExcludesConcurrentDispatch exercises the invariant the
// whole Acceptor exists to provide: two handler calls arriving from
// different connections on the same worker never overlap.
func TestSerializeExcludesConcurrentDispatch(t *testing.T) {
	a := &Acceptor{log: discardLogger()}

	var active int32
	var maxActive int32
	handler := fastcgi.Handler(func(req *fastcgi.Request) (int, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			cur := atomic.LoadInt32(&maxActive)
			if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return 0, nil
	})

	wrapped := a.serialize(handler)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = wrapped(nil)
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, maxActive)
}

func TestInflightCounter(t *testing.T) {
	a := &Acceptor{log: discardLogger()}

	a.incInflight()
	a.incInflight()
	require.Equal(t, 2, a.currentInflight())

	a.decInflight()
	require.Equal(t, 1, a.currentInflight())
}

func TestIsTemporaryIgnoresOtherErrors(t *testing.T) {
	_, err := net.Dial("tcp", "127.0.0.1:0")
	require.Error(t, err)
	require.False(t, isTemporary(err))
}

func TestOpenFDCountIsPositive(t *testing.T) {
	// /proc/self/fd always has at least stdin/stdout/stderr on Linux.
	n := openFDCount()
	require.Greater(t, n, 0)
}
