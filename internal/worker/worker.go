package worker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/omar-polo/pkg-fcgi/internal/catalog"
	"github.com/omar-polo/pkg-fcgi/internal/routes"
)

// listenFD is the descriptor number the supervisor always dup2's the
// bound socket onto before execve'ing a worker, per start_child in the
// original pkg_fcgi.c.
const listenFD = 3

// Config carries everything a worker needs once it has already
// chrooted and dropped privileges.
type Config struct {
	DBPath string
	Log    logrus.FieldLogger
}

// Run opens the catalog, builds the router, and serves fd 3 until
// SIGINT/SIGTERM. SIGHUP reopens the catalog in place; SIGPIPE is
// ignored so a client disconnecting mid-write never kills the worker,
// matching server_main's signal setup.
func Run(cfg Config) error {
	signal.Ignore(syscall.SIGPIPE)

	store, err := catalog.Open(cfg.DBPath, cfg.Log)
	if err != nil {
		return errors.Wrap(err, "worker: open catalog")
	}
	defer store.Close()

	rt := routes.New(store, cfg.Log)

	acceptor, err := NewAcceptor(listenFD, rt.Handler, cfg.Log)
	if err != nil {
		return errors.Wrap(err, "worker: init acceptor")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case sig, ok := <-sigCh:
				if !ok {
					return
				}
				switch sig {
				case syscall.SIGHUP:
					cfg.Log.Info("worker: re-opening the db")
					if err := store.Reopen(); err != nil {
						cfg.Log.WithError(err).Warn("worker: reopen failed")
					}
				case syscall.SIGINT, syscall.SIGTERM:
					cfg.Log.Info("worker: shutting down")
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	cfg.Log.Info("worker: ready")
	err = acceptor.Serve(ctx)
	cancel()
	<-done
	return err
}
