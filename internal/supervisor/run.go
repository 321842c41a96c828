package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/omar-polo/pkg-fcgi/internal/applog"
	"github.com/omar-polo/pkg-fcgi/internal/worker"
)

// daemonizedEnv marks a re-exec'd supervisor that has already detached
// from its controlling terminal, so Run doesn't try again.
const daemonizedEnv = "PKG_FCGI_DAEMONIZED"

// Run is the single entry point cmd/pkgfcgi calls. It never returns
// except with the process' final exit status, mirroring main()'s
// control flow: privilege drop is unconditional, only the branch on
// -S differs.
func Run(opts Options) int {
	if err := sanitizeStdFDs(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log := applog.New(opts.Verbose, true)

	if os.Geteuid() != 0 {
		log.Error("supervisor: need root privileges")
		return 1
	}

	u, err := lookupUser(opts.User)
	if err != nil {
		log.WithError(err).Error("supervisor: user lookup failed")
		return 1
	}

	root := opts.Root
	if root == "" {
		root = u.HomeDir
	}

	// Daemonize before forking workers, not after: re-exec'd workers
	// must be children of the long-lived detached process, or this
	// process' reap loop would never see them exit.
	if !opts.Server && !opts.Foreground && os.Getenv(daemonizedEnv) == "" {
		return reexecDetached()
	}

	var pids []*os.Process
	if !opts.Server {
		sockPath := filepath.Join(root, opts.Socket)
		listenFd, err := bindSocket(sockPath, u)
		if err != nil {
			log.WithError(err).Error("supervisor: failed to open socket")
			return 1
		}

		pids, err = spawnChildren(opts, listenFd, log)
		syscall.Close(listenFd)
		if err != nil {
			log.WithError(err).Error("supervisor: failed to fork workers")
			return 1
		}

		installSigchldHandler(pids, log)
	}

	if err := dropPrivileges(root, u); err != nil {
		log.WithError(err).Error("supervisor: failed to drop privileges")
		return 1
	}

	log = applog.New(opts.Verbose, opts.Foreground)

	if opts.Server {
		if err := worker.Run(worker.Config{DBPath: opts.DB, Log: log}); err != nil {
			log.WithError(err).Error("worker: exited with error")
			return 1
		}
		return 0
	}

	return reapLoop(log)
}

// reexecDetached re-executes the current process with the same argv
// in a new session, its stdio pointed at /dev/null, then exits so the
// original caller's shell returns immediately. Plays the role of
// daemon(1, 0) without calling fork(2) directly, which the Go runtime
// does not support safely once goroutines/threads exist.
func reexecDetached() int {
	self, err := os.Executable()
	if err != nil {
		fmt.Fprintln(os.Stderr, errors.Wrap(err, "supervisor: resolve executable"))
		return 1
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, errors.Wrap(err, "supervisor: open /dev/null"))
		return 1
	}
	defer devNull.Close()

	cmd := exec.Command(self, os.Args[1:]...)
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.Env = append(os.Environ(), daemonizedEnv+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		fmt.Fprintln(os.Stderr, errors.Wrap(err, "supervisor: daemonize"))
		return 1
	}

	return 0
}

// spawnChildren forks opts.Children copies of the current executable,
// each re-invoked with "-S" plus the flags needed to reach the same
// state (root, user, daemonize, verbosity, db), and each with a dup of
// listenFd on fd 3. Mirrors start_child.
func spawnChildren(opts Options, listenFd int, log logrus.FieldLogger) ([]*os.Process, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "supervisor: resolve executable")
	}

	args := []string{"-S", "-p", opts.Root, "-u", opts.User}
	if opts.Foreground {
		args = append(args, "-d")
	}
	for i := 0; i < opts.Verbose; i++ {
		args = append(args, "-v")
	}
	args = append(args, opts.DB)

	procs := make([]*os.Process, 0, opts.Children)
	for i := 0; i < opts.Children; i++ {
		dup, err := syscall.Dup(listenFd)
		if err != nil {
			return procs, errors.Wrap(err, "supervisor: dup listen fd")
		}

		cmd := exec.Command(self, args...)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		// ExtraFiles[0] lands on fd 3 in the child: os/exec always
		// places stdin/out/err on 0-2 and ExtraFiles immediately after.
		cmd.ExtraFiles = []*os.File{os.NewFile(uintptr(dup), "listen")}

		if err := cmd.Start(); err != nil {
			syscall.Close(dup)
			return procs, errors.Wrap(err, "supervisor: start worker")
		}
		cmd.ExtraFiles[0].Close()

		log.WithField("pid", cmd.Process.Pid).Debug("supervisor: forked worker")
		procs = append(procs, cmd.Process)
	}

	return procs, nil
}

// installSigchldHandler mirrors handle_sigchld: the first SIGCHLD
// broadcasts SIGTERM to every sibling once, so one worker dying brings
// the whole pool down together rather than leaving the rest orphaned.
func installSigchldHandler(pids []*os.Process, log logrus.FieldLogger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGCHLD)

	var once sync.Once
	go func() {
		for range ch {
			once.Do(func() {
				log.Warn("supervisor: a worker died, terminating the pool")
				for _, p := range pids {
					_ = p.Signal(syscall.SIGTERM)
				}
			})
		}
	}()
}

// reapLoop waits for every forked worker to exit, logging each exit
// the way main()'s trailing waitpid loop does, and returns once there
// is nothing left to reap.
func reapLoop(log logrus.FieldLogger) int {
	for {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &ws, 0, nil)
		if err == syscall.ECHILD {
			return 1
		}
		if err == syscall.EINTR {
			continue
		}
		if err != nil {
			log.WithError(err).Error("supervisor: waitpid failed")
			return 1
		}

		cause := "died"
		switch {
		case ws.Signaled():
			cause = "was terminated"
		case ws.Exited() && ws.ExitStatus() != 0:
			cause = "exited abnormally"
		case ws.Exited():
			cause = "exited successfully"
		}
		log.WithField("pid", pid).Warnf("supervisor: child process %s", cause)
	}
}
