package supervisor

import (
	"os"
	"os/user"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// bindSocketMode matches bind_socket's chmod: owner and group
// read/write, nothing for others.
const bindSocketMode = 0o660

// bindUmask is applied only around the bind(2) call, the same trick
// bind_socket uses to keep the kernel from creating the socket node
// world-writable for the brief window before chmod runs.
const bindUmask = unix.S_IXUSR | unix.S_IXGRP | unix.S_IWOTH | unix.S_IROTH | unix.S_IXOTH

// bindSocket creates, binds and listens on a SOCK_STREAM unix socket
// at path, then chmods and chowns it to u, matching bind_socket in
// pkg_fcgi.c. It returns the raw fd so the caller can dup2 it onto fd
// 3 for each forked worker.
func bindSocket(path string, u *user.User) (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, errors.Wrap(err, "supervisor: socket")
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		unix.Close(fd)
		return -1, errors.Wrapf(err, "supervisor: unlink %s", path)
	}

	sa := &unix.SockaddrUnix{Name: path}

	old := unix.Umask(bindUmask)
	bindErr := unix.Bind(fd, sa)
	unix.Umask(old)
	if bindErr != nil {
		unix.Close(fd)
		return -1, errors.Wrapf(bindErr, "supervisor: bind %s", path)
	}

	if err := os.Chmod(path, bindSocketMode); err != nil {
		unix.Close(fd)
		os.Remove(path)
		return -1, errors.Wrapf(err, "supervisor: chmod %s", path)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "supervisor: parse uid")
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "supervisor: parse gid")
	}
	if err := os.Chown(path, uid, gid); err != nil {
		unix.Close(fd)
		os.Remove(path)
		return -1, errors.Wrapf(err, "supervisor: chown %s", path)
	}

	const listenBacklog = 5
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		os.Remove(path)
		return -1, errors.Wrap(err, "supervisor: listen")
	}

	return fd, nil
}

// sanitizeStdFDs makes sure fds 0-2 are open, dup'ing /dev/null onto
// whichever of them fcntl(F_GETFD) fails on. bind_socket and daemon(3) both
// assume a sane fd table; pkg_fcgi.c does this before anything else in
// main().
func sanitizeStdFDs() error {
	for fd := 0; fd < 3; fd++ {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err == nil {
			continue
		}

		devNull, err := unix.Open("/dev/null", unix.O_RDWR, 0)
		if err != nil {
			return errors.Wrap(err, "supervisor: open /dev/null")
		}
		if devNull != fd {
			if err := unix.Dup2(devNull, fd); err != nil {
				unix.Close(devNull)
				return errors.Wrap(err, "supervisor: dup2 /dev/null")
			}
			unix.Close(devNull)
		}
	}
	return nil
}
