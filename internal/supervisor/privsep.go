package supervisor

import (
	"os/user"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// dropPrivileges chroots into root, chdirs to "/" inside it, and
// permanently drops to u's uid/gid. It runs in both the supervisor and
// every worker, unconditionally, matching main()'s unconditional
// chroot/setresuid block that runs before the `if (server)` branch.
func dropPrivileges(root string, u *user.User) error {
	if err := unix.Chroot(root); err != nil {
		return errors.Wrapf(err, "supervisor: chroot %s", root)
	}
	if err := unix.Chdir("/"); err != nil {
		return errors.Wrap(err, "supervisor: chdir /")
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return errors.Wrap(err, "supervisor: parse uid")
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return errors.Wrap(err, "supervisor: parse gid")
	}

	if err := unix.Setgroups([]int{gid}); err != nil {
		return errors.Wrap(err, "supervisor: setgroups")
	}
	if err := unix.Setresgid(gid, gid, gid); err != nil {
		return errors.Wrap(err, "supervisor: setresgid")
	}
	if err := unix.Setresuid(uid, uid, uid); err != nil {
		return errors.Wrap(err, "supervisor: setresuid")
	}

	return nil
}

// lookupUser resolves name and rejects the superuser, matching
// main()'s explicit "cannot run as %s: must not be the superuser"
// check. Privilege separation is pointless if the target account is
// uid 0.
func lookupUser(name string) (*user.User, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return nil, errors.Wrapf(err, "supervisor: user %s not found", name)
	}
	if u.Uid == "0" {
		return nil, errors.Errorf("supervisor: cannot run as %s: must not be the superuser", name)
	}
	return u, nil
}
