// Package supervisor implements the root process: it parses flags,
// binds the listening socket, forks and re-execs one worker per -j,
// and reaps them. Every path through this package, root and worker
// alike, chroots and drops privileges before serving or reaping; the
// root path binds the socket and starts the workers first. This mirrors
// pkg_fcgi.c's main(), which does so unconditionally before branching
// on -S.
package supervisor

import (
	"github.com/spf13/pflag"
)

const (
	defaultChildren = 3
	maxChildren     = 32
	defaultSocket   = "/run/pkg_fcgi.sock"
	defaultUser     = "www"
	defaultDB       = "/pkg_fcgi/pkgs.sqlite3"
)

// Options holds the parsed command line, mirroring pkg_fcgi's getopt
// string "dj:p:Ss:u:v".
type Options struct {
	Foreground bool // -d: do not daemonize
	Children   int  // -j
	Root       string
	Server     bool // -S: this process is a worker; Run drops privileges before serving
	Socket     string
	User       string
	Verbose    int // -v, repeatable
	DB         string
}

// Parse builds Options from argv (excluding argv[0]).
func Parse(args []string) (Options, error) {
	fs := pflag.NewFlagSet("pkg_fcgi", pflag.ContinueOnError)

	opts := Options{
		Children: defaultChildren,
		Socket:   defaultSocket,
		User:     defaultUser,
		DB:       defaultDB,
	}

	fs.BoolVarP(&opts.Foreground, "foreground", "d", false, "do not daemonize")
	fs.IntVarP(&opts.Children, "children", "j", defaultChildren, "number of worker processes")
	fs.StringVarP(&opts.Root, "root", "p", "", "chroot directory (defaults to the service user's home)")
	fs.BoolVarP(&opts.Server, "server", "S", false, "internal: run as a dropped-privilege worker")
	fs.StringVarP(&opts.Socket, "socket", "s", defaultSocket, "listening socket path, relative to root")
	fs.StringVarP(&opts.User, "user", "u", defaultUser, "user to run as after dropping privileges")
	fs.CountVarP(&opts.Verbose, "verbose", "v", "increase log verbosity")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}

	opts.DB = defaultDB
	if rest := fs.Args(); len(rest) > 0 {
		opts.DB = rest[0]
	}

	if opts.Children < 1 {
		opts.Children = 1
	}
	if opts.Children > maxChildren {
		opts.Children = maxChildren
	}

	return opts, nil
}
