// Command pkgfcgi is a FastCGI responder that serves the OpenBSD
// ports/packages catalog over Gemini. See supervisor.Run for the
// process model: one root supervisor binds the socket and pre-forks a
// pool of chrooted, unprivileged workers.
package main

import (
	"fmt"
	"os"

	"github.com/omar-polo/pkg-fcgi/internal/supervisor"
)

func main() {
	opts, err := supervisor.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	os.Exit(supervisor.Run(opts))
}
