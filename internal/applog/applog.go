// Package applog builds the logrus.FieldLogger threaded through every
// other package. There is no package-global logger: every constructor
// in this module takes one explicitly, the way gaxiaowei-fast-php's
// service.NewContainer does.
package applog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logger whose level follows the -v/-vv verbosity count
// (0: warn, 1: info, 2+: debug), mirroring log_setverbose in the
// original C daemon. toStderr sets the output to os.Stderr with a
// TextFormatter that prints full timestamps; otherwise logrus's defaults
// are kept, which also write to stderr. There is no syslog sink.
func New(verbose int, toStderr bool) logrus.FieldLogger {
	log := logrus.New()

	switch {
	case verbose >= 2:
		log.SetLevel(logrus.DebugLevel)
	case verbose == 1:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.WarnLevel)
	}

	if toStderr {
		log.SetOutput(os.Stderr)
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return log
}
