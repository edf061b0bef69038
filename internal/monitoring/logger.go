// Package monitoring owns the process-wide logger. Components log through
// For(component) to get an entry carrying their component field; Logf stays
// available for plain formatted diagnostics.
package monitoring

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var logger = newLogger(os.Stderr, false)

// Logf is the plain formatted logger for libraries that only speak
// Printf, such as the migration runner. Init points it at the shared
// logger at info level; tests may swap it to capture output.
var Logf func(format string, v ...interface{}) = logger.Infof

// Init configures the shared logger: JSON lines at info level by default,
// coloured text at debug level when debug is set.
func Init(w io.Writer, debug bool) *logrus.Logger {
	logger = newLogger(w, debug)
	Logf = logger.Infof
	return logger
}

func newLogger(w io.Writer, debug bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	if debug {
		l.SetLevel(logrus.DebugLevel)
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		l.SetLevel(logrus.InfoLevel)
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	return l
}

// For returns an entry tagged with the component name.
func For(component string) *logrus.Entry {
	return logger.WithField("component", component)
}
