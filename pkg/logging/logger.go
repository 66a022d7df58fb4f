// Package logging provides a process-wide structured logger for reldb.
//
// The package wraps logrus and exposes a single global logger instance
// that is initialized once and then retrieved via GetLogger. All
// subsystems should obtain a logger through this package rather than
// constructing their own, so that log level and output destination are
// controlled from a single place.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu     sync.Mutex
	logger *logrus.Logger
)

// Init configures the global logger. Safe to call more than once; the
// last configuration wins. Subsystems that log before Init see the
// defaults (info level, stderr).
func Init(level logrus.Level, out io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	l := newLogger()
	l.SetLevel(level)
	if out != nil {
		l.SetOutput(out)
	}
	logger = l
}

// GetLogger returns the global logger, initializing defaults on first use.
func GetLogger() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()

	if logger == nil {
		logger = newLogger()
	}
	return logger
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableLevelTruncation: true,
	})
	return l
}
