// Package rpclog builds the logrus loggers shared by framework components.
package rpclog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New creates a process logger writing text records to out at the given level.
// An unparsable level falls back to info.
func New(level string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	if out == nil {
		out = os.Stdout
	}
	logger.Out = out
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

// Default returns an entry on the standard logger tagged with the component name.
func Default(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}

// Or returns entry tagged with component, or Default(component) when entry is nil.
func Or(entry *logrus.Entry, component string) *logrus.Entry {
	if entry == nil {
		return Default(component)
	}
	return entry.WithField("component", component)
}
