// Package logging provides the logger interface used across timewarp.
// It uses logrus under the hood.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Tracef(format string, args ...any)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)
	WithField(key string, value any) *logrus.Entry
	WithFields(fields logrus.Fields) *logrus.Entry
}

type logger struct {
	*logrus.Logger
}

// New returns a Logger writing text lines with full timestamps to w.
func New(w io.Writer, level logrus.Level) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp: true,
	}
	return &logger{Logger: l}
}

// Discard returns a Logger that drops everything. Components fall back to
// it when constructed without a logger.
func Discard() Logger {
	return New(io.Discard, logrus.PanicLevel)
}

// ParseVerbosity maps a verbosity option to a logrus level. Both level names
// and the numeric form 0 (silent) through 5 (trace) are accepted.
func ParseVerbosity(v string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "0", "silent":
		return logrus.PanicLevel, nil
	case "1", "error":
		return logrus.ErrorLevel, nil
	case "2", "warn", "warning":
		return logrus.WarnLevel, nil
	case "3", "info":
		return logrus.InfoLevel, nil
	case "4", "debug":
		return logrus.DebugLevel, nil
	case "5", "trace":
		return logrus.TraceLevel, nil
	}
	return 0, fmt.Errorf("unknown verbosity level %q", v)
}
