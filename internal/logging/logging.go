package logging

import (
	"io"
	"strings"

	"github.com/pion/logging"
)

// NewFactory returns a pion logger factory writing at the given level
// ("error", "warn", "info", "debug", "trace", "disabled"). Unknown levels
// mean info. A nil writer keeps stdout.
func NewFactory(level string, w io.Writer) logging.LoggerFactory {
	f := logging.NewDefaultLoggerFactory()
	f.DefaultLogLevel = ParseLevel(level)
	if w != nil {
		f.Writer = w
	}
	return f
}

// ParseLevel maps a level name onto pion's LogLevel.
func ParseLevel(level string) logging.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "disabled", "off", "none":
		return logging.LogLevelDisabled
	case "error":
		return logging.LogLevelError
	case "warn", "warning":
		return logging.LogLevelWarn
	case "debug":
		return logging.LogLevelDebug
	case "trace":
		return logging.LogLevelTrace
	default:
		return logging.LogLevelInfo
	}
}

// Scoped returns a logger for scope, falling back to a quiet default factory
// when f is nil so components never need a nil check.
func Scoped(f logging.LoggerFactory, scope string) logging.LeveledLogger {
	if f == nil {
		f = logging.NewDefaultLoggerFactory()
	}
	return f.NewLogger(scope)
}
