// Package logger provides named loggers that share one process-wide handler.
//
// Transfers log under "transfer <id>", where id is a short random token,
// so lines from concurrent downloads of the same URL stay apart.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cenkalti/log"
	"github.com/google/uuid"
)

const timeLayout = "2006-01-02 15:04:05.000"

var handler log.Handler

func init() {
	SetHandler(log.NewFileHandler(os.Stderr))
	SetLevel(log.INFO)
}

// SetHandler replaces the handler every Logger writes to.
func SetHandler(h log.Handler) {
	handler = h
	handler.SetFormatter(logFormatter{})
}

// SetLevel sets the minimum level written by the handler.
func SetLevel(l log.Level) {
	handler.SetLevel(l)
}

// ParseLevel maps a level name such as "debug" or "warning" to a log.Level.
// An empty name is INFO.
func ParseLevel(s string) (log.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DEBUG, nil
	case "info", "":
		return log.INFO, nil
	case "notice":
		return log.NOTICE, nil
	case "warning", "warn":
		return log.WARNING, nil
	case "error":
		return log.ERROR, nil
	case "critical":
		return log.CRITICAL, nil
	default:
		return log.INFO, fmt.Errorf("logger: unknown level %q", s)
	}
}

// Logger is a named logger.
type Logger log.Logger

// New returns a Logger named name. Filtering happens in the handler, so
// the Logger itself forwards every level.
func New(name string) Logger {
	l := log.NewLogger(name)
	l.SetLevel(log.DEBUG)
	l.SetHandler(handler)
	return l
}

// NewTransfer returns a Logger for one transfer, named with a fresh id.
func NewTransfer() Logger {
	return New("transfer " + uuid.New().String()[:8])
}

type logFormatter struct{}

// Format renders "2024-02-28 18:15:57.120 INFO     transfer 1a2b3c4d | finalize.go:88 done".
func (logFormatter) Format(rec *log.Record) string {
	return fmt.Sprintf("%s %-8s %s | %s:%d %s",
		rec.Time.Format(timeLayout),
		rec.Level,
		rec.LoggerName,
		filepath.Base(rec.Filename),
		rec.Line,
		rec.Message)
}
