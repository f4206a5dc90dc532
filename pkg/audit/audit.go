// Package audit appends one line per executed action to a local log.
//
// The file is opened, appended and closed on every write. Failures are
// swallowed: auditing never changes an action's outcome.
package audit

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/devicelab-dev/droid-agent/pkg/logger"
)

// DefaultPath is the audit log location relative to the working directory.
const DefaultPath = "logs/execution.log"

// Recorder receives one entry per action execution.
type Recorder interface {
	Record(kind, params, outcome string)
}

// Log is a file-backed Recorder. The zero value writes nowhere.
type Log struct {
	path string
	now  func() time.Time
}

// New creates an audit log at path.
func New(path string) *Log {
	return &Log{path: path, now: time.Now}
}

// Path returns the log file path.
func (l *Log) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Record appends {time, action, params, outcome} as one JSON line.
func (l *Log) Record(kind, params, outcome string) {
	if l == nil || l.path == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		logger.Debug("audit: %v", err)
		return
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logger.Debug("audit: %v", err)
		return
	}
	defer f.Close()

	zl := zerolog.New(f)
	zl.Log().
		Str("time", l.now().Format(time.RFC3339)).
		Str("action", kind).
		Str("params", params).
		Str("outcome", outcome).
		Send()
}

// Discard is a Recorder that drops every entry.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(string, string, string) {}
