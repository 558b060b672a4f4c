// Package sessionlog records what a BBS sent during one connection.
package sessionlog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("session log closed")

// FileName names the log of a connection opened at t.
func FileName(t time.Time) string {
	stamp := t.UTC().Format(time.RFC3339Nano)
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return "session-" + stamp + ".bin"
}

// Log is an append-only byte log.
type Log struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// Open creates a new log in dir, creating dir if needed.
func Open(dir string, now time.Time) (*Log, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create log directory")
	}
	path := filepath.Join(dir, FileName(now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open session log")
	}
	return &Log{f: f, path: path}, nil
}

// Path is where the log is written.
func (l *Log) Path() string {
	return l.path
}

// Append writes p at the end of the log.
func (l *Log) Append(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return ErrClosed
	}
	_, err := l.f.Write(p)
	return errors.Wrapf(err, "write %s", l.path)
}

// Close flushes and closes the log. Closing twice is harmless.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return errors.Wrap(err, "close session log")
}
