// Package logging provides the small printf-style logger used across the
// terminal engine, plus stream wrappers that trace traffic at debug level.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Logger interface for protocol and connection diagnostics
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// FileLogger writes timestamped lines to a file or any writer
type FileLogger struct {
	w      io.Writer
	closer io.Closer
	mu     sync.Mutex
}

// NewFileLogger creates a logger that appends to the file at path
func NewFileLogger(path string) (*FileLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{w: file, closer: file}, nil
}

// New creates a logger writing to w. Close is a no-op for loggers made this way.
func New(w io.Writer) *FileLogger {
	return &FileLogger{w: w}
}

func (l *FileLogger) log(level, format string, args ...interface{}) {
	if l == nil || l.w == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.w, "[%s] %s: %s\n", timestamp, level, msg)
}

func (l *FileLogger) Debug(format string, args ...interface{}) {
	l.log("DEBUG", format, args...)
}

func (l *FileLogger) Info(format string, args ...interface{}) {
	l.log("INFO", format, args...)
}

func (l *FileLogger) Error(format string, args ...interface{}) {
	l.log("ERROR", format, args...)
}

func (l *FileLogger) Close() error {
	if l != nil && l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// NoopLogger does nothing
type NoopLogger struct{}

func (NoopLogger) Debug(format string, args ...interface{}) {}
func (NoopLogger) Info(format string, args ...interface{})  {}
func (NoopLogger) Error(format string, args ...interface{}) {}

// OrNoop returns l, or a NoopLogger when l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}

// traceLimit caps how much of a chunk is dumped per log line.
const traceLimit = 128

func trace(logger Logger, name, verb string, p []byte) {
	if len(p) > traceLimit {
		logger.Debug("%s: %s %d bytes: %q...[truncated]", name, verb, len(p), p[:traceLimit])
		return
	}
	logger.Debug("%s: %s %d bytes: %q", name, verb, len(p), p)
}

// Reader wraps a reader and logs every read. Read deadlines are forwarded
// when the wrapped reader supports them.
type Reader struct {
	reader io.Reader
	logger Logger
	name   string
}

func NewReader(reader io.Reader, logger Logger, name string) *Reader {
	return &Reader{
		reader: reader,
		logger: OrNoop(logger),
		name:   name,
	}
}

func (lr *Reader) Read(p []byte) (int, error) {
	n, err := lr.reader.Read(p)
	if n > 0 {
		trace(lr.logger, lr.name, "Read", p[:n])
	}
	if err != nil && err != io.EOF {
		lr.logger.Error("%s: Read error: %v", lr.name, err)
	}
	return n, err
}

// SetReadDeadline forwards to the wrapped reader if it has deadlines.
func (lr *Reader) SetReadDeadline(t time.Time) error {
	if d, ok := lr.reader.(interface{ SetReadDeadline(time.Time) error }); ok {
		return d.SetReadDeadline(t)
	}
	return nil
}

// Writer wraps a writer and logs every write
type Writer struct {
	writer io.Writer
	logger Logger
	name   string
}

func NewWriter(writer io.Writer, logger Logger, name string) *Writer {
	return &Writer{
		writer: writer,
		logger: OrNoop(logger),
		name:   name,
	}
}

func (lw *Writer) Write(p []byte) (int, error) {
	n, err := lw.writer.Write(p)
	if n > 0 {
		trace(lw.logger, lw.name, "Wrote", p[:n])
	}
	if err != nil {
		lw.logger.Error("%s: Write error: %v", lw.name, err)
	}
	return n, err
}
