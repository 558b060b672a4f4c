package zmodem

import (
	"io"
	"os"
	"sync"
	"time"
)

// Feed carries inbound bytes from the terminal reader loop to a running
// Session. Writes never block, so the reader loop keeps draining the
// connection while the session waits on its own deadlines.
type Feed struct {
	mu       sync.Mutex
	buf      []byte
	closed   bool
	deadline time.Time
	wake     chan struct{}
}

// NewFeed creates an empty, open feed.
func NewFeed() *Feed {
	return &Feed{wake: make(chan struct{})}
}

// signal wakes every blocked reader. Callers hold f.mu.
func (f *Feed) signal() {
	close(f.wake)
	f.wake = make(chan struct{})
}

// Write queues p for the session.
func (f *Feed) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, io.ErrClosedPipe
	}
	if len(p) == 0 {
		return 0, nil
	}
	f.buf = append(f.buf, p...)
	f.signal()
	return len(p), nil
}

// Read blocks until data is queued, the feed is closed or the read
// deadline passes. Queued data is still returned after Close.
func (f *Feed) Read(p []byte) (int, error) {
	for {
		f.mu.Lock()
		if len(f.buf) > 0 {
			n := copy(p, f.buf)
			f.buf = f.buf[n:]
			f.mu.Unlock()
			return n, nil
		}
		if f.closed {
			f.mu.Unlock()
			return 0, io.EOF
		}
		deadline, wake := f.deadline, f.wake
		f.mu.Unlock()

		if deadline.IsZero() {
			<-wake
			continue
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			return 0, os.ErrDeadlineExceeded
		}
		timer := time.NewTimer(wait)
		select {
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// SetReadDeadline sets the deadline for pending and future reads. The zero
// time waits forever.
func (f *Feed) SetReadDeadline(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadline = t
	f.signal()
	return nil
}

// Close ends the feed. Blocked readers drain what is queued, then see io.EOF.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.signal()
	}
	return nil
}

// Drain removes and returns everything still queued.
func (f *Feed) Drain() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.buf
	f.buf = nil
	return out
}

// Len reports how many bytes are queued.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buf)
}
