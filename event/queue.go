package event

import (
	"sync"
	"time"

	"github.com/drunlade/go-shiftterm/metrics"
)

// Record is one queued item: display text, or a status when Status is set.
type Record struct {
	Text   string
	Status *Status
}

// Queue is a Sink backed by a buffered channel. A full queue blocks the
// producer, so a slow display slows the connection reader instead of
// growing memory. Items are delivered in the order they were produced.
type Queue struct {
	ch   chan Record
	done chan struct{}
	once sync.Once
}

// NewQueue creates a queue holding up to size records.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{
		ch:   make(chan Record, size),
		done: make(chan struct{}),
	}
}

func (q *Queue) Write(text string) {
	if text == "" {
		return
	}
	q.put(Record{Text: text})
}

func (q *Queue) Status(s Status) {
	if s.Time.IsZero() {
		s.Time = time.Now()
	}
	metrics.StatusEventsTotal.WithLabelValues(s.Kind.String()).Inc()
	q.put(Record{Status: &s})
}

func (q *Queue) put(r Record) {
	select {
	case q.ch <- r:
	case <-q.done:
	}
}

// Records delivers queued items.
func (q *Queue) Records() <-chan Record {
	return q.ch
}

// Done is closed by Close.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Close releases blocked producers; later items are dropped.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}
