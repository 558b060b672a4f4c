package zmodem

import (
	"sync"
	"time"
)

// ProgressTracker tracks transfer progress and invokes the progress callback.
// With a zero interval every Update is reported, which is what acknowledged
// chunk-by-chunk transfers want.
type ProgressTracker struct {
	mu sync.Mutex

	filename         string
	bytesTransferred int64
	bytesTotal       int64
	startTime        time.Time
	lastUpdate       time.Time
	lastBytes        int64

	callback       func(string, int64, int64, float64)
	updateInterval time.Duration
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker(callback func(string, int64, int64, float64), interval time.Duration) *ProgressTracker {
	if interval < 0 {
		interval = 0
	}
	return &ProgressTracker{
		callback:       callback,
		updateInterval: interval,
	}
}

// Start begins tracking a new file.
func (pt *ProgressTracker) Start(filename string, bytesTotal int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.filename = filename
	pt.bytesTotal = bytesTotal
	pt.bytesTransferred = 0
	pt.startTime = time.Now()
	pt.lastUpdate = pt.startTime
	pt.lastBytes = 0
}

// Update records progress and invokes the callback unless throttled.
// Reaching the total is always reported.
func (pt *ProgressTracker) Update(bytesTransferred int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.bytesTransferred = bytesTransferred

	now := time.Now()
	final := pt.bytesTotal > 0 && bytesTransferred >= pt.bytesTotal
	if !final && now.Sub(pt.lastUpdate) < pt.updateInterval {
		return
	}

	var rate float64
	if elapsed := now.Sub(pt.lastUpdate).Seconds(); elapsed > 0 {
		rate = float64(bytesTransferred-pt.lastBytes) / elapsed
	}
	if pt.callback != nil {
		pt.callback(pt.filename, bytesTransferred, pt.bytesTotal, rate)
	}

	pt.lastUpdate = now
	pt.lastBytes = bytesTransferred
}

// Complete marks the file done and returns the elapsed time.
func (pt *ProgressTracker) Complete() time.Duration {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return time.Since(pt.startTime)
}

// Transferred returns the bytes recorded so far.
func (pt *ProgressTracker) Transferred() int64 {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.bytesTransferred
}
