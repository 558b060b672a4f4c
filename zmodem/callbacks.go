package zmodem

import (
	"io"
	"os"
	"time"
)

// Callbacks provides hooks for transfer events.
// All callbacks are optional; nil callbacks use default behavior.
type Callbacks struct {
	// OnFilePrompt is called when the remote offers a file.
	// Return false to skip it. An error aborts the session.
	OnFilePrompt func(filename string, size int64, mode os.FileMode) (bool, error)

	// OnProgress is called after every acknowledged or received data frame.
	OnProgress func(filename string, transferred, total int64, rate float64)

	// OnFileStart is called when a file's data starts flowing.
	OnFileStart func(filename string, size int64, mode os.FileMode)

	// OnFileComplete is called when a file has been fully sent or received.
	OnFileComplete func(filename string, bytesTransferred int64, duration time.Duration)

	// OnFileCreate supplies the destination for a received file.
	// A nil callback discards the data.
	OnFileCreate func(filename string, size int64, mode os.FileMode) (io.Writer, error)
}

func defaultCallbacks() *Callbacks {
	return &Callbacks{
		OnFilePrompt: func(string, int64, os.FileMode) (bool, error) {
			return true, nil
		},
		OnProgress:     func(string, int64, int64, float64) {},
		OnFileStart:    func(string, int64, os.FileMode) {},
		OnFileComplete: func(string, int64, time.Duration) {},
		OnFileCreate: func(string, int64, os.FileMode) (io.Writer, error) {
			return io.Discard, nil
		},
	}
}

// mergeCallbacks fills the nil hooks of user with defaults.
func mergeCallbacks(user *Callbacks) *Callbacks {
	def := defaultCallbacks()
	if user == nil {
		return def
	}

	result := *user
	if result.OnFilePrompt == nil {
		result.OnFilePrompt = def.OnFilePrompt
	}
	if result.OnProgress == nil {
		result.OnProgress = def.OnProgress
	}
	if result.OnFileStart == nil {
		result.OnFileStart = def.OnFileStart
	}
	if result.OnFileComplete == nil {
		result.OnFileComplete = def.OnFileComplete
	}
	if result.OnFileCreate == nil {
		result.OnFileCreate = def.OnFileCreate
	}
	return &result
}
