// Package event carries what the connection engine tells its user
// interface: display text, and typed status records for connection and
// transfer lifecycle changes.
package event

import (
	"fmt"
	"time"
)

// Kind classifies a status record.
type Kind int

const (
	KindInfo Kind = iota
	KindConnected
	KindDisconnected
	KindDetecting
	KindDetected
	KindError
	KindTransfer
)

var kindNames = [...]string{
	KindInfo:         "info",
	KindConnected:    "connected",
	KindDisconnected: "disconnected",
	KindDetecting:    "detecting",
	KindDetected:     "detected",
	KindError:        "error",
	KindTransfer:     "transfer",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Direction of a file transfer, seen from this client.
type Direction int

const (
	Upload Direction = iota + 1
	Download
)

func (d Direction) String() string {
	switch d {
	case Upload:
		return "upload"
	case Download:
		return "download"
	}
	return "none"
}

// Transfer describes the state of a file transfer.
type Transfer struct {
	Direction   Direction
	Filename    string
	Size        int64
	Transferred int64
	Percent     int
	Waiting     bool
	Complete    bool
	Cancelled   bool
}

// Status is one lifecycle notification.
type Status struct {
	Kind    Kind
	Message string
	// Protocol is set on KindDetected.
	Protocol string
	Transfer *Transfer
	Time     time.Time
}

func (s Status) String() string {
	if s.Transfer != nil && s.Transfer.Filename != "" {
		return fmt.Sprintf("%s: %s [%s %s %d%%]", s.Kind, s.Message, s.Transfer.Direction, s.Transfer.Filename, s.Transfer.Percent)
	}
	return fmt.Sprintf("%s: %s", s.Kind, s.Message)
}

// Sink receives decoded display text and status records.
type Sink interface {
	Write(text string)
	Status(s Status)
}

// Errorf builds a KindError status.
func Errorf(format string, args ...interface{}) Status {
	return Status{Kind: KindError, Message: fmt.Sprintf(format, args...)}
}
