package transfer

import (
	"context"
	"time"

	"github.com/drunlade/go-shiftterm/event"
	"github.com/drunlade/go-shiftterm/zmodem"
)

// State is where a transfer session is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateDetected
	StateOffering
	StateReceiving
	StateTransferring
	StateComplete
	StateAborted
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateDetected:     "detected",
	StateOffering:     "offering",
	StateReceiving:    "receiving",
	StateTransferring: "transferring",
	StateComplete:     "complete",
	StateAborted:      "aborted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Session is one transfer. Role is fixed when the signature is seen.
// Fields are guarded by the owning Orchestrator's mutex.
type Session struct {
	Role        zmodem.Role
	State       State
	Filename    string
	Size        int64
	Transferred int64

	feed    *zmodem.Feed
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

// Info is a copy of a session's public state.
type Info struct {
	Role        zmodem.Role
	State       State
	Filename    string
	Size        int64
	Transferred int64
}

func (s *Session) info() Info {
	return Info{
		Role:        s.Role,
		State:       s.State,
		Filename:    s.Filename,
		Size:        s.Size,
		Transferred: s.Transferred,
	}
}

// Percent is the rounded share of the file moved so far.
func (i Info) Percent() int {
	return percent(i.Transferred, i.Size)
}

func (i Info) direction() event.Direction {
	if i.Role == zmodem.RoleReceive {
		return event.Download
	}
	return event.Upload
}
