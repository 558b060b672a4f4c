// Package telnet strips Telnet commands out of a BBS byte stream and
// answers the option negotiation a BBS expects from a client.
package telnet

import (
	"bytes"
	"io"
	"sync"

	"github.com/drunlade/go-shiftterm/logging"
	"github.com/drunlade/go-shiftterm/metrics"
)

const (
	defaultTermType = "ANSI"
	defaultCols     = 80
	defaultRows     = 25
)

// Negotiator filters one connection's inbound stream. Replies go to the
// writer given to NewNegotiator, which must be safe to share with other
// writers on the same connection.
//
// Only NAWS, TTYPE, SGA and ECHO are negotiated; every other option is
// refused.
type Negotiator struct {
	w        io.Writer
	termType string
	logger   logging.Logger

	mu         sync.Mutex
	cols, rows int
	nawsAgreed bool
}

// Option configures a Negotiator.
type Option func(*Negotiator)

// WithTerminalType sets the name sent in TTYPE replies.
func WithTerminalType(termType string) Option {
	return func(n *Negotiator) {
		if termType != "" {
			n.termType = termType
		}
	}
}

// WithSize sets the initial window size reported over NAWS.
func WithSize(cols, rows int) Option {
	return func(n *Negotiator) {
		if cols > 0 && rows > 0 {
			n.cols, n.rows = cols, rows
		}
	}
}

// WithLogger sets the logger for negotiation traces.
func WithLogger(logger logging.Logger) Option {
	return func(n *Negotiator) {
		n.logger = logging.OrNoop(logger)
	}
}

// NewNegotiator creates a negotiator answering on w.
func NewNegotiator(w io.Writer, opts ...Option) *Negotiator {
	n := &Negotiator{
		w:        w,
		termType: defaultTermType,
		logger:   logging.NoopLogger{},
		cols:     defaultCols,
		rows:     defaultRows,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Process removes Telnet commands from one inbound chunk and returns the
// remaining data. IAC IAC becomes a single 255. Commands cut off by the end
// of the chunk are dropped, as is a subnegotiation with no IAC SE in the
// chunk. Replies are written before Process returns.
func (n *Negotiator) Process(p []byte) []byte {
	if bytes.IndexByte(p, IAC) < 0 {
		return p
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]byte, 0, len(p))
	var replies []OptionPacket

	for i := 0; i < len(p); i++ {
		if p[i] != IAC {
			out = append(out, p[i])
			continue
		}
		if i+1 >= len(p) {
			break
		}

		switch cmd := p[i+1]; cmd {
		case IAC:
			out = append(out, IAC)
			i++
		case DO, DONT, WILL, WONT:
			if i+2 >= len(p) {
				i = len(p)
				break
			}
			replies = n.negotiate(replies, cmd, p[i+2])
			i += 2
		case SB:
			end := subnegotiationEnd(p, i+2)
			if end < 0 {
				n.logger.Debug("telnet: unterminated subnegotiation dropped (%d bytes)", len(p)-i)
				i = len(p)
				break
			}
			replies = n.subnegotiate(replies, unescape(p[i+2:end]))
			i = end + 1
		default:
			// two byte command: NOP, GA, AYT and friends
			i++
		}
	}

	n.reply(replies)
	return out
}

// negotiate applies the reply policy for one DO/DONT/WILL/WONT.
func (n *Negotiator) negotiate(replies []OptionPacket, cmd, opt byte) []OptionPacket {
	metrics.NegotiationsTotal.WithLabelValues(CodeName[cmd], optionName(opt)).Inc()
	n.logger.Debug("telnet: server %s %s", CodeName[cmd], optionName(opt))

	switch cmd {
	case DO:
		switch opt {
		case NAWS:
			n.nawsAgreed = true
			return append(replies, OptionPacket{Command: WILL, Option: NAWS}, nawsPacket(n.cols, n.rows))
		case TTYPE:
			return append(replies, OptionPacket{Command: WILL, Option: TTYPE}, ttypePacket(n.termType))
		case SGA:
			return append(replies, OptionPacket{Command: WILL, Option: SGA})
		default:
			// ECHO included: the server echoes, never us
			return append(replies, OptionPacket{Command: WONT, Option: opt})
		}
	case WILL:
		if opt == SGA {
			return append(replies, OptionPacket{Command: DO, Option: SGA})
		}
		return append(replies, OptionPacket{Command: DONT, Option: opt})
	case DONT:
		if opt == NAWS {
			n.nawsAgreed = false
		}
	}
	return replies
}

// subnegotiate handles a payload between IAC SB and IAC SE. Only a TTYPE
// SEND gets an answer; anything else is accepted and dropped.
func (n *Negotiator) subnegotiate(replies []OptionPacket, payload []byte) []OptionPacket {
	if len(payload) == 0 {
		return replies
	}
	n.logger.Debug("telnet: server SB %s %v", optionName(payload[0]), payload[1:])
	if payload[0] == TTYPE && len(payload) > 1 && payload[1] == SEND {
		return append(replies, ttypePacket(n.termType))
	}
	return replies
}

// reply writes all replies in one write. Negotiation never fails the
// stream, so a write error is only logged.
func (n *Negotiator) reply(replies []OptionPacket) {
	if len(replies) == 0 {
		return
	}
	var buf bytes.Buffer
	for _, r := range replies {
		n.logger.Debug("telnet: client %s", r)
		buf.Write(r.Bytes())
	}
	if _, err := n.w.Write(buf.Bytes()); err != nil {
		n.logger.Error("telnet: negotiation reply: %v", err)
	}
}

// Resize records a new window size and reports it when NAWS is agreed.
func (n *Negotiator) Resize(cols, rows int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if cols <= 0 || rows <= 0 {
		return nil
	}
	n.cols, n.rows = cols, rows
	if !n.nawsAgreed {
		return nil
	}
	_, err := n.w.Write(nawsPacket(cols, rows).Bytes())
	return err
}

// Size returns the window size last recorded.
func (n *Negotiator) Size() (cols, rows int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cols, n.rows
}

// NAWSAgreed reports whether the server asked for window sizes.
func (n *Negotiator) NAWSAgreed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nawsAgreed
}

// subnegotiationEnd returns the index of the IAC of the IAC SE closing a
// subnegotiation whose payload starts at from, or -1.
func subnegotiationEnd(p []byte, from int) int {
	for j := from; j+1 < len(p); j++ {
		if p[j] != IAC {
			continue
		}
		switch p[j+1] {
		case SE:
			return j
		case IAC:
			j++
		}
	}
	return -1
}

// unescape collapses IAC IAC inside a subnegotiation payload.
func unescape(p []byte) []byte {
	if bytes.IndexByte(p, IAC) < 0 {
		return p
	}
	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		out = append(out, p[i])
		if p[i] == IAC && i+1 < len(p) && p[i+1] == IAC {
			i++
		}
	}
	return out
}
