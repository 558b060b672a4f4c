package zmodem

import "bytes"

// Role is our side of a transfer, decided by the header that opened it.
type Role int

const (
	RoleNone Role = iota
	// RoleSend: the remote ran rz and announced ZRINIT.
	RoleSend
	// RoleReceive: the remote ran sz and announced ZRQINIT.
	RoleReceive
)

func (r Role) String() string {
	switch r {
	case RoleSend:
		return "send"
	case RoleReceive:
		return "receive"
	}
	return "none"
}

// Signature is a transfer start found in the terminal stream.
type Signature struct {
	Role      Role
	FrameType int
	// Header holds the raw header bytes, which may be cut short when the
	// chunk ended inside them.
	Header []byte
	// Rest holds whatever followed the header in the same chunk.
	Rest []byte
}

var hexMarker = []byte{ZPAD, ZDLE, ZHEX}

// Sentry scans terminal output for the hex ZRQINIT/ZRINIT headers that
// start a transfer. A marker split across two chunks is held back and
// completed by the next Scan.
type Sentry struct {
	held []byte
}

// Scan returns the bytes of p that are plain terminal text and, when a
// transfer start was found, its Signature. Text always precedes the
// signature in the stream. Candidates whose CRC fails are passed through
// as text.
func (s *Sentry) Scan(p []byte) ([]byte, *Signature) {
	data := p
	if len(s.held) > 0 {
		data = append(s.held, p...)
		s.held = nil
	}

	off := 0
	for {
		j := bytes.Index(data[off:], hexMarker)
		if j < 0 {
			break
		}
		at := off + j
		start := at
		for start > 0 && data[start-1] == ZPAD {
			start--
		}

		digits := data[at+len(hexMarker):]
		if len(digits) < 2 {
			s.held = append([]byte(nil), data[start:]...)
			return data[:start], nil
		}
		role := roleOf(digits[0], digits[1])
		if role == RoleNone {
			off = at + len(hexMarker)
			continue
		}

		frameType, _, n, err := ParseHexHeader(data[start:])
		switch {
		case err == nil:
			return data[:start], &Signature{
				Role:      role,
				FrameType: frameType,
				Header:    append([]byte(nil), data[start:start+n]...),
				Rest:      append([]byte(nil), data[start+n:]...),
			}
		case IsShortHeader(err):
			// the session reads the remainder off the stream
			return data[:start], &Signature{
				Role:      role,
				FrameType: frameTypeOf(role),
				Header:    append([]byte(nil), data[start:]...),
			}
		default:
			off = at + len(hexMarker)
		}
	}

	if k := partialMarker(data); k >= 0 {
		s.held = append([]byte(nil), data[k:]...)
		return data[:k], nil
	}
	return data, nil
}

// Flush returns and forgets any bytes held back by the last Scan.
func (s *Sentry) Flush() []byte {
	out := s.held
	s.held = nil
	return out
}

// Reset forgets held bytes.
func (s *Sentry) Reset() {
	s.held = nil
}

func roleOf(hi, lo byte) Role {
	if hi != '0' {
		return RoleNone
	}
	switch lo {
	case '0':
		return RoleReceive
	case '1':
		return RoleSend
	}
	return RoleNone
}

func frameTypeOf(r Role) int {
	if r == RoleSend {
		return ZRINIT
	}
	return ZRQINIT
}

// partialMarker finds a trailing "**" or "*\x18" that could grow into a
// header. A single trailing pad is ordinary text and is not held.
func partialMarker(data []byte) int {
	end := len(data)
	if end > 0 && data[end-1] == ZDLE {
		end--
	}
	k := end
	for k > 0 && data[k-1] == ZPAD {
		k--
	}
	pads := end - k
	if pads == 0 || (end == len(data) && pads < 2) {
		return -1
	}
	return k
}
