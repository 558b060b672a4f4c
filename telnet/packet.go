package telnet

import (
	"bytes"
	"fmt"
	"strings"
)

// OptionPacket is one negotiation command, or a subnegotiation when
// Parameters is non-nil.
type OptionPacket struct {
	Command    byte
	Option     byte
	Parameters []byte
}

// Bytes encodes the packet. IAC bytes inside the parameters are doubled.
func (p OptionPacket) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteByte(IAC)
	buf.WriteByte(p.Command)
	buf.WriteByte(p.Option)
	if p.Parameters != nil {
		for _, b := range p.Parameters {
			if b == IAC {
				buf.WriteByte(IAC)
			}
			buf.WriteByte(b)
		}
		buf.WriteByte(IAC)
		buf.WriteByte(SE)
	}
	return buf.Bytes()
}

func (p OptionPacket) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "IAC %s %s", CodeName[p.Command], optionName(p.Option))
	if p.Parameters != nil {
		fmt.Fprintf(&b, " %v IAC SE", p.Parameters)
	}
	return b.String()
}

// nawsPacket reports the window size.
func nawsPacket(cols, rows int) OptionPacket {
	cols, rows = clamp16(cols), clamp16(rows)
	return OptionPacket{
		Command:    SB,
		Option:     NAWS,
		Parameters: []byte{byte(cols >> 8), byte(cols), byte(rows >> 8), byte(rows)},
	}
}

// ttypePacket answers a terminal type query.
func ttypePacket(termType string) OptionPacket {
	return OptionPacket{
		Command:    SB,
		Option:     TTYPE,
		Parameters: append([]byte{IS}, termType...),
	}
}

func clamp16(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 0xFFFF:
		return 0xFFFF
	}
	return v
}
