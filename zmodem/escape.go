package zmodem

import (
	"io"
)

// escapeType indicates how a byte is sent on the wire
type escapeType int

const (
	escapeNone        escapeType = iota
	escapeAlways                 // ZDLE, then byte ^ 0x40
	escapeConditional            // escape only after '@' (telnet CR-@ hazard)
)

// buildEscapeTable mirrors lrzsz zsendline_init. Bytes with bit 5 or 6
// set never need escaping.
func buildEscapeTable(zctlesc bool, turboEscape bool) (tab [256]escapeType) {
	for i := range tab {
		if i&0x60 != 0 {
			continue
		}
		switch i {
		case ZDLE, XOFF, XON, XOFF | 0x80, XON | 0x80:
			tab[i] = escapeAlways
		case 0x10, 0x90: // ^P, eaten by some terminal servers
			if !turboEscape {
				tab[i] = escapeAlways
			}
		case 0x0D, 0x8D:
			switch {
			case zctlesc:
				tab[i] = escapeAlways
			case !turboEscape:
				tab[i] = escapeConditional
			}
		default:
			if zctlesc {
				tab[i] = escapeAlways
			}
		}
	}
	return tab
}

var defaultEscapeTable = buildEscapeTable(false, false)

// zsendlineEscaper applies ZDLE escaping on the way out.
type zsendlineEscaper struct {
	writer   io.Writer
	lastSent byte
	table    *[256]escapeType
	pair     [2]byte
}

func newZsendlineEscaper(writer io.Writer, zctlesc bool, turboEscape bool) *zsendlineEscaper {
	tab := &defaultEscapeTable
	if zctlesc || turboEscape {
		t := buildEscapeTable(zctlesc, turboEscape)
		tab = &t
	}
	return &zsendlineEscaper{
		writer: writer,
		table:  tab,
	}
}

// WriteByte writes c, escaped if the table says so.
func (z *zsendlineEscaper) WriteByte(c byte) error {
	escape := false
	switch z.table[c] {
	case escapeAlways:
		escape = true
	case escapeConditional:
		escape = z.lastSent&0x7F == '@'
	}

	if !escape {
		z.pair[0] = c
		if _, err := z.writer.Write(z.pair[:1]); err != nil {
			return err
		}
		z.lastSent = c
		return nil
	}

	z.pair[0], z.pair[1] = ZDLE, c^0x40
	if _, err := z.writer.Write(z.pair[:]); err != nil {
		return err
	}
	z.lastSent = c ^ 0x40
	return nil
}

// Write escapes every byte of buf.
func (z *zsendlineEscaper) Write(buf []byte) (int, error) {
	for i, b := range buf {
		if err := z.WriteByte(b); err != nil {
			return i, err
		}
	}
	return len(buf), nil
}

// writeRaw sends bytes that must not be escaped (ZDLE + frame end).
func (z *zsendlineEscaper) writeRaw(p ...byte) error {
	if _, err := z.writer.Write(p); err != nil {
		return err
	}
	z.lastSent = p[len(p)-1]
	return nil
}

// zdlreadUnescaper undoes ZDLE escaping on the way in.
type zdlreadUnescaper struct {
	reader io.ByteReader
}

func newZdlreadUnescaper(reader io.ByteReader) *zdlreadUnescaper {
	return &zdlreadUnescaper{reader: reader}
}

// readByte returns the next data byte (0-255), or one of the GOT* values
// for a subpacket terminator or a CAN*5 abort.
func (z *zdlreadUnescaper) readByte() (int, error) {
	for {
		c, err := z.reader.ReadByte()
		if err != nil {
			return 0, err
		}
		if c&0x60 != 0 {
			return int(c), nil
		}
		switch c {
		case ZDLE:
			return z.readEscapeSequence()
		case XON, XON | 0x80, XOFF, XOFF | 0x80:
			continue
		default:
			return int(c), nil
		}
	}
}

// readEscapeSequence handles the byte(s) after a ZDLE. A ZDLE followed by
// four more CANs is the abort sequence.
func (z *zdlreadUnescaper) readEscapeSequence() (int, error) {
	for {
		c, err := z.reader.ReadByte()
		if err != nil {
			return 0, err
		}
		for cans := 0; c == CAN && cans < 3; cans++ {
			if c, err = z.reader.ReadByte(); err != nil {
				return 0, err
			}
		}

		switch c {
		case CAN:
			return GOTCAN, nil
		case ZCRCE, ZCRCG, ZCRCQ, ZCRCW:
			return int(c) | GOTOR, nil
		case ZRUB0:
			return 0x7F, nil
		case ZRUB1:
			return 0xFF, nil
		case XON, XON | 0x80, XOFF, XOFF | 0x80:
			continue
		}
		if c&0x60 == 0x40 {
			return int(c ^ 0x40), nil
		}
		return 0, NewError(ErrInvalidFrame, "bad escape sequence")
	}
}
