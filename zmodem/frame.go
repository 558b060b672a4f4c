package zmodem

import (
	"bytes"
	"fmt"
	"io"
)

// Header is the 4 byte payload of a frame header: a little-endian file
// position, or flag bytes ZF3..ZF0.
type Header [4]byte

// stohdr stores a position in a header.
func stohdr(pos uint32) Header {
	var hdr Header
	hdr[ZP0] = byte(pos)
	hdr[ZP1] = byte(pos >> 8)
	hdr[ZP2] = byte(pos >> 16)
	hdr[ZP3] = byte(pos >> 24)
	return hdr
}

// rclhdr recovers a position from a header.
func rclhdr(hdr Header) uint32 {
	return uint32(hdr[ZP0]) |
		uint32(hdr[ZP1])<<8 |
		uint32(hdr[ZP2])<<16 |
		uint32(hdr[ZP3])<<24
}

const hexDigits = "0123456789abcdef"

// zputhex writes c as two lowercase hex digits.
func zputhex(c byte, dst []byte) {
	dst[0] = hexDigits[c>>4]
	dst[1] = hexDigits[c&0x0F]
}

func hexDigitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c - 'a' + 10)
	case c >= 'A' && c <= 'F':
		return int(c - 'A' + 10)
	}
	return -1
}

// readNoParity reads a byte with parity stripped, skipping XON/XOFF.
func readNoParity(r io.ByteReader) (byte, error) {
	for {
		c, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		c &= 0x7F
		if c != XON && c != XOFF {
			return c, nil
		}
	}
}

// zgethex reads two hex digits.
func zgethex(r io.ByteReader) (byte, error) {
	var v [2]int
	for i := range v {
		c, err := readNoParity(r)
		if err != nil {
			return 0, err
		}
		if v[i] = hexDigitValue(c); v[i] < 0 {
			return 0, NewError(ErrInvalidFrame, fmt.Sprintf("invalid hex digit %q", c))
		}
	}
	return byte(v[0]<<4 | v[1]), nil
}

// zsbhdr sends a binary header, CRC-32 when use32bitCRC is set.
func zsbhdr(esc *zsendlineEscaper, frameType int, hdr Header, use32bitCRC bool, znulls int) error {
	if frameType == ZDATA {
		for i := 0; i < znulls; i++ {
			if err := esc.writeRaw(0); err != nil {
				return err
			}
		}
	}

	if use32bitCRC {
		if err := esc.writeRaw(ZPAD, ZDLE, ZBIN32); err != nil {
			return err
		}
		crc := updcrc32(byte(frameType), 0xFFFFFFFF)
		if err := esc.WriteByte(byte(frameType)); err != nil {
			return err
		}
		for _, b := range hdr {
			crc = updcrc32(b, crc)
			if err := esc.WriteByte(b); err != nil {
				return err
			}
		}
		crc = ^crc
		for i := 0; i < 4; i++ {
			if err := esc.WriteByte(byte(crc)); err != nil {
				return err
			}
			crc >>= 8
		}
		return nil
	}

	if err := esc.writeRaw(ZPAD, ZDLE, ZBIN); err != nil {
		return err
	}
	crc := updcrc16(byte(frameType), 0)
	if err := esc.WriteByte(byte(frameType)); err != nil {
		return err
	}
	for _, b := range hdr {
		crc = updcrc16(b, crc)
		if err := esc.WriteByte(b); err != nil {
			return err
		}
	}
	if err := esc.WriteByte(byte(crc >> 8)); err != nil {
		return err
	}
	return esc.WriteByte(byte(crc))
}

// HexHeader encodes a hex header the way it goes on the wire, trailing
// CR LF and XON included.
func HexHeader(frameType int, hdr Header) []byte {
	var b bytes.Buffer
	zshhdr(&b, frameType, hdr)
	return b.Bytes()
}

// zshhdr sends a hex header.
func zshhdr(w io.Writer, frameType int, hdr Header) error {
	buf := make([]byte, 0, 22)
	buf = append(buf, ZPAD, ZPAD, ZDLE, ZHEX)

	var hex [2]byte
	t := byte(frameType & 0x7F)
	zputhex(t, hex[:])
	buf = append(buf, hex[:]...)
	crc := updcrc16(t, 0)
	for _, b := range hdr {
		zputhex(b, hex[:])
		buf = append(buf, hex[:]...)
		crc = updcrc16(b, crc)
	}
	zputhex(byte(crc>>8), hex[:])
	buf = append(buf, hex[:]...)
	zputhex(byte(crc), hex[:])
	buf = append(buf, hex[:]...)

	buf = append(buf, '\r', '\n'|0x80)
	// uncork the remote, except where the peer is about to exit
	if t != ZFIN && t != ZACK {
		buf = append(buf, XON)
	}
	_, err := w.Write(buf)
	return err
}

// zrbhdr receives a binary header with CRC-16.
func zrbhdr(u *zdlreadUnescaper) (int, Header, error) {
	var raw [7]byte
	var crc uint16
	for i := range raw {
		c, err := u.readByte()
		if err != nil {
			return 0, Header{}, err
		}
		if c > 0xFF {
			return 0, Header{}, NewError(ErrInvalidFrame, "bad binary header")
		}
		raw[i] = byte(c)
		crc = updcrc16(raw[i], crc)
	}
	if crc != 0 {
		return 0, Header{}, NewError(ErrCRC, "bad header CRC")
	}
	return int(raw[0]), Header{raw[1], raw[2], raw[3], raw[4]}, nil
}

// zrbhdr32 receives a binary header with CRC-32.
func zrbhdr32(u *zdlreadUnescaper) (int, Header, error) {
	var raw [9]byte
	crc := uint32(0xFFFFFFFF)
	for i := range raw {
		c, err := u.readByte()
		if err != nil {
			return 0, Header{}, err
		}
		if c > 0xFF {
			return 0, Header{}, NewError(ErrInvalidFrame, "bad binary header")
		}
		raw[i] = byte(c)
		crc = updcrc32(raw[i], crc)
	}
	if crc != CRC32CheckValue {
		return 0, Header{}, NewError(ErrCRC, "bad header CRC")
	}
	return int(raw[0]), Header{raw[1], raw[2], raw[3], raw[4]}, nil
}

// zrhhdr receives a hex header; the ZPAD ZDLE ZHEX prefix is already consumed.
func zrhhdr(r io.ByteReader) (int, Header, error) {
	var raw [7]byte
	var crc uint16
	for i := range raw {
		b, err := zgethex(r)
		if err != nil {
			return 0, Header{}, err
		}
		raw[i] = b
		crc = updcrc16(b, crc)
	}
	if crc != 0 {
		return 0, Header{}, NewError(ErrCRC, "bad header CRC")
	}

	// throw away the CR/LF that follows
	if c, err := r.ReadByte(); err == nil && c&0x7F == '\r' {
		r.ReadByte()
	}
	return int(raw[0]), Header{raw[1], raw[2], raw[3], raw[4]}, nil
}

// errShortHeader reports a hex header cut off by the end of the buffer.
var errShortHeader = NewError(ErrInvalidFrame, "truncated hex header")

// ParseHexHeader decodes the hex header at the start of p, which must begin
// with ZPAD. n counts the bytes it spans, including a trailing CR LF and XON
// when present. A buffer that is a valid header prefix but ends early yields
// a non-nil error for which IsShortHeader is true.
func ParseHexHeader(p []byte) (frameType int, hdr Header, n int, err error) {
	i := 0
	for i < len(p) && p[i] == ZPAD {
		i++
	}
	if i == 0 {
		return 0, hdr, 0, NewError(ErrInvalidFrame, "no ZPAD")
	}
	for k, want := range []byte{ZDLE, ZHEX} {
		if i+k >= len(p) {
			return 0, hdr, 0, errShortHeader
		}
		if p[i+k] != want {
			return 0, hdr, 0, NewError(ErrInvalidFrame, "not a hex header")
		}
	}
	i += 2

	var raw [7]byte
	var crc uint16
	for k := range raw {
		var v [2]int
		for j := range v {
			if i >= len(p) {
				return 0, hdr, 0, errShortHeader
			}
			if v[j] = hexDigitValue(p[i] & 0x7F); v[j] < 0 {
				return 0, hdr, 0, NewError(ErrInvalidFrame, "invalid hex digit")
			}
			i++
		}
		raw[k] = byte(v[0]<<4 | v[1])
		crc = updcrc16(raw[k], crc)
	}
	if crc != 0 {
		return 0, hdr, 0, NewError(ErrCRC, "bad header CRC")
	}

	if i < len(p) && p[i]&0x7F == '\r' {
		i++
		if i < len(p) && p[i]&0x7F == '\n' {
			i++
		}
	}
	if i < len(p) && p[i] == XON {
		i++
	}
	return int(raw[0]), Header{raw[1], raw[2], raw[3], raw[4]}, i, nil
}

// IsShortHeader reports whether err came from a truncated hex header.
func IsShortHeader(err error) bool {
	return err == errShortHeader
}

// zsdata sends a data subpacket terminated by frameend.
func zsdata(esc *zsendlineEscaper, buf []byte, frameend int, use32bitCRC bool) error {
	if _, err := esc.Write(buf); err != nil {
		return err
	}
	if err := esc.writeRaw(ZDLE, byte(frameend)); err != nil {
		return err
	}

	if use32bitCRC {
		crc := uint32(0xFFFFFFFF)
		for _, b := range buf {
			crc = updcrc32(b, crc)
		}
		crc = ^updcrc32(byte(frameend), crc)
		for i := 0; i < 4; i++ {
			c := byte(crc)
			var err error
			if c&0x60 != 0 {
				err = esc.writeRaw(c)
			} else {
				err = esc.WriteByte(c)
			}
			if err != nil {
				return err
			}
			crc >>= 8
		}
	} else {
		var crc uint16
		for _, b := range buf {
			crc = updcrc16(b, crc)
		}
		crc = updcrc16(byte(frameend), crc)
		if err := esc.WriteByte(byte(crc >> 8)); err != nil {
			return err
		}
		if err := esc.WriteByte(byte(crc)); err != nil {
			return err
		}
	}

	if frameend == ZCRCW {
		return esc.writeRaw(XON)
	}
	return nil
}

// zrdata receives a data subpacket into buf. It returns the number of
// data bytes and the GOT* terminator.
func zrdata(u *zdlreadUnescaper, buf []byte, use32bitCRC bool) (int, int, error) {
	var crc16 uint16
	crc32 := uint32(0xFFFFFFFF)
	pos := 0

	for {
		c, err := u.readByte()
		if err != nil {
			return pos, 0, err
		}
		if c == GOTCAN {
			return pos, 0, NewError(ErrCancelled, "remote sent CAN*5")
		}

		if c&GOTOR != 0 {
			frameend := c
			crcBytes := 2
			if use32bitCRC {
				crcBytes = 4
				crc32 = updcrc32(byte(c), crc32)
			} else {
				crc16 = updcrc16(byte(c), crc16)
			}
			for i := 0; i < crcBytes; i++ {
				c, err := u.readByte()
				if err != nil {
					return pos, 0, err
				}
				if c > 0xFF {
					return pos, 0, NewError(ErrInvalidFrame, "bad CRC byte")
				}
				crc16 = updcrc16(byte(c), crc16)
				crc32 = updcrc32(byte(c), crc32)
			}
			if use32bitCRC && crc32 != CRC32CheckValue || !use32bitCRC && crc16 != 0 {
				return pos, 0, NewError(ErrCRC, "bad data CRC")
			}
			return pos, frameend, nil
		}

		if pos >= len(buf) {
			return pos, 0, NewError(ErrInvalidFrame, "data subpacket too long")
		}
		buf[pos] = byte(c)
		pos++
		crc16 = updcrc16(byte(c), crc16)
		crc32 = updcrc32(byte(c), crc32)
	}
}

// FormatFrameLog renders a frame for debug logs, truncating data.
func FormatFrameLog(direction string, frameType int, hdr Header, data []byte) string {
	msg := fmt.Sprintf("%s %s (pos=%d, hdr=[%02x %02x %02x %02x])",
		direction, FrameTypeName(frameType), rclhdr(hdr), hdr[0], hdr[1], hdr[2], hdr[3])
	if len(data) == 0 {
		return msg
	}
	if len(data) > 64 {
		return msg + fmt.Sprintf(", data_size=%d, data=%q...", len(data), data[:64])
	}
	return msg + fmt.Sprintf(", data_size=%d, data=%q", len(data), data)
}
