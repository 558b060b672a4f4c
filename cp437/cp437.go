// Package cp437 turns the bytes a BBS sends into text for a Unicode
// terminal, drawing the IBM PC glyphs while leaving ANSI escape sequences
// untouched for the terminal to interpret.
package cp437

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
)

const esc = 0x1B

// low holds the glyphs for 0x00-0x1F. NUL, BEL, BS, TAB, LF, CR, ESC and
// FS stay control characters so the terminal still acts on them.
var low = [32]rune{
	0x00, '☺', '☻', '♥', '♦', '♣', '♠', 0x07,
	0x08, 0x09, 0x0A, '♂', '♀', 0x0D, '♫', '☼',
	'►', '◄', '↕', '‼', '¶', '§', '▬', '↨',
	'↑', '↓', '→', '←', 0x1C, '↔', '▲', '▼',
}

var table = func() (t [256]rune) {
	copy(t[:], low[:])
	t[esc] = esc
	for i := 0x20; i < 0x7F; i++ {
		t[i] = rune(i)
	}
	t[0x7F] = '⌂'
	for i := 0x80; i < 0x100; i++ {
		t[i] = charmap.CodePage437.DecodeByte(byte(i))
	}
	return t
}()

// Rune returns the glyph for b.
func Rune(b byte) rune {
	return table[b]
}

// Decode converts p to display text. Every byte yields at least one
// character. An escape sequence is copied through byte for byte, from ESC
// up to and including the first byte in '@'..'~'; a sequence cut off by
// the end of p is copied as far as it goes.
func Decode(p []byte) string {
	var sb strings.Builder
	sb.Grow(len(p) + len(p)/2)

	for i := 0; i < len(p); i++ {
		b := p[i]
		if b != esc {
			sb.WriteRune(table[b])
			continue
		}

		sb.WriteByte(esc)
		for i+1 < len(p) {
			i++
			c := p[i]
			sb.WriteRune(rune(c))
			if c >= '@' && c <= '~' {
				break
			}
		}
	}
	return sb.String()
}
