package cp437

import (
	"testing"
	"unicode/utf8"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"ascii", []byte("Hello, BBS!"), "Hello, BBS!"},
		{"box drawing", []byte{0xC9, 0xCD, 0xBB}, "╔═╗"},
		{"shades", []byte{0xB0, 0xB1, 0xB2, 0xDB}, "░▒▓█"},
		{"low glyphs", []byte{0x01, 0x03, 0x10}, "☺♥►"},
		{"controls kept", []byte("a\r\nb\tc\x07"), "a\r\nb\tc\x07"},
		{"house", []byte{0x7F}, "⌂"},
		{"nbsp", []byte{0xFF}, "\u00a0"},
		{"sgr sequence", []byte("\x1b[1;33mHi"), "\x1b[1;33mHi"},
		{"escape payload unmapped", []byte{0x1B, 0x01, 0x41, 0x01}, "\x1b\x01A☺"},
		{"escape at end", []byte("x\x1b"), "x\x1b"},
		{"cut sequence", []byte{0x1B, 0x01, 0x02}, "\x1b\x01\x02"},
	}

	for _, tt := range tests {
		if got := Decode(tt.in); got != tt.want {
			t.Errorf("%s: Decode(%q) = %q, want %q", tt.name, tt.in, got, tt.want)
		}
	}
}

func TestDecodeTotal(t *testing.T) {
	in := make([]byte, 256)
	for i := range in {
		in[i] = byte(i)
	}
	// keep ESC out so every byte goes through the table
	in[0x1B] = ' '

	got := Decode(in)
	if n := utf8.RuneCountInString(got); n != len(in) {
		t.Fatalf("decoded %d runes from %d bytes", n, len(in))
	}
	for b := 0; b < 256; b++ {
		if Rune(byte(b)) == utf8.RuneError {
			t.Errorf("byte %#02x has no glyph", b)
		}
	}
}
