package zmodem

import (
	"bytes"
	"testing"
)

func TestSentryScan(t *testing.T) {
	zrqinit := HexHeader(ZRQINIT, stohdr(0))
	zrinit := HexHeader(ZRINIT, Header{0, 0, 0, CANFDX | CANOVIO | CANFC32})
	zfin := HexHeader(ZFIN, stohdr(0))

	badCRC := append([]byte(nil), zrinit...)
	badCRC[16] ^= 0x01 // corrupt a CRC digit

	tests := []struct {
		name     string
		in       []byte
		wantText string
		wantRole Role
		wantRest string
	}{
		{"plain text", []byte("Welcome to the board\r\n"), "Welcome to the board\r\n", RoleNone, ""},
		{"stars are text", []byte("** NEW FILES **\r\n"), "** NEW FILES **\r\n", RoleNone, ""},
		{"one trailing star", []byte("5 * 3 = 15 *"), "5 * 3 = 15 *", RoleNone, ""},
		{"sz start", concat([]byte("rz ready\r\n"), zrqinit, []byte("tail")), "rz ready\r\n", RoleReceive, "tail"},
		{"rz start", concat([]byte("upload now "), zrinit), "upload now ", RoleSend, ""},
		{"other frame types are text", zfin, string(zfin), RoleNone, ""},
		{"bad crc is text", badCRC, string(badCRC), RoleNone, ""},
	}

	for _, tt := range tests {
		var s Sentry
		text, sig := s.Scan(tt.in)
		if string(text) != tt.wantText {
			t.Errorf("%s: text = %q, want %q", tt.name, text, tt.wantText)
		}
		if tt.wantRole == RoleNone {
			if sig != nil {
				t.Errorf("%s: unexpected signature %+v", tt.name, sig)
			}
			continue
		}
		if sig == nil {
			t.Errorf("%s: no signature", tt.name)
			continue
		}
		if sig.Role != tt.wantRole || string(sig.Rest) != tt.wantRest {
			t.Errorf("%s: role %s rest %q, want %s %q", tt.name, sig.Role, sig.Rest, tt.wantRole, tt.wantRest)
		}
	}
}

func TestSentrySplitMarker(t *testing.T) {
	zrinit := HexHeader(ZRINIT, stohdr(0))

	for cut := 1; cut <= 5; cut++ {
		var s Sentry
		text1, sig := s.Scan(concat([]byte("rz\r"), zrinit[:cut]))
		if sig != nil {
			t.Fatalf("cut %d: signature in first chunk", cut)
		}
		text2, sig := s.Scan(zrinit[cut:])
		if sig == nil || sig.Role != RoleSend {
			t.Fatalf("cut %d: second chunk signature = %+v", cut, sig)
		}
		// a lone leading pad may already have gone out as text
		text := string(text1) + string(text2)
		if text != "rz\r" && text != "rz\r*" {
			t.Errorf("cut %d: text = %q", cut, text)
		}
		if !bytes.HasSuffix(zrinit, sig.Header) || len(sig.Header) < len(zrinit)-1 {
			t.Errorf("cut %d: header = %q", cut, sig.Header)
		}
	}
}

func TestSentryHoldsPads(t *testing.T) {
	var s Sentry
	text, _ := s.Scan([]byte("menu **"))
	if string(text) != "menu " {
		t.Fatalf("text = %q", text)
	}
	text, sig := s.Scan([]byte(" more"))
	if sig != nil || string(text) != "** more" {
		t.Errorf("text = %q sig = %v", text, sig)
	}
}

func TestSentryShortHeader(t *testing.T) {
	zrqinit := HexHeader(ZRQINIT, stohdr(0))

	var s Sentry
	text, sig := s.Scan(concat([]byte("x"), zrqinit[:10]))
	if string(text) != "x" {
		t.Errorf("text = %q", text)
	}
	if sig == nil || sig.Role != RoleReceive || sig.FrameType != ZRQINIT {
		t.Fatalf("signature = %+v", sig)
	}
	if !bytes.Equal(sig.Header, zrqinit[:10]) || len(sig.Rest) != 0 {
		t.Errorf("header %q rest %q", sig.Header, sig.Rest)
	}
}

func TestSentryFlush(t *testing.T) {
	var s Sentry
	text, _ := s.Scan([]byte("menu *\x18"))
	if string(text) != "menu " {
		t.Fatalf("text = %q", text)
	}
	if held := s.Flush(); string(held) != "*\x18" {
		t.Errorf("held = %q", held)
	}
	if held := s.Flush(); held != nil {
		t.Errorf("second flush = %q", held)
	}
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
