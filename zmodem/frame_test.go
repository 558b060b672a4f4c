package zmodem

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"
)

func TestCRC16(t *testing.T) {
	var crc uint16
	for _, b := range []byte("123456789") {
		crc = updcrc16(b, crc)
	}
	if crc != 0x31C3 {
		t.Fatalf("crc16 = %#04x, want 0x31c3", crc)
	}

	// running on over the big-endian CRC leaves zero
	sum := crc
	crc = updcrc16(byte(sum>>8), crc)
	crc = updcrc16(byte(sum), crc)
	if crc != 0 {
		t.Fatalf("crc16 residue = %#04x, want 0", crc)
	}
}

func TestCRC32(t *testing.T) {
	crc := uint32(0xFFFFFFFF)
	for _, b := range []byte("123456789") {
		crc = updcrc32(b, crc)
	}
	if got := ^crc; got != 0xCBF43926 {
		t.Fatalf("crc32 = %#08x, want 0xcbf43926", got)
	}

	sent := ^crc
	for i := 0; i < 4; i++ {
		crc = updcrc32(byte(sent), crc)
		sent >>= 8
	}
	if crc != CRC32CheckValue {
		t.Fatalf("crc32 residue = %#08x, want %#08x", crc, uint32(CRC32CheckValue))
	}
}

func TestDataSubpacketAllBytes(t *testing.T) {
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}

	for _, use32 := range []bool{false, true} {
		var wire bytes.Buffer
		if err := zsdata(newZsendlineEscaper(&wire, false, false), payload, ZCRCW, use32); err != nil {
			t.Fatalf("zsdata: %v", err)
		}
		for _, c := range []byte{XON, XOFF, 0x10} {
			if bytes.IndexByte(wire.Bytes()[:wire.Len()-1], c) >= 0 {
				t.Errorf("crc32=%v: %#02x left unescaped on the wire", use32, c)
			}
		}

		buf := make([]byte, 1024)
		n, end, err := zrdata(newZdlreadUnescaper(&wire), buf, use32)
		if err != nil {
			t.Fatalf("crc32=%v: zrdata: %v", use32, err)
		}
		if end != GOTCRCW {
			t.Errorf("crc32=%v: frame end = %#x, want GOTCRCW", use32, end)
		}
		if !bytes.Equal(buf[:n], payload) {
			t.Errorf("crc32=%v: payload mismatch", use32)
		}
	}
}

func TestDataSubpacketEscapeControl(t *testing.T) {
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}

	for _, use32 := range []bool{false, true} {
		var wire bytes.Buffer
		if err := zsdata(newZsendlineEscaper(&wire, true, false), payload, ZCRCE, use32); err != nil {
			t.Fatalf("zsdata: %v", err)
		}
		for i, c := range wire.Bytes() {
			if c&0x60 == 0 && c != ZDLE {
				t.Fatalf("crc32=%v: control byte %#02x at %d left unescaped", use32, c, i)
			}
		}

		buf := make([]byte, 1024)
		n, _, err := zrdata(newZdlreadUnescaper(&wire), buf, use32)
		if err != nil {
			t.Fatalf("crc32=%v: zrdata: %v", use32, err)
		}
		if !bytes.Equal(buf[:n], payload) {
			t.Errorf("crc32=%v: payload mismatch", use32)
		}
	}
}

func TestDataSubpacketBadCRC(t *testing.T) {
	var wire bytes.Buffer
	if err := zsdata(newZsendlineEscaper(&wire, false, false), []byte("hello"), ZCRCE, false); err != nil {
		t.Fatal(err)
	}
	p := wire.Bytes()
	p[0] = 'j'

	_, _, err := zrdata(newZdlreadUnescaper(bytes.NewReader(p)), make([]byte, 64), false)
	if !IsCRC(err) {
		t.Fatalf("err = %v, want CRC error", err)
	}
}

func TestDataSubpacketCancel(t *testing.T) {
	wire := append([]byte("abc"), AbortSequence...)
	_, _, err := zrdata(newZdlreadUnescaper(bytes.NewReader(wire)), make([]byte, 64), true)
	if !IsCancelled(err) {
		t.Fatalf("err = %v, want cancelled", err)
	}
}

func TestHexHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		frameType int
		hdr       Header
		xon       bool
	}{
		{ZRQINIT, stohdr(0), true},
		{ZRINIT, Header{0, 0, 0, CANFDX | CANOVIO | CANFC32}, true},
		{ZRPOS, stohdr(123456), true},
		{ZACK, stohdr(8192), false},
		{ZFIN, stohdr(0), false},
	}

	for _, tt := range tests {
		var wire bytes.Buffer
		if err := zshhdr(&wire, tt.frameType, tt.hdr); err != nil {
			t.Fatal(err)
		}
		p := wire.Bytes()
		if !bytes.HasPrefix(p, []byte{ZPAD, ZPAD, ZDLE, ZHEX}) {
			t.Errorf("%s: prefix %q", FrameTypeName(tt.frameType), p[:4])
		}
		if got := p[len(p)-1] == XON; got != tt.xon {
			t.Errorf("%s: trailing XON = %v, want %v", FrameTypeName(tt.frameType), got, tt.xon)
		}

		frameType, hdr, n, err := ParseHexHeader(p)
		if err != nil {
			t.Fatalf("%s: %v", FrameTypeName(tt.frameType), err)
		}
		if frameType != tt.frameType || hdr != tt.hdr || n != len(p) {
			t.Errorf("parsed %s %v n=%d, want %s %v n=%d",
				FrameTypeName(frameType), hdr, n, FrameTypeName(tt.frameType), tt.hdr, len(p))
		}

		frameType, hdr, err = zrhhdr(bytes.NewReader(p[4:]))
		if err != nil || frameType != tt.frameType || hdr != tt.hdr {
			t.Errorf("zrhhdr: %s %v %v", FrameTypeName(frameType), hdr, err)
		}
	}
}

func TestParseHexHeaderShort(t *testing.T) {
	var wire bytes.Buffer
	zshhdr(&wire, ZRINIT, stohdr(0))
	p := wire.Bytes()

	for _, cut := range []int{3, 6, 12, 17} {
		_, _, _, err := ParseHexHeader(p[:cut])
		if !IsShortHeader(err) {
			t.Errorf("cut at %d: err = %v, want short header", cut, err)
		}
	}
}

func TestBinaryHeaderRoundTrip(t *testing.T) {
	for _, use32 := range []bool{false, true} {
		var wire bytes.Buffer
		hdr := stohdr(0x11131810) // every byte needs escaping
		if err := zsbhdr(newZsendlineEscaper(&wire, false, false), ZDATA, hdr, use32, 0); err != nil {
			t.Fatal(err)
		}
		feed := NewFeed()
		feed.Write(wire.Bytes())
		feed.Close()
		e := newEndpoint(context.Background(), feed, io.Discard, DefaultConfig(), nil)

		frameType, got, err := e.getHeader()
		if err != nil {
			t.Fatalf("crc32=%v: %v", use32, err)
		}
		if frameType != ZDATA || got != hdr || e.rxCRC32 != use32 {
			t.Errorf("crc32=%v: got %s %v rx32=%v", use32, FrameTypeName(frameType), got, e.rxCRC32)
		}
	}
}

func TestFileHeader(t *testing.T) {
	mtime := time.Unix(1700000000, 0)
	raw := BuildFileHeader(FileHeader{Name: "door.zip", Size: 20000, ModTime: mtime, Mode: 0640, FilesLeft: 1, BytesLeft: 20000})

	want := "door.zip\x0020000 14524770400 100640 0 1 20000\x00"
	if string(raw) != want {
		t.Fatalf("header = %q, want %q", raw, want)
	}

	h, err := ParseFileHeader(raw)
	if err != nil {
		t.Fatal(err)
	}
	if h.Name != "door.zip" || h.Size != 20000 || !h.ModTime.Equal(mtime) || h.Mode != 0640 || h.FilesLeft != 1 {
		t.Errorf("parsed %+v", h)
	}

	h, err = ParseFileHeader([]byte("bare\x00"))
	if err != nil || h.Name != "bare" || h.Size != 0 {
		t.Errorf("bare header: %+v %v", h, err)
	}

	if _, err := ParseFileHeader([]byte("no terminator")); err == nil {
		t.Error("missing NUL accepted")
	}
}
