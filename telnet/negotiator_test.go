package telnet

import (
	"bytes"
	"testing"
)

func TestProcessData(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"plain", []byte("hello"), []byte("hello")},
		{"escaped 255", []byte{'a', IAC, IAC, 'b', IAC, IAC}, []byte{'a', IAC, 'b', IAC}},
		{"two byte command", []byte{'a', IAC, NOP, 'b', IAC, GA}, []byte("ab")},
		{"subnegotiation", []byte{'x', IAC, SB, 99, 1, 2, IAC, SE, 'y'}, []byte("xy")},
		{"escaped IAC in subnegotiation", []byte{IAC, SB, 99, IAC, IAC, SE, IAC, SE, 'z'}, []byte("z")},
		{"unterminated subnegotiation", []byte{'x', IAC, SB, 99, 1, 2, 'y'}, []byte("x")},
		{"truncated IAC", []byte{'x', IAC}, []byte("x")},
		{"truncated option", []byte{'x', IAC, WONT}, []byte("x")},
		{"refusal needs no reply", []byte{IAC, WONT, ECHO, 'o', 'k', IAC, DONT, 200}, []byte("ok")},
	}

	for _, tt := range tests {
		var wire bytes.Buffer
		n := NewNegotiator(&wire)
		if got := n.Process(tt.in); !bytes.Equal(got, tt.want) {
			t.Errorf("%s: Process = %v, want %v", tt.name, got, tt.want)
		}
		if wire.Len() != 0 {
			t.Errorf("%s: unexpected reply %v", tt.name, wire.Bytes())
		}
	}
}

func TestReplyPolicy(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"DO NAWS", []byte{IAC, DO, NAWS}, []byte{IAC, WILL, NAWS, IAC, SB, NAWS, 0, 80, 0, 25, IAC, SE}},
		{"DO TTYPE", []byte{IAC, DO, TTYPE}, []byte{IAC, WILL, TTYPE, IAC, SB, TTYPE, IS, 'A', 'N', 'S', 'I', IAC, SE}},
		{"DO SGA", []byte{IAC, DO, SGA}, []byte{IAC, WILL, SGA}},
		{"DO ECHO", []byte{IAC, DO, ECHO}, []byte{IAC, WONT, ECHO}},
		{"DO other", []byte{IAC, DO, LINEMODE}, []byte{IAC, WONT, LINEMODE}},
		{"WILL SGA", []byte{IAC, WILL, SGA}, []byte{IAC, DO, SGA}},
		{"WILL ECHO", []byte{IAC, WILL, ECHO}, []byte{IAC, DONT, ECHO}},
		{"WILL other", []byte{IAC, WILL, 200}, []byte{IAC, DONT, 200}},
		{"DONT", []byte{IAC, DONT, SGA}, nil},
		{"WONT", []byte{IAC, WONT, TTYPE}, nil},
		{"TTYPE SEND", []byte{IAC, SB, TTYPE, SEND, IAC, SE}, []byte{IAC, SB, TTYPE, IS, 'A', 'N', 'S', 'I', IAC, SE}},
	}

	for _, tt := range tests {
		var wire bytes.Buffer
		n := NewNegotiator(&wire)
		if got := n.Process(tt.in); len(got) != 0 {
			t.Errorf("%s: clean output %v", tt.name, got)
		}
		if !bytes.Equal(wire.Bytes(), tt.want) {
			t.Errorf("%s: reply %v, want %v", tt.name, wire.Bytes(), tt.want)
		}
	}
}

func TestNAWSSize(t *testing.T) {
	var wire bytes.Buffer
	n := NewNegotiator(&wire, WithSize(132, 255))
	n.Process([]byte{IAC, DO, NAWS})

	want := []byte{IAC, WILL, NAWS, IAC, SB, NAWS, 0, 132, 0, IAC, IAC, IAC, SE}
	if !bytes.Equal(wire.Bytes(), want) {
		t.Fatalf("reply %v, want %v", wire.Bytes(), want)
	}

	// decode the payload back
	p := wire.Bytes()[6 : len(wire.Bytes())-2]
	p = unescape(p)
	if cols, rows := int(p[0])<<8|int(p[1]), int(p[2])<<8|int(p[3]); cols != 132 || rows != 255 {
		t.Errorf("decoded %dx%d", cols, rows)
	}
}

func TestResize(t *testing.T) {
	var wire bytes.Buffer
	n := NewNegotiator(&wire)

	if err := n.Resize(100, 40); err != nil {
		t.Fatal(err)
	}
	if wire.Len() != 0 {
		t.Fatalf("NAWS sent before agreement: %v", wire.Bytes())
	}

	n.Process([]byte{IAC, DO, NAWS})
	wire.Reset()
	if err := n.Resize(120, 50); err != nil {
		t.Fatal(err)
	}
	want := []byte{IAC, SB, NAWS, 0, 120, 0, 50, IAC, SE}
	if !bytes.Equal(wire.Bytes(), want) {
		t.Errorf("resize sent %v, want %v", wire.Bytes(), want)
	}

	n.Process([]byte{IAC, DONT, NAWS})
	wire.Reset()
	n.Resize(80, 25)
	if wire.Len() != 0 || n.NAWSAgreed() {
		t.Errorf("NAWS still active after DONT: %v", wire.Bytes())
	}
	if cols, rows := n.Size(); cols != 80 || rows != 25 {
		t.Errorf("size %dx%d", cols, rows)
	}
}

func TestBBSGreeting(t *testing.T) {
	var wire bytes.Buffer
	n := NewNegotiator(&wire)

	in := []byte{IAC, DO, NAWS, IAC, DO, TTYPE, IAC, DO, SGA}
	if got := n.Process(in); len(got) != 0 {
		t.Fatalf("clean output %v", got)
	}
	want := []byte{
		IAC, WILL, NAWS, IAC, SB, NAWS, 0, 80, 0, 25, IAC, SE,
		IAC, WILL, TTYPE, IAC, SB, TTYPE, IS, 'A', 'N', 'S', 'I', IAC, SE,
		IAC, WILL, SGA,
	}
	if !bytes.Equal(wire.Bytes(), want) {
		t.Errorf("replies %v, want %v", wire.Bytes(), want)
	}
}

func TestDataWriter(t *testing.T) {
	var wire bytes.Buffer
	dw := NewDataWriter(&wire)

	in := []byte{1, 55, 2, 155, 3, 255, 4, 40, 255, 30, 20, 255}
	n, err := dw.Write(in)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(in) {
		t.Errorf("n = %d, want %d", n, len(in))
	}
	want := []byte{1, 55, 2, 155, 3, 255, 255, 4, 40, 255, 255, 30, 20, 255, 255}
	if !bytes.Equal(wire.Bytes(), want) {
		t.Errorf("wrote %v, want %v", wire.Bytes(), want)
	}

	// the negotiator undoes it
	if got := NewNegotiator(&bytes.Buffer{}).Process(wire.Bytes()); !bytes.Equal(got, in) {
		t.Errorf("round trip %v", got)
	}
}
