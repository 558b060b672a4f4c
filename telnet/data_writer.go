package telnet

import (
	"bytes"
	"io"

	oi "github.com/reiver/go-oi"
)

// DataWriter escapes binary data for a Telnet connection by doubling every
// 255 byte. Each chunk goes out in one write, so an IAC IAC pair is never
// split. Write reports bytes of p consumed, not bytes put on the wire.
type DataWriter struct {
	w io.Writer
}

// NewDataWriter wraps w.
func NewDataWriter(w io.Writer) *DataWriter {
	return &DataWriter{w: w}
}

func (dw *DataWriter) Write(p []byte) (int, error) {
	if bytes.IndexByte(p, IAC) < 0 {
		n, err := oi.LongWrite(dw.w, p)
		return int(n), err
	}

	buf := make([]byte, 0, len(p)+len(p)/8)
	for _, b := range p {
		buf = append(buf, b)
		if b == IAC {
			buf = append(buf, IAC)
		}
	}
	n, err := oi.LongWrite(dw.w, buf)
	if err != nil {
		return consumed(p, int(n)), err
	}
	return len(p), nil
}

// consumed counts the bytes of p whose escaped form fits in n wire bytes.
func consumed(p []byte, n int) int {
	i := 0
	for _, b := range p {
		size := 1
		if b == IAC {
			size = 2
		}
		if n < size {
			break
		}
		n -= size
		i++
	}
	return i
}
