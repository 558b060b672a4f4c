package zmodem

import (
	"context"
	"errors"
	"io"
	"os"
	"time"
)

// ReaderWithTimeout is an io.Reader with read deadlines.
type ReaderWithTimeout interface {
	io.Reader
	SetReadDeadline(time.Time) error
}

// flusher is implemented by buffered writers handed to the session.
type flusher interface {
	Flush() error
}

// zmodemIO buffers reads with a per-read deadline. Pending output is
// flushed before every blocking read, so a frame is always on the wire
// before we wait for the answer to it.
type zmodemIO struct {
	reader  ReaderWithTimeout
	writer  io.Writer
	rbuf    []byte
	rpos    int
	rleft   int
	timeout time.Duration
	ctx     context.Context
}

// newZmodemIO creates the I/O handler. timeout is in tenths of a second,
// 0 disables it.
func newZmodemIO(reader ReaderWithTimeout, writer io.Writer, bufsize int, timeout int) *zmodemIO {
	if bufsize <= 0 {
		bufsize = 1024
	}
	return &zmodemIO{
		reader:  reader,
		writer:  writer,
		rbuf:    make([]byte, bufsize),
		timeout: time.Duration(timeout) * 100 * time.Millisecond,
		ctx:     context.Background(),
	}
}

// SetContext sets the context checked before every blocking read.
func (z *zmodemIO) SetContext(ctx context.Context) {
	z.ctx = ctx
}

// ReadByte reads a single byte.
func (z *zmodemIO) ReadByte() (byte, error) {
	if z.rleft > 0 {
		z.rleft--
		b := z.rbuf[z.rpos]
		z.rpos++
		return b, nil
	}
	return z.readByteInternal()
}

func (z *zmodemIO) readByteInternal() (byte, error) {
	if err := z.ctx.Err(); err != nil {
		return 0, NewError(ErrCancelled, err.Error())
	}
	if err := z.Flush(); err != nil {
		return 0, NewError(ErrIO, err.Error())
	}

	if z.timeout > 0 {
		if err := z.reader.SetReadDeadline(time.Now().Add(z.timeout)); err != nil {
			return 0, NewError(ErrIO, err.Error())
		}
	}

	z.rpos = 0
	n, err := z.reader.Read(z.rbuf)
	if n == 0 || err != nil {
		switch {
		case err == nil, errors.Is(err, os.ErrDeadlineExceeded):
			return 0, NewError(ErrTimeout, "no data from remote")
		case z.ctx.Err() != nil:
			return 0, NewError(ErrCancelled, z.ctx.Err().Error())
		case errors.Is(err, io.EOF):
			return 0, NewError(ErrIO, "stream closed")
		default:
			return 0, NewError(ErrIO, err.Error())
		}
	}

	z.rleft = n - 1
	z.rpos = 1
	return z.rbuf[0], nil
}

// Read fills buf completely or fails.
func (z *zmodemIO) Read(buf []byte) (int, error) {
	for i := range buf {
		b, err := z.ReadByte()
		if err != nil {
			return i, err
		}
		buf[i] = b
	}
	return len(buf), nil
}

// Write writes bytes to the underlying writer.
func (z *zmodemIO) Write(buf []byte) (int, error) {
	return z.writer.Write(buf)
}

// Flush pushes buffered output to the wire.
func (z *zmodemIO) Flush() error {
	if f, ok := z.writer.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// PurgeLine drops buffered input.
func (z *zmodemIO) PurgeLine() {
	z.rleft = 0
	z.rpos = 0
}

// noxrd7 reads a character with parity stripped, skipping XON/XOFF.
func (z *zmodemIO) noxrd7() (int, error) {
	for {
		c, err := z.ReadByte()
		if err != nil {
			return 0, err
		}
		c &= 0x7F
		if c == XON || c == XOFF {
			continue
		}
		return int(c), nil
	}
}
