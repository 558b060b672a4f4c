package zmodem

import (
	"bufio"
	"context"
	"io"

	"github.com/drunlade/go-shiftterm/logging"
)

// maxGarbage bounds how many non-header bytes getHeader skips. It must
// exceed a full data subpacket so an unwanted one can be skipped.
const maxGarbage = 32 * 1024

// endpoint is the state shared by both ends of a transfer: buffered
// output, deadline-aware input and header reception.
type endpoint struct {
	io        *zmodemIO
	out       *bufio.Writer
	esc       *zsendlineEscaper
	unescaper *zdlreadUnescaper
	rxCRC32   bool // format of the last binary header received
	logger    logging.Logger
}

func newEndpoint(ctx context.Context, reader ReaderWithTimeout, writer io.Writer, config *Config, logger logging.Logger) *endpoint {
	out := bufio.NewWriterSize(writer, 2*config.BlockSize+64)
	zio := newZmodemIO(reader, out, 1024, config.Timeout)
	if ctx != nil {
		zio.SetContext(ctx)
	}
	return &endpoint{
		io:        zio,
		out:       out,
		esc:       newZsendlineEscaper(out, config.EscapeControl, config.TurboEscape),
		unescaper: newZdlreadUnescaper(zio),
		logger:    logging.OrNoop(logger),
	}
}

func (e *endpoint) flush() error {
	return e.out.Flush()
}

func (e *endpoint) sendHex(frameType int, hdr Header) error {
	e.logger.Debug("%s", FormatFrameLog("TX", frameType, hdr, nil))
	return zshhdr(e.out, frameType, hdr)
}

func (e *endpoint) sendBinary(frameType int, hdr Header, use32 bool, znulls int) error {
	e.logger.Debug("%s", FormatFrameLog("TX", frameType, hdr, nil))
	return zsbhdr(e.esc, frameType, hdr, use32, znulls)
}

func (e *endpoint) sendData(buf []byte, frameend int, use32 bool) error {
	return zsdata(e.esc, buf, frameend, use32)
}

// getHeader waits for the next frame header, skipping line noise. A run
// of five CANs is reported as ZCAN.
func (e *endpoint) getHeader() (int, Header, error) {
	garbage := maxGarbage
	cans := 0
	for {
		c, err := e.io.ReadByte()
		if err != nil {
			return TIMEOUT, Header{}, err
		}

		switch {
		case c == CAN:
			if cans++; cans >= 5 {
				e.logger.Debug("RX CAN*5")
				return ZCAN, Header{}, nil
			}
			continue
		case c&0x7F == ZPAD:
			frameType, hdr, ok, err := e.afterPad()
			if err != nil {
				return TIMEOUT, Header{}, err
			}
			if ok {
				e.logger.Debug("%s", FormatFrameLog("RX", frameType, hdr, nil))
				return frameType, hdr, nil
			}
		}

		cans = 0
		if garbage--; garbage <= 0 {
			return TIMEOUT, Header{}, NewError(ErrProtocol, "garbage count exceeded")
		}
	}
}

// afterPad parses what follows a ZPAD. ok is false when it was not a header.
func (e *endpoint) afterPad() (int, Header, bool, error) {
	c, err := e.io.noxrd7()
	for err == nil && c == ZPAD {
		c, err = e.io.noxrd7()
	}
	if err != nil {
		return 0, Header{}, false, err
	}
	if c != ZDLE {
		return 0, Header{}, false, nil
	}

	if c, err = e.io.noxrd7(); err != nil {
		return 0, Header{}, false, err
	}

	var frameType int
	var hdr Header
	switch c {
	case ZBIN:
		e.rxCRC32 = false
		frameType, hdr, err = zrbhdr(e.unescaper)
	case ZBIN32:
		e.rxCRC32 = true
		frameType, hdr, err = zrbhdr32(e.unescaper)
	case ZHEX:
		e.rxCRC32 = false
		frameType, hdr, err = zrhhdr(e.io)
	default:
		return 0, Header{}, false, nil
	}
	if err != nil {
		return 0, Header{}, false, err
	}
	return frameType, hdr, true, nil
}

// readData receives one data subpacket in the CRC mode of the last header.
func (e *endpoint) readData(buf []byte) (int, int, error) {
	return zrdata(e.unescaper, buf, e.rxCRC32)
}

// retryable reports whether err is line trouble worth another attempt.
func retryable(err error) bool {
	return IsTimeout(err) || IsCRC(err) || hasType(err, ErrInvalidFrame)
}
