package zmodem

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/drunlade/go-shiftterm/logging"
)

// errSessionEnd is returned by WaitForZFILE once the sender has said ZFIN.
var errSessionEnd = errors.New("zmodem: session finished")

// maxRxErrors mirrors lrzsz's tolerance for a noisy line while receiving.
const maxRxErrors = 20

// Receiver is the rz side of a transfer.
type Receiver struct {
	*endpoint

	config    *Config
	callbacks *Callbacks

	attn []byte
}

// NewReceiver creates a receiver reading frames from reader and answering on writer.
func NewReceiver(ctx context.Context, reader ReaderWithTimeout, writer io.Writer, config *Config, callbacks *Callbacks, logger logging.Logger) *Receiver {
	if config == nil {
		config = DefaultConfig()
	}
	return &Receiver{
		endpoint:  newEndpoint(ctx, reader, writer, config, logger),
		config:    config,
		callbacks: mergeCallbacks(callbacks),
	}
}

// SendZRINIT announces the receiver and its capabilities.
func (r *Receiver) SendZRINIT() error {
	var hdr Header
	hdr[ZF0] = CANFDX | CANOVIO
	if r.config.Use32BitCRC {
		hdr[ZF0] |= CANFC32
	}
	if r.config.EscapeControl {
		hdr[ZF0] |= ESCCTL
	}
	return r.sendHex(ZRINIT, hdr)
}

// WaitForZFILE announces ZRINIT until the sender offers a file and returns
// the raw ZFILE subpacket. It returns errSessionEnd when the sender finishes
// the session instead.
func (r *Receiver) WaitForZFILE() ([]byte, error) {
	buf := make([]byte, r.config.BufferSize)

	for n := maxRxErrors; n > 0; n-- {
		if err := r.SendZRINIT(); err != nil {
			return nil, err
		}

	again:
		frameType, _, err := r.getHeader()
		if err != nil {
			if retryable(err) {
				continue
			}
			return nil, err
		}

		switch frameType {
		case ZFILE:
			n, end, err := r.readData(buf)
			if err == nil && end == GOTCRCW {
				return append([]byte(nil), buf[:n]...), nil
			}
			if IsCancelled(err) {
				return nil, err
			}
			if err := r.sendHex(ZNAK, stohdr(0)); err != nil {
				return nil, err
			}
			goto again

		case ZSINIT:
			n, end, err := r.readData(buf[:ZATTNLEN])
			if err == nil && end == GOTCRCW {
				r.attn = append(r.attn[:0], buf[:n]...)
				if err := r.sendHex(ZACK, stohdr(1)); err != nil {
					return nil, err
				}
			} else if err := r.sendHex(ZNAK, stohdr(0)); err != nil {
				return nil, err
			}
			goto again

		case ZFREECNT:
			if err := r.sendHex(ZACK, stohdr(0xFFFFFFFF)); err != nil {
				return nil, err
			}
			goto again

		case ZCOMMAND:
			// commands from the remote are never executed
			r.readData(buf)
			if err := r.sendHex(ZCOMPL, stohdr(1)); err != nil {
				return nil, err
			}
			goto again

		case ZCOMPL:
			goto again

		case ZFIN:
			if err := r.ackFinish(); err != nil {
				return nil, err
			}
			return nil, errSessionEnd

		case ZCAN, ZABORT:
			return nil, NewFrameError(ErrCancelled, "sender cancelled", frameType)

		default:
			// ZRQINIT, a stale ZEOF, or noise: announce again
		}
	}
	return nil, NewError(ErrTimeout, "timeout waiting for ZFILE")
}

// ackFinish answers ZFIN and swallows the "OO" that ends the session.
func (r *Receiver) ackFinish() error {
	for tries := 0; tries < 3; tries++ {
		if err := r.sendHex(ZFIN, stohdr(0)); err != nil {
			return err
		}
		c, err := r.io.ReadByte()
		if err != nil {
			if IsTimeout(err) {
				continue
			}
			return nil
		}
		if c == 'O' {
			r.io.ReadByte()
			return nil
		}
	}
	return nil
}

// Skip declines the file just offered.
func (r *Receiver) Skip() error {
	return r.sendHex(ZSKIP, stohdr(0))
}

// ReceiveFile asks for the file from position 0 and writes its data to w
// until ZEOF. It returns the number of bytes received.
func (r *Receiver) ReceiveFile(w io.Writer, name string, size int64) (int64, error) {
	progress := NewProgressTracker(r.callbacks.OnProgress, r.config.ProgressInterval)
	progress.Start(name, size)
	started := time.Now()

	buf := make([]byte, r.config.BufferSize)
	var received int64
	errs := 0
	sendPos := true

	for errs < maxRxErrors {
		if sendPos {
			if err := r.sendHex(ZRPOS, stohdr(uint32(received))); err != nil {
				return received, err
			}
		}
		sendPos = true

		frameType, hdr, err := r.getHeader()
		if err != nil {
			if !retryable(err) {
				return received, err
			}
			errs++
			continue
		}

		switch frameType {
		case ZDATA:
			if int64(rclhdr(hdr)) != received {
				r.readData(buf)
				errs++
				continue
			}
			more := true
			for more {
				n, end, err := r.readData(buf)
				if err != nil {
					if IsCancelled(err) {
						return received, err
					}
					r.logger.Error("data subpacket at %d: %v", received, err)
					errs++
					break
				}
				if _, err := w.Write(buf[:n]); err != nil {
					r.sendHex(ZFERR, stohdr(uint32(received)))
					return received, NewError(ErrIO, err.Error())
				}
				received += int64(n)
				errs = 0
				progress.Update(received)

				switch end {
				case GOTCRCW:
					if err := r.sendHex(ZACK, stohdr(uint32(received))); err != nil {
						return received, err
					}
					sendPos, more = false, false
				case GOTCRCQ:
					if err := r.sendHex(ZACK, stohdr(uint32(received))); err != nil {
						return received, err
					}
				case GOTCRCE:
					sendPos, more = false, false
				}
			}

		case ZEOF:
			if int64(rclhdr(hdr)) != received {
				// the EOF may have crossed our ZRPOS
				sendPos = false
				continue
			}
			r.callbacks.OnFileComplete(name, received, time.Since(started))
			return received, nil

		case ZFILE:
			// the sender missed our ZRPOS
			r.readData(buf)
		case ZSKIP:
			return received, NewFrameError(ErrFileSkipped, name, frameType)
		case ZCAN, ZABORT, ZFIN:
			return received, NewFrameError(ErrCancelled, "sender cancelled", frameType)
		default:
			errs++
		}
	}
	return received, NewError(ErrProtocol, "too many errors receiving "+name)
}
