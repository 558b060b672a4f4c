package zmodem

import (
	"context"
	"hash/crc32"
	"io"
	"os"
	"time"

	"github.com/drunlade/go-shiftterm/logging"
)

// maxErrors bounds consecutive retries within one exchange.
const maxErrors = 10

// Sender is the sz side of a transfer.
//
// Every data subpacket is sent as its own ZDATA frame ending in ZCRCW, so
// the next block only leaves once the receiver has acknowledged the last
// one. A slow peer therefore paces the sender instead of filling buffers.
type Sender struct {
	*endpoint

	config    *Config
	callbacks *Callbacks

	use32bitCRC bool
	escapeCtrl  bool
	blockSize   int

	rxflags      byte
	rxbuflen     int
	zrqinitsSent int
}

// NewSender creates a sender reading replies from reader and writing frames to writer.
func NewSender(ctx context.Context, reader ReaderWithTimeout, writer io.Writer, config *Config, callbacks *Callbacks, logger logging.Logger) *Sender {
	if config == nil {
		config = DefaultConfig()
	}
	return &Sender{
		endpoint:    newEndpoint(ctx, reader, writer, config, logger),
		config:      config,
		callbacks:   mergeCallbacks(callbacks),
		use32bitCRC: config.Use32BitCRC,
		escapeCtrl:  config.EscapeControl,
		blockSize:   config.BlockSize,
	}
}

// RequestInit sends ZRQINIT, asking a remote rz to announce itself.
func (s *Sender) RequestInit() error {
	s.zrqinitsSent++
	return s.sendHex(ZRQINIT, stohdr(0))
}

// GetReceiverInit waits for the receiver's ZRINIT and adopts its
// capabilities. When the sender initiated the session, ZRQINIT is repeated
// on timeouts.
func (s *Sender) GetReceiverInit() error {
	for n := maxErrors; n > 0; n-- {
		frameType, hdr, err := s.getHeader()
		if err != nil {
			if !retryable(err) {
				return err
			}
			if s.zrqinitsSent > 0 && s.zrqinitsSent < 4 {
				if err := s.RequestInit(); err != nil {
					return err
				}
			}
			continue
		}

		switch frameType {
		case ZRINIT:
			s.parseZRINIT(hdr)
			return s.sendZSINIT()
		case ZCHALLENGE:
			if err := s.sendHex(ZACK, hdr); err != nil {
				return err
			}
		case ZCOMMAND:
			// receiver has not seen our ZRQINIT yet
		case ZCAN, ZABORT:
			return NewFrameError(ErrCancelled, "receiver cancelled", frameType)
		case ZRQINIT:
			if hdr[ZF0] == ZCOMMAND {
				continue
			}
			fallthrough
		default:
			if err := s.sendHex(ZNAK, stohdr(0)); err != nil {
				return err
			}
		}
	}
	return NewError(ErrTimeout, "timeout waiting for ZRINIT")
}

// parseZRINIT adopts the receiver's flags and buffer size.
func (s *Sender) parseZRINIT(hdr Header) {
	s.rxflags = hdr[ZF0]
	s.use32bitCRC = s.config.Use32BitCRC && s.rxflags&CANFC32 != 0
	s.escapeCtrl = s.config.EscapeControl || s.rxflags&ESCCTL != 0
	s.esc = newZsendlineEscaper(s.out, s.escapeCtrl, s.config.TurboEscape)

	s.rxbuflen = int(hdr[ZP0]) | int(hdr[ZP1])<<8
	if s.rxbuflen >= 32 && s.rxbuflen < s.blockSize {
		s.blockSize = s.rxbuflen
	}
	s.logger.Info("receiver flags=%02x buflen=%d crc32=%v block=%d", s.rxflags, s.rxbuflen, s.use32bitCRC, s.blockSize)
}

// sendZSINIT sends our attention string and escaping wishes, if any.
func (s *Sender) sendZSINIT() error {
	if len(s.config.Attention) == 0 && (!s.escapeCtrl || s.rxflags&ESCCTL != 0) {
		return nil
	}

	attn := append([]byte(nil), s.config.Attention...)
	if len(attn) == 0 || attn[len(attn)-1] != 0 {
		attn = append(attn, 0)
	}
	if len(attn) > ZATTNLEN {
		attn = append(attn[:ZATTNLEN-1], 0)
	}

	for errs := 0; errs < maxErrors; errs++ {
		hdr := stohdr(0)
		if s.escapeCtrl {
			hdr[ZF0] |= TESCCTL
		}
		if err := s.sendBinary(ZSINIT, hdr, s.use32bitCRC, 0); err != nil {
			return err
		}
		if err := s.sendData(attn, ZCRCW, s.use32bitCRC); err != nil {
			return err
		}

		frameType, _, err := s.getHeader()
		if err != nil {
			if retryable(err) {
				continue
			}
			return err
		}
		switch frameType {
		case ZACK:
			return nil
		case ZCAN, ZABORT:
			return NewFrameError(ErrCancelled, "receiver cancelled", frameType)
		}
	}
	return NewFrameError(ErrProtocol, "too many errors", ZSINIT)
}

// SendFile offers one file and streams it once the receiver asks for data.
func (s *Sender) SendFile(f File) error {
	header := BuildFileHeader(FileHeader{
		Name:    f.Name,
		Size:    f.Size,
		ModTime: f.ModTime,
		Mode:    f.Mode,
	})

	var hdr Header
	hdr[ZF0] = ZCBIN
	hdr[ZF1] = ZF1_ZMCLOB

	offer := true
	for errs := 0; errs < maxErrors; {
		if offer {
			if err := s.sendBinary(ZFILE, hdr, s.use32bitCRC, 0); err != nil {
				return err
			}
			if err := s.sendData(header, ZCRCW, s.use32bitCRC); err != nil {
				return err
			}
		}
		offer = true

		frameType, rxhdr, err := s.getHeader()
		for err == nil && frameType == ZCRC {
			var crc uint32
			if crc, err = fileCRC(f.Reader); err != nil {
				return err
			}
			if err = s.sendHex(ZCRC, stohdr(crc)); err != nil {
				return err
			}
			frameType, rxhdr, err = s.getHeader()
		}
		if err != nil {
			if !retryable(err) {
				return err
			}
			errs++
			continue
		}

		switch frameType {
		case ZRPOS:
			return s.sendFileData(f, int64(rclhdr(rxhdr)))
		case ZSKIP:
			return NewFrameError(ErrFileSkipped, f.Name, frameType)
		case ZCAN, ZABORT, ZFIN:
			return NewFrameError(ErrCancelled, "receiver cancelled", frameType)
		case ZRINIT:
			// stale, our offer may have crossed it; wait for the answer
			offer = false
			errs++
		default:
			errs++
		}
	}
	return NewFrameError(ErrProtocol, "too many errors", ZFILE)
}

// sendFileData streams the file from pos, one acknowledged block at a time,
// then sends ZEOF and waits for the receiver to come back with ZRINIT.
func (s *Sender) sendFileData(f File, pos int64) error {
	progress := NewProgressTracker(s.callbacks.OnProgress, s.config.ProgressInterval)
	progress.Start(f.Name, f.Size)
	s.callbacks.OnFileStart(f.Name, f.Size, f.Mode)
	started := time.Now()

	buf := make([]byte, s.blockSize)
	errs := 0
	for errs < maxErrors {
		if _, err := f.Reader.Seek(pos, io.SeekStart); err != nil {
			return NewError(ErrIO, err.Error())
		}
		n, err := io.ReadFull(f.Reader, buf)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return NewError(ErrIO, err.Error())
		}

		if n == 0 {
			if err := s.sendBinary(ZEOF, stohdr(uint32(pos)), s.use32bitCRC, 0); err != nil {
				return err
			}
		} else {
			if err := s.sendBinary(ZDATA, stohdr(uint32(pos)), s.use32bitCRC, s.config.ZNulls); err != nil {
				return err
			}
			if err := s.sendData(buf[:n], ZCRCW, s.use32bitCRC); err != nil {
				return err
			}
		}

		frameType, rxhdr, err := s.getHeader()
		if err != nil {
			if !retryable(err) {
				return err
			}
			errs++
			continue
		}

		switch frameType {
		case ZACK:
			if n == 0 {
				s.callbacks.OnFileComplete(f.Name, pos, time.Since(started))
				return nil
			}
			pos += int64(n)
			errs = 0
			progress.Update(pos)
		case ZRINIT:
			if n == 0 {
				s.callbacks.OnFileComplete(f.Name, pos, time.Since(started))
				return nil
			}
			errs++
		case ZRPOS:
			pos = int64(rclhdr(rxhdr))
			errs++
		case ZSKIP:
			return NewFrameError(ErrFileSkipped, f.Name, frameType)
		case ZCAN, ZABORT, ZFIN:
			return NewFrameError(ErrCancelled, "receiver cancelled", frameType)
		default:
			errs++
		}
	}
	return NewError(ErrProtocol, "too many errors sending "+f.Name)
}

// Finish ends the session: ZFIN, then "OO" once the receiver answers.
// A receiver that never answers is not an error.
func (s *Sender) Finish() error {
	for tries := 0; tries < 3; tries++ {
		if err := s.sendHex(ZFIN, stohdr(0)); err != nil {
			return err
		}
		frameType, _, err := s.getHeader()
		if err != nil {
			if IsTimeout(err) {
				return s.flush()
			}
			if retryable(err) {
				continue
			}
			return err
		}
		switch frameType {
		case ZFIN:
			if _, err := s.out.WriteString("OO"); err != nil {
				return err
			}
			return s.flush()
		case ZCAN:
			return s.flush()
		}
	}
	return s.flush()
}

// fileCRC answers a ZCRC request with the CRC-32 of the whole file.
func fileCRC(r io.ReadSeeker) (uint32, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, NewError(ErrIO, err.Error())
	}
	h := crc32.NewIEEE()
	if _, err := io.Copy(h, r); err != nil {
		return 0, NewError(ErrIO, err.Error())
	}
	return h.Sum32(), nil
}

// File is one file to offer.
type File struct {
	Name    string
	Size    int64
	ModTime time.Time
	Mode    os.FileMode
	Reader  io.ReadSeeker
}
