package zmodem

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/drunlade/go-shiftterm/logging"
)

// Config holds ZModem protocol configuration.
type Config struct {
	// Protocol options
	Use32BitCRC   bool // offer/accept CRC-32 (default: true)
	EscapeControl bool // escape all control characters (default: false)
	TurboEscape   bool // escape only the bare minimum (default: false)

	// Timing, in tenths of a second (default: 100)
	Timeout int

	// Sizes
	BlockSize  int // bytes per data subpacket when sending (default: 8192)
	BufferSize int // receive buffer, must hold a full subpacket (default: 8192)
	ZNulls     int // nulls sent before ZDATA headers

	// Attention string sent in ZSINIT, empty to skip ZSINIT.
	Attention []byte

	// SendZRQINIT makes Send open the session with ZRQINIT. Leave it off
	// when the remote rz has already announced itself.
	SendZRQINIT bool

	// Minimum interval between progress callbacks; zero reports every block.
	ProgressInterval time.Duration
}

// DefaultConfig returns the defaults used for in-band transfers.
func DefaultConfig() *Config {
	return &Config{
		Use32BitCRC: true,
		Timeout:     100,
		BlockSize:   8192,
		BufferSize:  8192,
	}
}

// Session runs one ZModem conversation over a reader/writer pair, in
// whichever direction the caller asks for.
type Session struct {
	reader    ReaderWithTimeout
	writer    io.Writer
	config    *Config
	callbacks *Callbacks
	logger    logging.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithConfig sets the session configuration.
func WithConfig(config *Config) Option {
	return func(s *Session) {
		if config != nil {
			s.config = config
		}
	}
}

// WithCallbacks sets the session callbacks.
func WithCallbacks(callbacks *Callbacks) Option {
	return func(s *Session) {
		s.callbacks = mergeCallbacks(callbacks)
	}
}

// WithLogger sets a logger for protocol debugging.
func WithLogger(logger logging.Logger) Option {
	return func(s *Session) {
		s.logger = logging.OrNoop(logger)
	}
}

// NewSession creates a new ZModem session.
func NewSession(reader ReaderWithTimeout, writer io.Writer, opts ...Option) *Session {
	s := &Session{
		reader:    reader,
		writer:    writer,
		config:    DefaultConfig(),
		callbacks: defaultCallbacks(),
		logger:    logging.NoopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, ok := s.logger.(logging.NoopLogger); !ok {
		s.reader = logging.NewReader(s.reader, s.logger, "zmodem-rx")
		s.writer = logging.NewWriter(s.writer, s.logger, "zmodem-tx")
	}
	return s
}

// Send offers files to the remote receiver one after the other and closes
// the session with ZFIN. Files the receiver skips are not an error.
func (s *Session) Send(ctx context.Context, files ...File) error {
	sender := NewSender(ctx, s.reader, s.writer, s.config, s.callbacks, s.logger)

	if s.config.SendZRQINIT {
		if err := sender.RequestInit(); err != nil {
			return err
		}
	}
	if err := sender.GetReceiverInit(); err != nil {
		return err
	}

	for _, f := range files {
		s.logger.Info("sending %s (%d bytes)", f.Name, f.Size)
		if err := sender.SendFile(f); err != nil {
			if hasType(err, ErrFileSkipped) {
				s.logger.Info("receiver skipped %s", f.Name)
				continue
			}
			return err
		}
	}

	if err := sender.Finish(); err != nil {
		return err
	}
	return sender.flush()
}

// Receive accepts files until the sender ends the session. Each file goes
// to the writer returned by OnFileCreate, which is closed afterwards when
// it is an io.Closer.
func (s *Session) Receive(ctx context.Context) error {
	receiver := NewReceiver(ctx, s.reader, s.writer, s.config, s.callbacks, s.logger)

	for {
		data, err := receiver.WaitForZFILE()
		if err == errSessionEnd {
			return receiver.flush()
		}
		if err != nil {
			return err
		}

		info, err := ParseFileHeader(data)
		if err != nil {
			s.logger.Error("bad ZFILE header: %v", err)
			if err := receiver.Skip(); err != nil {
				return err
			}
			continue
		}

		ok, err := s.callbacks.OnFilePrompt(info.Name, info.Size, info.Mode)
		if err != nil {
			return err
		}
		if !ok {
			s.logger.Info("skipping %s", info.Name)
			if err := receiver.Skip(); err != nil {
				return err
			}
			continue
		}

		if err := s.receiveOne(receiver, info); err != nil {
			if hasType(err, ErrFileSkipped) {
				continue
			}
			return err
		}
	}
}

func (s *Session) receiveOne(receiver *Receiver, info FileHeader) error {
	w, err := s.callbacks.OnFileCreate(info.Name, info.Size, info.Mode)
	if err != nil {
		receiver.Skip()
		return NewFrameError(ErrFileSkipped, err.Error(), ZFILE)
	}
	if c, ok := w.(io.Closer); ok {
		defer c.Close()
	}

	s.callbacks.OnFileStart(info.Name, info.Size, info.Mode)
	n, err := receiver.ReceiveFile(w, info.Name, info.Size)
	if err != nil {
		s.logger.Error("receiving %s stopped at %d: %v", info.Name, n, err)
		return err
	}
	s.logger.Info("received %s (%d bytes)", info.Name, n)
	return nil
}

// OpenFile prepares a local file for Send.
func OpenFile(path string) (File, io.Closer, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{}, nil, NewError(ErrIO, err.Error())
	}
	st, err := fh.Stat()
	if err != nil {
		fh.Close()
		return File{}, nil, NewError(ErrIO, err.Error())
	}
	return File{
		Name:    filepath.Base(path),
		Size:    st.Size(),
		ModTime: st.ModTime(),
		Mode:    st.Mode(),
		Reader:  fh,
	}, fh, nil
}
