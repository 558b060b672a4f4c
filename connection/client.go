package connection

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/pkg/errors"
	oi "github.com/reiver/go-oi"

	"github.com/drunlade/go-shiftterm/event"
	"github.com/drunlade/go-shiftterm/metrics"
	"github.com/drunlade/go-shiftterm/telnet"
	"github.com/drunlade/go-shiftterm/transport"
)

// Kind selects the transport variant.
type Kind int

const (
	KindTelnet Kind = iota
	KindSSH
	// KindDetect sniffs the host first and then connects with Telnet.
	KindDetect
)

func (k Kind) String() string {
	switch k {
	case KindTelnet:
		return "telnet"
	case KindSSH:
		return "ssh"
	case KindDetect:
		return "detect"
	}
	return "unknown"
}

// ParseKind accepts the names used in the phonebook and on the command line.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "telnet":
		return KindTelnet, nil
	case "ssh":
		return KindSSH, nil
	case "detect", "auto":
		return KindDetect, nil
	}
	return 0, errors.Errorf("unknown connection type %q", s)
}

// DefaultPort is the well-known port for k.
func (k Kind) DefaultPort() int {
	if k == KindSSH {
		return 22
	}
	return 23
}

// Credentials log in to SSH hosts. Telnet ignores them; BBS logins happen
// in the terminal.
type Credentials struct {
	User           string
	Password       string
	KeyFile        string
	KnownHostsFile string
}

// Client is one transport variant. Next returns inbound data with
// transport framing already removed; the slice is only valid until the
// next call.
type Client interface {
	Dial(ctx context.Context, addr string) error
	Next() ([]byte, error)
	// Writer is the serialized outbound path for keystrokes.
	Writer() io.Writer
	// DataWriter carries binary transfer data, escaped as the transport needs.
	DataWriter() io.Writer
	Resize(cols, rows int) error
	Close() error
}

// wire serializes every write to a connection. A write is never split by
// another writer's.
type wire struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *wire) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.write(p)
}

func (w *wire) write(p []byte) (int, error) {
	n, err := oi.LongWrite(w.w, p)
	metrics.BytesSentTotal.Add(float64(n))
	return int(n), err
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// escapedWire doubles IAC bytes and holds the wire for the whole chunk.
type escapedWire struct {
	w *wire
}

func (e escapedWire) Write(p []byte) (int, error) {
	e.w.mu.Lock()
	defer e.w.mu.Unlock()
	return telnet.NewDataWriter(writerFunc(e.w.write)).Write(p)
}

const readBufferSize = 32 * 1024

type telnetClient struct {
	cfg  Config
	conn net.Conn
	wire *wire
	neg  *telnet.Negotiator
	buf  []byte
}

func newTelnetClient(cfg Config) *telnetClient {
	return &telnetClient{cfg: cfg, buf: make([]byte, readBufferSize)}
}

func (c *telnetClient) Dial(ctx context.Context, addr string) error {
	conn, err := transport.DialTCP(ctx, addr, c.cfg.KeepAlive)
	if err != nil {
		return err
	}
	c.conn = conn
	c.wire = &wire{w: conn}
	c.neg = telnet.NewNegotiator(c.wire,
		telnet.WithTerminalType(c.cfg.TermType),
		telnet.WithSize(c.cfg.Cols, c.cfg.Rows),
		telnet.WithLogger(c.cfg.Logger),
	)
	return nil
}

func (c *telnetClient) Next() ([]byte, error) {
	n, err := c.conn.Read(c.buf)
	if n == 0 {
		return nil, err
	}
	metrics.BytesReceivedTotal.Add(float64(n))
	return c.neg.Process(c.buf[:n]), err
}

func (c *telnetClient) Writer() io.Writer     { return c.wire }
func (c *telnetClient) DataWriter() io.Writer { return escapedWire{c.wire} }

func (c *telnetClient) Resize(cols, rows int) error {
	return errors.Wrap(c.neg.Resize(cols, rows), "send window size")
}

func (c *telnetClient) Close() error {
	return c.conn.Close()
}

// detectClient sniffs the host on a throwaway connection, then opens the
// real one with Telnet. Raw hosts get Telnet handling as well.
type detectClient struct {
	*telnetClient
	status func(event.Status)
}

func (c *detectClient) Dial(ctx context.Context, addr string) error {
	c.status(event.Status{Kind: event.KindDetecting, Message: "Detecting protocol on " + addr})
	proto, err := transport.Detect(ctx, addr, c.cfg.DetectTimeout)
	if err != nil {
		metrics.DetectionsTotal.WithLabelValues("failed").Inc()
		return err
	}
	metrics.DetectionsTotal.WithLabelValues(proto.String()).Inc()
	c.status(event.Status{
		Kind:     event.KindDetected,
		Message:  "Detected " + proto.String() + ", using telnet",
		Protocol: proto.String(),
	})
	return c.telnetClient.Dial(ctx, addr)
}

type sshClient struct {
	cfg  transport.SSHConfig
	ch   *transport.SSHChannel
	wire *wire
	buf  []byte
}

func newSSHClient(cfg Config, creds Credentials) *sshClient {
	return &sshClient{
		cfg: transport.SSHConfig{
			User:           creds.User,
			Password:       creds.Password,
			KeyFile:        creds.KeyFile,
			KnownHostsFile: creds.KnownHostsFile,
			TermType:       strings.ToLower(cfg.TermType),
			Cols:           cfg.Cols,
			Rows:           cfg.Rows,
			KeepAlive:      cfg.KeepAlive,
		},
		buf: make([]byte, readBufferSize),
	}
}

func (c *sshClient) Dial(ctx context.Context, addr string) error {
	ch, err := transport.DialSSH(ctx, addr, c.cfg)
	if err != nil {
		return err
	}
	c.ch = ch
	c.wire = &wire{w: ch}
	return nil
}

func (c *sshClient) Next() ([]byte, error) {
	n, err := c.ch.Read(c.buf)
	if n == 0 {
		return nil, err
	}
	metrics.BytesReceivedTotal.Add(float64(n))
	return c.buf[:n], err
}

func (c *sshClient) Writer() io.Writer     { return c.wire }
func (c *sshClient) DataWriter() io.Writer { return c.wire }

func (c *sshClient) Resize(cols, rows int) error {
	return c.ch.Resize(cols, rows)
}

func (c *sshClient) Close() error {
	return c.ch.Close()
}
