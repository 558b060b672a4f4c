// Package connection owns the single live BBS connection: it dials the
// chosen transport, runs the reader loop that feeds the transfer
// orchestrator and the display, and serializes everything written back.
package connection

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/drunlade/go-shiftterm/event"
	"github.com/drunlade/go-shiftterm/logging"
	"github.com/drunlade/go-shiftterm/metrics"
	"github.com/drunlade/go-shiftterm/sessionlog"
	"github.com/drunlade/go-shiftterm/transfer"
	"github.com/drunlade/go-shiftterm/transport"
)

// ErrNotConnected is returned by operations that need a connection.
var ErrNotConnected = errors.New("Not connected to a BBS")

// Config holds the manager's settings.
type Config struct {
	TermType      string
	Cols, Rows    int
	DetectTimeout time.Duration
	KeepAlive     time.Duration
	LogDir        string
	DownloadDir   string
	ChunkSize     int
	Logger        logging.Logger
}

// DefaultConfig returns the settings of a stock client.
func DefaultConfig() Config {
	return Config{
		TermType:      "ANSI",
		Cols:          80,
		Rows:          25,
		DetectTimeout: transport.DefaultDetectTimeout,
		KeepAlive:     transport.DefaultKeepAlive,
		LogDir:        "logs",
		DownloadDir:   ".",
		ChunkSize:     8192,
	}
}

// Option changes the manager configuration.
type Option func(*Config)

// WithTerminalType sets the name reported over Telnet TTYPE and the SSH PTY request.
func WithTerminalType(t string) Option {
	return func(c *Config) { c.TermType = t }
}

// WithSize sets the initial terminal size.
func WithSize(cols, rows int) Option {
	return func(c *Config) {
		if cols > 0 && rows > 0 {
			c.Cols, c.Rows = cols, rows
		}
	}
}

// WithLogDir sets where session logs are written.
func WithLogDir(dir string) Option {
	return func(c *Config) { c.LogDir = dir }
}

// WithDownloadDir sets where received files are saved.
func WithDownloadDir(dir string) Option {
	return func(c *Config) { c.DownloadDir = dir }
}

// WithDetectTimeout bounds how long protocol detection waits for the host.
func WithDetectTimeout(d time.Duration) Option {
	return func(c *Config) { c.DetectTimeout = d }
}

// WithLogger sets the diagnostic logger shared by the connection components.
func WithLogger(logger logging.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// Connection is one open link to a BBS.
type Connection struct {
	Host string
	Port int
	Kind Kind

	client Client
	orch   *transfer.Orchestrator
	done   chan struct{}

	logMu sync.Mutex
	log   *sessionlog.Log
}

// Manager runs at most one Connection at a time. Opening a new one closes
// the previous one first.
type Manager struct {
	cfg    Config
	sink   event.Sink
	logger logging.Logger

	mu      sync.Mutex
	conn    *Connection
	logging bool
}

// NewManager creates a manager reporting to sink.
func NewManager(sink event.Sink, opts ...Option) *Manager {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Manager{
		cfg:    cfg,
		sink:   sink,
		logger: logging.OrNoop(cfg.Logger),
	}
}

func (m *Manager) newClient(cfg Config, kind Kind, creds Credentials) (Client, error) {
	switch kind {
	case KindTelnet:
		return newTelnetClient(cfg), nil
	case KindSSH:
		return newSSHClient(cfg, creds), nil
	case KindDetect:
		return &detectClient{telnetClient: newTelnetClient(cfg), status: m.sink.Status}, nil
	}
	return nil, errors.Errorf("unsupported connection type %s", kind)
}

// Connect opens a connection and starts reading from it. A zero port
// means the transport's default.
func (m *Manager) Connect(ctx context.Context, host string, port int, kind Kind, creds Credentials) error {
	if host == "" {
		return errors.New("no host given")
	}
	if port == 0 {
		port = kind.DefaultPort()
	}
	m.Disconnect()

	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()
	client, err := m.newClient(cfg, kind, creds)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	m.logger.Info("connecting to %s (%s)", addr, kind)
	if err := client.Dial(ctx, addr); err != nil {
		metrics.ConnectsTotal.WithLabelValues(kind.String(), "failed").Inc()
		m.sink.Status(event.Errorf("Connection to %s failed: %v", addr, err))
		return errors.Wrapf(err, "connect to %s", addr)
	}
	metrics.ConnectsTotal.WithLabelValues(kind.String(), "ok").Inc()
	metrics.ActiveConnections.Inc()

	c := &Connection{
		Host:   host,
		Port:   port,
		Kind:   kind,
		client: client,
		done:   make(chan struct{}),
	}
	c.orch = transfer.New(m.sink, client.Writer(), client.DataWriter(), transfer.Config{
		ChunkSize:   cfg.ChunkSize,
		DownloadDir: cfg.DownloadDir,
		Logger:      cfg.Logger,
	})

	m.mu.Lock()
	m.conn = c
	logOn := m.logging
	m.mu.Unlock()

	m.sink.Status(event.Status{Kind: event.KindConnected, Message: "Connected to " + addr + " via " + kind.String()})
	if logOn {
		m.openLog(c)
	}
	go m.readLoop(c)
	return nil
}

// readLoop hands each inbound chunk to the log and the orchestrator, in
// order, until the connection ends.
func (m *Manager) readLoop(c *Connection) {
	defer close(c.done)
	for {
		chunk, err := c.client.Next()
		if len(chunk) > 0 {
			m.appendLog(c, chunk)
			c.orch.Intercept(chunk)
		}
		if err != nil {
			m.lost(c, err)
			return
		}
	}
}

// lost tears c down after the remote closed it or the link failed.
func (m *Manager) lost(c *Connection, err error) {
	m.mu.Lock()
	if m.conn != c {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.mu.Unlock()

	m.teardown(c)
	if err == io.EOF {
		m.sink.Status(event.Status{Kind: event.KindDisconnected, Message: "Connection closed by remote host"})
		return
	}
	m.logger.Error("connection to %s lost: %v", c.Host, err)
	m.sink.Status(event.Status{Kind: event.KindDisconnected, Message: "Connection lost: " + err.Error()})
}

func (m *Manager) teardown(c *Connection) {
	c.orch.Reset()
	c.client.Close()
	c.logMu.Lock()
	if c.log != nil {
		c.log.Close()
		c.log = nil
	}
	c.logMu.Unlock()
	metrics.ActiveConnections.Dec()
}

// Disconnect closes the current connection, if any, and waits briefly for
// its reader to stop. It must not be called from the goroutine draining
// the sink.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	c := m.conn
	m.conn = nil
	m.mu.Unlock()
	if c == nil {
		return
	}

	m.teardown(c)
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		m.logger.Error("reader for %s did not stop", c.Host)
	}
	m.sink.Status(event.Status{Kind: event.KindDisconnected, Message: "Disconnected"})
}

func (m *Manager) current() (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil, ErrNotConnected
	}
	return m.conn, nil
}

// Connected reports whether a connection is open.
func (m *Manager) Connected() bool {
	_, err := m.current()
	return err == nil
}

// Send writes user input to the BBS unchanged.
func (m *Manager) Send(p []byte) error {
	c, err := m.current()
	if err != nil {
		return err
	}
	_, err = c.client.Writer().Write(p)
	return errors.Wrap(err, "send")
}

// Resize records the terminal size and reports it to the BBS when the
// transport supports it.
func (m *Manager) Resize(cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return nil
	}
	m.mu.Lock()
	m.cfg.Cols, m.cfg.Rows = cols, rows
	c := m.conn
	m.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.client.Resize(cols, rows)
}

// SetLogging turns the session log on or off. It applies to the current
// connection and to later ones.
func (m *Manager) SetLogging(enabled bool) error {
	m.mu.Lock()
	m.logging = enabled
	c := m.conn
	m.mu.Unlock()
	if c == nil {
		return nil
	}
	if enabled {
		return m.openLog(c)
	}
	c.logMu.Lock()
	defer c.logMu.Unlock()
	if c.log == nil {
		return nil
	}
	err := c.log.Close()
	c.log = nil
	m.sink.Status(event.Status{Kind: event.KindInfo, Message: "Logging stopped"})
	return err
}

// Logging reports whether new data is being logged.
func (m *Manager) Logging() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logging
}

func (m *Manager) openLog(c *Connection) error {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	if c.log != nil {
		return nil
	}
	l, err := sessionlog.Open(m.cfg.LogDir, time.Now())
	if err != nil {
		m.disableLogging()
		m.sink.Status(event.Errorf("Cannot start logging: %v", err))
		return err
	}
	c.log = l
	m.sink.Status(event.Status{Kind: event.KindInfo, Message: "Logging to " + l.Path()})
	return nil
}

func (m *Manager) appendLog(c *Connection, p []byte) {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	if c.log == nil {
		return
	}
	if err := c.log.Append(p); err != nil {
		c.log.Close()
		c.log = nil
		m.disableLogging()
		m.sink.Status(event.Errorf("Logging stopped: %v", err))
	}
}

func (m *Manager) disableLogging() {
	m.mu.Lock()
	m.logging = false
	m.mu.Unlock()
}

// QueueUpload makes name the file sent the next time the BBS asks for one.
func (m *Manager) QueueUpload(name string, data []byte) error {
	c, err := m.current()
	if err != nil {
		return err
	}
	return c.orch.QueueUpload(name, data)
}

// ClearQueuedUpload drops a queued upload.
func (m *Manager) ClearQueuedUpload() {
	if c, err := m.current(); err == nil {
		c.orch.ClearQueuedUpload()
	}
}

// RequestDownloadReady confirms downloads are armed. Receive sessions
// start on their own; this only tells the user so.
func (m *Manager) RequestDownloadReady() error {
	if _, err := m.current(); err != nil {
		return err
	}
	m.sink.Status(event.Status{
		Kind:    event.KindInfo,
		Message: "ZMODEM ready. Downloads auto-detected, uploads queued then start from BBS.",
	})
	return nil
}

// CancelTransfer aborts the running transfer. Without one it does nothing.
func (m *Manager) CancelTransfer() {
	if c, err := m.current(); err == nil {
		c.orch.Cancel()
	}
}

// Transfer returns the state of the current transfer session.
func (m *Manager) Transfer() (transfer.Info, bool) {
	c, err := m.current()
	if err != nil {
		return transfer.Info{}, false
	}
	return c.orch.Session()
}
