// Package transfer watches a connection's terminal stream for ZMODEM
// transfers and runs them in-band.
//
// An Orchestrator sits between the Telnet layer and the display. While no
// transfer is running every chunk is scanned for a ZRQINIT or ZRINIT
// header; text around it goes to the display. Once a session starts, every
// inbound byte belongs to it until it completes or is cancelled.
package transfer

import (
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/drunlade/go-shiftterm/cp437"
	"github.com/drunlade/go-shiftterm/event"
	"github.com/drunlade/go-shiftterm/logging"
	"github.com/drunlade/go-shiftterm/metrics"
	"github.com/drunlade/go-shiftterm/zmodem"
)

const protocolName = "zmodem"

var (
	// ErrSessionActive is reported when a transfer starts while another
	// one is still running or waiting.
	ErrSessionActive = errors.New("transfer already in progress")
	// ErrEmptyUpload rejects an upload without a file name.
	ErrEmptyUpload = errors.New("upload needs a file name")
)

// Config tunes the orchestrator.
type Config struct {
	// ChunkSize is the ZMODEM data subpacket size for uploads.
	ChunkSize int
	// DownloadDir receives downloaded files.
	DownloadDir string
	// Timeout is the ZMODEM read timeout in tenths of a second.
	Timeout int
	Logger  logging.Logger
}

// DefaultConfig returns the settings used by the connection manager.
func DefaultConfig() Config {
	return Config{
		ChunkSize:   8192,
		DownloadDir: ".",
		Timeout:     100,
	}
}

// Upload is a file waiting for the BBS to ask for it.
type Upload struct {
	Name    string
	Data    []byte
	ModTime time.Time
}

// Orchestrator runs the transfer state machine for one connection.
//
// Intercept must be called from a single reader goroutine. QueueUpload,
// Cancel and Reset may be called from anywhere.
type Orchestrator struct {
	cfg    Config
	sink   event.Sink
	raw    io.Writer
	data   io.Writer
	logger logging.Logger

	// outMu orders display output between Intercept and a finishing session.
	outMu sync.Mutex

	mu      sync.Mutex
	sentry  zmodem.Sentry
	active  *Session
	pending *Upload
	// held is the ZRINIT header kept while waiting for an upload.
	held []byte
}

// New creates an orchestrator. raw carries the abort sequence unescaped;
// data carries session output and must escape it for the transport.
// Both are usually the connection's serialized writer.
func New(sink event.Sink, raw, data io.Writer, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = def.DownloadDir
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if data == nil {
		data = raw
	}
	return &Orchestrator{
		cfg:    cfg,
		sink:   sink,
		raw:    raw,
		data:   data,
		logger: logging.OrNoop(cfg.Logger),
	}
}

// Intercept consumes one chunk of Telnet-clean inbound data.
func (o *Orchestrator) Intercept(p []byte) {
	o.outMu.Lock()
	defer o.outMu.Unlock()
	o.intercept(p)
}

// intercept runs with outMu held.
func (o *Orchestrator) intercept(p []byte) {
	if len(p) == 0 {
		return
	}

	o.mu.Lock()
	if s := o.active; s != nil && s.feed != nil {
		o.mu.Unlock()
		// a write after the session closed its feed is dropped with it
		s.feed.Write(p)
		return
	}

	if o.active != nil {
		if i, j := abortRun(p); i >= 0 {
			o.mu.Unlock()
			o.intercept(p[:i])
			o.remoteAbort()
			o.intercept(p[j:])
			return
		}
	}

	text, sig := o.sentry.Scan(p)
	if sig == nil {
		o.mu.Unlock()
		o.display(text)
		return
	}

	if waiting := o.active; waiting != nil {
		if sig.Role == waiting.Role {
			// the remote rz repeats ZRINIT until it gets an answer
			o.held = append(sig.Header, sig.Rest...)
			o.mu.Unlock()
			o.display(text)
			return
		}
		o.mu.Unlock()
		o.logger.Error("transfer: %s signature ignored: %v (%s)", sig.Role, ErrSessionActive, waiting.Role)
		o.display(text)
		o.status(event.Errorf("Transfer already in progress"))
		o.display(sig.Rest)
		return
	}

	s := &Session{Role: sig.Role, State: StateDetected}
	var statuses []event.Status
	switch sig.Role {
	case zmodem.RoleReceive:
		statuses = append(statuses, detected("BBS sending file..."))
		o.start(s, nil, sig.Rest)
		statuses = append(statuses, o.transferStatus(s, "Receiving file"))
	case zmodem.RoleSend:
		statuses = append(statuses, detected("BBS ready to receive file..."))
		header := append(sig.Header, sig.Rest...)
		if up := o.pending; up != nil {
			o.pending = nil
			o.start(s, up, header)
			statuses = append(statuses, o.transferStatus(s, "Sending "+up.Name))
		} else {
			o.active = s
			o.held = header
			statuses = append(statuses, event.Status{
				Kind:     event.KindTransfer,
				Message:  "Waiting for file selection",
				Transfer: &event.Transfer{Direction: event.Upload, Waiting: true},
			})
		}
	}
	o.mu.Unlock()

	o.display(text)
	for _, st := range statuses {
		o.status(st)
	}
}

func detected(msg string) event.Status {
	return event.Status{Kind: event.KindDetected, Message: msg, Protocol: protocolName}
}

// remoteAbort ends a session still waiting for an upload after the remote
// gave up. The queued upload, if any, is kept.
func (o *Orchestrator) remoteAbort() {
	o.mu.Lock()
	s := o.active
	if s == nil || s.feed != nil {
		o.mu.Unlock()
		return
	}
	o.active = nil
	o.held = nil
	s.State = StateAborted
	info := s.info()
	o.mu.Unlock()

	o.logger.Info("transfer: remote aborted the %s session", s.Role)
	metrics.TransfersTotal.WithLabelValues(s.Role.String(), "aborted").Inc()
	o.status(event.Status{
		Kind:    event.KindTransfer,
		Message: "Transfer aborted by BBS",
		Transfer: &event.Transfer{
			Direction: info.direction(),
			Cancelled: true,
		},
	})
}

// abortRun locates a ZMODEM abort in p: at least five CANs and the
// backspaces that follow them. It returns -1, -1 when there is none.
func abortRun(p []byte) (int, int) {
	i := bytes.Index(p, cancelRun)
	if i < 0 {
		return -1, -1
	}
	j := i + len(cancelRun)
	for j < len(p) && p[j] == zmodem.CAN {
		j++
	}
	for j < len(p) && p[j] == '\b' {
		j++
	}
	return i, j
}

var cancelRun = bytes.Repeat([]byte{zmodem.CAN}, 5)

// start launches the ZMODEM session for s with initial as its first input.
// Called with mu held.
func (o *Orchestrator) start(s *Session, up *Upload, initial []byte) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.feed = zmodem.NewFeed()
	s.feed.Write(initial)
	s.started = time.Now()
	s.done = make(chan struct{})

	if s.Role == zmodem.RoleSend {
		s.State = StateOffering
		s.Filename = up.Name
		s.Size = int64(len(up.Data))
	} else {
		s.State = StateReceiving
	}
	o.active = s

	cfg := zmodem.DefaultConfig()
	cfg.BlockSize = o.cfg.ChunkSize
	if cfg.BufferSize < cfg.BlockSize {
		cfg.BufferSize = cfg.BlockSize
	}
	cfg.Timeout = o.cfg.Timeout

	session := zmodem.NewSession(s.feed, gatedWriter{ctx: ctx, w: o.data},
		zmodem.WithConfig(cfg),
		zmodem.WithCallbacks(o.callbacks(s)),
		zmodem.WithLogger(o.logger),
	)
	o.logger.Info("transfer: %s session started", s.Role)
	go o.run(ctx, s, session, up)
}

func (o *Orchestrator) run(ctx context.Context, s *Session, session *zmodem.Session, up *Upload) {
	defer close(s.done)

	var err error
	if s.Role == zmodem.RoleSend {
		modTime := up.ModTime
		if modTime.IsZero() {
			modTime = time.Now()
		}
		err = session.Send(ctx, zmodem.File{
			Name:    up.Name,
			Size:    int64(len(up.Data)),
			ModTime: modTime,
			Mode:    0644,
			Reader:  bytes.NewReader(up.Data),
		})
	} else {
		err = session.Receive(ctx)
	}
	o.finish(s, err)
}

// finish retires s unless it was cancelled, reports the outcome and
// hands bytes that arrived after the session back to the display path.
func (o *Orchestrator) finish(s *Session, err error) {
	o.outMu.Lock()
	defer o.outMu.Unlock()

	o.mu.Lock()
	if o.active != s {
		o.mu.Unlock()
		return
	}
	o.active = nil
	s.cancel()
	s.feed.Close()
	left := s.feed.Drain()
	if err == nil {
		s.State = StateComplete
	} else {
		s.State = StateAborted
	}
	info := s.info()
	o.mu.Unlock()

	role := s.Role.String()
	metrics.TransferDuration.Observe(time.Since(s.started).Seconds())
	if err != nil {
		o.logger.Error("transfer: %s session failed: %v", role, err)
		metrics.TransfersTotal.WithLabelValues(role, "failed").Inc()
		o.status(event.Errorf("Transfer failed: %v", err))
	} else {
		metrics.TransfersTotal.WithLabelValues(role, "complete").Inc()
		st := event.Status{
			Kind:    event.KindTransfer,
			Message: "Transfer complete",
			Transfer: &event.Transfer{
				Direction:   info.direction(),
				Filename:    info.Filename,
				Size:        info.Size,
				Transferred: info.Transferred,
				Percent:     100,
				Complete:    true,
			},
		}
		if s.Role == zmodem.RoleSend {
			st.Message = "Sent " + info.Filename + " (" + humanize.Bytes(uint64(info.Size)) + ")"
		}
		o.status(st)
	}

	o.intercept(left)
}

// QueueUpload makes name the file offered the next time the BBS starts
// rz. A previously queued upload is replaced. When the BBS is already
// waiting, the transfer starts at once.
func (o *Orchestrator) QueueUpload(name string, data []byte) error {
	if name == "" {
		return ErrEmptyUpload
	}
	up := &Upload{Name: name, Data: data, ModTime: time.Now()}

	o.mu.Lock()
	if s := o.active; s != nil && s.State == StateDetected && s.Role == zmodem.RoleSend {
		header := o.held
		o.held = nil
		o.start(s, up, header)
		st := o.transferStatus(s, "Sending "+name)
		o.mu.Unlock()
		o.status(st)
		return nil
	}
	o.pending = up
	o.mu.Unlock()

	o.status(event.Status{
		Kind:    event.KindInfo,
		Message: "Upload queued: " + name + " (" + humanize.Bytes(uint64(len(data))) + ")",
	})
	return nil
}

// ClearQueuedUpload forgets the queued upload, if any.
func (o *Orchestrator) ClearQueuedUpload() {
	o.mu.Lock()
	o.pending = nil
	o.mu.Unlock()
}

// PendingUpload returns the name of the queued upload.
func (o *Orchestrator) PendingUpload() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil {
		return "", false
	}
	return o.pending.Name, true
}

// Cancel aborts the active or waiting session, tells the remote to stop
// and clears the queued upload. Without a session it does nothing.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	s := o.active
	if s == nil {
		o.mu.Unlock()
		return
	}
	o.active = nil
	o.pending = nil
	o.held = nil
	s.State = StateAborted
	if s.cancel != nil {
		s.cancel()
		s.feed.Close()
	}
	info := s.info()
	o.mu.Unlock()

	if _, err := o.raw.Write(zmodem.AbortSequence); err != nil {
		o.logger.Error("transfer: abort sequence: %v", err)
	}
	metrics.TransfersTotal.WithLabelValues(s.Role.String(), "cancelled").Inc()
	o.status(event.Status{
		Kind:    event.KindTransfer,
		Message: "Transfer cancelled",
		Transfer: &event.Transfer{
			Direction:   info.direction(),
			Filename:    info.Filename,
			Size:        info.Size,
			Transferred: info.Transferred,
			Percent:     info.Percent(),
			Cancelled:   true,
		},
	})
}

// Reset drops all transfer state without touching the wire. Text the
// sentry was holding back is displayed. Used when the connection goes away.
func (o *Orchestrator) Reset() {
	o.outMu.Lock()
	defer o.outMu.Unlock()
	o.mu.Lock()
	if s := o.active; s != nil && s.cancel != nil {
		s.cancel()
		s.feed.Close()
	}
	o.active = nil
	o.pending = nil
	o.held = nil
	held := o.sentry.Flush()
	o.mu.Unlock()
	o.display(held)
}

// Session returns a snapshot of the current session.
func (o *Orchestrator) Session() (Info, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return Info{}, false
	}
	return o.active.info(), true
}

// Wait blocks until the running session, if any, has returned.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	var done chan struct{}
	if o.active != nil {
		done = o.active.done
	}
	o.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) display(p []byte) {
	if len(p) == 0 {
		return
	}
	o.sink.Write(cp437.Decode(p))
}

func (o *Orchestrator) status(s event.Status) {
	o.sink.Status(s)
}

// transferStatus describes s as it starts. Called with mu held.
func (o *Orchestrator) transferStatus(s *Session, msg string) event.Status {
	info := s.info()
	return event.Status{
		Kind:    event.KindTransfer,
		Message: msg,
		Transfer: &event.Transfer{
			Direction: info.direction(),
			Filename:  info.Filename,
			Size:      info.Size,
		},
	}
}

// callbacks reports progress for s and stores downloads.
func (o *Orchestrator) callbacks(s *Session) *zmodem.Callbacks {
	var dl *download
	role := s.Role.String()

	return &zmodem.Callbacks{
		OnFilePrompt: func(name string, size int64, mode os.FileMode) (bool, error) {
			o.mu.Lock()
			if o.active == s {
				s.Filename, s.Size, s.Transferred = name, size, 0
			}
			o.mu.Unlock()
			return true, nil
		},
		OnFileCreate: func(name string, size int64, mode os.FileMode) (io.Writer, error) {
			d, err := createDownload(o.cfg.DownloadDir, name)
			if err != nil {
				o.status(event.Errorf("Cannot save %s: %v", name, err))
				return nil, err
			}
			dl = d
			return d, nil
		},
		OnFileStart: func(name string, size int64, mode os.FileMode) {
			o.mu.Lock()
			if o.active == s {
				s.State = StateTransferring
			}
			o.mu.Unlock()
		},
		OnProgress: func(name string, transferred, total int64, rate float64) {
			o.mu.Lock()
			if o.active != s {
				o.mu.Unlock()
				return
			}
			s.State = StateTransferring
			s.Filename, s.Transferred = name, transferred
			if total > 0 {
				s.Size = total
			}
			info := s.info()
			o.mu.Unlock()

			verb := "Sending "
			if s.Role == zmodem.RoleReceive {
				verb = "Receiving "
			}
			o.status(event.Status{
				Kind: event.KindTransfer,
				Message: verb + name + ": " + humanize.Bytes(uint64(transferred)) +
					" of " + humanize.Bytes(uint64(info.Size)),
				Transfer: &event.Transfer{
					Direction:   info.direction(),
					Filename:    name,
					Size:        info.Size,
					Transferred: transferred,
					Percent:     info.Percent(),
				},
			})
		},
		OnFileComplete: func(name string, n int64, d time.Duration) {
			metrics.TransferBytesTotal.WithLabelValues(role).Add(float64(n))
			if s.Role != zmodem.RoleReceive || dl == nil {
				return
			}
			dl.complete = true
			dl.onSaved = func(path string, err error) {
				if err != nil {
					o.status(event.Errorf("Cannot save %s: %v", name, err))
					return
				}
				o.logger.Info("transfer: saved %s", path)
				saved := filepath.Base(path)
				o.status(event.Status{
					Kind:    event.KindTransfer,
					Message: "Received " + saved + " (" + humanize.Bytes(uint64(n)) + ")",
					Transfer: &event.Transfer{
						Direction:   event.Download,
						Filename:    saved,
						Size:        n,
						Transferred: n,
						Percent:     100,
						Complete:    true,
					},
				})
			}
			dl = nil
		},
	}
}

// percent rounds transferred/size to a whole percentage.
func percent(transferred, size int64) int {
	if size <= 0 {
		return 0
	}
	return int(math.Round(float64(transferred) * 100 / float64(size)))
}

// gatedWriter stops passing writes once its session is cancelled.
type gatedWriter struct {
	ctx context.Context
	w   io.Writer
}

func (g gatedWriter) Write(p []byte) (int, error) {
	if err := g.ctx.Err(); err != nil {
		return 0, err
	}
	return g.w.Write(p)
}
