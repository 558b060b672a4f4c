package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/drunlade/go-shiftterm/connection"
	"github.com/drunlade/go-shiftterm/event"
	"github.com/drunlade/go-shiftterm/logging"
	"github.com/drunlade/go-shiftterm/metrics"
)

// commandKey is Ctrl-], the escape into command mode.
const commandKey = 0x1D

type target struct {
	host  string
	port  int
	kind  connection.Kind
	creds connection.Credentials
}

func runSession(t target) error {
	var logger logging.Logger = logging.NoopLogger{}
	if debugLog != "" {
		fl, err := logging.NewFileLogger(debugLog)
		if err != nil {
			return errors.Wrap(err, "open debug log")
		}
		defer fl.Close()
		logger = fl
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, metricsAddr); err != nil {
				logger.Error("%v", err)
			}
		}()
	}

	fd := int(os.Stdin.Fd())
	interactive := term.IsTerminal(fd)
	cols, rows := 80, 25
	if interactive {
		if w, h, err := term.GetSize(fd); err == nil {
			cols, rows = w, h
		}
	}

	q := event.NewQueue(0)
	m := connection.NewManager(q,
		connection.WithSize(cols, rows),
		connection.WithDownloadDir(downloadDir),
		connection.WithLogDir(logDir),
		connection.WithLogger(logger),
	)

	out := newScreen(os.Stdout)
	render := func(r event.Record) {
		if r.Status == nil {
			out.text(r.Text)
			return
		}
		out.status(*r.Status)
		if r.Status.Kind == event.KindDisconnected {
			cancel()
		}
	}
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for {
			select {
			case r := <-q.Records():
				render(r)
			case <-q.Done():
				for {
					select {
					case r := <-q.Records():
						render(r)
					default:
						return
					}
				}
			}
		}
	}()
	defer func() {
		q.Close()
		<-rendered
	}()

	if logSession {
		m.SetLogging(true)
	}
	if err := m.Connect(ctx, t.host, t.port, t.kind, t.creds); err != nil {
		return err
	}
	defer m.Disconnect()

	if uploadFile != "" {
		data, err := os.ReadFile(uploadFile)
		if err != nil {
			return errors.Wrap(err, "read upload")
		}
		if err := m.QueueUpload(filepath.Base(uploadFile), data); err != nil {
			return err
		}
	}

	if interactive {
		old, err := term.MakeRaw(fd)
		if err != nil {
			return errors.Wrap(err, "raw terminal mode")
		}
		defer term.Restore(fd, old)
		stopResize := watchResize(fd, m)
		defer stopResize()
	}

	go readKeys(os.Stdin, m, cancel, q)
	<-ctx.Done()
	return nil
}

// readKeys forwards keystrokes and runs Ctrl-] commands.
func readKeys(in *os.File, m *connection.Manager, quit context.CancelFunc, sink event.Sink) {
	buf := make([]byte, 256)
	command := false
	for {
		n, err := in.Read(buf)
		if err != nil {
			quit()
			return
		}
		var pending []byte
		for _, b := range buf[:n] {
			if command {
				command = false
				runCommand(b, m, quit, sink)
				continue
			}
			if b == commandKey {
				command = true
				continue
			}
			pending = append(pending, b)
		}
		if len(pending) > 0 {
			if err := m.Send(pending); err != nil {
				sink.Status(event.Errorf("%v", err))
			}
		}
	}
}

func runCommand(key byte, m *connection.Manager, quit context.CancelFunc, sink event.Sink) {
	switch key {
	case 'q', 'Q':
		quit()
	case 'c', 'C':
		m.CancelTransfer()
	case 'l', 'L':
		if err := m.SetLogging(!m.Logging()); err != nil {
			sink.Status(event.Errorf("%v", err))
		}
	case 'd', 'D':
		if err := m.RequestDownloadReady(); err != nil {
			sink.Status(event.Errorf("%v", err))
		}
	case commandKey, ']':
		m.Send([]byte{commandKey})
	default:
		sink.Status(event.Status{Kind: event.KindInfo, Message: fmt.Sprintf("Unknown command %q (q c l d ])", key)})
	}
}
