package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/drunlade/go-shiftterm/logging"
	"github.com/drunlade/go-shiftterm/zmodem"
)

var (
	zVerbose   bool
	zQuiet     bool
	zEscape    bool
	zTimeout   int
	zOverwrite bool
)

// szCmd and rzCmd run a transfer over stdin/stdout, for use on the far end
// of a connection or to test a BBS's transfer setup.
var szCmd = &cobra.Command{
	Use:   "sz <file>...",
	Short: "Send files with ZMODEM over stdin/stdout",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSZ,
}

var rzCmd = &cobra.Command{
	Use:   "rz",
	Short: "Receive files with ZMODEM over stdin/stdout",
	Args:  cobra.NoArgs,
	RunE:  runRZ,
}

func init() {
	for _, cmd := range []*cobra.Command{szCmd, rzCmd} {
		cmd.Flags().BoolVarP(&zVerbose, "verbose", "v", false, "report progress")
		cmd.Flags().BoolVarP(&zQuiet, "quiet", "q", false, "print nothing")
		cmd.Flags().BoolVarP(&zEscape, "escape", "e", false, "escape control characters")
		cmd.Flags().IntVarP(&zTimeout, "timeout", "t", 100, "timeout in tenths of seconds")
	}
	rzCmd.Flags().BoolVarP(&zOverwrite, "overwrite", "y", false, "overwrite existing files")
	rootCmd.AddCommand(szCmd, rzCmd)
}

// stdioSession wires a session to stdin/stdout. Stdin is pumped into a
// Feed so reads can time out. A sending session opens with ZRQINIT so the
// remote terminal starts its receiver.
func stdioSession(callbacks *zmodem.Callbacks, send bool) (*zmodem.Session, func(), error) {
	var logger logging.Logger = logging.NoopLogger{}
	closeLog := func() {}
	if debugLog != "" {
		fl, err := logging.NewFileLogger(debugLog)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open debug log")
		}
		logger, closeLog = fl, func() { fl.Close() }
	}

	feed := zmodem.NewFeed()
	go func() {
		buf := make([]byte, 8192)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				feed.Write(buf[:n])
			}
			if err != nil {
				feed.Close()
				return
			}
		}
	}()

	cfg := zmodem.DefaultConfig()
	cfg.EscapeControl = zEscape
	cfg.Timeout = zTimeout
	cfg.SendZRQINIT = send
	session := zmodem.NewSession(feed, os.Stdout,
		zmodem.WithConfig(cfg),
		zmodem.WithCallbacks(callbacks),
		zmodem.WithLogger(logger),
	)
	return session, closeLog, nil
}

func progressCallbacks() *zmodem.Callbacks {
	return &zmodem.Callbacks{
		OnProgress: func(filename string, transferred, total int64, rate float64) {
			if zQuiet || !zVerbose {
				return
			}
			percent := float64(0)
			if total > 0 {
				percent = float64(transferred) / float64(total) * 100
			}
			fmt.Fprintf(os.Stderr, "\r%s: %.1f%% (%s/s)", filename, percent, humanize.Bytes(uint64(rate)))
		},
		OnFileComplete: func(filename string, n int64, d time.Duration) {
			if zQuiet {
				return
			}
			if zVerbose {
				fmt.Fprintf(os.Stderr, "\nCompleted: %s (%s in %v)\n", filename, humanize.Bytes(uint64(n)), d.Round(time.Millisecond))
				return
			}
			fmt.Fprintf(os.Stderr, "%s\n", filename)
		},
	}
}

func runSZ(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var files []zmodem.File
	for _, path := range args {
		f, c, err := zmodem.OpenFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
			continue
		}
		defer c.Close()
		files = append(files, f)
	}
	if len(files) == 0 {
		return errors.New("no files to send")
	}

	session, closeLog, err := stdioSession(progressCallbacks(), true)
	if err != nil {
		return err
	}
	defer closeLog()
	return session.Send(ctx, files...)
}

func runRZ(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	callbacks := progressCallbacks()
	callbacks.OnFilePrompt = func(filename string, size int64, mode os.FileMode) (bool, error) {
		name := filepath.Base(filename)
		if _, err := os.Stat(name); err == nil && !zOverwrite {
			if !zQuiet {
				fmt.Fprintf(os.Stderr, "Skipping %s (exists)\n", name)
			}
			return false, nil
		}
		return true, nil
	}
	callbacks.OnFileCreate = func(filename string, size int64, mode os.FileMode) (io.Writer, error) {
		perm := mode.Perm()
		if perm == 0 {
			perm = 0644
		}
		return os.OpenFile(filepath.Base(filename), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	}

	session, closeLog, err := stdioSession(callbacks, false)
	if err != nil {
		return err
	}
	defer closeLog()
	return session.Receive(ctx)
}
