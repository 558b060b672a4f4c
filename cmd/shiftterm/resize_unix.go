//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/drunlade/go-shiftterm/connection"
)

// watchResize reports terminal size changes until the returned func is called.
func watchResize(fd int, m *connection.Manager) func() {
	winCh := make(chan os.Signal, 1)
	signal.Notify(winCh, syscall.SIGWINCH)
	go func() {
		for range winCh {
			w, h, err := term.GetSize(fd)
			if err != nil {
				continue
			}
			m.Resize(w, h)
		}
	}()
	return func() {
		signal.Stop(winCh)
		close(winCh)
	}
}
