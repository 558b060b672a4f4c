//go:build windows

package main

import "github.com/drunlade/go-shiftterm/connection"

// watchResize is a no-op; Windows consoles have no SIGWINCH.
func watchResize(fd int, m *connection.Manager) func() {
	return func() {}
}
