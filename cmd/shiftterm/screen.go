package main

import (
	"fmt"
	"io"

	"github.com/mgutz/ansi"

	"github.com/drunlade/go-shiftterm/event"
)

var (
	infoColor     = ansi.ColorFunc("cyan")
	okColor       = ansi.ColorFunc("green+b")
	errorColor    = ansi.ColorFunc("red+b")
	transferColor = ansi.ColorFunc("yellow")
)

// clearLine erases from the cursor to the end of the line.
const clearLine = "\x1b[K"

// screen writes BBS output and status lines to the user's terminal, which
// may be in raw mode, so lines end in CR LF. Progress updates overwrite
// each other on one line.
type screen struct {
	w          io.Writer
	inProgress bool
}

func newScreen(w io.Writer) *screen {
	return &screen{w: w}
}

func (s *screen) text(t string) {
	s.endProgress()
	io.WriteString(s.w, t)
}

func (s *screen) status(st event.Status) {
	line := colorFor(st)("[shiftterm] " + statusText(st))
	if isProgress(st) {
		fmt.Fprintf(s.w, "\r%s%s", line, clearLine)
		s.inProgress = true
		return
	}
	s.endProgress()
	fmt.Fprintf(s.w, "\r\n%s\r\n", line)
}

func (s *screen) endProgress() {
	if s.inProgress {
		io.WriteString(s.w, "\r\n")
		s.inProgress = false
	}
}

func isProgress(st event.Status) bool {
	t := st.Transfer
	return st.Kind == event.KindTransfer && t != nil && t.Transferred > 0 && !t.Complete && !t.Cancelled
}

// statusText is the plain text of a status line.
func statusText(st event.Status) string {
	if isProgress(st) {
		return fmt.Sprintf("%s (%d%%)", st.Message, st.Transfer.Percent)
	}
	return st.Message
}

func colorFor(st event.Status) func(string) string {
	switch st.Kind {
	case event.KindError, event.KindDisconnected:
		return errorColor
	case event.KindConnected, event.KindDetected:
		return okColor
	case event.KindTransfer:
		if st.Transfer != nil && st.Transfer.Complete {
			return okColor
		}
		return transferColor
	}
	return infoColor
}
