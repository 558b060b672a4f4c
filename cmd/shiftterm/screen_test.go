package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/drunlade/go-shiftterm/event"
)

func TestStatusText(t *testing.T) {
	tests := []struct {
		name string
		st   event.Status
		want string
	}{
		{"plain", event.Status{Kind: event.KindConnected, Message: "Connected to bbs:23 via telnet"}, "Connected to bbs:23 via telnet"},
		{"progress", event.Status{Kind: event.KindTransfer, Message: "Sending door.zip: 8.2 kB of 20 kB",
			Transfer: &event.Transfer{Transferred: 8192, Size: 20000, Percent: 41}}, "Sending door.zip: 8.2 kB of 20 kB (41%)"},
		{"waiting", event.Status{Kind: event.KindTransfer, Message: "Waiting for file selection",
			Transfer: &event.Transfer{Waiting: true}}, "Waiting for file selection"},
		{"complete", event.Status{Kind: event.KindTransfer, Message: "Transfer complete",
			Transfer: &event.Transfer{Transferred: 20000, Percent: 100, Complete: true}}, "Transfer complete"},
	}
	for _, tt := range tests {
		if got := statusText(tt.st); got != tt.want {
			t.Errorf("%s: %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestScreenProgressLine(t *testing.T) {
	var buf bytes.Buffer
	s := newScreen(&buf)

	progress := func(n int64, pct int) event.Status {
		return event.Status{Kind: event.KindTransfer, Message: "Sending x",
			Transfer: &event.Transfer{Transferred: n, Size: 100, Percent: pct}}
	}
	s.status(progress(50, 50))
	s.status(progress(100, 100))
	if strings.Contains(buf.String(), "\n") {
		t.Fatalf("progress moved to a new line: %q", buf.String())
	}

	s.text("menu")
	if !strings.HasSuffix(buf.String(), "\r\nmenu") {
		t.Errorf("text after progress %q", buf.String())
	}
}
