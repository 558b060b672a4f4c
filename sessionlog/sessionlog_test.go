package sessionlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileName(t *testing.T) {
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Date(2024, 3, 9, 14, 5, 7, 123000000, time.UTC), "session-2024-03-09T14-05-07-123Z.bin"},
		{time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC), "session-2024-03-09T14-05-07Z.bin"},
		{time.Date(2024, 3, 9, 16, 5, 7, 0, time.FixedZone("CEST", 2*3600)), "session-2024-03-09T14-05-07Z.bin"},
	}
	for _, tt := range tests {
		if got := FileName(tt.t); got != tt.want {
			t.Errorf("FileName(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}

func TestAppend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := Open(dir, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Append([]byte("Welcome\r\n")); err != nil {
		t.Fatal(err)
	}
	if err := l.Append([]byte{0xC9, 0xCD, 0xBB}); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := l.Append([]byte("late")); err != ErrClosed {
		t.Errorf("append after close: %v", err)
	}

	got, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	if want := "Welcome\r\n\xc9\xcd\xbb"; string(got) != want {
		t.Errorf("log = %q, want %q", got, want)
	}
}
