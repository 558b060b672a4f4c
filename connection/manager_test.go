package connection

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/drunlade/go-shiftterm/event"
	"github.com/drunlade/go-shiftterm/telnet"
	"github.com/drunlade/go-shiftterm/zmodem"
)

type recorder struct {
	mu       sync.Mutex
	text     strings.Builder
	statuses []event.Status
}

func (r *recorder) Write(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text.WriteString(text)
}

func (r *recorder) Status(s event.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text.String()
}

func (r *recorder) hasStatus(kind event.Kind, msg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.statuses {
		if s.Kind == kind && (msg == "" || s.Message == msg) {
			return true
		}
	}
	return false
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// bbs serves each accepted connection with handle.
func bbs(t *testing.T, handle func(net.Conn)) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handle(conn)
			}()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

// telnetSide reads a client's Telnet stream on the BBS end.
type telnetSide struct {
	conn net.Conn
	neg  *telnet.Negotiator
}

func (s *telnetSide) Read(p []byte) (int, error) {
	for {
		n, err := s.conn.Read(p)
		if n > 0 {
			if clean := s.neg.Process(p[:n]); len(clean) > 0 {
				return copy(p, clean), nil
			}
		}
		if err != nil {
			return 0, err
		}
	}
}

func (s *telnetSide) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

var greeting = []byte{
	telnet.IAC, telnet.DO, telnet.NAWS,
	telnet.IAC, telnet.DO, telnet.TTYPE,
	telnet.IAC, telnet.DO, telnet.SGA,
}

func TestTelnetGreeting(t *testing.T) {
	Convey("Given a BBS that negotiates as soon as a client connects", t, func() {
		replies := make(chan []byte, 1)
		port := bbs(t, func(conn net.Conn) {
			conn.Write(greeting)
			buf := make([]byte, 28)
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			n, _ := io.ReadFull(conn, buf)
			replies <- buf[:n]
			conn.Write([]byte("\r\nLogin: "))
			conn.SetReadDeadline(time.Time{})
			io.Copy(io.Discard, conn)
		})

		rec := &recorder{}
		m := NewManager(rec)
		err := m.Connect(context.Background(), "127.0.0.1", port, KindTelnet, Credentials{})
		So(err, ShouldBeNil)
		defer m.Disconnect()

		So(rec.hasStatus(event.KindConnected, ""), ShouldBeTrue)

		Convey("it agrees to NAWS, TTYPE and SGA and displays nothing of the negotiation", func() {
			var got []byte
			select {
			case got = <-replies:
			case <-time.After(10 * time.Second):
			}
			want := []byte{
				telnet.IAC, telnet.WILL, telnet.NAWS, telnet.IAC, telnet.SB, telnet.NAWS, 0, 80, 0, 25, telnet.IAC, telnet.SE,
				telnet.IAC, telnet.WILL, telnet.TTYPE, telnet.IAC, telnet.SB, telnet.TTYPE, telnet.IS, 'A', 'N', 'S', 'I', telnet.IAC, telnet.SE,
				telnet.IAC, telnet.WILL, telnet.SGA,
			}
			So(got, ShouldResemble, want)
			So(eventually(func() bool { return rec.Text() != "" }), ShouldBeTrue)
			So(rec.Text(), ShouldEqual, "\r\nLogin: ")
		})
	})
}

func TestResizeSendsNAWS(t *testing.T) {
	Convey("Given a connection where the BBS asked for window sizes", t, func() {
		agreed := make(chan struct{})
		resized := make(chan []byte, 1)
		port := bbs(t, func(conn net.Conn) {
			conn.Write([]byte{telnet.IAC, telnet.DO, telnet.NAWS})
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			io.ReadFull(conn, make([]byte, 12))
			close(agreed)
			buf := make([]byte, 9)
			n, _ := io.ReadFull(conn, buf)
			resized <- buf[:n]
		})

		m := NewManager(&recorder{})
		So(m.Connect(context.Background(), "127.0.0.1", port, KindTelnet, Credentials{}), ShouldBeNil)
		defer m.Disconnect()

		Convey("a resize is reported with NAWS", func() {
			select {
			case <-agreed:
			case <-time.After(10 * time.Second):
			}
			So(m.Resize(100, 40), ShouldBeNil)

			var got []byte
			select {
			case got = <-resized:
			case <-time.After(10 * time.Second):
			}
			So(got, ShouldResemble, []byte{telnet.IAC, telnet.SB, telnet.NAWS, 0, 100, 0, 40, telnet.IAC, telnet.SE})
		})
	})
}

func TestDownloadOverTelnet(t *testing.T) {
	Convey("Given a BBS that starts sz after a line of text", t, func() {
		payload := make([]byte, 20000)
		for i := range payload {
			// plenty of 255s to exercise IAC escaping both ways
			payload[i] = byte(255 - i%7)
		}
		const banner = "Start your ZMODEM download now\r\n"
		sent := make(chan error, 1)

		port := bbs(t, func(conn net.Conn) {
			zrqinit := zmodem.HexHeader(zmodem.ZRQINIT, zmodem.Header{})
			conn.Write(append([]byte(banner), zrqinit...))

			remote := zmodem.NewSession(
				&telnetSide{conn: conn, neg: telnet.NewNegotiator(io.Discard)},
				telnet.NewDataWriter(conn),
			)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			err := remote.Send(ctx, zmodem.File{
				Name:    "DOOR.ZIP",
				Size:    int64(len(payload)),
				ModTime: time.Unix(1700000000, 0),
				Reader:  bytes.NewReader(payload),
			})
			sent <- err
			if err == nil {
				time.Sleep(50 * time.Millisecond)
				conn.Write([]byte("Goodbye\r\n"))
			}
			conn.SetReadDeadline(time.Time{})
			io.Copy(io.Discard, conn)
		})

		dir := t.TempDir()
		rec := &recorder{}
		m := NewManager(rec, WithDownloadDir(dir))
		So(m.Connect(context.Background(), "127.0.0.1", port, KindTelnet, Credentials{}), ShouldBeNil)
		defer m.Disconnect()

		Convey("the file is saved and only surrounding text reaches the display", func() {
			var err error
			select {
			case err = <-sent:
			case <-time.After(30 * time.Second):
				err = context.DeadlineExceeded
			}
			So(err, ShouldBeNil)
			So(eventually(func() bool { return rec.hasStatus(event.KindTransfer, "Transfer complete") }), ShouldBeTrue)
			So(rec.hasStatus(event.KindDetected, "BBS sending file..."), ShouldBeTrue)

			saved, err := os.ReadFile(filepath.Join(dir, "DOOR.ZIP"))
			So(err, ShouldBeNil)
			So(bytes.Equal(saved, payload), ShouldBeTrue)

			So(eventually(func() bool { return strings.HasSuffix(rec.Text(), "Goodbye\r\n") }), ShouldBeTrue)
			So(rec.Text(), ShouldEqual, banner+"Goodbye\r\n")
		})
	})
}

func TestRemoteClose(t *testing.T) {
	Convey("When the BBS hangs up", t, func() {
		port := bbs(t, func(conn net.Conn) {
			conn.Write([]byte("NO CARRIER\r\n"))
		})

		rec := &recorder{}
		m := NewManager(rec)
		So(m.Connect(context.Background(), "127.0.0.1", port, KindTelnet, Credentials{}), ShouldBeNil)

		So(eventually(func() bool { return !m.Connected() }), ShouldBeTrue)
		So(rec.hasStatus(event.KindDisconnected, "Connection closed by remote host"), ShouldBeTrue)
		So(rec.Text(), ShouldEqual, "NO CARRIER\r\n")
		So(m.Send([]byte("x")), ShouldEqual, ErrNotConnected)
	})
}

func TestSessionLog(t *testing.T) {
	Convey("Given logging is on before connecting", t, func() {
		dir := t.TempDir()
		port := bbs(t, func(conn net.Conn) {
			conn.Write([]byte{'h', 'i', telnet.IAC, telnet.IAC, '!'})
			io.Copy(io.Discard, conn)
		})

		rec := &recorder{}
		m := NewManager(rec, WithLogDir(dir))
		So(m.SetLogging(true), ShouldBeNil)
		So(m.Connect(context.Background(), "127.0.0.1", port, KindTelnet, Credentials{}), ShouldBeNil)
		So(eventually(func() bool { return strings.HasSuffix(rec.Text(), "!") }), ShouldBeTrue)
		m.Disconnect()

		Convey("the Telnet-clean stream is in a timestamped file", func() {
			entries, err := os.ReadDir(dir)
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 1)
			So(entries[0].Name(), ShouldStartWith, "session-")
			So(entries[0].Name(), ShouldEndWith, ".bin")

			data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
			So(err, ShouldBeNil)
			So(data, ShouldResemble, []byte{'h', 'i', 255, '!'})
		})
	})
}

func TestDetect(t *testing.T) {
	Convey("Connecting with detection to a Telnet BBS", t, func() {
		port := bbs(t, func(conn net.Conn) {
			conn.Write([]byte{telnet.IAC, telnet.DO, telnet.SGA})
			io.Copy(io.Discard, conn)
		})

		rec := &recorder{}
		m := NewManager(rec, WithDetectTimeout(time.Second))
		So(m.Connect(context.Background(), "127.0.0.1", port, KindDetect, Credentials{}), ShouldBeNil)
		defer m.Disconnect()

		So(rec.hasStatus(event.KindDetecting, ""), ShouldBeTrue)
		So(rec.hasStatus(event.KindDetected, "Detected telnet, using telnet"), ShouldBeTrue)
		So(rec.hasStatus(event.KindConnected, ""), ShouldBeTrue)
	})
}

func TestNotConnected(t *testing.T) {
	Convey("Without a connection", t, func() {
		rec := &recorder{}
		m := NewManager(rec)

		So(m.Connected(), ShouldBeFalse)
		So(m.Send([]byte("hello")), ShouldEqual, ErrNotConnected)
		So(m.QueueUpload("a.txt", []byte("a")), ShouldEqual, ErrNotConnected)
		So(m.RequestDownloadReady(), ShouldEqual, ErrNotConnected)
		So(m.Resize(100, 40), ShouldBeNil)
		So(m.SetLogging(true), ShouldBeNil)
		m.CancelTransfer()
		m.ClearQueuedUpload()
		m.Disconnect()

		_, active := m.Transfer()
		So(active, ShouldBeFalse)
		So(rec.hasStatus(event.KindDisconnected, ""), ShouldBeFalse)
	})
}

func TestConnectRefused(t *testing.T) {
	Convey("Connecting to a closed port", t, func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		So(err, ShouldBeNil)
		port := ln.Addr().(*net.TCPAddr).Port
		ln.Close()

		rec := &recorder{}
		m := NewManager(rec)
		err = m.Connect(context.Background(), "127.0.0.1", port, KindTelnet, Credentials{})
		So(err, ShouldNotBeNil)
		So(rec.hasStatus(event.KindError, ""), ShouldBeTrue)
		So(m.Connected(), ShouldBeFalse)
	})
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"telnet", KindTelnet, true},
		{"", KindTelnet, true},
		{"SSH", KindSSH, true},
		{"auto", KindDetect, true},
		{"rlogin", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseKind(%q) = %v, %v", tt.in, got, err)
		}
	}
}
