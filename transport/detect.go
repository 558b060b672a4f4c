package transport

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Protocol is the framing a host speaks.
type Protocol int

const (
	ProtocolRaw Protocol = iota
	ProtocolTelnet
)

func (p Protocol) String() string {
	if p == ProtocolTelnet {
		return "telnet"
	}
	return "raw"
}

// DefaultDetectTimeout bounds how long Detect waits for the first bytes.
const DefaultDetectTimeout = 3 * time.Second

// Sniff classifies the first chunk read from a host: an IAC followed by
// SB, WILL, WONT, DO or DONT means Telnet.
func Sniff(p []byte) Protocol {
	for i := 0; i+1 < len(p); i++ {
		if p[i] == 255 && p[i+1] >= 250 && p[i+1] <= 254 {
			return ProtocolTelnet
		}
	}
	return ProtocolRaw
}

// Detect connects to addr, waits up to timeout for the first chunk and
// classifies it. A silent host is ProtocolRaw. The detection connection is
// always closed; the caller opens a fresh one for the session.
func Detect(ctx context.Context, addr string, timeout time.Duration) (Protocol, error) {
	if timeout <= 0 {
		timeout = DefaultDetectTimeout
	}
	conn, err := DialTCP(ctx, addr, DefaultKeepAlive)
	if err != nil {
		return ProtocolRaw, err
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return ProtocolRaw, errors.Wrap(err, "detect")
	}

	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	buf := make([]byte, 1024)
	n, _ := conn.Read(buf)
	if n > 0 {
		return Sniff(buf[:n]), nil
	}
	if ctx.Err() != nil {
		return ProtocolRaw, ctx.Err()
	}
	// a timeout or an early close both mean no Telnet
	return ProtocolRaw, nil
}
