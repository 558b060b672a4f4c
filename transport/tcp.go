// Package transport opens the raw duplex byte channels a BBS session runs
// over: plain TCP for Telnet, and an interactive SSH channel.
package transport

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

// DefaultKeepAlive is the TCP keep-alive period used for both transports.
const DefaultKeepAlive = 15 * time.Second

// DialTCP connects to addr with TCP keep-alive enabled.
func DialTCP(ctx context.Context, addr string, keepAlive time.Duration) (net.Conn, error) {
	if keepAlive == 0 {
		keepAlive = DefaultKeepAlive
	}
	d := net.Dialer{KeepAlive: keepAlive}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", addr)
	}
	return conn, nil
}
