package transport

import (
	"context"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig describes how to log in and which terminal to ask for.
type SSHConfig struct {
	User     string
	Password string
	// KeyFile is a private key in OpenSSH or PEM format; tried before
	// password methods.
	KeyFile string
	// KnownHostsFile verifies the host key. Without it any key is accepted,
	// which is how most BBS clients behave.
	KnownHostsFile string

	TermType   string
	Cols, Rows int
	KeepAlive  time.Duration
	Timeout    time.Duration
}

func (c *SSHConfig) setDefaults() {
	if c.TermType == "" {
		c.TermType = "ansi"
	}
	if c.Cols <= 0 || c.Rows <= 0 {
		c.Cols, c.Rows = 80, 25
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Second
	}
}

func (c *SSHConfig) clientConfig() (*gossh.ClientConfig, error) {
	var auth []gossh.AuthMethod
	if c.KeyFile != "" {
		pem, err := os.ReadFile(c.KeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "read ssh key")
		}
		signer, err := gossh.ParsePrivateKey(pem)
		if err != nil {
			return nil, errors.Wrapf(err, "parse ssh key %s", c.KeyFile)
		}
		auth = append(auth, gossh.PublicKeys(signer))
	}
	if c.Password != "" {
		password := c.Password
		auth = append(auth,
			gossh.Password(password),
			gossh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	hostKey := gossh.InsecureIgnoreHostKey()
	if c.KnownHostsFile != "" {
		cb, err := knownhosts.New(c.KnownHostsFile)
		if err != nil {
			return nil, errors.Wrap(err, "load known hosts")
		}
		hostKey = cb
	}

	return &gossh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         c.Timeout,
	}, nil
}

// SSHChannel is an interactive shell on a pseudo terminal, read and
// written as one byte stream. Stderr is merged into the stream.
type SSHChannel struct {
	client  *gossh.Client
	session *gossh.Session
	stdin   io.WriteCloser
	out     *io.PipeReader

	closeOnce sync.Once
}

// DialSSH logs in to addr, requests a PTY and starts a shell.
func DialSSH(ctx context.Context, addr string, cfg SSHConfig) (*SSHChannel, error) {
	cfg.setDefaults()
	config, err := cfg.clientConfig()
	if err != nil {
		return nil, err
	}

	d := net.Dialer{KeepAlive: cfg.KeepAlive, Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", addr)
	}
	ncc, chans, reqs, err := gossh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "ssh handshake with %s", addr)
	}
	client := gossh.NewClient(ncc, chans, reqs)

	ch, err := startShell(client, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	return ch, nil
}

func startShell(client *gossh.Client, cfg SSHConfig) (*SSHChannel, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, errors.Wrap(err, "open ssh session")
	}

	modes := gossh.TerminalModes{
		gossh.ECHO:          1,
		gossh.TTY_OP_ISPEED: 38400,
		gossh.TTY_OP_OSPEED: 38400,
	}
	if err := session.RequestPty(cfg.TermType, cfg.Rows, cfg.Cols, modes); err != nil {
		session.Close()
		return nil, errors.Wrap(err, "request pty")
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, errors.Wrap(err, "stdin pipe")
	}
	pr, pw := io.Pipe()
	session.Stdout = pw
	session.Stderr = pw

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, errors.Wrap(err, "start shell")
	}

	go func() {
		err := session.Wait()
		if err == nil {
			err = io.EOF
		}
		pw.CloseWithError(err)
	}()

	return &SSHChannel{
		client:  client,
		session: session,
		stdin:   stdin,
		out:     pr,
	}, nil
}

func (c *SSHChannel) Read(p []byte) (int, error) {
	return c.out.Read(p)
}

func (c *SSHChannel) Write(p []byte) (int, error) {
	return c.stdin.Write(p)
}

// Resize tells the server the terminal changed size.
func (c *SSHChannel) Resize(cols, rows int) error {
	return errors.Wrap(c.session.WindowChange(rows, cols), "window change")
}

// Close ends the shell and the connection.
func (c *SSHChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.session.Close()
		err = c.client.Close()
		c.out.CloseWithError(io.EOF)
	})
	return err
}
