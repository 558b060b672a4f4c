package main

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/drunlade/go-shiftterm/connection"
)

var (
	useSSH      bool
	useDetect   bool
	sshUser     string
	sshPassword string
	sshKey      string
	knownHosts  string
	uploadFile  string
	logSession  bool
	logDir      string
	downloadDir string
)

var connectCmd = &cobra.Command{
	Use:   "connect <host> [port]",
	Short: "Connect to a BBS",
	Long: `Connect to a BBS over Telnet (the default) or SSH.

Press Ctrl-] for command mode, then:
  q  quit
  c  cancel the running transfer
  l  toggle the session log
  d  announce that downloads are armed
  ]  send a literal Ctrl-]

Examples:
  shiftterm connect bbs.shift-bits.com 2003
  shiftterm connect bbs.example.com --ssh --user guest
  shiftterm connect bbs.example.com --upload door.zip`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConnect,
}

var dialCmd = &cobra.Command{
	Use:   "dial <index|name>",
	Short: "Connect to a phonebook entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runDial,
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&sshUser, "user", "u", "", "SSH user name")
	cmd.Flags().StringVarP(&sshPassword, "password", "p", "", "SSH password (or SSH_PASSWORD)")
	cmd.Flags().StringVar(&sshKey, "key", "", "SSH private key file")
	cmd.Flags().StringVar(&knownHosts, "known-hosts", "", "verify SSH host keys against this file")
	cmd.Flags().StringVar(&uploadFile, "upload", "", "file to send when the BBS starts rz")
	cmd.Flags().BoolVar(&logSession, "log", false, "record the session to a file")
	cmd.Flags().StringVar(&logDir, "log-dir", "logs", "directory for session logs")
	cmd.Flags().StringVar(&downloadDir, "download-dir", ".", "directory for received files")
}

func init() {
	connectCmd.Flags().BoolVar(&useSSH, "ssh", false, "connect with SSH instead of Telnet")
	connectCmd.Flags().BoolVar(&useDetect, "detect", false, "sniff the host banner before connecting with Telnet")
	addSessionFlags(connectCmd)
	addSessionFlags(dialCmd)
}

func credentials() connection.Credentials {
	password := sshPassword
	if password == "" {
		password = os.Getenv("SSH_PASSWORD")
	}
	return connection.Credentials{
		User:           sshUser,
		Password:       password,
		KeyFile:        sshKey,
		KnownHostsFile: knownHosts,
	}
}

func runConnect(cmd *cobra.Command, args []string) error {
	kind := connection.KindTelnet
	switch {
	case useSSH && useDetect:
		return errors.New("--ssh and --detect are exclusive")
	case useSSH:
		kind = connection.KindSSH
	case useDetect:
		kind = connection.KindDetect
	}

	port := 0
	if len(args) == 2 {
		p, err := strconv.Atoi(args[1])
		if err != nil || p <= 0 || p > 65535 {
			return errors.Errorf("bad port %q", args[1])
		}
		port = p
	}
	return runSession(target{host: args[0], port: port, kind: kind, creds: credentials()})
}

func runDial(cmd *cobra.Command, args []string) error {
	book, err := openPhonebook()
	if err != nil {
		return err
	}
	_, entry, err := book.Lookup(args[0])
	if err != nil {
		return err
	}
	kind, err := connection.ParseKind(entry.Protocol)
	if err != nil {
		return err
	}
	return runSession(target{host: entry.Host, port: entry.Port, kind: kind, creds: credentials()})
}
