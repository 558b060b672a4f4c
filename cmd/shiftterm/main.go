// Command shiftterm is a terminal client for Telnet and SSH bulletin board
// systems with in-band ZMODEM transfers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/drunlade/go-shiftterm/phonebook"
)

const versionString = "0.1.0"

var (
	phonebookPath string
	debugLog      string
	metricsAddr   string

	rootCmd = &cobra.Command{
		Use:           "shiftterm",
		Short:         "Telnet/SSH BBS terminal with ZMODEM",
		Version:       versionString,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&phonebookPath, "phonebook", "", "phonebook file (default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&debugLog, "debug-log", "", "write protocol diagnostics to this file")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(dialCmd)
	rootCmd.AddCommand(phonebookCmd)
}

func openPhonebook() (*phonebook.Book, error) {
	path := phonebookPath
	if path == "" {
		var err error
		if path, err = phonebook.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return phonebook.Load(path)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "shiftterm: %v\n", err)
		os.Exit(1)
	}
}
