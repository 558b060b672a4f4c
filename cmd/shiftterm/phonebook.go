package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/drunlade/go-shiftterm/phonebook"
)

var entryProtocol string

var phonebookCmd = &cobra.Command{
	Use:     "phonebook",
	Short:   "Manage saved BBSes",
	Aliases: []string{"pb"},
}

var phonebookListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List phonebook entries",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		book, err := openPhonebook()
		if err != nil {
			return err
		}
		entries := book.List()

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"#", "Name", "Host", "Port", "Protocol"})
		table.SetBorder(false)
		table.SetCaption(true, fmt.Sprintf("Total: %d entries.", len(entries)))
		for i, e := range entries {
			table.Append([]string{strconv.Itoa(i), e.Name, e.Host, strconv.Itoa(e.Port), e.Protocol})
		}
		table.Render()
		return nil
	},
}

var phonebookAddCmd = &cobra.Command{
	Use:   "add <name> <host> [port]",
	Short: "Add a phonebook entry",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		book, err := openPhonebook()
		if err != nil {
			return err
		}
		e := phonebook.Entry{Name: args[0], Host: args[1], Protocol: entryProtocol}
		if len(args) == 3 {
			if e.Port, err = strconv.Atoi(args[2]); err != nil {
				return errors.Errorf("bad port %q", args[2])
			}
		}
		i, err := book.Add(e)
		if err != nil {
			return err
		}
		if err := book.Save(); err != nil {
			return err
		}
		fmt.Printf("added #%d %s\n", i, e.Name)
		return nil
	},
}

var phonebookRmCmd = &cobra.Command{
	Use:     "rm <index|name>",
	Short:   "Remove a phonebook entry",
	Aliases: []string{"remove"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		book, err := openPhonebook()
		if err != nil {
			return err
		}
		i, e, err := book.Lookup(args[0])
		if err != nil {
			return err
		}
		if err := book.Delete(i); err != nil {
			return err
		}
		if err := book.Save(); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", e.Name)
		return nil
	},
}

func init() {
	phonebookAddCmd.Flags().StringVar(&entryProtocol, "protocol", "telnet", "telnet, ssh or detect")
	phonebookCmd.AddCommand(phonebookListCmd, phonebookAddCmd, phonebookRmCmd)
}
