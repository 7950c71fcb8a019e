package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/jrepl/internal/version"
)

func newVersionCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Read()
			if verbose {
				line := info.String()
				if info.Revision != "" {
					line += " rev " + info.Revision
					if info.Dirty {
						line += "+dirty"
					}
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), line)
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", info.Module, version.Current())
			return err
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include go version and revision")
	return cmd
}
