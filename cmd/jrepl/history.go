package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/internal/appconfig"
)

func newHistoryCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and convert history files",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	resolve := func(args []string) ([]string, error) {
		if len(args) > 0 {
			return args, nil
		}
		cfg, err := appconfig.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		if cfg.Service.HistoryFile == "" {
			return nil, fmt.Errorf("no history file given and service.history_file is empty")
		}
		return []string{cfg.Service.HistoryFile}, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list [file...]",
		Short: "List the interactions stored in history files",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := resolve(args)
			if err != nil {
				return err
			}
			contents, err := readFiles(paths)
			if err != nil {
				return err
			}
			return writeHistoryList(cmd.OutOrStdout(), core.ParseHistory(contents...))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "batch [file...]",
		Short: "Print history files as one batched submission",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := resolve(args)
			if err != nil {
				return err
			}
			contents, err := readFiles(paths)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), core.BatchHistory(contents...))
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "convert [file...]",
		Short: "Rewrite history files in the versioned format",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := resolve(args)
			if err != nil {
				return err
			}
			contents, err := readFiles(paths)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), core.FormatHistory(core.ParseHistory(contents...)))
			return err
		},
	})
	return cmd
}

func readFiles(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, string(data))
	}
	return out, nil
}

// writeHistoryList numbers entries; continuation lines are indented under
// the first.
func writeHistoryList(w io.Writer, entries []string) error {
	width := len(fmt.Sprint(len(entries)))
	pad := strings.Repeat(" ", width+2)
	for i, entry := range entries {
		lines := strings.Split(entry, "\n")
		if _, err := fmt.Fprintf(w, "%*d  %s\n", width, i+1, lines[0]); err != nil {
			return err
		}
		for _, line := range lines[1:] {
			if _, err := fmt.Fprintf(w, "%s%s\n", pad, line); err != nil {
				return err
			}
		}
	}
	return nil
}
