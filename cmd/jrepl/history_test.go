package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pkt.systems/jrepl/core"
)

func TestWriteHistoryListIndentsContinuations(t *testing.T) {
	entries := make([]string, 10)
	for i := range entries {
		entries[i] = "x++;"
	}
	entries[9] = "if (x > 3) {\n  x = 0;\n}"
	out := &bytes.Buffer{}
	if err := writeHistoryList(out, entries); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(lines) != 12 {
		t.Fatalf("expected 12 lines, got %d: %q", len(lines), out.String())
	}
	if lines[0] != " 1  x++;" {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if lines[9] != "10  if (x > 3) {" || lines[10] != "      x = 0;" || lines[11] != "    }" {
		t.Fatalf("unexpected continuation lines %q", lines[9:])
	}
}

func TestHistoryConvertCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.history")
	if err := os.WriteFile(path, []byte("int x = 1\nx + 1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"history", "convert", path})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("convert: %v", err)
	}
	got := core.ParseHistory(out.String())
	if len(got) != 2 || got[0] != "int x = 1" || got[1] != "x + 1" {
		t.Fatalf("unexpected converted entries %q", got)
	}

	out.Reset()
	root = newRootCmd()
	root.SetOut(out)
	root.SetArgs([]string{"history", "batch", path})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if out.String() != "int x = 1;\nx + 1;\n" {
		t.Fatalf("unexpected batch %q", out.String())
	}
}
