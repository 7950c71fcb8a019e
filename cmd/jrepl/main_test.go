package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"pkt.systems/jrepl/internal/evalproc"
)

func TestArgv0Alias(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{name: "evaluator-mock", base: "jrepl-evaluator-mock", want: "evaluator-mock"},
		{name: "daemon", base: "jrepld", want: "serve"},
		{name: "evaluator daemon", base: "jrepl-evaluator", want: "evaluator"},
		{name: "windows", base: "jrepld.exe", want: "serve"},
		{name: "jrepl", base: "jrepl", want: ""},
	}
	for _, tc := range tests {
		if got := argv0Alias(tc.base); got != tc.want {
			t.Fatalf("%s: argv0Alias(%q) = %q, want %q", tc.name, tc.base, got, tc.want)
		}
	}
}

func TestApplyArgv0Alias(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{name: "empty", args: nil, want: nil},
		{name: "no-alias", args: []string{"jrepl", "repl"}, want: []string{"jrepl", "repl"}},
		{name: "mock", args: []string{"/usr/libexec/jrepl-evaluator-mock"}, want: []string{"/usr/libexec/jrepl-evaluator-mock", "evaluator-mock"}},
		{name: "daemon", args: []string{"jrepld", "-c", "cfg.yaml"}, want: []string{"jrepld", "serve", "-c", "cfg.yaml"}},
	}
	for _, tc := range tests {
		got := applyArgv0Alias(tc.args)
		if len(got) != len(tc.want) {
			t.Fatalf("%s: applyArgv0Alias length = %d, want %d", tc.name, len(got), len(tc.want))
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%s: applyArgv0Alias[%d] = %q, want %q", tc.name, i, got[i], tc.want[i])
			}
		}
	}
}

func TestRootHasSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"repl", "serve", "evaluator", "evaluator-mock", "history", "config", "version"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == nil || cmd.Name() != name {
			t.Fatalf("expected subcommand %q, got %v (err %v)", name, cmd, err)
		}
	}
}

func TestExitCodePassesSystemExitThrough(t *testing.T) {
	err := fmt.Errorf("serve: %w", &evalproc.ExitError{Status: 3})
	if got := exitCode(context.Background(), err); got != 3 {
		t.Fatalf("expected status 3, got %d", got)
	}
	if got := exitCode(context.Background(), errors.New("boom")); got != 1 {
		t.Fatalf("expected status 1, got %d", got)
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"version"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("version: %v", err)
	}
	if fields := strings.Fields(out.String()); len(fields) != 2 || !strings.HasPrefix(fields[1], "v") {
		t.Fatalf("unexpected version output %q", out.String())
	}
}
