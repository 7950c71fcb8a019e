package command

import (
	"slices"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		input string
		ok    bool
		name  string
		args  []string
	}{
		{input: "int x = 1;", ok: false},
		{input: "// note", ok: false},
		{input: "  /* block */", ok: false},
		{input: "/", ok: true, args: []string{}},
		{input: "  /Reset", ok: true, name: "reset", args: []string{}},
		{input: `/load "my session.hist" other`, ok: true, name: "load", args: []string{"my session.hist", "other"}},
		{input: `/save "unterminated`, ok: true, name: "save", args: []string{`"unterminated`}},
	}
	for _, tc := range cases {
		cmd, ok := Parse(tc.input)
		if ok != tc.ok {
			t.Fatalf("Parse(%q) ok = %v, want %v", tc.input, ok, tc.ok)
		}
		if !ok {
			continue
		}
		if cmd.Name != tc.name || !slices.Equal(cmd.Args, tc.args) {
			t.Fatalf("Parse(%q) = %+v, want name %q args %q", tc.input, cmd, tc.name, tc.args)
		}
	}
}
