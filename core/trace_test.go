package core

import (
	"strings"
	"testing"

	"pkt.systems/jrepl/schema"
)

func TestFormatExceptionParsesLocations(t *testing.T) {
	text, links := formatException(schema.ExceptionOutcome{
		ClassName: "java.lang.IllegalStateException",
		Message:   "bad",
		StackTrace: []string{
			"at Foo.run(Foo.java:12)",
			"at sun.reflect.NativeMethodAccessorImpl.invoke0(Native Method)",
			"at Main.main(Main.java:3)",
		},
	})
	if !strings.HasPrefix(text, "java.lang.IllegalStateException: bad\n\tat Foo.run(Foo.java:12)\n") {
		t.Fatalf("unexpected text %q", text)
	}
	if !strings.Contains(text, "(Native Method)") {
		t.Fatalf("expected unparsable frame printed verbatim, got %q", text)
	}
	if len(links) != 2 {
		t.Fatalf("expected two links, got %+v", links)
	}
	first := links[0]
	if first.File != "Foo.java" || first.Line != 12 {
		t.Fatalf("unexpected link %+v", first)
	}
	runes := []rune(text)
	if got := string(runes[first.Offset : first.Offset+first.Length]); got != "Foo.java:12" {
		t.Fatalf("link does not cover location, got %q", got)
	}
}

func TestSpanOffsets(t *testing.T) {
	src := "int x\n  = ;"
	start, length := spanOffsets(src, schema.SourceSpan{StartLine: 2, StartCol: 5, EndLine: 2, EndCol: 6})
	if start != 10 || length != 1 {
		t.Fatalf("unexpected offsets start=%d len=%d", start, length)
	}
	start, length = spanOffsets(src, schema.SourceSpan{})
	if start != 0 || length != len(src) {
		t.Fatalf("expected whole source, got start=%d len=%d", start, length)
	}
}
