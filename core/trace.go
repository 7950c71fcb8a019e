package core

import (
	"regexp"
	"strconv"
	"strings"

	"pkt.systems/jrepl/schema"
)

// TraceLink points at a "(File.java:12)" location printed in the transcript.
type TraceLink struct {
	Offset int
	Length int
	File   string
	Line   int
}

var traceLocation = regexp.MustCompile(`\(([^():]+):(\d+)\)`)

// formatException renders an exception outcome as transcript text and
// returns the navigable locations relative to the start of the text.
func formatException(exc schema.ExceptionOutcome) (string, []TraceLink) {
	var b strings.Builder
	var links []TraceLink
	b.WriteString(exc.ClassName)
	if exc.Message != "" {
		b.WriteString(": ")
		b.WriteString(exc.Message)
	}
	b.WriteString("\n")
	for _, frame := range exc.StackTrace {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		b.WriteString("\t")
		lineStart := runeLen(b.String())
		b.WriteString(frame)
		b.WriteString("\n")
		match := traceLocation.FindStringSubmatchIndex(frame)
		if match == nil {
			continue
		}
		n, err := strconv.Atoi(frame[match[4]:match[5]])
		if err != nil {
			continue
		}
		links = append(links, TraceLink{
			Offset: lineStart + runeLen(frame[:match[2]]),
			Length: runeLen(frame[match[2]:match[5]]),
			File:   frame[match[2]:match[3]],
			Line:   n,
		})
	}
	return b.String(), links
}

// spanOffsets converts a 1-based line/column span into rune offsets within
// source. A zero span covers the whole source.
func spanOffsets(source string, span schema.SourceSpan) (int, int) {
	total := runeLen(source)
	if span.IsZero() {
		return 0, total
	}
	start := lineColOffset(source, span.StartLine, span.StartCol)
	end := start + 1
	if span.EndLine > 0 {
		end = lineColOffset(source, span.EndLine, span.EndCol)
	}
	if end <= start {
		end = start + 1
	}
	if end > total {
		end = total
	}
	if start > total {
		start = total
	}
	return start, end - start
}

func lineColOffset(source string, line, col int) int {
	if line < 1 {
		line = 1
	}
	if col < 1 {
		col = 1
	}
	offset := 0
	current := 1
	for _, r := range source {
		if current == line {
			break
		}
		offset++
		if r == '\n' {
			current++
		}
	}
	return offset + col - 1
}

func formatPosition(span schema.SourceSpan) string {
	if span.IsZero() {
		return ""
	}
	return " at line " + strconv.Itoa(span.StartLine) + ", column " + strconv.Itoa(span.StartCol)
}
