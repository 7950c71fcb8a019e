package core

import (
	"context"
	"fmt"

	"pkt.systems/jrepl/schema"
)

// Preprocessor normalizes interaction source before dispatch. Failures are
// reported as *schema.ParseError; ParseIncomplete asks for more input.
type Preprocessor interface {
	Preprocess(ctx context.Context, source string) (string, error)
}

// PreprocessorFunc adapts a function to Preprocessor.
type PreprocessorFunc func(ctx context.Context, source string) (string, error)

// Preprocess implements Preprocessor.
func (f PreprocessorFunc) Preprocess(ctx context.Context, source string) (string, error) {
	return f(ctx, source)
}

// BalancePreprocessor checks bracket balance and literal termination. It
// does not parse Java; everything else is left to the evaluator.
type BalancePreprocessor struct{}

type openBracket struct {
	r    rune
	line int
	col  int
}

var closerFor = map[rune]rune{')': '(', ']': '[', '}': '{'}

// Preprocess implements Preprocessor.
func (BalancePreprocessor) Preprocess(_ context.Context, source string) (string, error) {
	runes := []rune(source)
	var stack []openBracket
	line, col := 1, 1
	advance := func(r rune) {
		if r == '\n' {
			line++
			col = 1
			return
		}
		col++
	}
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '/' && i+1 < len(runes) && runes[i+1] == '/':
			for i < len(runes) && runes[i] != '\n' {
				advance(runes[i])
				i++
			}
			if i < len(runes) {
				advance(runes[i])
			}
			continue
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			startLine, startCol := line, col
			advance(runes[i])
			advance(runes[i+1])
			i += 2
			closed := false
			for ; i < len(runes); i++ {
				if runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/' {
					advance(runes[i])
					advance(runes[i+1])
					i++
					closed = true
					break
				}
				advance(runes[i])
			}
			if !closed {
				return source, incomplete("unterminated comment", startLine, startCol)
			}
			continue
		case r == '"' || r == '\'':
			startLine, startCol := line, col
			advance(r)
			i++
			closed := false
			for ; i < len(runes); i++ {
				c := runes[i]
				if c == '\\' && i+1 < len(runes) {
					advance(c)
					advance(runes[i+1])
					i++
					continue
				}
				if c == '\n' {
					return source, &schema.ParseError{
						Kind:    schema.ParseLexical,
						Message: fmt.Sprintf("unterminated %s literal", literalName(r)),
						Span:    schema.SourceSpan{StartLine: startLine, StartCol: startCol, EndLine: line, EndCol: col},
					}
				}
				advance(c)
				if c == r {
					closed = true
					break
				}
			}
			if !closed {
				return source, incomplete(fmt.Sprintf("unterminated %s literal", literalName(r)), startLine, startCol)
			}
			continue
		case r == '(' || r == '[' || r == '{':
			stack = append(stack, openBracket{r: r, line: line, col: col})
		case r == ')' || r == ']' || r == '}':
			want := closerFor[r]
			if len(stack) == 0 || stack[len(stack)-1].r != want {
				return source, &schema.ParseError{
					Kind:    schema.ParseSyntax,
					Message: fmt.Sprintf("unexpected '%c'", r),
					Span:    schema.SourceSpan{StartLine: line, StartCol: col, EndLine: line, EndCol: col + 1},
				}
			}
			stack = stack[:len(stack)-1]
		case r == '#' || r == '`':
			return source, &schema.ParseError{
				Kind:    schema.ParseLexical,
				Message: fmt.Sprintf("illegal character '%c'", r),
				Span:    schema.SourceSpan{StartLine: line, StartCol: col, EndLine: line, EndCol: col + 1},
			}
		}
		advance(r)
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return source, incomplete(fmt.Sprintf("missing closing bracket for '%c'", top.r), top.line, top.col)
	}
	return source, nil
}

func incomplete(msg string, line, col int) *schema.ParseError {
	return &schema.ParseError{
		Kind:    schema.ParseIncomplete,
		Message: msg,
		Span:    schema.SourceSpan{StartLine: line, StartCol: col, EndLine: line, EndCol: col + 1},
	}
}

func literalName(quote rune) string {
	if quote == '\'' {
		return "character"
	}
	return "string"
}
