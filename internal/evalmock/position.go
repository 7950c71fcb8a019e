package evalmock

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dop251/goja"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"

	"pkt.systems/jrepl/schema"
)

const programName = "interaction"

// compile parses and compiles translated source. Parse errors keep their
// position, which goja.Compile drops.
func compile(translated string) (*goja.Program, error) {
	prg, err := parser.ParseFile(nil, programName, translated, 0, parser.WithDisableSourceMaps)
	if err != nil {
		return nil, err
	}
	return goja.CompileAST(prg, false)
}

// errorPosition returns where a parse or compile error points.
func errorPosition(err error) (file.Position, bool) {
	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return list[0].Position, true
	}
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) && syntax.File != nil {
		return syntax.File.Position(syntax.Offset), true
	}
	return file.Position{}, false
}

// runningPosition returns the innermost frame of the interaction that was
// executing when it stopped.
func runningPosition(stack []goja.StackFrame) (file.Position, bool) {
	for _, frame := range stack {
		pos := frame.Position()
		if pos.Line > 0 && pos.Filename == programName {
			return pos, true
		}
	}
	return file.Position{}, false
}

// sourceLines splits source into lines without their terminators.
func sourceLines(source string) []string {
	return strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n")
}

// pointSpan maps a position in translated onto source. Translation keeps
// lines intact, so the line always carries over; the column only does when
// the line was not rewritten.
func pointSpan(source, translated string, pos file.Position) schema.SourceSpan {
	orig, trans := sourceLines(source), sourceLines(translated)
	if pos.Line < 1 || pos.Line > len(orig) {
		return schema.SourceSpan{}
	}
	line := orig[pos.Line-1]
	width := utf8.RuneCountInString(line)
	col := max(pos.Column, 1)
	if pos.Line > len(trans) || trans[pos.Line-1] != line {
		col = firstColumn(line)
	}
	col = min(col, width+1)
	return schema.SourceSpan{StartLine: pos.Line, StartCol: col, EndLine: pos.Line, EndCol: min(col+1, width+1)}
}

// lineSpan covers the statement text on the line of pos.
func lineSpan(source string, pos file.Position) schema.SourceSpan {
	orig := sourceLines(source)
	if pos.Line < 1 || pos.Line > len(orig) {
		return schema.SourceSpan{}
	}
	line := strings.TrimRightFunc(orig[pos.Line-1], unicode.IsSpace)
	return schema.SourceSpan{
		StartLine: pos.Line,
		StartCol:  firstColumn(line),
		EndLine:   pos.Line,
		EndCol:    utf8.RuneCountInString(line) + 1,
	}
}

// firstColumn is the 1-based column of the first non-blank rune of line.
func firstColumn(line string) int {
	col := 1
	for _, r := range line {
		if !unicode.IsSpace(r) {
			break
		}
		col++
	}
	return col
}

// syntaxMessage strips the file and position prefix goja adds to parse
// errors; the span carries the position.
func syntaxMessage(err error) string {
	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return list[0].Message
	}
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return syntax.Message
	}
	return err.Error()
}
