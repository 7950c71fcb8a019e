package core

import (
	"strings"
	"unicode"

	shlex "github.com/anmitsu/go-shlex"

	"pkt.systems/jrepl/schema"
)

const javaCommand = "java"

// isJavaCommand reports whether input starts with the "java" launcher word.
func isJavaCommand(input string) bool {
	if !strings.HasPrefix(input, javaCommand) {
		return false
	}
	rest := []rune(input[len(javaCommand):])
	return len(rest) > 0 && unicode.IsSpace(rest[0])
}

// rewriteJavaCommand turns "java Foo a b" into a call of Foo.main. Input
// that does not start with the launcher word is returned unchanged. An
// unterminated quote or trailing escape yields an incomplete parse error.
// Only unquoted whitespace separates arguments; '#' is an ordinary rune.
func rewriteJavaCommand(input string) (string, bool, error) {
	if !isJavaCommand(input) {
		return input, false, nil
	}
	words, err := shlex.Split(input, true)
	if err != nil {
		return input, false, &schema.ParseError{Kind: schema.ParseIncomplete, Message: err.Error()}
	}
	if len(words) < 2 {
		return input, false, nil
	}
	class := strings.TrimSuffix(words[1], ".class")
	var b strings.Builder
	b.WriteString(class)
	b.WriteString(".main(new String[]{")
	for i, arg := range words[2:] {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(javaStringLiteral(arg))
	}
	b.WriteString("});")
	return b.String(), true, nil
}

func javaStringLiteral(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
