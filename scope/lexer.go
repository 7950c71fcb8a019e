package scope

import "unicode"

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokChar
	tokComment
	tokSpace
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits Java source into tokens. Unterminated literals and comments
// run to the end of input; the evaluator reports them.
func lex(src string) []token {
	runes := []rune(src)
	var out []token
	for i := 0; i < len(runes); {
		start := i
		r := runes[i]
		kind := tokPunct
		switch {
		case unicode.IsSpace(r):
			kind = tokSpace
			for i < len(runes) && unicode.IsSpace(runes[i]) {
				i++
			}
		case isIdentStart(r):
			kind = tokIdent
			for i < len(runes) && isIdentPart(runes[i]) {
				i++
			}
		case unicode.IsDigit(r):
			kind = tokNumber
			for i < len(runes) && (isIdentPart(runes[i]) || runes[i] == '.') {
				i++
			}
		case r == '"' || r == '\'':
			kind = tokString
			if r == '\'' {
				kind = tokChar
			}
			i = scanQuoted(runes, i, r)
		case r == '/' && i+1 < len(runes) && runes[i+1] == '/':
			kind = tokComment
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			kind = tokComment
			i += 2
			for i < len(runes) && !(runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/') {
				i++
			}
			i += 2
			if i > len(runes) {
				i = len(runes)
			}
		default:
			i++
		}
		out = append(out, token{kind: kind, text: string(runes[start:i]), pos: start})
	}
	return out
}

func scanQuoted(runes []rune, i int, quote rune) int {
	i++
	for i < len(runes) {
		switch runes[i] {
		case '\\':
			i += 2
			continue
		case quote:
			return i + 1
		case '\n':
			return i
		}
		i++
	}
	return len(runes)
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

var javaKeywords = map[string]struct{}{
	"abstract": {}, "assert": {}, "boolean": {}, "break": {}, "byte": {}, "case": {},
	"catch": {}, "char": {}, "class": {}, "const": {}, "continue": {}, "default": {},
	"do": {}, "double": {}, "else": {}, "enum": {}, "extends": {}, "final": {},
	"finally": {}, "float": {}, "for": {}, "goto": {}, "if": {}, "implements": {},
	"import": {}, "instanceof": {}, "int": {}, "interface": {}, "long": {}, "native": {},
	"new": {}, "package": {}, "private": {}, "protected": {}, "public": {}, "return": {},
	"short": {}, "static": {}, "strictfp": {}, "super": {}, "switch": {}, "synchronized": {},
	"this": {}, "throw": {}, "throws": {}, "transient": {}, "try": {}, "void": {},
	"volatile": {}, "while": {}, "var": {}, "true": {}, "false": {}, "null": {},
}

func isKeyword(s string) bool {
	_, ok := javaKeywords[s]
	return ok
}
