package schema

// SessionID identifies an orchestrator session (one console, one SSH channel).
type SessionID string

// InterpreterName identifies a named interpreter context inside the evaluator.
type InterpreterName string

// InteractionID identifies one submit-evaluate-respond cycle.
type InteractionID string

// DefaultInterpreter is the name of the interpreter created with the evaluator.
const DefaultInterpreter InterpreterName = "default"

// StyleTag is an opaque rendering hint attached to transcript text.
type StyleTag string

const (
	// StyleNone is returned by lookups that match no span.
	StyleNone StyleTag = ""
	// StyleDefault is plain transcript text such as banners and prompts.
	StyleDefault StyleTag = "default"
	// StyleSystemOut marks text written to standard output by user code.
	StyleSystemOut StyleTag = "system_out"
	// StyleSystemIn marks text read from standard input by user code.
	StyleSystemIn StyleTag = "system_in"
	// StyleSystemErr marks text written to standard error by user code.
	StyleSystemErr StyleTag = "system_err"
	// StyleError marks diagnostics produced by the REPL itself.
	StyleError StyleTag = "error"
	// StyleDebugger marks output from an attached debugger.
	StyleDebugger StyleTag = "debugger"
	// StyleObjectReturn marks object results.
	StyleObjectReturn StyleTag = "object_return"
	// StyleStringReturn marks string results.
	StyleStringReturn StyleTag = "string_return"
	// StyleNumberReturn marks numeric results.
	StyleNumberReturn StyleTag = "number_return"
	// StyleCharacterReturn marks char results.
	StyleCharacterReturn StyleTag = "character_return"
)

// StyleTags lists every non-empty style tag.
var StyleTags = []StyleTag{
	StyleDefault,
	StyleSystemOut,
	StyleSystemIn,
	StyleSystemErr,
	StyleError,
	StyleDebugger,
	StyleObjectReturn,
	StyleStringReturn,
	StyleNumberReturn,
	StyleCharacterReturn,
}

// StyleSpan annotates the transcript runes in [Start, End) with a style.
type StyleSpan struct {
	Start int
	End   int
	Style StyleTag
}

// Len returns the span length.
func (s StyleSpan) Len() int {
	return s.End - s.Start
}

// Contains reports whether offset lies inside the span.
func (s StyleSpan) Contains(offset int) bool {
	return offset >= s.Start && offset < s.End
}

// Segment is a contiguous run of transcript text sharing one style.
type Segment struct {
	Text  string
	Style StyleTag
}

// SourceSpan is a 1-based line/column range inside interaction source.
type SourceSpan struct {
	StartLine int `json:"start_line,omitempty"`
	StartCol  int `json:"start_col,omitempty"`
	EndLine   int `json:"end_line,omitempty"`
	EndCol    int `json:"end_col,omitempty"`
}

// IsZero reports whether the span carries no position.
func (s SourceSpan) IsZero() bool {
	return s == SourceSpan{}
}

// ClasspathKind distinguishes classpath entry origins.
type ClasspathKind string

const (
	// ClasspathProject is a project output directory.
	ClasspathProject ClasspathKind = "project"
	// ClasspathBuildDir is a build directory.
	ClasspathBuildDir ClasspathKind = "build_dir"
	// ClasspathProjectFiles is a loose source directory.
	ClasspathProjectFiles ClasspathKind = "project_files"
	// ClasspathExternal is a user supplied jar or directory.
	ClasspathExternal ClasspathKind = "external"
	// ClasspathExtra is an entry from configuration.
	ClasspathExtra ClasspathKind = "extra"
)

// ClasspathEntry is one location added to the evaluator classpath.
type ClasspathEntry struct {
	URL  string        `json:"url" yaml:"url"`
	Kind ClasspathKind `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// Interpreter describes a registered interpreter context.
type Interpreter struct {
	Name           InterpreterName
	Debug          bool
	EnclosingClass string
	Prompt         string
}

// ParseErrorKind classifies preprocessor failures.
type ParseErrorKind string

const (
	// ParseIncomplete means input ended in the middle of a construct.
	ParseIncomplete ParseErrorKind = "incomplete"
	// ParseSyntax is a grammar error.
	ParseSyntax ParseErrorKind = "syntax"
	// ParseLexical is a tokenizer error.
	ParseLexical ParseErrorKind = "lexical"
)

// ParseError is returned by preprocessors.
type ParseError struct {
	Kind    ParseErrorKind
	Message string
	Span    SourceSpan
}

func (e *ParseError) Error() string {
	if e == nil {
		return "parse error"
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind) + " input"
}

// Incomplete reports whether the error means more input is expected.
func (e *ParseError) Incomplete() bool {
	return e != nil && e.Kind == ParseIncomplete
}
