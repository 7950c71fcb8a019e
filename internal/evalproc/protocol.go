package evalproc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/schema"
)

// Message types on the stdio protocol.
const (
	TypeRequest  = "request"
	TypeReply    = "reply"
	TypeCallback = "callback"
)

// Request operations.
const (
	OpInterpret           = "interpret"
	OpAddInterpreter      = "add_interpreter"
	OpAddDebugInterpreter = "add_debug_interpreter"
	OpRemoveInterpreter   = "remove_interpreter"
	OpSetActive           = "set_active_interpreter"
	OpAddClasspath        = "add_classpath"
	OpVariableAsString    = "variable_as_string"
	OpVariableClassName   = "variable_class_name"
	OpCheckExpression     = "check_expression"
	OpFieldNames          = "field_names"
	OpSetAllowAssertions  = "set_allow_assertions"
	OpSetPrivateAccess    = "set_private_access"
	OpAbort               = "abort"
)

// Message is one JSON line exchanged with the evaluator child. Requests
// flow to the child on stdin; replies and callbacks flow back on stdout.
type Message struct {
	Type string `json:"type"`
	ID   uint64 `json:"id,omitempty"`
	Op   string `json:"op,omitempty"`

	Interpreter    schema.InterpreterName `json:"interpreter,omitempty"`
	Source         string                 `json:"source,omitempty"`
	EnclosingClass string                 `json:"enclosing_class,omitempty"`
	Name           string                 `json:"name,omitempty"`
	Entry          *schema.ClasspathEntry `json:"entry,omitempty"`
	Enabled        bool                   `json:"enabled,omitempty"`

	Value      string           `json:"value,omitempty"`
	Values     []string         `json:"values,omitempty"`
	InProgress bool             `json:"in_progress,omitempty"`
	Error      *WireError       `json:"error,omitempty"`
	Callback   *schema.Callback `json:"callback,omitempty"`
}

// WireError carries a failed request across the protocol.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var wireCodes = []struct {
	code string
	err  error
}{
	{"unknown_variable", schema.ErrUnknownVariable},
	{"unknown_class", schema.ErrUnknownClass},
	{"interpreter_not_found", schema.ErrInterpreterNotFound},
	{"interpreter_exists", schema.ErrInterpreterExists},
	{"interpreter_busy", schema.ErrInterpreterBusy},
	{"invalid_request", schema.ErrInvalidRequest},
	{"evaluator_exited", schema.ErrEvaluatorExited},
}

// EncodeError converts err for a reply.
func EncodeError(err error) *WireError {
	if err == nil {
		return nil
	}
	for _, wc := range wireCodes {
		if errors.Is(err, wc.err) {
			return &WireError{Code: wc.code, Message: err.Error()}
		}
	}
	return &WireError{Code: "rejected", Message: err.Error()}
}

// DecodeError converts a reply error back into a Go error. Known codes wrap
// the matching schema sentinel.
func DecodeError(op string, we *WireError) error {
	if we == nil {
		return nil
	}
	for _, wc := range wireCodes {
		if wc.code == we.Code {
			if we.Message == "" || we.Message == wc.err.Error() {
				return wc.err
			}
			return fmt.Errorf("%w: %s", wc.err, we.Message)
		}
	}
	return &core.EvaluatorError{Kind: core.EvaluatorErrorRejected, Op: op, Message: we.Message}
}

type lineDecodeError struct {
	line []byte
	err  error
}

func (e *lineDecodeError) Error() string {
	if e == nil || e.err == nil {
		return "jsonl decode error"
	}
	return e.err.Error()
}

func (e *lineDecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// lineReader reads one Message per line, skipping blank lines.
type lineReader struct {
	reader *bufio.Reader
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{reader: bufio.NewReaderSize(r, 64*1024)}
}

func (r *lineReader) Next() (Message, error) {
	for {
		line, err := r.reader.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			return Message{}, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err != nil {
				return Message{}, err
			}
			continue
		}
		var msg Message
		if decodeErr := json.Unmarshal(line, &msg); decodeErr != nil {
			return Message{}, &lineDecodeError{line: append([]byte(nil), line...), err: decodeErr}
		}
		return msg, nil
	}
}

// lineWriter writes one Message per line. It is safe for concurrent use.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newLineWriter(w io.Writer) *lineWriter {
	return &lineWriter{w: w}
}

func (w *lineWriter) Write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.w.Write(data)
	return err
}
