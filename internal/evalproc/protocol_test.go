package evalproc

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/schema"
)

func TestWireErrorsMapToSentinels(t *testing.T) {
	err := DecodeError("remove_interpreter", EncodeError(schema.ErrInterpreterNotFound))
	if !errors.Is(err, schema.ErrInterpreterNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	err = DecodeError("interpret", EncodeError(errors.New("no such method")))
	var evalErr *core.EvaluatorError
	if !errors.As(err, &evalErr) || evalErr.Kind != core.EvaluatorErrorRejected || evalErr.Op != "interpret" {
		t.Fatalf("expected rejected evaluator error, got %v", err)
	}
	if DecodeError("x", nil) != nil || EncodeError(nil) != nil {
		t.Fatalf("nil errors should stay nil")
	}
}

func TestLineReaderSkipsBlankLinesAndReportsBadJSON(t *testing.T) {
	input := "\n{\"type\":\"reply\",\"id\":4}\n\nnot json\n{\"type\":\"callback\",\"callback\":{\"kind\":\"stdout\",\"text\":\"hi\"}}\n"
	r := newLineReader(strings.NewReader(input))
	msg, err := r.Next()
	if err != nil || msg.Type != TypeReply || msg.ID != 4 {
		t.Fatalf("unexpected first message %+v err=%v", msg, err)
	}
	_, err = r.Next()
	var decodeErr *lineDecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected decode error, got %v", err)
	}
	msg, err = r.Next()
	if err != nil || msg.Callback == nil || msg.Callback.Text != "hi" {
		t.Fatalf("unexpected callback message %+v err=%v", msg, err)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestLineWriterTerminatesLines(t *testing.T) {
	var buf bytes.Buffer
	w := newLineWriter(&buf)
	if err := w.Write(Message{Type: TypeRequest, ID: 1, Op: OpInterpret, Source: "1+1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := `{"type":"request","id":1,"op":"interpret","source":"1+1"}` + "\n"
	if buf.String() != want {
		t.Fatalf("unexpected line %q", buf.String())
	}
}
