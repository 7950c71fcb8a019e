package evalgrpc

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/internal/evalmock"
	"pkt.systems/jrepl/schema"
)

type callbackRecorder chan schema.Callback

func (r callbackRecorder) Deliver(cb schema.Callback) {
	r <- cb
}

func (r callbackRecorder) expect(t *testing.T, kind schema.CallbackKind) schema.Callback {
	t.Helper()
	select {
	case cb := <-r:
		if cb.Kind != kind {
			t.Fatalf("expected %s, got %+v", kind, cb)
		}
		return cb
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", kind)
		return schema.Callback{}
	}
}

func startServer(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "jrepl-grpc")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	socketPath := filepath.Join(dir, "eval.sock")
	srv := NewServer(Config{SocketPath: socketPath}, evalmock.New(evalmock.Options{RestartOnExit: true}))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
			t.Errorf("server did not stop")
		}
	})
	waitForSocketReady(t, socketPath, 2*time.Second)
	return socketPath
}

func waitForSocketReady(t *testing.T, path string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", path)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s not ready", path)
}

func TestClientRoundTrip(t *testing.T) {
	socketPath := startServer(t)
	client, err := Dial(context.Background(), Config{SocketPath: socketPath})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	ctx := context.Background()
	rec := make(callbackRecorder, 32)
	if err := client.Start(ctx, rec, core.ResetRequest{WorkingDir: t.TempDir(), DebugPort: 5005}); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.expect(t, schema.CallbackReady)

	if err := client.Interpret(ctx, "int x = 20;"); err != nil {
		t.Fatalf("interpret: %v", err)
	}
	rec.expect(t, schema.CallbackVoid)
	if err := client.Interpret(ctx, `System.out.println("hi"); x + 22`); err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if cb := rec.expect(t, schema.CallbackStdout); cb.Text != "hi\n" {
		t.Fatalf("unexpected stdout %+v", cb)
	}
	if cb := rec.expect(t, schema.CallbackResult); cb.Text != "42" || cb.Style != schema.StyleNumberReturn {
		t.Fatalf("unexpected result %+v", cb)
	}

	if value, err := client.VariableAsString(ctx, "x"); err != nil || value != "20" {
		t.Fatalf("unexpected value %q err=%v", value, err)
	}
	if _, err := client.VariableClassName(ctx, "missing"); !errors.Is(err, schema.ErrUnknownVariable) {
		t.Fatalf("expected unknown variable, got %v", err)
	}
	if err := client.AddInterpreter(ctx, "worker"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := client.AddInterpreter(ctx, "worker"); !errors.Is(err, schema.ErrInterpreterExists) {
		t.Fatalf("expected exists, got %v", err)
	}
	if busy, err := client.SetActiveInterpreter(ctx, "worker"); err != nil || busy {
		t.Fatalf("unexpected switch busy=%v err=%v", busy, err)
	}
	if err := client.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestClientSeesSystemExitRestart(t *testing.T) {
	socketPath := startServer(t)
	client, err := Dial(context.Background(), Config{SocketPath: socketPath})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	rec := make(callbackRecorder, 32)
	if err := client.Start(context.Background(), rec, core.ResetRequest{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.expect(t, schema.CallbackReady)
	if err := client.Interpret(context.Background(), "System.exit(3);"); err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if cb := rec.expect(t, schema.CallbackSystemExit); cb.Status != 3 {
		t.Fatalf("unexpected exit %+v", cb)
	}
	rec.expect(t, schema.CallbackResetting)
	rec.expect(t, schema.CallbackReady)
}

func TestSecondClientReplacesFirst(t *testing.T) {
	socketPath := startServer(t)
	first, err := Dial(context.Background(), Config{SocketPath: socketPath})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer first.Close()
	firstRec := make(callbackRecorder, 32)
	if err := first.Start(context.Background(), firstRec, core.ResetRequest{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	firstRec.expect(t, schema.CallbackReady)

	second, err := Dial(context.Background(), Config{SocketPath: socketPath})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer second.Close()
	secondRec := make(callbackRecorder, 32)
	if err := second.Start(context.Background(), secondRec, core.ResetRequest{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	secondRec.expect(t, schema.CallbackReady)
	firstRec.expect(t, schema.CallbackExited)
}

func TestDialRequiresSocket(t *testing.T) {
	if _, err := Dial(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing socket path")
	}
}
