package integration_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkt.systems/jrepl"
	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/internal/evalgrpc"
	"pkt.systems/jrepl/internal/evalmock"
	"pkt.systems/jrepl/schema"
)

func TestSSHSessionOverEvaluatorDaemon(t *testing.T) {
	requireLong(t)
	dir, err := os.MkdirTemp("", "jrepl-it")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	socket := filepath.Join(dir, "eval.sock")

	daemon, err := jrepl.New(
		jrepl.ServerConfig{Evaluator: evalgrpc.Config{SocketPath: socket}},
		jrepl.ServerDeps{Backend: evalmock.New(evalmock.Options{RestartOnExit: true})},
		jrepl.WithEvaluatorDaemon(),
	)
	if err != nil {
		t.Fatalf("daemon: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := daemon.Start(ctx); err != nil {
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(func() { _ = daemon.Stop(context.Background()) })
	waitForFile(t, socket, 5*time.Second)

	remote := func(ctx context.Context, _ schema.SessionID) (core.Evaluator, error) {
		return evalgrpc.Dial(ctx, evalgrpc.Config{SocketPath: socket, RequestTimeout: 5 * time.Second})
	}
	ts := startSSHTestServer(t, remote)
	client := dialSSH(t, ts, "dave")
	stdin, output, session := startSSHSession(t, client)

	expectOutput(t, output, "Welcome to jrepl.", 5*time.Second)
	send(t, stdin, "System.out.println(\"via daemon\"); 6 * 7\r")
	expectOutput(t, output, "via daemon", 5*time.Second)
	expectOutput(t, output, "42", 5*time.Second)

	// Input typed while the evaluator restarts stays in the editor until
	// Enter is pressed again.
	send(t, stdin, "System.exit(3)\r")
	send(t, stdin, "\"after\" + \"exit\"")
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(output.String(), "afterexit") && time.Now().Before(deadline) {
		send(t, stdin, "\r")
		time.Sleep(100 * time.Millisecond)
	}
	expectOutput(t, output, "afterexit", time.Second)
	send(t, stdin, "/quit\r")
	waitForSessionClose(t, session)
}
