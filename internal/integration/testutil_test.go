package integration_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"pkt.systems/jrepl"
	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/internal/evalmock"
	"pkt.systems/jrepl/schema"
	"pkt.systems/jrepl/sshserver"
)

func requireLong(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

type testServer struct {
	addr   string
	dir    string
	signer ssh.Signer
	server jrepl.Server
}

func mockEvaluators(context.Context, schema.SessionID) (core.Evaluator, error) {
	return evalmock.New(evalmock.Options{RestartOnExit: true}), nil
}

// startSSHTestServer serves one REPL per SSH login. The generated key is
// the only authorized key.
func startSSHTestServer(t *testing.T, factory jrepl.EvaluatorFactory) *testServer {
	t.Helper()
	dir := t.TempDir()
	signer := newTestSigner(t)
	authorized := filepath.Join(dir, "authorized_keys")
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey()))) + " tester@example\n"
	if err := os.WriteFile(authorized, []byte(line), 0o600); err != nil {
		t.Fatalf("write authorized keys: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	server, err := jrepl.New(jrepl.ServerConfig{
		Service: schema.ServiceConfig{
			StateDir:    filepath.Join(dir, "state"),
			WorkingDir:  dir,
			OutputDelay: time.Microsecond,
		},
		SSH: sshserver.Config{
			Addr:               ln.Addr().String(),
			HostKeyPath:        filepath.Join(dir, "host_key"),
			AuthorizedKeysPath: authorized,
			Theme:              "plain",
			HistoryFile:        filepath.Join(dir, "history"),
		},
	}, jrepl.ServerDeps{NewEvaluator: factory, SSHListener: ln}, jrepl.WithSSH())
	if err != nil {
		_ = ln.Close()
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := server.Start(ctx); err != nil {
		cancel()
		t.Fatalf("start: %v", err)
	}
	ts := &testServer{addr: ln.Addr().String(), dir: dir, signer: signer, server: server}
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = server.Stop(stopCtx)
		cancel()
	})
	return ts
}

func newTestSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return signer
}

func sshDial(addr, user string, signer ssh.Signer) (*ssh.Client, error) {
	return ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
}

func dialSSH(t *testing.T, ts *testServer, user string) *ssh.Client {
	t.Helper()
	client, err := sshDial(ts.addr, user, ts.signer)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func startSSHSession(t *testing.T, client *ssh.Client) (io.WriteCloser, *lockedBuffer, *ssh.Session) {
	t.Helper()
	session, err := client.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	if err := session.RequestPty("xterm", 80, 40, ssh.TerminalModes{}); err != nil {
		t.Fatal(err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		t.Fatal(err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := session.Shell(); err != nil {
		t.Fatal(err)
	}
	output := &lockedBuffer{}
	go func() {
		_, _ = io.Copy(output, stdout)
	}()
	return stdin, output, session
}

func send(t *testing.T, stdin io.Writer, text string) {
	t.Helper()
	if _, err := fmt.Fprint(stdin, text); err != nil {
		t.Fatal(err)
	}
}

func waitForSessionClose(t *testing.T, session *ssh.Session) {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()
	select {
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not close after /quit")
	case <-done:
	}
}

func expectOutput(t *testing.T, buffer *lockedBuffer, substr string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if strings.Contains(buffer.String(), substr) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %q in output: %s", substr, buffer.String())
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func waitForFile(t *testing.T, path string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", path)
}
