package persist

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"pkt.systems/jrepl/schema"
	"pkt.systems/pslog"
)

func TestStoreLoadMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, ok, err := store.Load("alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatalf("expected missing snapshot")
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	snapshot := SessionSnapshot{
		History:     []string{"int x = 3;", "x + 1"},
		Classpath:   []schema.ClasspathEntry{{URL: "file:///tmp/classes", Kind: schema.ClasspathExtra}},
		Interpreter: schema.DefaultInterpreter,
		SavedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := store.Save("ssh:alice/1", snapshot); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Load("ssh:alice/1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatalf("expected snapshot")
	}
	if !reflect.DeepEqual(got, snapshot) {
		t.Fatalf("snapshot mismatch: %#v", got)
	}
	info, err := os.Stat(filepath.Join(dir, "ssh_alice_1.json"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 perms, got %v", info.Mode().Perm())
	}
}

func TestWriteFileReplacesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.jsh")
	if err := WriteFile(path, []byte("one"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteFile(path, []byte("two"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "two" {
		t.Fatalf("unexpected content %q", data)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, got %d entries", len(entries))
	}
}

func TestStoreSaveFailureIsLogged(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger := pslog.NewWithOptions(&buf, pslog.Options{Mode: pslog.ModeStructured, NoColor: true, MinLevel: pslog.InfoLevel})
	store, err := NewStoreWithLogger(dir, logger)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	blocker := filepath.Join(dir, "alice.json")
	if err := os.MkdirAll(filepath.Join(blocker, "occupied"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := store.Save("alice", SessionSnapshot{History: []string{"1"}}); err == nil {
		t.Fatalf("expected save to fail onto a directory")
	}
	if !strings.Contains(buf.String(), "state save failed") {
		t.Fatalf("expected a warning, got %q", buf.String())
	}
}
