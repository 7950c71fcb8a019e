package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"pkt.systems/jrepl/schema"
	"pkt.systems/pslog"
)

// SessionSnapshot captures the parts of a REPL session that survive restarts.
type SessionSnapshot struct {
	History     []string                `json:"history,omitempty"`
	Classpath   []schema.ClasspathEntry `json:"classpath,omitempty"`
	Interpreter schema.InterpreterName  `json:"interpreter,omitempty"`
	SavedAt     time.Time               `json:"saved_at"`
}

// Store persists session snapshots to disk.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Load reads a session snapshot from disk.
func (s *Store) Load(sessionID schema.SessionID) (SessionSnapshot, bool, error) {
	data, err := os.ReadFile(s.pathForSession(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.debug("state load miss", "session", sessionID)
			return SessionSnapshot{}, false, nil
		}
		s.warn("state load failed", "session", sessionID, "err", err)
		return SessionSnapshot{}, false, err
	}
	var snapshot SessionSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		s.warn("state load failed", "session", sessionID, "err", err)
		return SessionSnapshot{}, false, err
	}
	s.debug("state load ok", "session", sessionID, "history", len(snapshot.History))
	return snapshot, true, nil
}

// Save writes a session snapshot to disk.
func (s *Store) Save(sessionID schema.SessionID, snapshot SessionSnapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		s.warn("state save failed", "session", sessionID, "err", err)
		return err
	}
	if err := WriteFile(s.pathForSession(sessionID), data, 0o600); err != nil {
		s.warn("state save failed", "session", sessionID, "err", err)
		return err
	}
	if s.log != nil {
		s.log.Trace("state save ok", "session", sessionID, "history", len(snapshot.History))
	}
	return nil
}

// WriteFile atomically replaces path with data. The parent directory is
// created private to the user when missing.
func WriteFile(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".jrepl-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Chmod(perm); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *Store) debug(msg string, kv ...any) {
	if s.log != nil {
		s.log.Debug(msg, kv...)
	}
}

func (s *Store) warn(msg string, kv ...any) {
	if s.log != nil {
		s.log.Warn(msg, kv...)
	}
}

func (s *Store) pathForSession(sessionID schema.SessionID) string {
	name := sanitize(string(sessionID))
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(s.dir, name+".json")
}

// sanitize maps a session ID onto a safe file name.
func sanitize(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, value)
}
