package sshserver

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
)

// AuthorizedKeys is the set of public keys allowed to log in, read from an
// OpenSSH authorized_keys file. Options and comments are ignored.
type AuthorizedKeys struct {
	path string

	mu   sync.RWMutex
	keys map[string]string
}

// LoadAuthorizedKeys reads path.
func LoadAuthorizedKeys(path string) (*AuthorizedKeys, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ssh authorized keys path is required")
	}
	a := &AuthorizedKeys{path: path}
	if err := a.Reload(); err != nil {
		return nil, err
	}
	return a, nil
}

// Reload re-reads the file, replacing the key set.
func (a *AuthorizedKeys) Reload() error {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return fmt.Errorf("read authorized keys: %w", err)
	}
	keys := make(map[string]string)
	rest := bytes.TrimSpace(data)
	line := 0
	for len(rest) > 0 {
		line++
		key, comment, _, next, err := ssh.ParseAuthorizedKey(rest)
		if err != nil {
			// ParseAuthorizedKey skips unparsable lines itself; an error
			// means nothing parsable is left.
			if len(keys) == 0 {
				return fmt.Errorf("parse authorized keys: %w", err)
			}
			break
		}
		keys[string(key.Marshal())] = comment
		rest = next
	}
	a.mu.Lock()
	a.keys = keys
	a.mu.Unlock()
	return nil
}

// Len returns the number of keys.
func (a *AuthorizedKeys) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.keys)
}

// Allows reports whether key is authorized, with the comment it was listed with.
func (a *AuthorizedKeys) Allows(key ssh.PublicKey) (string, bool) {
	if a == nil || key == nil {
		return "", false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	comment, ok := a.keys[string(key.Marshal())]
	return comment, ok
}
