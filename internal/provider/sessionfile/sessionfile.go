// Package sessionfile persists a provider session to a local file, sealed
// with the configured cipher.
package sessionfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/edustack/edustack/internal/auth"
	"github.com/edustack/edustack/internal/crypto"
)

// File is a session file. It is safe for concurrent use within a process.
type File struct {
	path   string
	cipher *crypto.Cipher
	mu     sync.Mutex
}

// New returns a File at path. A nil cipher stores the session in plain JSON.
func New(path string, cipher *crypto.Cipher) *File {
	return &File{path: path, cipher: cipher}
}

// Path returns the file location.
func (f *File) Path() string { return f.path }

// Load returns the stored session, or nil, nil when there is none.
func (f *File) Load() (*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session file: %w", err)
	}

	plain, err := f.cipher.Open(data, []byte(f.path))
	if err != nil {
		return nil, fmt.Errorf("opening session file: %w", err)
	}

	var sess auth.Session
	if err := json.Unmarshal(plain, &sess); err != nil {
		return nil, fmt.Errorf("decoding session file: %w", err)
	}
	return &sess, nil
}

// Save replaces the stored session. The write goes through a temporary file
// so a crash never leaves a partial session behind.
func (f *File) Save(sess *auth.Session) error {
	plain, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	sealed, err := f.cipher.Seal(plain, []byte(f.path))
	if err != nil {
		return fmt.Errorf("sealing session: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("creating temp session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting session file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replacing session file: %w", err)
	}
	return nil
}

// Clear removes the stored session. Clearing a missing file is not an error.
func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}
