package sessionfile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edustack/edustack/internal/auth"
	"github.com/edustack/edustack/internal/crypto"
)

func sampleSession() *auth.Session {
	return &auth.Session{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		User:         auth.Identity{ID: "u1", Email: "t@school.edu"},
	}
}

func TestFile_LoadMissing(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "session.json"), nil)
	sess, err := f.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess != nil {
		t.Errorf("expected no session, got %+v", sess)
	}
}

func TestFile_SaveLoadClear(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	c, err := crypto.NewCipher(key)
	if err != nil {
		t.Fatalf("creating cipher: %v", err)
	}

	path := filepath.Join(t.TempDir(), "nested", "session.json")
	f := New(path, c)

	if err := f.Save(sampleSession()); err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading file: %v", err)
	}
	if bytes.Contains(raw, []byte("refresh-token")) {
		t.Error("expected session file to be encrypted")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("expected mode 0600, got %o", mode)
	}

	got, err := f.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.RefreshToken != "refresh-token" || got.User.ID != "u1" {
		t.Errorf("unexpected session %+v", got)
	}
	if !got.ExpiresAt.Equal(sampleSession().ExpiresAt) {
		t.Errorf("expected expiry %v, got %v", sampleSession().ExpiresAt, got.ExpiresAt)
	}

	if err := f.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := f.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if got, _ := f.Load(); got != nil {
		t.Error("expected no session after clear")
	}
}

func TestFile_WrongKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	k1, _ := crypto.GenerateKey()
	k2, _ := crypto.GenerateKey()
	c1, _ := crypto.NewCipher(k1)
	c2, _ := crypto.NewCipher(k2)

	if err := New(path, c1).Save(sampleSession()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := New(path, c2).Load(); err == nil {
		t.Error("expected error opening with a different key")
	}
}

func TestFile_Plaintext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	f := New(path, nil)

	if err := f.Save(sampleSession()); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if !bytes.Contains(raw, []byte(`"refresh_token":"refresh-token"`)) {
		t.Errorf("expected plain JSON, got %s", raw)
	}
}
