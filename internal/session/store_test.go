package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSessionFile(t *testing.T, path string, sess *Session) error {
	t.Helper()
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func sampleSession() *Session {
	return &Session{
		AccessToken:       "access",
		RefreshToken:      "refresh",
		ExpiresAt:         time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		GameSessionToken:  "game-session",
		GameIdentityToken: "game-identity",
		Username:          "Steve",
		UUID:              "u-1",
		Owner:             "owner-1",
	}
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	store := NewFileStore(t.TempDir())
	want := sampleSession()

	if err := store.Save("Steve", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load("Steve")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *got != *want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(t.TempDir())
	if _, err := store.Load("nobody"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestFileStore_UnknownFieldsIgnored(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	record := `{
  "accessToken": "access",
  "username": "Steve",
  "futureField": {"nested": true}
}`
	if err := os.MkdirAll(filepath.Join(dir, "Steve"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Steve", "session.json"), []byte(record), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := store.Load("Steve")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.AccessToken != "access" || got.Username != "Steve" {
		t.Fatalf("known fields lost: %+v", got)
	}
	if got.RefreshToken != "" {
		t.Fatalf("missing fields must default to empty, got %q", got.RefreshToken)
	}
}

func TestFileStore_DeleteIdempotent(t *testing.T) {
	store := NewFileStore(t.TempDir())
	if err := store.Save("Steve", sampleSession()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete("Steve"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete("Steve"); err != nil {
		t.Fatalf("second delete must be a no-op: %v", err)
	}
	if _, err := store.Load("Steve"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after delete, got %v", err)
	}
}

func TestMigrateLegacySession(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	legacy := sampleSession()
	if err := writeSessionFile(t, filepath.Join(dir, "session.json"), legacy); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}

	migrated, err := store.MigrateLegacySession("Steve")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !migrated {
		t.Fatal("expected migration to run")
	}

	got, err := store.Load("Steve")
	if err != nil {
		t.Fatalf("load migrated: %v", err)
	}
	if *got != *legacy {
		t.Fatalf("migrated session mismatch:\n got %+v\nwant %+v", got, legacy)
	}
	if _, err := os.Stat(filepath.Join(dir, "session.json")); !os.IsNotExist(err) {
		t.Fatal("legacy file must be removed after migration")
	}

	// Second run is a no-op.
	migrated, err = store.MigrateLegacySession("Steve")
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if migrated {
		t.Fatal("migration must be idempotent")
	}
}

func TestMigrateLegacySession_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	current := sampleSession()
	current.Username = "Current"
	if err := store.Save("Steve", current); err != nil {
		t.Fatalf("save: %v", err)
	}

	stale := sampleSession()
	stale.Username = "Stale"
	if err := writeSessionFile(t, filepath.Join(dir, "session.json"), stale); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}

	migrated, err := store.MigrateLegacySession("Steve")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if migrated {
		t.Fatal("migration must not run over an existing per-profile file")
	}

	got, err := store.Load("Steve")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Username != "Current" {
		t.Fatalf("per-profile record was overwritten: %+v", got)
	}
}
