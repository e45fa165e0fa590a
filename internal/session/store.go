package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/embercraft/launcher/internal/config"
)

// ErrNoSession is returned when a profile has no persisted session.
var ErrNoSession = errors.New("no session stored")

const sessionFileName = "session.json"

// FileStore keeps one human-diffable session.json per profile folder under
// its root. Unknown fields in a record are ignored on read and missing
// fields default to empty, so the schema can grow in both directions.
type FileStore struct {
	root string
}

// NewFileStore returns a store rooted at dir. The directory is created
// lazily on the first Save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

func (s *FileStore) profilePath(profile string) string {
	return filepath.Join(s.root, config.SanitizeProfileName(profile), sessionFileName)
}

// legacyPath is the pre-migration shared session file at the store root.
func (s *FileStore) legacyPath() string {
	return filepath.Join(s.root, sessionFileName)
}

// Load reads the session for a profile. ErrNoSession when absent.
func (s *FileStore) Load(profile string) (*Session, error) {
	data, err := os.ReadFile(s.profilePath(profile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("read session for %q: %w", profile, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("parse session for %q: %w", profile, err)
	}
	return &sess, nil
}

// Save writes the full session record for a profile.
func (s *FileStore) Save(profile string, sess *Session) error {
	dir := filepath.Dir(s.profilePath(profile))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session folder for %q: %w", profile, err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session for %q: %w", profile, err)
	}
	if err := os.WriteFile(s.profilePath(profile), data, 0o600); err != nil {
		return fmt.Errorf("write session for %q: %w", profile, err)
	}
	return nil
}

// Delete removes the session record for a profile. Deleting a profile
// without one is not an error.
func (s *FileStore) Delete(profile string) error {
	err := os.Remove(s.profilePath(profile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete session for %q: %w", profile, err)
	}
	return nil
}

// MigrateLegacySession moves the pre-profile shared session file into the
// given profile's folder. It is a no-op when there is no legacy file or
// the profile already has its own record, so running it on every start is
// safe. Returns true when a migration actually happened.
func (s *FileStore) MigrateLegacySession(profile string) (bool, error) {
	legacy, err := os.ReadFile(s.legacyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read legacy session: %w", err)
	}

	if _, err := os.Stat(s.profilePath(profile)); err == nil {
		// Already migrated; the stray legacy file stays untouched rather
		// than risk clobbering a newer per-profile record.
		return false, nil
	}

	var sess Session
	if err := json.Unmarshal(legacy, &sess); err != nil {
		return false, fmt.Errorf("parse legacy session: %w", err)
	}
	if err := s.Save(profile, &sess); err != nil {
		return false, err
	}
	if err := os.Remove(s.legacyPath()); err != nil {
		return false, fmt.Errorf("remove legacy session: %w", err)
	}
	log.Printf("[Session] Migrated legacy session into profile %q", profile)
	return true, nil
}
