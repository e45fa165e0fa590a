package config

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNoActiveProfile is returned when no profile is marked active.
var ErrNoActiveProfile = errors.New("no active profile")

// Profile is one local launcher identity. Official profiles are backed by a
// real provider account; the rest are offline-only.
type Profile struct {
	ID         string `gorm:"primaryKey"` // UUID
	Name       string `gorm:"uniqueIndex"`
	IsOfficial bool   `gorm:"default:false"`
	IsActive   bool   `gorm:"default:false"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OpenProfileDB opens the sqlite profile registry and runs migrations.
func OpenProfileDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Profile{}); err != nil {
		return nil, err
	}
	return db, nil
}

// ProfileStore reads and writes the profile registry.
type ProfileStore struct {
	db *gorm.DB
}

// NewProfileStore wraps an open profile registry.
func NewProfileStore(db *gorm.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// CreateProfile registers a new profile. The first profile created becomes
// active automatically.
func (s *ProfileStore) CreateProfile(name string, official bool) (*Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("profile name must not be empty")
	}

	var count int64
	s.db.Model(&Profile{}).Count(&count)

	p := Profile{
		ID:         uuid.New().String(),
		Name:       name,
		IsOfficial: official,
		IsActive:   count == 0,
	}
	if err := s.db.Create(&p).Error; err != nil {
		return nil, fmt.Errorf("create profile %q: %w", name, err)
	}
	log.Printf("[Config] Created profile %q (official=%v, active=%v)", name, official, p.IsActive)
	return &p, nil
}

// ActiveProfile returns the profile currently marked active.
func (s *ProfileStore) ActiveProfile() (*Profile, error) {
	var p Profile
	if err := s.db.Where("is_active = ?", true).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveProfile
		}
		return nil, err
	}
	return &p, nil
}

// AllProfiles returns every registered profile, oldest first.
func (s *ProfileStore) AllProfiles() ([]Profile, error) {
	var profiles []Profile
	if err := s.db.Order("created_at").Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

// OfficialProfiles returns the profiles backed by a provider account,
// oldest first.
func (s *ProfileStore) OfficialProfiles() ([]Profile, error) {
	var profiles []Profile
	if err := s.db.Where("is_official = ?", true).Order("created_at").Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

// MarkOfficial flags a profile as backed by a provider account.
func (s *ProfileStore) MarkOfficial(name string) error {
	res := s.db.Model(&Profile{}).Where("name = ?", name).Update("is_official", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("profile %q not found", name)
	}
	return nil
}

// SetActive makes name the single active profile.
func (s *ProfileStore) SetActive(name string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Profile{}).Where("name = ?", name).Update("is_active", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("profile %q not found", name)
		}
		return tx.Model(&Profile{}).Where("name <> ?", name).Update("is_active", false).Error
	})
}

var unsafeFolderChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeProfileName maps a profile name onto a folder-safe string. The
// same mapping keys the per-profile session storage.
func SanitizeProfileName(name string) string {
	safe := unsafeFolderChars.ReplaceAllString(strings.TrimSpace(name), "_")
	safe = strings.Trim(safe, "._")
	if safe == "" {
		return "default"
	}
	return safe
}
