package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/embercraft/launcher/internal/auth/provider"
	"github.com/embercraft/launcher/internal/config"
)

// refreshMargin is how much validity a session must have left to be handed
// out without refreshing first.
const refreshMargin = time.Minute

// ErrNoGameSession is returned by launch preparation when no game tokens
// could be minted and none are cached.
var ErrNoGameSession = errors.New("no game session available")

// LaunchPolicy decides whether a launch may proceed without game tokens.
type LaunchPolicy int

const (
	// RequireGameSession fails launch preparation when the mint fails and
	// nothing is cached.
	RequireGameSession LaunchPolicy = iota
	// AllowMissingGameSession hands the session out anyway, with empty
	// game token fields.
	AllowMissingGameSession
)

// TokenClient is the slice of the provider client the manager needs.
type TokenClient interface {
	RefreshTokens(ctx context.Context, refreshToken string) (*provider.Tokens, error)
	CreateGameSession(ctx context.Context, accessToken, profileUUID string) (*provider.GameSession, error)
}

// ProfileRegistry is the slice of the profile store the manager needs.
type ProfileRegistry interface {
	ActiveProfile() (*config.Profile, error)
	OfficialProfiles() ([]config.Profile, error)
	MarkOfficial(name string) error
}

// Manager owns the current session and serializes credential work per
// profile: overlapping refresh or mint calls for one profile queue behind
// each other, because replaying an already-rotated refresh token kills the
// session. Different profiles proceed concurrently.
type Manager struct {
	store    *FileStore
	profiles ProfileRegistry
	client   TokenClient

	mu      sync.Mutex
	current *Session
	locks   map[string]*sync.Mutex
}

// NewManager wires a session manager. It runs the legacy-session migration
// for the active profile, which is a no-op on every start after the first.
func NewManager(store *FileStore, profiles ProfileRegistry, client TokenClient) (*Manager, error) {
	m := &Manager{
		store:    store,
		profiles: profiles,
		client:   client,
		locks:    make(map[string]*sync.Mutex),
	}
	if err := m.migrateLegacy(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) migrateLegacy() error {
	active, err := m.profiles.ActiveProfile()
	if err != nil {
		if errors.Is(err, config.ErrNoActiveProfile) {
			return nil
		}
		return err
	}
	migrated, err := m.store.MigrateLegacySession(active.Name)
	if err != nil {
		return fmt.Errorf("legacy session migration: %w", err)
	}
	if migrated {
		if err := m.profiles.MarkOfficial(active.Name); err != nil {
			return fmt.Errorf("mark migrated profile official: %w", err)
		}
	}
	return nil
}

func (m *Manager) profileLock(profile string) *sync.Mutex {
	key := config.SanitizeProfileName(profile)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] == nil {
		m.locks[key] = &sync.Mutex{}
	}
	return m.locks[key]
}

// Current returns the published session, or nil when logged out.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Clone()
}

func (m *Manager) publish(sess *Session) {
	m.mu.Lock()
	m.current = sess.Clone()
	m.mu.Unlock()
}

func (m *Manager) unpublish() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
}

// Activate persists a freshly built session for a profile, marks the
// profile official and publishes the session as current.
func (m *Manager) Activate(profile string, sess *Session) error {
	lock := m.profileLock(profile)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.Save(profile, sess); err != nil {
		return err
	}
	if err := m.profiles.MarkOfficial(profile); err != nil {
		return err
	}
	m.publish(sess)
	log.Printf("[Session] ✅ Signed in as %s on profile %q", sess.Username, profile)
	return nil
}

// Logout deletes the active profile's session and clears the current one.
func (m *Manager) Logout() error {
	active, err := m.profiles.ActiveProfile()
	if err != nil {
		return err
	}
	lock := m.profileLock(active.Name)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.Delete(active.Name); err != nil {
		return err
	}
	m.unpublish()
	log.Printf("[Session] Logged out profile %q", active.Name)
	return nil
}

// EnsureValid returns the active profile's session, refreshing it when it
// expires within a minute. It never returns an expired session: a failed
// refresh clears the stored record instead of handing back stale tokens.
func (m *Manager) EnsureValid(ctx context.Context) (*Session, error) {
	active, err := m.profiles.ActiveProfile()
	if err != nil {
		return nil, err
	}

	lock := m.profileLock(active.Name)
	lock.Lock()
	defer lock.Unlock()

	return m.ensureValidLocked(ctx, active.Name, true)
}

// ensureValidLocked does the load-check-refresh dance for one profile.
// Callers hold that profile's lock. publish controls whether the result
// becomes the current session.
func (m *Manager) ensureValidLocked(ctx context.Context, profile string, publish bool) (*Session, error) {
	sess, err := m.store.Load(profile)
	if err != nil {
		return nil, err
	}

	if sess.Valid(refreshMargin) {
		if publish {
			m.publish(sess)
		}
		return sess, nil
	}

	tokens, err := m.client.RefreshTokens(ctx, sess.RefreshToken)
	if err != nil {
		if provider.IsPermanentAuthError(err) {
			log.Printf("[Session] 🔒 Refresh for profile %q permanently rejected, signing out: %v", profile, err)
		} else {
			log.Printf("[Session] ⚠️ Refresh for profile %q failed: %v", profile, err)
		}
		// Stale credentials are worse than none.
		if derr := m.store.Delete(profile); derr != nil {
			log.Printf("[Session] ⚠️ Could not clear session for %q: %v", profile, derr)
		}
		if publish {
			m.unpublish()
		}
		return nil, err
	}

	sess.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		sess.RefreshToken = tokens.RefreshToken
	}
	sess.ExpiresAt = tokens.ExpiresAt

	if err := m.store.Save(profile, sess); err != nil {
		return nil, err
	}
	if publish {
		m.publish(sess)
	}
	log.Printf("[Session] 🔄 Refreshed tokens for profile %q (expires %s)", profile, sess.ExpiresAt.Format(time.RFC3339))
	return sess, nil
}

// EnsureFreshForLaunch prepares the active session for a game launch: it
// validates or refreshes the OAuth pair, then always re-mints the game
// tokens, which expire on their own much shorter clock. A failed mint
// falls back to cached game tokens; with none cached the policy decides.
func (m *Manager) EnsureFreshForLaunch(ctx context.Context, policy LaunchPolicy) (*Session, error) {
	active, err := m.profiles.ActiveProfile()
	if err != nil {
		return nil, err
	}

	lock := m.profileLock(active.Name)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.ensureValidLocked(ctx, active.Name, true)
	if err != nil {
		return nil, err
	}

	game, err := m.client.CreateGameSession(ctx, sess.AccessToken, sess.UUID)
	if err != nil {
		if sess.HasGameSession() {
			log.Printf("[Session] ⚠️ Game session mint failed, launching on cached tokens: %v", err)
			return sess, nil
		}
		if policy == AllowMissingGameSession {
			log.Printf("[Session] ⚠️ Game session mint failed and nothing cached, launching without game tokens: %v", err)
			return sess, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrNoGameSession, err)
	}

	sess.GameSessionToken = game.SessionToken
	sess.GameIdentityToken = game.IdentityToken
	if err := m.store.Save(active.Name, sess); err != nil {
		return nil, err
	}
	m.publish(sess)
	return sess, nil
}

// FindAnyValidOfficialSession scans the official profiles for the first
// session that is valid or can be refreshed. It lets authenticated
// metadata queries work without an active login. Candidates are tried
// sequentially to keep rate limiting and logs predictable.
func (m *Manager) FindAnyValidOfficialSession(ctx context.Context) (*Session, error) {
	officials, err := m.profiles.OfficialProfiles()
	if err != nil {
		return nil, err
	}

	for _, prof := range officials {
		lock := m.profileLock(prof.Name)
		lock.Lock()
		sess, err := m.ensureValidLocked(ctx, prof.Name, false)
		lock.Unlock()

		if err != nil {
			if !errors.Is(err, ErrNoSession) {
				log.Printf("[Session] Profile %q unusable: %v", prof.Name, err)
			}
			continue
		}
		log.Printf("[Session] Using official session from profile %q", prof.Name)
		return sess, nil
	}
	return nil, ErrNoSession
}
