// Package flow drives the end-to-end login state machine: generate proof
// keys, open the browser, await the loopback callback, exchange the code,
// pick a game profile, mint a game session and publish the result.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/embercraft/launcher/internal/auth/callback"
	"github.com/embercraft/launcher/internal/auth/pkce"
	"github.com/embercraft/launcher/internal/auth/provider"
	"github.com/embercraft/launcher/internal/browser"
	"github.com/embercraft/launcher/internal/logging"
	"github.com/embercraft/launcher/internal/session"
)

// CallbackTimeout bounds the wait for the provider redirect. Federated
// sign-in behind the provider can be slow, so this is generous.
const CallbackTimeout = 15 * time.Minute

var (
	// ErrLoginInProgress is returned when a second login is started while
	// one is still running.
	ErrLoginInProgress = errors.New("a login is already in progress")
	// ErrCancelled covers both external cancellation and the callback
	// timeout. Not an error-severity event.
	ErrCancelled = errors.New("login cancelled or timed out")
)

// State is the observable position of the login flow.
type State string

const (
	StateIdle                State = "idle"
	StateKeysGenerated       State = "keys_generated"
	StateAwaitingCallback    State = "awaiting_callback"
	StateExchangingCode      State = "exchanging_code"
	StateFetchingProfile     State = "fetching_profile"
	StateCreatingGameSession State = "creating_game_session"
	StateAuthenticated       State = "authenticated"
	StateCancelled           State = "cancelled"
	StateFailed              State = "failed"
)

// ProfilePolicy picks the game profile to log in with.
type ProfilePolicy func(profiles []provider.GameProfile) provider.GameProfile

// FirstProfile takes the first profile the provider returns. The provider
// orders them; the launcher has no selection UI.
func FirstProfile(profiles []provider.GameProfile) provider.GameProfile {
	return profiles[0]
}

// SessionSink receives the finished session. Implemented by
// session.Manager.
type SessionSink interface {
	Activate(profile string, sess *session.Session) error
}

// Controller runs one login at a time against a provider client and hands
// the result to the session manager.
type Controller struct {
	client  *provider.Client
	sink    SessionSink
	profile string // launcher profile the session is stored under

	// Injectable collaborators, defaulted in New.
	openURL          func(url string) error
	listen           func(preferredPort int) (*callback.Server, error)
	generateVerifier func() (string, error)
	generateState    func(port int) (string, error)
	selectProfile    ProfilePolicy
	timeout          time.Duration

	loginMu sync.Mutex

	stateMu sync.RWMutex
	state   State
	lastErr error
}

// Option configures a Controller.
type Option func(*Controller)

// WithBrowserOpener overrides how the authorization URL is opened.
func WithBrowserOpener(open func(url string) error) Option {
	return func(c *Controller) { c.openURL = open }
}

// WithListener overrides the loopback listener factory.
func WithListener(listen func(preferredPort int) (*callback.Server, error)) Option {
	return func(c *Controller) { c.listen = listen }
}

// WithProfilePolicy overrides the game-profile selection policy.
func WithProfilePolicy(policy ProfilePolicy) Option {
	return func(c *Controller) { c.selectProfile = policy }
}

// WithCallbackTimeout overrides the redirect wait bound.
func WithCallbackTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// New builds a login controller storing sessions under the given launcher
// profile.
func New(client *provider.Client, sink SessionSink, profile string, opts ...Option) *Controller {
	c := &Controller{
		client:           client,
		sink:             sink,
		profile:          profile,
		openURL:          browser.OpenURL,
		listen:           callback.Listen,
		generateVerifier: pkce.GenerateVerifier,
		generateState:    pkce.GenerateState,
		selectProfile:    FirstProfile,
		timeout:          CallbackTimeout,
		state:            StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current flow state.
func (c *Controller) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Err returns the error that moved the flow to StateFailed, if any.
func (c *Controller) Err() error {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.lastErr
}

func (c *Controller) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

func (c *Controller) fail(attempt string, err error) error {
	c.stateMu.Lock()
	c.state = StateFailed
	c.lastErr = err
	c.stateMu.Unlock()
	log.Printf("[Auth] (%s) ❌ Login failed: %v", attempt, err)
	return err
}

func (c *Controller) cancel(attempt string, cause error) error {
	c.setState(StateCancelled)
	log.Printf("[Auth] (%s) Login cancelled: %v", attempt, cause)
	return fmt.Errorf("%w: %v", ErrCancelled, cause)
}

// Login runs the whole flow. It blocks until the session is published, the
// context is cancelled, or the callback wait times out. Only one login may
// run at a time.
func (c *Controller) Login(ctx context.Context) (*session.Session, error) {
	if !c.loginMu.TryLock() {
		return nil, ErrLoginInProgress
	}
	defer c.loginMu.Unlock()

	attempt := logging.GenerateAttemptID()
	ctx = logging.WithAttemptID(ctx, attempt)
	c.stateMu.Lock()
	c.state = StateIdle
	c.lastErr = nil
	c.stateMu.Unlock()

	// The port must exist before the state token and authorization URL
	// can be built, so the listener is bound first.
	srv, err := c.listen(0)
	if err != nil {
		return nil, c.fail(attempt, err)
	}
	defer srv.Close()

	verifier, err := c.generateVerifier()
	if err != nil {
		return nil, c.fail(attempt, err)
	}
	state, err := c.generateState(srv.Port())
	if err != nil {
		return nil, c.fail(attempt, err)
	}
	c.setState(StateKeysGenerated)

	srv.Start(state)
	redirectURI := srv.RedirectURI()
	authURL := c.client.AuthCodeURL(state, verifier, redirectURI)
	if err := c.openURL(authURL); err != nil {
		return nil, c.fail(attempt, fmt.Errorf("open browser: %w", err))
	}
	c.setState(StateAwaitingCallback)
	log.Printf("[Auth] (%s) Waiting for sign-in on port %d", attempt, srv.Port())

	var result callback.Result
	select {
	case <-ctx.Done():
		return nil, c.cancel(attempt, ctx.Err())
	case <-time.After(c.timeout):
		return nil, c.cancel(attempt, fmt.Errorf("no callback within %s", c.timeout))
	case result = <-srv.Result():
	}
	// Release the port before the token calls so an immediate retry can
	// bind fresh.
	srv.Close()

	if result.Err != nil {
		return nil, c.fail(attempt, result.Err)
	}

	c.setState(StateExchangingCode)
	tokens, err := c.client.ExchangeCode(ctx, result.Code, verifier, redirectURI)
	if err != nil {
		return nil, c.fail(attempt, err)
	}

	c.setState(StateFetchingProfile)
	data, err := c.client.FetchProfiles(ctx, tokens.AccessToken)
	if err != nil {
		return nil, c.fail(attempt, err)
	}
	profile := c.selectProfile(data.Profiles)

	c.setState(StateCreatingGameSession)
	sess := &session.Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
		Username:     profile.Username,
		UUID:         profile.UUID,
		Owner:        data.Owner,
	}
	game, err := c.client.CreateGameSession(ctx, tokens.AccessToken, profile.UUID)
	if err != nil {
		// Login still succeeds; launch preparation will mint again.
		log.Printf("[Auth] (%s) ⚠️ Game session mint failed during login: %v", attempt, err)
	} else {
		sess.GameSessionToken = game.SessionToken
		sess.GameIdentityToken = game.IdentityToken
	}

	if err := c.sink.Activate(c.profile, sess); err != nil {
		return nil, c.fail(attempt, err)
	}
	c.setState(StateAuthenticated)
	log.Printf("[Auth] (%s) ✅ Authenticated as %s", attempt, sess.Username)
	return sess, nil
}
