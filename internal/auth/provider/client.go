// Package provider talks to the identity provider: authorization-code and
// refresh-token grants against the token endpoint, plus the launcher-data
// and game-session APIs.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/embercraft/launcher/internal/auth/pkce"
	"github.com/embercraft/launcher/internal/config"
)

const requestTimeout = 30 * time.Second

// Protocol failures (non-2xx from the provider). The raw status and body
// are logged, never surfaced to the user.
var (
	ErrAuthExchangeFailed = errors.New("authorization code exchange rejected")
	ErrAuthRefreshFailed  = errors.New("token refresh rejected")
	ErrProfileFetchFailed = errors.New("profile fetch rejected")
	ErrGameSessionFailed  = errors.New("game session request rejected")
)

// ErrNoGameProfile is the recoverable "account owns no game profile"
// condition, distinct from any transport or protocol failure.
var ErrNoGameProfile = errors.New("account has no game profile")

// Tokens is the result of an exchange or refresh. ExpiresAt is absolute,
// computed at receipt time.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Client is the fixed provider contract for one install. It is a public
// OAuth client: PKCE instead of a client secret.
type Client struct {
	oauth      *oauth2.Config
	httpClient *http.Client

	profileURL string
	sessionURL string
}

// New builds a Client from the configured endpoint set.
func New(ep config.Endpoints) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID: ep.ClientID,
			Scopes:   ep.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  ep.AuthEndpoint,
				TokenURL: ep.TokenEndpoint,
			},
		},
		httpClient: &http.Client{Timeout: requestTimeout},
		profileURL: ep.ProfileEndpoint,
		sessionURL: ep.SessionEndpoint,
	}
}

// AuthCodeURL composes the browser navigation target for one login
// attempt: S256 challenge, offline access, all values percent-encoded.
func (c *Client) AuthCodeURL(state, verifier, redirectURI string) string {
	cfg := *c.oauth
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("code_challenge", pkce.Challenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeCode redeems an authorization code. Codes are single-use by
// provider contract; callers must not retry with the same code.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier, redirectURI string) (*Tokens, error) {
	cfg := *c.oauth
	cfg.RedirectURL = redirectURI

	tok, err := cfg.Exchange(c.withHTTPClient(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, classifyTokenError("exchange", ErrAuthExchangeFailed, err)
	}
	return tokensFromOAuth(tok, ""), nil
}

// RefreshTokens redeems a refresh token for a fresh token pair. When the
// provider omits a rotated refresh token, the prior one is carried over.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (*Tokens, error) {
	src := c.oauth.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyTokenError("refresh", ErrAuthRefreshFailed, err)
	}
	return tokensFromOAuth(tok, refreshToken), nil
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func tokensFromOAuth(tok *oauth2.Token, priorRefresh string) *Tokens {
	t := &Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if t.RefreshToken == "" {
		t.RefreshToken = priorRefresh
	}
	return t
}

// classifyTokenError maps provider rejections onto the matching sentinel
// and leaves transport errors (DNS, timeout, reset) untouched so callers
// can decide to retry.
func classifyTokenError(op string, sentinel error, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		log.Printf("[Auth] ⚠️ Token endpoint rejected %s: %s %s", op, re.Response.Status, re.Body)
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return fmt.Errorf("%s tokens: %w", op, err)
}

// IsPermanentAuthError reports whether a refresh failure means the stored
// credentials are gone for good and the user must log in again.
func IsPermanentAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
