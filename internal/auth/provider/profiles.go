package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// GameProfile is one playable identity on the provider account.
type GameProfile struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
}

// LauncherData is the launcher-data endpoint response.
type LauncherData struct {
	Owner    string        `json:"owner"`
	Profiles []GameProfile `json:"profiles"`
}

// GameSession is a freshly minted pair of game credentials. They expire
// independently of the OAuth tokens and much sooner.
type GameSession struct {
	SessionToken  string    `json:"sessionToken"`
	IdentityToken string    `json:"identityToken"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// FetchProfiles loads the account's game profiles. An account with zero
// profiles yields ErrNoGameProfile, which is user-actionable; every other
// failure maps to ErrProfileFetchFailed or a transport error.
func (c *Client) FetchProfiles(ctx context.Context, accessToken string) (*LauncherData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch profiles: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Printf("[Auth] ⚠️ Profile endpoint returned %s: %s", resp.Status, body)
		return nil, fmt.Errorf("%w: status %d", ErrProfileFetchFailed, resp.StatusCode)
	}

	var data LauncherData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProfileFetchFailed, err)
	}
	if len(data.Profiles) == 0 {
		return nil, ErrNoGameProfile
	}
	return &data, nil
}

// CreateGameSession mints transient game credentials for one profile UUID.
func (c *Client) CreateGameSession(ctx context.Context, accessToken, profileUUID string) (*GameSession, error) {
	payload, err := json.Marshal(map[string]string{"uuid": profileUUID})
	if err != nil {
		return nil, fmt.Errorf("encode session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sessionURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create game session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Printf("[Auth] ⚠️ Session endpoint returned %s: %s", resp.Status, body)
		return nil, fmt.Errorf("%w: status %d", ErrGameSessionFailed, resp.StatusCode)
	}

	var session GameSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrGameSessionFailed, err)
	}
	return &session, nil
}
