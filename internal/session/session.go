// Package session persists and maintains the credential material produced
// by a login: one Session per launcher profile, refreshed opportunistically
// and re-minted before every launch.
package session

import "time"

// Session is the durable credential record for one (profile, provider
// account) pair. It is written as a whole or not at all; the identity
// fields (Username, UUID, Owner) never change across refreshes.
type Session struct {
	AccessToken       string    `json:"accessToken"`
	RefreshToken      string    `json:"refreshToken"`
	ExpiresAt         time.Time `json:"expiresAt"`
	GameSessionToken  string    `json:"gameSessionToken"`
	GameIdentityToken string    `json:"gameIdentityToken"`
	Username          string    `json:"username"`
	UUID              string    `json:"uuid"`
	Owner             string    `json:"owner"`
}

// Valid reports whether the access token is still usable with the given
// safety margin before expiry.
func (s *Session) Valid(margin time.Duration) bool {
	return s != nil && s.AccessToken != "" && time.Now().Add(margin).Before(s.ExpiresAt)
}

// HasGameSession reports whether a game token pair is cached. The tokens
// may still have expired server-side; launch preparation always re-mints.
func (s *Session) HasGameSession() bool {
	return s != nil && s.GameSessionToken != "" && s.GameIdentityToken != ""
}

// Clone returns a copy so callers cannot mutate the stored record.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
