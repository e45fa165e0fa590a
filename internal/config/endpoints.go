// Package config holds the launcher's persisted configuration: the profile
// registry backed by sqlite and the provider endpoint set loaded from yaml.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default provider contract. Values can be overridden per install via
// launcher.yaml or the LAUNCHER_* environment variables.
const (
	DefaultAuthEndpoint    = "https://auth.embercraft.net/oauth2/authorize"
	DefaultTokenEndpoint   = "https://auth.embercraft.net/oauth2/token"
	DefaultProfileEndpoint = "https://api.embercraft.net/launcher/data"
	DefaultSessionEndpoint = "https://api.embercraft.net/game/session"
	DefaultClientID        = "embercraft-launcher"
)

// DefaultScopes are requested on every login.
var DefaultScopes = []string{"openid", "offline", "game.profile", "game.session"}

// Endpoints is the fixed provider contract for one install.
type Endpoints struct {
	AuthEndpoint    string   `yaml:"auth_endpoint"`
	TokenEndpoint   string   `yaml:"token_endpoint"`
	ProfileEndpoint string   `yaml:"profile_endpoint"`
	SessionEndpoint string   `yaml:"session_endpoint"`
	ClientID        string   `yaml:"client_id"`
	Scopes          []string `yaml:"scopes"`
}

// DefaultEndpoints returns the built-in provider contract.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		AuthEndpoint:    DefaultAuthEndpoint,
		TokenEndpoint:   DefaultTokenEndpoint,
		ProfileEndpoint: DefaultProfileEndpoint,
		SessionEndpoint: DefaultSessionEndpoint,
		ClientID:        DefaultClientID,
		Scopes:          append([]string(nil), DefaultScopes...),
	}
}

// LoadEndpoints builds the endpoint set: defaults, then the yaml file at
// path (ignored when absent), then environment overrides.
func LoadEndpoints(path string) (Endpoints, error) {
	ep := DefaultEndpoints()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &ep); err != nil {
				return Endpoints{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Defaults apply.
		default:
			return Endpoints{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	applyEnvOverrides(&ep)

	if err := ep.validate(); err != nil {
		return Endpoints{}, err
	}
	return ep, nil
}

func applyEnvOverrides(ep *Endpoints) {
	if v := strings.TrimSpace(os.Getenv("LAUNCHER_AUTH_ENDPOINT")); v != "" {
		ep.AuthEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("LAUNCHER_TOKEN_ENDPOINT")); v != "" {
		ep.TokenEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("LAUNCHER_PROFILE_ENDPOINT")); v != "" {
		ep.ProfileEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("LAUNCHER_SESSION_ENDPOINT")); v != "" {
		ep.SessionEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("LAUNCHER_CLIENT_ID")); v != "" {
		ep.ClientID = v
	}
	if v := strings.TrimSpace(os.Getenv("LAUNCHER_SCOPES")); v != "" {
		ep.Scopes = strings.Fields(v)
	}
}

func (ep Endpoints) validate() error {
	for name, raw := range map[string]string{
		"auth_endpoint":    ep.AuthEndpoint,
		"token_endpoint":   ep.TokenEndpoint,
		"profile_endpoint": ep.ProfileEndpoint,
		"session_endpoint": ep.SessionEndpoint,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s %q is not an absolute URL", name, raw)
		}
	}
	if strings.TrimSpace(ep.ClientID) == "" {
		return fmt.Errorf("client_id must not be empty")
	}
	if len(ep.Scopes) == 0 {
		return fmt.Errorf("at least one scope is required")
	}
	return nil
}
