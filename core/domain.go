package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrEndpointNotFound    = errors.New("core: endpoint not found")
	ErrInvalidEndpoint     = errors.New("core: invalid endpoint")
	ErrInvalidAuthStatus   = errors.New("core: invalid auth status transition")
	ErrContextNameRequired = errors.New("core: context name is required")
)

// Declared event types exposed to callers. A context-level bus built from
// DeclaredEventTypes rejects anything else.
const (
	EventAuthBegin                = "auth-begin"
	EventAuthEnd                  = "auth-end"
	EventNoRefreshToken           = "no-refresh-token"
	EventRefreshSkipped           = "refresh-skipped"
	EventRevokeBegin              = "revoke-begin"
	EventRevokeEnd                = "revoke-end"
	EventUserVerificationRequired = "user-verification-required"
	EventUserVerificationOK       = "user-verification-ok"
	EventUserVerificationFailed   = "user-verification-failed"
	EventContextSync              = "context-sync"
	EventAuthDisabled             = "auth-disabled"

	// EventBlockingResponseRequired flows from an authenticator to the session
	// manager while Authenticate is blocked on user interaction; it is consumed
	// there and never reaches the context-level bus directly.
	EventBlockingResponseRequired = "blocking-response-required"

	BlockingKindUserVerification = "user_verification"
)

func DeclaredEventTypes() []string {
	return []string{
		EventAuthBegin,
		EventAuthEnd,
		EventNoRefreshToken,
		EventRefreshSkipped,
		EventRevokeBegin,
		EventRevokeEnd,
		EventUserVerificationRequired,
		EventUserVerificationOK,
		EventUserVerificationFailed,
		EventContextSync,
		EventAuthDisabled,
	}
}

// AuthConfig is the authentication configuration attached to an endpoint.
// Empty fields are treated as absent when fingerprinting; Type defaults to
// oauth2 when unspecified.
type AuthConfig struct {
	Type         string            `json:"type,omitempty" koanf:"type" mapstructure:"type"`
	GrantType    string            `json:"grant_type,omitempty" koanf:"grant_type" mapstructure:"grant_type"`
	ClientID     string            `json:"client_id,omitempty" koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string            `json:"client_secret,omitempty" koanf:"client_secret" mapstructure:"client_secret"`
	TokenURL     string            `json:"token_url,omitempty" koanf:"token_url" mapstructure:"token_url"`
	Issuer       string            `json:"issuer,omitempty" koanf:"issuer" mapstructure:"issuer"`
	Scope        string            `json:"scope,omitempty" koanf:"scope" mapstructure:"scope"`
	Audience     string            `json:"audience,omitempty" koanf:"audience" mapstructure:"audience"`
	Token        string            `json:"token,omitempty" koanf:"token" mapstructure:"token"`
	Extra        map[string]string `json:"extra,omitempty" koanf:"extra" mapstructure:"extra"`
}

func (c AuthConfig) Clone() AuthConfig {
	cloned := c
	if len(c.Extra) > 0 {
		cloned.Extra = make(map[string]string, len(c.Extra))
		for key, value := range c.Extra {
			cloned.Extra[key] = value
		}
	}
	return cloned
}

// IsZero reports whether no authentication is configured at all.
func (c AuthConfig) IsZero() bool {
	return strings.TrimSpace(c.Type) == "" &&
		strings.TrimSpace(c.GrantType) == "" &&
		strings.TrimSpace(c.ClientID) == "" &&
		strings.TrimSpace(c.ClientSecret) == "" &&
		strings.TrimSpace(c.TokenURL) == "" &&
		strings.TrimSpace(c.Issuer) == "" &&
		strings.TrimSpace(c.Scope) == "" &&
		strings.TrimSpace(c.Audience) == "" &&
		strings.TrimSpace(c.Token) == "" &&
		len(c.Extra) == 0
}

// Endpoint is one remote service endpoint within a context. RegistryID is the
// ownership tag: the identifier of the registry that imported the endpoint, or
// empty for manually added endpoints, which synchronization never removes.
type Endpoint struct {
	ID           string       `json:"id"`
	URL          string       `json:"url"`
	Type         string       `json:"type,omitempty"`
	Auth         AuthConfig   `json:"authentication,omitempty"`
	FallbackAuth []AuthConfig `json:"fallback_authentication,omitempty"`
	RegistryID   string       `json:"registry_id,omitempty"`
}

func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEndpoint)
	}
	if strings.TrimSpace(e.URL) == "" {
		return fmt.Errorf("%w: url is required for endpoint %q", ErrInvalidEndpoint, e.ID)
	}
	return nil
}

func (e Endpoint) Clone() Endpoint {
	cloned := e
	cloned.Auth = e.Auth.Clone()
	if len(e.FallbackAuth) > 0 {
		cloned.FallbackAuth = make([]AuthConfig, len(e.FallbackAuth))
		for idx, fallback := range e.FallbackAuth {
			cloned.FallbackAuth[idx] = fallback.Clone()
		}
	}
	return cloned
}

// EndpointContext is a named, ordered catalog of endpoints. Each endpoint is
// owned by exactly one context; identity within a context is the endpoint id.
type EndpointContext struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name"`
	Selected  bool       `json:"selected,omitempty"`
	Endpoints []Endpoint `json:"endpoints,omitempty"`
}

func (c EndpointContext) Clone() EndpointContext {
	cloned := c
	if len(c.Endpoints) > 0 {
		cloned.Endpoints = make([]Endpoint, len(c.Endpoints))
		for idx, endpoint := range c.Endpoints {
			cloned.Endpoints[idx] = endpoint.Clone()
		}
	}
	return cloned
}

func (c EndpointContext) Endpoint(id string) (Endpoint, bool) {
	id = strings.TrimSpace(id)
	for _, endpoint := range c.Endpoints {
		if endpoint.ID == id {
			return endpoint, true
		}
	}
	return Endpoint{}, false
}

// Upsert replaces the endpoint with a matching id in place, preserving its
// position, or appends when absent.
func (c *EndpointContext) Upsert(endpoint Endpoint) error {
	if c == nil {
		return fmt.Errorf("core: endpoint context is nil")
	}
	if err := endpoint.Validate(); err != nil {
		return err
	}
	for idx, existing := range c.Endpoints {
		if existing.ID == endpoint.ID {
			c.Endpoints[idx] = endpoint
			return nil
		}
	}
	c.Endpoints = append(c.Endpoints, endpoint)
	return nil
}

func (c *EndpointContext) Remove(id string) bool {
	if c == nil {
		return false
	}
	id = strings.TrimSpace(id)
	for idx, existing := range c.Endpoints {
		if existing.ID == id {
			c.Endpoints = append(c.Endpoints[:idx:idx], c.Endpoints[idx+1:]...)
			return true
		}
	}
	return false
}

// RegistryIDs returns the distinct ownership tags present in the catalog, in
// first-encountered order. Empty tags (manual endpoints) are skipped.
func (c EndpointContext) RegistryIDs() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, endpoint := range c.Endpoints {
		tag := strings.TrimSpace(endpoint.RegistryID)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

type AuthStatus string

const (
	AuthStatusUninitialized   AuthStatus = "uninitialized"
	AuthStatusReady           AuthStatus = "ready"
	AuthStatusRefreshRequired AuthStatus = "refresh_required"
	AuthStatusReauthRequired  AuthStatus = "reauth_required"
)

func authStatusTransitionAllowed(current, next AuthStatus) bool {
	// Revoke resets any state to uninitialized.
	if next == AuthStatusUninitialized {
		return true
	}
	allowed := map[AuthStatus]map[AuthStatus]struct{}{
		AuthStatusUninitialized: {
			AuthStatusReady:           {},
			AuthStatusRefreshRequired: {},
			AuthStatusReauthRequired:  {},
		},
		AuthStatusReady: {
			AuthStatusRefreshRequired: {},
			AuthStatusReauthRequired:  {},
		},
		AuthStatusRefreshRequired: {
			AuthStatusReady:          {},
			AuthStatusReauthRequired: {},
		},
		AuthStatusReauthRequired: {
			AuthStatusReady: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

// SessionInfo holds the opaque token material for an established session.
type SessionInfo struct {
	TokenType    string     `json:"token_type,omitempty"`
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	Scope        string     `json:"scope,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

func (s SessionInfo) HasRefreshToken() bool {
	return strings.TrimSpace(s.RefreshToken) != ""
}

func (s SessionInfo) Expired(now time.Time) bool {
	if s.ExpiresAt == nil {
		return false
	}
	return !s.ExpiresAt.After(now)
}

// GrantedScopes splits the granted scope string on whitespace, deduplicates
// and sorts the result.
func (s SessionInfo) GrantedScopes() []string {
	return SplitScopes(s.Scope)
}

// AuthState is a pure read of an authenticator's current status.
type AuthState struct {
	AuthenticatorKind string
	ID                string
	AuthInfo          AuthConfig
	Session           *SessionInfo
	Status            AuthStatus
}

// Transition validates and applies a status change, mirroring the orchestrated
// state machine. Revocation is the only transition allowed from every state.
func (s *AuthState) Transition(next AuthStatus) error {
	if s == nil {
		return nil
	}
	if s.Status == next {
		return nil
	}
	if !authStatusTransitionAllowed(s.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidAuthStatus, s.Status, next)
	}
	s.Status = next
	return nil
}

// ExtendedAuthState is an AuthState plus the ordered endpoint identifiers
// whose fingerprint matches the state's session. Computed on demand, never
// persisted.
type ExtendedAuthState struct {
	AuthState
	Endpoints []string
}
