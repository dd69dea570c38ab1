package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-endpoints/core"
)

const KindStaticToken = "static_token"

// StaticTokenAuthenticator wraps a pre-issued bearer token. The scheme has no
// refresh concept, so Refresh reports ErrFeatureNotAvailable and callers
// treat it as a successful no-op. Revoke only clears the in-memory session;
// the token itself stays valid server-side.
type StaticTokenAuthenticator struct {
	id  string
	cfg core.AuthConfig

	mu      sync.Mutex
	revoked bool
	status  core.AuthStatus
}

func NewStaticTokenAuthenticator(id string, cfg core.AuthConfig) (*StaticTokenAuthenticator, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("auth: static token is required")
	}
	return &StaticTokenAuthenticator{
		id:     strings.TrimSpace(id),
		cfg:    cfg.Clone(),
		status: core.AuthStatusUninitialized,
	}, nil
}

func (*StaticTokenAuthenticator) Kind() string {
	return KindStaticToken
}

func (a *StaticTokenAuthenticator) RestoreSession(_ context.Context) (core.RestoreResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.revoked {
		return core.RestoreResult{Outcome: core.RestoreAuthRequired}, nil
	}
	a.status = core.AuthStatusReady
	return core.RestoreResult{Outcome: core.RestoreOK, Session: a.sessionLocked()}, nil
}

// Authenticate re-arms a previously revoked token; there is no interactive
// step for this scheme.
func (a *StaticTokenAuthenticator) Authenticate(_ context.Context) (core.SessionInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked = false
	a.status = core.AuthStatusReady
	return a.sessionLocked(), nil
}

func (a *StaticTokenAuthenticator) Refresh(_ context.Context) (core.SessionInfo, error) {
	return core.SessionInfo{}, core.ErrFeatureNotAvailable
}

func (a *StaticTokenAuthenticator) Revoke(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked = true
	a.status = core.AuthStatusUninitialized
	return nil
}

func (a *StaticTokenAuthenticator) State() core.AuthState {
	a.mu.Lock()
	defer a.mu.Unlock()
	state := core.AuthState{
		AuthenticatorKind: KindStaticToken,
		ID:                a.id,
		AuthInfo:          a.cfg.Clone(),
		Status:            a.status,
	}
	if !a.revoked && a.status == core.AuthStatusReady {
		session := a.sessionLocked()
		state.Session = &session
	}
	return state
}

func (a *StaticTokenAuthenticator) sessionLocked() core.SessionInfo {
	return core.SessionInfo{
		TokenType:   "bearer",
		AccessToken: strings.TrimSpace(a.cfg.Token),
		Scope:       a.cfg.Scope,
	}
}

var _ core.Authenticator = (*StaticTokenAuthenticator)(nil)
