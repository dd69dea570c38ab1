package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/goliatone/go-endpoints/core"
	"github.com/goliatone/go-endpoints/events"
)

const KindOAuth2ClientCredentials = "oauth2_client_credentials"

// ClientCredentialsAuthenticator implements the OAuth2 client-credentials
// grant. The grant is non-interactive: Authenticate exchanges the configured
// client credentials at the token endpoint without dispatching blocking
// events, and Refresh performs the same exchange since the grant issues no
// refresh token. Sessions are held in memory for the authenticator's
// lifetime.
type ClientCredentialsAuthenticator struct {
	id         string
	cfg        core.AuthConfig
	httpClient *http.Client
	now        func() time.Time

	mu          sync.Mutex
	session     core.SessionInfo
	haveSession bool
	status      core.AuthStatus
}

// NewClientCredentialsAuthenticator validates the grant configuration. The bus
// argument exists to satisfy the factory contract; the grant never blocks on
// user interaction so nothing is ever dispatched on it.
func NewClientCredentialsAuthenticator(id string, cfg core.AuthConfig, _ *events.Bus, httpClient *http.Client, now func() time.Time) (*ClientCredentialsAuthenticator, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("auth: client credentials client_id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("auth: client credentials client_secret is required")
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("auth: client credentials token_url is required")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ClientCredentialsAuthenticator{
		id:         strings.TrimSpace(id),
		cfg:        cfg.Clone(),
		httpClient: httpClient,
		now:        now,
		status:     core.AuthStatusUninitialized,
	}, nil
}

func (*ClientCredentialsAuthenticator) Kind() string {
	return KindOAuth2ClientCredentials
}

// RestoreSession reports on the in-memory session without touching the
// network: absent means a login is needed, expired means a refresh exchange
// can renew it.
func (a *ClientCredentialsAuthenticator) RestoreSession(_ context.Context) (core.RestoreResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.haveSession {
		return core.RestoreResult{Outcome: core.RestoreAuthRequired}, nil
	}
	if a.session.Expired(a.now()) {
		prior := a.session
		a.status = core.AuthStatusRefreshRequired
		return core.RestoreResult{Outcome: core.RestoreRefreshRequired, Prior: &prior}, nil
	}
	a.status = core.AuthStatusReady
	return core.RestoreResult{Outcome: core.RestoreOK, Session: a.session}, nil
}

func (a *ClientCredentialsAuthenticator) Authenticate(ctx context.Context) (core.SessionInfo, error) {
	return a.exchange(ctx)
}

// Refresh re-runs the token exchange; the client-credentials grant has no
// refresh token, renewal and login are the same operation.
func (a *ClientCredentialsAuthenticator) Refresh(ctx context.Context) (core.SessionInfo, error) {
	return a.exchange(ctx)
}

func (a *ClientCredentialsAuthenticator) Revoke(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = core.SessionInfo{}
	a.haveSession = false
	a.status = core.AuthStatusUninitialized
	return nil
}

func (a *ClientCredentialsAuthenticator) State() core.AuthState {
	a.mu.Lock()
	defer a.mu.Unlock()

	state := core.AuthState{
		AuthenticatorKind: KindOAuth2ClientCredentials,
		ID:                a.id,
		AuthInfo:          a.cfg.Clone(),
		Status:            a.status,
	}
	if a.haveSession {
		session := a.session
		state.Session = &session
	}
	return state
}

func (a *ClientCredentialsAuthenticator) exchange(ctx context.Context) (core.SessionInfo, error) {
	config := clientcredentials.Config{
		ClientID:     strings.TrimSpace(a.cfg.ClientID),
		ClientSecret: strings.TrimSpace(a.cfg.ClientSecret),
		TokenURL:     strings.TrimSpace(a.cfg.TokenURL),
		Scopes:       core.SplitScopes(a.cfg.Scope),
	}
	if audience := strings.TrimSpace(a.cfg.Audience); audience != "" {
		config.EndpointParams = url.Values{"audience": {audience}}
	}
	if a.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	}

	token, err := config.Token(ctx)
	if err != nil {
		return core.SessionInfo{}, fmt.Errorf("auth: client credentials exchange: %w", err)
	}

	session := core.SessionInfo{
		TokenType:    firstNonEmpty(token.TokenType, "bearer"),
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if scope, ok := token.Extra("scope").(string); ok && strings.TrimSpace(scope) != "" {
		session.Scope = scope
	} else {
		session.Scope = a.cfg.Scope
	}
	if !token.Expiry.IsZero() {
		expiresAt := token.Expiry.UTC()
		session.ExpiresAt = &expiresAt
	}

	a.mu.Lock()
	a.session = session
	a.haveSession = true
	a.status = core.AuthStatusReady
	a.mu.Unlock()
	return session, nil
}

var _ core.Authenticator = (*ClientCredentialsAuthenticator)(nil)
