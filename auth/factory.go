package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-endpoints/core"
	"github.com/goliatone/go-endpoints/events"
)

const grantClientCredentials = "client_credentials"

// Factory builds the shipped authenticators from an endpoint's auth
// configuration. Scheme resolution: a pre-issued token wins, then the OAuth2
// grant type, with client_credentials assumed when the grant is unspecified.
type Factory struct {
	HTTPClient *http.Client
	Now        func() time.Time
}

func (f Factory) Build(id string, cfg core.AuthConfig, bus *events.Bus) (core.Authenticator, error) {
	if strings.TrimSpace(cfg.Token) != "" {
		return NewStaticTokenAuthenticator(id, cfg)
	}

	scheme := firstNonEmpty(cfg.Type, core.DefaultAuthType)
	if scheme != core.DefaultAuthType {
		return nil, fmt.Errorf("auth: unsupported scheme %q", scheme)
	}

	grant := firstNonEmpty(cfg.GrantType, grantClientCredentials)
	switch grant {
	case grantClientCredentials:
		return NewClientCredentialsAuthenticator(id, cfg, bus, f.HTTPClient, f.Now)
	default:
		return nil, fmt.Errorf("auth: unsupported grant type %q", grant)
	}
}

var _ core.AuthenticatorFactory = Factory{}
