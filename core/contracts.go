package core

import (
	"context"
	"net/http"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-endpoints/events"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// RestoreOutcome is the explicit variant returned by RestoreSession instead of
// signalling recovery paths through error unwinding. The orchestrator pattern
// matches on the outcome to decide between authenticate and refresh.
type RestoreOutcome string

const (
	// RestoreOK: a stored session was loaded and is usable.
	RestoreOK RestoreOutcome = "ok"
	// RestoreAuthRequired: nothing is stored yet; a full login is needed.
	RestoreAuthRequired RestoreOutcome = "auth_required"
	// RestoreReauthRequired: a session is stored but unusable, e.g. the
	// configuration changed underneath it.
	RestoreReauthRequired RestoreOutcome = "reauth_required"
	// RestoreRefreshRequired: a stored session exists but is expired and
	// refreshable; Prior carries it for the refresh exchange.
	RestoreRefreshRequired RestoreOutcome = "refresh_required"
)

type RestoreResult struct {
	Outcome RestoreOutcome
	Session SessionInfo
	Prior   *SessionInfo
}

// Authenticator is the per-credential-scheme capability. One instance serves
// every endpoint sharing a credential fingerprint. RestoreSession never
// touches the network or the user; Authenticate may block on a reentrant
// in-process callback dispatched through the bus the authenticator was built
// with (EventBlockingResponseRequired). Refresh and Revoke report
// ErrFeatureNotAvailable when the scheme has no such concept; callers treat
// that as a successful no-op.
type Authenticator interface {
	Kind() string
	RestoreSession(ctx context.Context) (RestoreResult, error)
	Authenticate(ctx context.Context) (SessionInfo, error)
	Refresh(ctx context.Context) (SessionInfo, error)
	Revoke(ctx context.Context) error
	State() AuthState
}

// AuthenticatorFactory builds the authenticator for a distinct credential
// fingerprint. The id is the session identifier derived from the fingerprint;
// bus is where the authenticator dispatches blocking interaction events.
type AuthenticatorFactory interface {
	Build(id string, cfg AuthConfig, bus *events.Bus) (Authenticator, error)
}

// CatalogStore is the endpoint catalog collaborator. Save is assumed atomic
// at whole-context granularity; no partial-write contract is required.
type CatalogStore interface {
	Load(ctx context.Context) (EndpointContext, error)
	Save(ctx context.Context, endpointContext EndpointContext) error
}

// ContextSelector is an optional catalog store capability used by the `use`
// operation: it loads or creates the named context and marks it selected.
type ContextSelector interface {
	Select(ctx context.Context, name string) (EndpointContext, bool, error)
}

// HTTPClient is the fetch primitive consumed by registry discovery and
// listing. No retry policy is required of it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ConfirmFunc is the synchronous user confirmation prompt consumed by revoke.
type ConfirmFunc func() bool

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}
