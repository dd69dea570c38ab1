package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-endpoints/core"
	"github.com/goliatone/go-endpoints/events"
)

// Event detail keys used by the manager's dispatches.
const (
	DetailSessionID = "id"
	DetailEndpoints = "endpoints"
	DetailResult    = "result"
	DetailScopes    = "scopes"
	DetailKind      = "kind"
	DetailURL       = "url"
	DetailError     = "error"
)

// Results carried under DetailResult.
const (
	ResultAuthenticated        = "authenticated"
	ResultRefreshed            = "refreshed"
	ResultAlreadyAuthenticated = "already authenticated"
	ResultSkipped              = "skipped"
	ResultRemoved              = "removed"
	ResultAborted              = "aborted"
	ResultAlreadyRemoved       = "already removed"
)

// Manager maps endpoint identifiers to the minimal set of distinct
// authenticators via credential fingerprint deduplication and drives bulk
// operations across them. Authenticators are built once per fingerprint and
// reused for the manager's lifetime, so N endpoints sharing credentials share
// one session. All operations run synchronously on the caller's goroutine.
type Manager struct {
	catalog     core.CatalogStore
	factory     core.AuthenticatorFactory
	logger      core.Logger
	metrics     core.MetricsRecorder
	errorMapper core.ErrorMapper

	// bus carries the declared event types up to callers; authBus is the
	// dynamic channel authenticators dispatch blocking interaction events on.
	bus     *events.Bus
	authBus *events.Bus

	authenticators map[string]core.Authenticator
}

type Option func(*Manager)

func WithLogger(logger core.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithBus(bus *events.Bus) Option {
	return func(m *Manager) {
		if bus != nil {
			m.bus = bus
		}
	}
}

func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

func WithErrorMapper(mapper core.ErrorMapper) Option {
	return func(m *Manager) {
		if mapper != nil {
			m.errorMapper = mapper
		}
	}
}

func NewManager(catalog core.CatalogStore, factory core.AuthenticatorFactory, options ...Option) (*Manager, error) {
	if catalog == nil {
		return nil, fmt.Errorf("session: catalog store is required")
	}
	if factory == nil {
		return nil, fmt.Errorf("session: authenticator factory is required")
	}

	manager := &Manager{
		catalog:        catalog,
		factory:        factory,
		metrics:        core.NopMetricsRecorder{},
		errorMapper:    core.DefaultErrorMapper,
		authBus:        events.NewBus(),
		authenticators: make(map[string]core.Authenticator),
	}
	for _, opt := range options {
		if opt != nil {
			opt(manager)
		}
	}
	if manager.logger == nil {
		_, logger := glog.Resolve("endpoints", nil, nil)
		manager.logger = glog.Ensure(logger)
	}
	if manager.bus == nil {
		manager.bus = events.NewBus(core.DeclaredEventTypes()...)
	}
	if err := manager.authBus.On(core.EventBlockingResponseRequired, events.HandlerFunc(manager.handleBlockingResponseRequired)); err != nil {
		return nil, err
	}
	return manager, nil
}

// Bus exposes the manager's event bus so callers can subscribe or relay it up
// to a context-level bus.
func (m *Manager) Bus() *events.Bus {
	if m == nil {
		return nil
	}
	return m.bus
}

// binding joins one distinct authenticator to the ordered endpoint identifiers
// that share its credential fingerprint.
type binding struct {
	fingerprint   string
	sessionID     string
	authenticator core.Authenticator
	endpoints     []string
}

// resolve maps the requested endpoint identifiers (all catalog endpoints when
// empty) to bindings in first-encountered fingerprint order. The filter picks
// which authenticators participate; each binding's endpoint list is
// back-filled from the whole catalog, so an operation requested for one
// endpoint still reports every endpoint sharing that session. Unknown
// identifiers fail.
func (m *Manager) resolve(ctx context.Context, endpointIDs []string) ([]*binding, error) {
	endpointContext, err := m.catalog.Load(ctx)
	if err != nil {
		return nil, err
	}

	requested := make(map[string]struct{}, len(endpointIDs))
	for _, id := range endpointIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := endpointContext.Endpoint(id); !ok {
			return nil, fmt.Errorf("%w: %q", core.ErrEndpointNotFound, id)
		}
		requested[id] = struct{}{}
	}

	fingerprints := make([]string, len(endpointContext.Endpoints))
	for idx, endpoint := range endpointContext.Endpoints {
		fingerprint, err := core.Fingerprint(endpoint.Auth)
		if err != nil {
			return nil, fmt.Errorf("session: fingerprint for endpoint %q: %w", endpoint.ID, err)
		}
		fingerprints[idx] = fingerprint
	}

	byFingerprint := make(map[string]*binding)
	ordered := make([]*binding, 0)
	for idx, endpoint := range endpointContext.Endpoints {
		if len(requested) > 0 {
			if _, ok := requested[endpoint.ID]; !ok {
				continue
			}
		}
		fingerprint := fingerprints[idx]
		if _, ok := byFingerprint[fingerprint]; ok {
			continue
		}
		authenticator, err := m.authenticatorFor(fingerprint, endpoint.Auth)
		if err != nil {
			return nil, err
		}
		bound := &binding{
			fingerprint:   fingerprint,
			sessionID:     core.SessionID(fingerprint),
			authenticator: authenticator,
		}
		byFingerprint[fingerprint] = bound
		ordered = append(ordered, bound)
	}

	for idx, endpoint := range endpointContext.Endpoints {
		if bound, ok := byFingerprint[fingerprints[idx]]; ok {
			bound.endpoints = append(bound.endpoints, endpoint.ID)
		}
	}
	return ordered, nil
}

func (m *Manager) authenticatorFor(fingerprint string, cfg core.AuthConfig) (core.Authenticator, error) {
	if existing, ok := m.authenticators[fingerprint]; ok {
		return existing, nil
	}
	authenticator, err := m.factory.Build(core.SessionID(fingerprint), cfg.Clone(), m.authBus)
	if err != nil {
		return nil, fmt.Errorf("session: build authenticator: %w", err)
	}
	if authenticator == nil {
		return nil, fmt.Errorf("session: authenticator factory returned nil")
	}
	m.authenticators[fingerprint] = authenticator
	return authenticator, nil
}

// GetStates reports one ExtendedAuthState per distinct authenticator serving
// the (filtered) endpoint set, endpoints back-filled in catalog order, states
// ordered by first-encountered authenticator.
func (m *Manager) GetStates(ctx context.Context, endpointIDs ...string) ([]core.ExtendedAuthState, error) {
	if m == nil {
		return nil, fmt.Errorf("session: manager is nil")
	}
	bindings, err := m.resolve(ctx, endpointIDs)
	if err != nil {
		return nil, m.mapError(err)
	}
	states := make([]core.ExtendedAuthState, 0, len(bindings))
	for _, bound := range bindings {
		states = append(states, core.ExtendedAuthState{
			AuthState: bound.authenticator.State(),
			Endpoints: append([]string(nil), bound.endpoints...),
		})
	}
	return states, nil
}

type AuthenticateOptions struct {
	EndpointIDs    []string
	ForceRefresh   bool
	RevokeExisting bool
}

// InitiateAuthentications drives every resolved authenticator through the
// orchestrated state machine, strictly sequentially: Authenticate may require
// exclusive interactive user attention. Already-READY sessions are a no-op.
// Cancellation between items reports the current item as skipped and
// terminates the loop; already-processed endpoints stay authenticated.
func (m *Manager) InitiateAuthentications(ctx context.Context, options AuthenticateOptions) error {
	if m == nil {
		return fmt.Errorf("session: manager is nil")
	}
	return m.mapError(m.initiateAuthentications(ctx, options))
}

func (m *Manager) initiateAuthentications(ctx context.Context, options AuthenticateOptions) error {
	bindings, err := m.resolve(ctx, options.EndpointIDs)
	if err != nil {
		return err
	}

	for _, bound := range bindings {
		if err := m.dispatch(core.EventAuthBegin, map[string]any{
			DetailSessionID: bound.sessionID,
			DetailEndpoints: append([]string(nil), bound.endpoints...),
		}); err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			if dispatchErr := m.authEnd(bound, ResultSkipped); dispatchErr != nil {
				return dispatchErr
			}
			return err
		}

		result, err := m.authenticateOne(ctx, bound, options)
		if err != nil {
			return err
		}
		m.metrics.IncCounter(ctx, "endpoints.session.auth", 1, map[string]string{"result": result})
		if err := m.authEnd(bound, result); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) authenticateOne(ctx context.Context, bound *binding, options AuthenticateOptions) (string, error) {
	status := bound.authenticator.State().Status

	if options.ForceRefresh {
		if status != core.AuthStatusReady && status != core.AuthStatusRefreshRequired {
			if err := m.dispatch(core.EventRefreshSkipped, map[string]any{
				DetailSessionID: bound.sessionID,
				DetailEndpoints: append([]string(nil), bound.endpoints...),
			}); err != nil {
				return "", err
			}
			return ResultSkipped, nil
		}
		return m.forceRefresh(ctx, bound)
	}

	if status == core.AuthStatusReady {
		return ResultAlreadyAuthenticated, nil
	}

	if options.RevokeExisting && status != core.AuthStatusUninitialized {
		if err := bound.authenticator.Revoke(ctx); err != nil && !core.IsBenign(err) {
			return "", fmt.Errorf("session: revoke before re-authentication: %w", err)
		}
	}

	session, err := m.initialize(ctx, bound.authenticator)
	if err != nil {
		return "", err
	}
	if !session.HasRefreshToken() {
		if err := m.dispatch(core.EventNoRefreshToken, map[string]any{
			DetailSessionID: bound.sessionID,
			DetailEndpoints: append([]string(nil), bound.endpoints...),
		}); err != nil {
			return "", err
		}
	}
	return ResultAuthenticated, nil
}

func (m *Manager) forceRefresh(ctx context.Context, bound *binding) (string, error) {
	session, err := bound.authenticator.Refresh(ctx)
	switch {
	case err == nil:
	case core.IsBenign(err):
		return ResultSkipped, nil
	default:
		return "", err
	}
	if !session.HasRefreshToken() {
		if err := m.dispatch(core.EventNoRefreshToken, map[string]any{
			DetailSessionID: bound.sessionID,
			DetailEndpoints: append([]string(nil), bound.endpoints...),
		}); err != nil {
			return "", err
		}
	}
	return ResultRefreshed, nil
}

// initialize runs the restore/authenticate/refresh sequence for one
// authenticator. The terminal observable states are READY or a returned
// error; refresh-level recovery signals are consumed here and fall back to a
// full authentication.
func (m *Manager) initialize(ctx context.Context, authenticator core.Authenticator) (core.SessionInfo, error) {
	restored, err := authenticator.RestoreSession(ctx)
	if err != nil {
		return core.SessionInfo{}, err
	}

	switch restored.Outcome {
	case core.RestoreOK:
		return restored.Session, nil
	case core.RestoreAuthRequired, core.RestoreReauthRequired:
		return authenticator.Authenticate(ctx)
	case core.RestoreRefreshRequired:
		session, err := authenticator.Refresh(ctx)
		if err == nil {
			return session, nil
		}
		if isRefreshRecoverable(err) {
			return authenticator.Authenticate(ctx)
		}
		return core.SessionInfo{}, err
	default:
		return core.SessionInfo{}, core.NewInvalidStateError("session: unknown restore outcome", map[string]string{
			"outcome": string(restored.Outcome),
		})
	}
}

// isRefreshRecoverable reports whether a refresh failure inside initialize
// should fall back to a full authentication instead of aborting.
func isRefreshRecoverable(err error) bool {
	return core.IsBenign(err) ||
		errors.Is(err, core.ErrReauthenticationRequired) ||
		errors.Is(err, core.ErrNoRefreshToken)
}

type RevokeOptions struct {
	EndpointIDs []string
	Confirm     core.ConfirmFunc
}

// Revoke invalidates the sessions behind the resolved endpoint set and
// returns the endpoint identifiers actually affected. Sessions already
// UNINITIALIZED short-circuit to a revoke-end with result "already removed".
// A REAUTH_REQUIRED session is already broken, so confirmation is skipped.
func (m *Manager) Revoke(ctx context.Context, options RevokeOptions) ([]string, error) {
	if m == nil {
		return nil, fmt.Errorf("session: manager is nil")
	}
	affected, err := m.revoke(ctx, options)
	return affected, m.mapError(err)
}

func (m *Manager) revoke(ctx context.Context, options RevokeOptions) ([]string, error) {
	bindings, err := m.resolve(ctx, options.EndpointIDs)
	if err != nil {
		return nil, err
	}

	affected := make([]string, 0)
	for _, bound := range bindings {
		state := bound.authenticator.State()
		if state.Status == core.AuthStatusUninitialized {
			if err := m.revokeEnd(bound, ResultAlreadyRemoved); err != nil {
				return affected, err
			}
			continue
		}

		scopes := []string(nil)
		if state.Session != nil {
			scopes = state.Session.GrantedScopes()
		}
		if err := m.dispatch(core.EventRevokeBegin, map[string]any{
			DetailSessionID: bound.sessionID,
			DetailEndpoints: append([]string(nil), bound.endpoints...),
			DetailScopes:    scopes,
		}); err != nil {
			return affected, err
		}

		confirmed := state.Status == core.AuthStatusReauthRequired ||
			options.Confirm == nil ||
			options.Confirm()
		if !confirmed {
			if err := m.revokeEnd(bound, ResultAborted); err != nil {
				return affected, err
			}
			continue
		}

		if err := bound.authenticator.Revoke(ctx); err != nil && !core.IsBenign(err) {
			return affected, err
		}
		m.metrics.IncCounter(ctx, "endpoints.session.revoke", 1, nil)
		if err := m.revokeEnd(bound, ResultRemoved); err != nil {
			return affected, err
		}
		affected = append(affected, bound.endpoints...)
	}
	return affected, nil
}

// handleBlockingResponseRequired intercepts the authenticator's interactive
// prompt while Authenticate is blocked. The user_verification kind is
// re-emitted upward as user-verification-required with the verification URL
// and the handler outcome is reported back through the verification events;
// every other kind is logged as unhandled and swallowed.
func (m *Manager) handleBlockingResponseRequired(event *events.Event) error {
	kind, _ := event.Detail(DetailKind).(string)
	if kind != core.BlockingKindUserVerification {
		core.LogInfo(m.logger, context.Background(), "unhandled blocking interaction kind", map[string]any{
			DetailKind: kind,
		})
		return nil
	}

	url, _ := event.Detail(DetailURL).(string)
	details := map[string]any{DetailKind: kind, DetailURL: url}
	if err := m.bus.Dispatch(core.EventUserVerificationRequired, events.New(details)); err != nil {
		failure := map[string]any{DetailURL: url, DetailError: err.Error()}
		if dispatchErr := m.bus.Dispatch(core.EventUserVerificationFailed, events.New(failure)); dispatchErr != nil {
			return dispatchErr
		}
		return err
	}
	return m.bus.Dispatch(core.EventUserVerificationOK, events.New(map[string]any{DetailURL: url}))
}

func (m *Manager) authEnd(bound *binding, result string) error {
	return m.dispatch(core.EventAuthEnd, map[string]any{
		DetailSessionID: bound.sessionID,
		DetailEndpoints: append([]string(nil), bound.endpoints...),
		DetailResult:    result,
	})
}

func (m *Manager) revokeEnd(bound *binding, result string) error {
	return m.dispatch(core.EventRevokeEnd, map[string]any{
		DetailSessionID: bound.sessionID,
		DetailEndpoints: append([]string(nil), bound.endpoints...),
		DetailResult:    result,
	})
}

func (m *Manager) dispatch(eventType string, details map[string]any) error {
	return m.bus.Dispatch(eventType, events.New(details))
}

// mapError envelopes errors escaping a public operation into the stable
// ENDPOINTS_* taxonomy.
func (m *Manager) mapError(err error) error {
	if err == nil {
		return nil
	}
	if m == nil || m.errorMapper == nil {
		return err
	}
	mapped := m.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
