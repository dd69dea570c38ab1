package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"

	"github.com/goliatone/go-endpoints/core"
	"github.com/goliatone/go-endpoints/events"
	"github.com/goliatone/go-endpoints/session"
)

// Sync actions carried on context-sync events.
const (
	ActionAdd    = "add"
	ActionUpdate = "update"
	ActionKeep   = "keep"
	ActionRemove = "remove"
)

// Event detail keys used by the synchronizer's dispatches.
const (
	DetailAction     = "action"
	DetailEndpoint   = "endpoint"
	DetailRegistryID = "registry_id"
	DetailSyncID     = "sync_id"
	DetailContext    = "context"
)

// DefaultDiscoveryPaths are the candidate base paths probed in order when
// resolving a bare hostname to a registry base URL.
var DefaultDiscoveryPaths = []string{"", "service-registry/", "api/service-registry/"}

// Synchronizer reconciles the local endpoint catalog against remote registry
// listings and exposes the context-level event bus callers subscribe to. The
// optional session manager enables the eager authentication pass performed by
// Use; its events are relayed through this bus.
type Synchronizer struct {
	catalog     core.CatalogStore
	client      core.HTTPClient
	bus         *events.Bus
	manager     *session.Manager
	logger      core.Logger
	errorMapper core.ErrorMapper

	discoveryPaths []string
	isolation      bool
	newSyncID      func() string
}

type Option func(*Synchronizer)

func WithHTTPClient(client core.HTTPClient) Option {
	return func(s *Synchronizer) {
		if client != nil {
			s.client = client
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithBus(bus *events.Bus) Option {
	return func(s *Synchronizer) {
		if bus != nil {
			s.bus = bus
		}
	}
}

func WithSessionManager(manager *session.Manager) Option {
	return func(s *Synchronizer) {
		s.manager = manager
	}
}

func WithErrorMapper(mapper core.ErrorMapper) Option {
	return func(s *Synchronizer) {
		if mapper != nil {
			s.errorMapper = mapper
		}
	}
}

func WithDiscoveryPaths(paths ...string) Option {
	return func(s *Synchronizer) {
		if len(paths) > 0 {
			s.discoveryPaths = append([]string(nil), paths...)
		}
	}
}

// WithIsolation marks the context as serving a single active registry, so
// ownership checks against other registries are skipped. Ownership tags are
// still written on add/update; see Sync.
func WithIsolation(isolation bool) Option {
	return func(s *Synchronizer) {
		s.isolation = isolation
	}
}

// WithConfig applies the registry section of a resolved core.Config. Zero
// fields keep their defaults.
func WithConfig(cfg core.Config) Option {
	return func(s *Synchronizer) {
		if len(cfg.Registry.DiscoveryPaths) > 0 {
			s.discoveryPaths = append([]string(nil), cfg.Registry.DiscoveryPaths...)
		}
		if cfg.Registry.Isolation {
			s.isolation = true
		}
	}
}

// NewSynchronizerFromConfig resolves configuration through the layered
// defaults/provider/runtime stack before construction. A nil provider or
// resolver falls back to the core defaults.
func NewSynchronizerFromConfig(
	ctx context.Context,
	catalog core.CatalogStore,
	provider core.ConfigProvider,
	runtime core.Config,
	options ...Option,
) (*Synchronizer, error) {
	cfg, err := core.ResolveConfig(ctx, provider, nil, runtime)
	if err != nil {
		return nil, err
	}
	return NewSynchronizer(catalog, append([]Option{WithConfig(cfg)}, options...)...)
}

func NewSynchronizer(catalog core.CatalogStore, options ...Option) (*Synchronizer, error) {
	if catalog == nil {
		return nil, fmt.Errorf("registry: catalog store is required")
	}
	synchronizer := &Synchronizer{
		catalog:        catalog,
		client:         http.DefaultClient,
		errorMapper:    core.DefaultErrorMapper,
		discoveryPaths: append([]string(nil), DefaultDiscoveryPaths...),
		newSyncID:      func() string { return uuid.NewString() },
	}
	for _, opt := range options {
		if opt != nil {
			opt(synchronizer)
		}
	}
	if synchronizer.logger == nil {
		_, logger := glog.Resolve("endpoints", nil, nil)
		synchronizer.logger = glog.Ensure(logger)
	}
	if synchronizer.bus == nil {
		synchronizer.bus = events.NewBus(core.DeclaredEventTypes()...)
	}
	if synchronizer.manager != nil && synchronizer.manager.Bus() != synchronizer.bus {
		for _, eventType := range core.DeclaredEventTypes() {
			if err := synchronizer.manager.Bus().Relay(synchronizer.bus, eventType); err != nil {
				return nil, err
			}
		}
	}
	return synchronizer, nil
}

// Bus exposes the context-level event bus.
func (s *Synchronizer) Bus() *events.Bus {
	if s == nil {
		return nil
	}
	return s.bus
}

// Discover resolves a bare hostname to a registry base URL by probing the
// candidate paths for a valid /services listing. Connection failures mean
// "not a registry here, try the next candidate"; exhausting the candidates
// fails with ErrInvalidServiceRegistry.
func (s *Synchronizer) Discover(ctx context.Context, hostname string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("registry: synchronizer is nil")
	}
	base, err := s.discover(ctx, hostname)
	return base, s.mapError(err)
}

func (s *Synchronizer) discover(ctx context.Context, hostname string) (string, error) {
	base, err := normalizeBaseURL(hostname)
	if err != nil {
		return "", err
	}

	for _, candidate := range s.discoveryPaths {
		candidateBase := joinURL(base, candidate)
		if _, err := s.fetchListing(ctx, candidateBase); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			core.LogInfo(s.logger, ctx, "registry discovery candidate rejected", map[string]any{
				"candidate": candidateBase,
				"error":     err.Error(),
			})
			continue
		}
		return candidateBase, nil
	}
	return "", fmt.Errorf("%w: no registry found at %q", core.ErrInvalidServiceRegistry, hostname)
}

// SyncResult summarizes one scoped synchronization pass.
type SyncResult struct {
	SyncID  string
	Added   []string
	Updated []string
	Kept    []string
	Removed []string
}

// Sync fetches the registry's listing and reconciles it into the catalog,
// scoped to registryID's ownership tag. Remote endpoints classify as add,
// update or keep by id under this registry's tag; locally owned endpoints
// absent from the listing classify as remove. Untagged (manual) and
// foreign-tagged endpoints are never touched; an id collision with one of
// them is logged and skipped. A context-sync event is emitted per endpoint in
// listing order, removals after, and only then is the catalog persisted as a
// whole. Connection failures here are hard failures.
func (s *Synchronizer) Sync(ctx context.Context, registryID string, baseURL string) (SyncResult, error) {
	if s == nil {
		return SyncResult{}, fmt.Errorf("registry: synchronizer is nil")
	}
	result, err := s.sync(ctx, registryID, baseURL)
	return result, s.mapError(err)
}

func (s *Synchronizer) sync(ctx context.Context, registryID string, baseURL string) (SyncResult, error) {
	registryID = strings.TrimSpace(registryID)
	if registryID == "" {
		return SyncResult{}, fmt.Errorf("registry: registry id is required")
	}

	remotes, err := s.fetchListing(ctx, baseURL)
	if err != nil {
		return SyncResult{}, err
	}
	endpointContext, err := s.catalog.Load(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	s.warnUntaggedMix(ctx, endpointContext, registryID)

	result := SyncResult{SyncID: s.newSyncID()}
	seen := make(map[string]struct{}, len(remotes))

	for _, remote := range remotes {
		endpoint := remote.toEndpoint(registryID)
		if err := endpoint.Validate(); err != nil {
			return result, fmt.Errorf("registry: listing entry rejected: %w", err)
		}
		seen[endpoint.ID] = struct{}{}

		action := ActionAdd
		if existing, ok := endpointContext.Endpoint(endpoint.ID); ok {
			if !s.owned(existing, registryID) {
				core.LogInfo(s.logger, ctx, "sync skipped endpoint owned elsewhere", map[string]any{
					"endpoint_id": existing.ID,
					"owner":       existing.RegistryID,
					"registry_id": registryID,
				})
				continue
			}
			if endpointsEqual(existing, endpoint) {
				action = ActionKeep
			} else {
				action = ActionUpdate
			}
		}

		if action != ActionKeep {
			if err := endpointContext.Upsert(endpoint); err != nil {
				return result, err
			}
		}
		if err := s.emitSync(result.SyncID, registryID, action, endpoint); err != nil {
			return result, err
		}
		switch action {
		case ActionAdd:
			result.Added = append(result.Added, endpoint.ID)
		case ActionUpdate:
			result.Updated = append(result.Updated, endpoint.ID)
		default:
			result.Kept = append(result.Kept, endpoint.ID)
		}
	}

	for _, existing := range endpointContext.Clone().Endpoints {
		if existing.RegistryID != registryID {
			continue
		}
		if _, ok := seen[existing.ID]; ok {
			continue
		}
		endpointContext.Remove(existing.ID)
		if err := s.emitSync(result.SyncID, registryID, ActionRemove, existing); err != nil {
			return result, err
		}
		result.Removed = append(result.Removed, existing.ID)
	}

	if err := s.catalog.Save(ctx, endpointContext); err != nil {
		return result, fmt.Errorf("registry: persist catalog: %w", err)
	}
	return result, nil
}

type UseOptions struct {
	ContextName string
	NoAuth      bool
}

// Use resolves hostnameOrURL to a registry (direct URL or discovery), selects
// or creates the target context, runs a scoped sync, and unless NoAuth is set
// eagerly establishes sessions for the imported endpoints. Session manager
// events flow through the synchronizer's bus. The registry id is the host of
// the resolved base URL.
func (s *Synchronizer) Use(ctx context.Context, hostnameOrURL string, options UseOptions) (core.EndpointContext, error) {
	if s == nil {
		return core.EndpointContext{}, fmt.Errorf("registry: synchronizer is nil")
	}
	endpointContext, err := s.use(ctx, hostnameOrURL, options)
	return endpointContext, s.mapError(err)
}

func (s *Synchronizer) use(ctx context.Context, hostnameOrURL string, options UseOptions) (core.EndpointContext, error) {
	base, err := s.resolveBase(ctx, hostnameOrURL)
	if err != nil {
		return core.EndpointContext{}, err
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Host == "" {
		return core.EndpointContext{}, fmt.Errorf("%w: cannot derive registry id from %q",
			core.ErrInvalidServiceRegistry, base)
	}
	registryID := parsed.Host

	if name := strings.TrimSpace(options.ContextName); name != "" {
		selector, ok := s.catalog.(core.ContextSelector)
		if !ok {
			return core.EndpointContext{}, fmt.Errorf("registry: catalog store does not support context selection")
		}
		if _, _, err := selector.Select(ctx, name); err != nil {
			return core.EndpointContext{}, err
		}
	}

	if _, err := s.Sync(ctx, registryID, base); err != nil {
		return core.EndpointContext{}, err
	}

	if options.NoAuth {
		err := s.bus.Dispatch(core.EventAuthDisabled, events.New(map[string]any{
			DetailRegistryID: registryID,
		}))
		if err != nil {
			return core.EndpointContext{}, err
		}
	} else if s.manager != nil {
		if err := s.manager.InitiateAuthentications(ctx, session.AuthenticateOptions{}); err != nil {
			return core.EndpointContext{}, err
		}
	}

	return s.catalog.Load(ctx)
}

// resolveBase accepts a full URL verbatim and runs discovery for anything
// else.
func (s *Synchronizer) resolveBase(ctx context.Context, hostnameOrURL string) (string, error) {
	trimmed := strings.TrimSpace(hostnameOrURL)
	if trimmed == "" {
		return "", fmt.Errorf("registry: hostname or url is required")
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return strings.TrimRight(trimmed, "/"), nil
	}
	return s.Discover(ctx, trimmed)
}

// owned reports whether existing belongs to registryID's sync scope. In
// isolation mode untagged endpoints are treated as owned, since a single
// active registry may have imported them before tagging was in place.
func (s *Synchronizer) owned(existing core.Endpoint, registryID string) bool {
	tag := strings.TrimSpace(existing.RegistryID)
	if tag == registryID {
		return true
	}
	return s.isolation && tag == ""
}

// warnUntaggedMix flags the unspecified case: isolation-mode bookkeeping left
// untagged imports behind and a second registry is now present, so future
// scoped removal cannot distinguish them from manual endpoints.
func (s *Synchronizer) warnUntaggedMix(ctx context.Context, endpointContext core.EndpointContext, registryID string) {
	if !s.isolation {
		return
	}
	tags := endpointContext.RegistryIDs()
	foreign := 0
	for _, tag := range tags {
		if tag != registryID {
			foreign++
		}
	}
	if foreign == 0 {
		return
	}
	core.LogError(s.logger, ctx, "isolation mode with multiple registries; untagged endpoints cannot be scoped", map[string]any{
		"registry_id": registryID,
		"known_tags":  tags,
	})
}

// mapError envelopes errors escaping a public operation into the stable
// ENDPOINTS_* taxonomy.
func (s *Synchronizer) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Synchronizer) emitSync(syncID string, registryID string, action string, endpoint core.Endpoint) error {
	return s.bus.Dispatch(core.EventContextSync, events.New(map[string]any{
		DetailSyncID:     syncID,
		DetailRegistryID: registryID,
		DetailAction:     action,
		DetailEndpoint:   endpoint.Clone(),
	}))
}

func endpointsEqual(a, b core.Endpoint) bool {
	if a.ID != b.ID || a.URL != b.URL || a.Type != b.Type || a.RegistryID != b.RegistryID {
		return false
	}
	fpA, errA := core.Fingerprint(a.Auth)
	fpB, errB := core.Fingerprint(b.Auth)
	if errA != nil || errB != nil || fpA != fpB {
		return false
	}
	if len(a.FallbackAuth) != len(b.FallbackAuth) {
		return false
	}
	for idx := range a.FallbackAuth {
		fpA, errA = core.Fingerprint(a.FallbackAuth[idx])
		fpB, errB = core.Fingerprint(b.FallbackAuth[idx])
		if errA != nil || errB != nil || fpA != fpB {
			return false
		}
	}
	return true
}

func normalizeBaseURL(hostname string) (string, error) {
	trimmed := strings.TrimSpace(hostname)
	if trimmed == "" {
		return "", fmt.Errorf("registry: hostname is required")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%w: invalid hostname %q", core.ErrInvalidServiceRegistry, hostname)
	}
	return strings.TrimRight(parsed.String(), "/"), nil
}
