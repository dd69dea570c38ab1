package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-endpoints/core"
	"github.com/goliatone/go-endpoints/events"
	"github.com/goliatone/go-endpoints/session"
)

type cannedResponse struct {
	status      int
	contentType string
	body        string
	err         error
}

type fakeHTTPClient struct {
	responses map[string]cannedResponse
	requested []string
}

func (f *fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	url := req.URL.String()
	f.requested = append(f.requested, url)
	canned, ok := f.responses[url]
	if !ok {
		return nil, fmt.Errorf("dial tcp: connection refused for %s", url)
	}
	if canned.err != nil {
		return nil, canned.err
	}
	contentType := canned.contentType
	if contentType == "" {
		contentType = "application/json"
	}
	return &http.Response{
		StatusCode: canned.status,
		Header:     http.Header{"Content-Type": []string{contentType}},
		Body:       io.NopCloser(strings.NewReader(canned.body)),
	}, nil
}

type syncRecorder struct {
	actions   []string
	endpoints []string
}

func (r *syncRecorder) subscribe(t *testing.T, bus *events.Bus) {
	t.Helper()
	err := bus.On(core.EventContextSync, events.HandlerFunc(func(event *events.Event) error {
		action, _ := event.Detail(DetailAction).(string)
		endpoint, _ := event.Detail(DetailEndpoint).(core.Endpoint)
		r.actions = append(r.actions, action)
		r.endpoints = append(r.endpoints, endpoint.ID)
		return nil
	}))
	if err != nil {
		t.Fatalf("subscribe context-sync: %v", err)
	}
}

func newSyncFixture(t *testing.T, client core.HTTPClient, options ...Option) (*Synchronizer, *core.MemoryCatalogStore) {
	t.Helper()
	catalog := core.NewMemoryCatalogStore(core.EndpointContext{
		Name:     "default",
		Selected: true,
		Endpoints: []core.Endpoint{
			{ID: "manual", URL: "https://manual.example.com"},
			{ID: "foreign", URL: "https://foreign.example.com", RegistryID: "reg-b"},
			{ID: "svc1", URL: "https://old.example.com", RegistryID: "reg-a"},
			{ID: "stale", URL: "https://stale.example.com", RegistryID: "reg-a"},
		},
	})
	options = append([]Option{WithHTTPClient(client)}, options...)
	synchronizer, err := NewSynchronizer(catalog, options...)
	if err != nil {
		t.Fatalf("new synchronizer: %v", err)
	}
	return synchronizer, catalog
}

const regABase = "https://reg-a.example.com"

func listingBody() string {
	return `[
		{"id": "svc1", "url": "https://new.example.com", "type": "rest"},
		{"id": "svc2", "url": "https://svc2.example.com"}
	]`
}

func TestSynchronizer_SyncScopedDiff(t *testing.T) {
	client := &fakeHTTPClient{responses: map[string]cannedResponse{
		regABase + "/services": {status: 200, body: listingBody()},
	}}
	synchronizer, catalog := newSyncFixture(t, client)
	recorder := &syncRecorder{}
	recorder.subscribe(t, synchronizer.Bus())

	result, err := synchronizer.Sync(context.Background(), "reg-a", regABase)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	if len(result.Updated) != 1 || result.Updated[0] != "svc1" {
		t.Fatalf("expected svc1 updated, got %v", result.Updated)
	}
	if len(result.Added) != 1 || result.Added[0] != "svc2" {
		t.Fatalf("expected svc2 added, got %v", result.Added)
	}
	if len(result.Removed) != 1 || result.Removed[0] != "stale" {
		t.Fatalf("expected stale removed, got %v", result.Removed)
	}

	wantActions := []string{ActionUpdate, ActionAdd, ActionRemove}
	wantEndpoints := []string{"svc1", "svc2", "stale"}
	if len(recorder.actions) != len(wantActions) {
		t.Fatalf("expected %v events, got %v", wantActions, recorder.actions)
	}
	for idx := range wantActions {
		if recorder.actions[idx] != wantActions[idx] || recorder.endpoints[idx] != wantEndpoints[idx] {
			t.Fatalf("expected %v/%v, got %v/%v", wantActions, wantEndpoints, recorder.actions, recorder.endpoints)
		}
	}

	saved, err := catalog.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := saved.Endpoint("manual"); !ok {
		t.Fatalf("manual endpoint must never be touched")
	}
	if foreign, ok := saved.Endpoint("foreign"); !ok || foreign.RegistryID != "reg-b" {
		t.Fatalf("foreign-owned endpoint must never be touched, got %+v", foreign)
	}
	if _, ok := saved.Endpoint("stale"); ok {
		t.Fatalf("stale endpoint should be removed")
	}
	updated, _ := saved.Endpoint("svc1")
	if updated.URL != "https://new.example.com" || updated.RegistryID != "reg-a" {
		t.Fatalf("unexpected svc1 after sync: %+v", updated)
	}
	if added, ok := saved.Endpoint("svc2"); !ok || added.RegistryID != "reg-a" {
		t.Fatalf("expected svc2 imported with ownership tag, got %+v", added)
	}
}

func TestSynchronizer_ReSyncStability(t *testing.T) {
	client := &fakeHTTPClient{responses: map[string]cannedResponse{
		regABase + "/services": {status: 200, body: listingBody()},
	}}
	synchronizer, _ := newSyncFixture(t, client)

	ctx := context.Background()
	if _, err := synchronizer.Sync(ctx, "reg-a", regABase); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	recorder := &syncRecorder{}
	recorder.subscribe(t, synchronizer.Bus())
	result, err := synchronizer.Sync(ctx, "reg-a", regABase)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}

	if len(result.Added) != 0 || len(result.Updated) != 0 || len(result.Removed) != 0 {
		t.Fatalf("expected all-keep on unchanged listing, got %+v", result)
	}
	if len(result.Kept) != 2 {
		t.Fatalf("expected two keeps, got %v", result.Kept)
	}
	for _, action := range recorder.actions {
		if action != ActionKeep {
			t.Fatalf("expected only keep events, got %v", recorder.actions)
		}
	}
}

func TestSynchronizer_IdCollisionWithForeignOwnerSkipped(t *testing.T) {
	client := &fakeHTTPClient{responses: map[string]cannedResponse{
		regABase + "/services": {status: 200, body: `[
			{"id": "foreign", "url": "https://hijack.example.com"},
			{"id": "manual", "url": "https://hijack.example.com"}
		]`},
	}}
	synchronizer, catalog := newSyncFixture(t, client)
	recorder := &syncRecorder{}
	recorder.subscribe(t, synchronizer.Bus())

	result, err := synchronizer.Sync(context.Background(), "reg-a", regABase)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(result.Added) != 0 || len(result.Updated) != 0 {
		t.Fatalf("colliding ids must be skipped, got %+v", result)
	}

	saved, _ := catalog.Load(context.Background())
	foreign, _ := saved.Endpoint("foreign")
	if foreign.URL != "https://foreign.example.com" || foreign.RegistryID != "reg-b" {
		t.Fatalf("foreign endpoint was touched: %+v", foreign)
	}
	manual, _ := saved.Endpoint("manual")
	if manual.URL != "https://manual.example.com" || manual.RegistryID != "" {
		t.Fatalf("manual endpoint was touched: %+v", manual)
	}
	for _, id := range recorder.endpoints {
		if id == "foreign" || id == "manual" {
			t.Fatalf("skipped endpoints must not produce events, got %v", recorder.endpoints)
		}
	}
}

func TestSynchronizer_SyncRemovalScopedByOwnershipTag(t *testing.T) {
	// Registry A's listing is empty: only A-owned endpoints may be removed.
	client := &fakeHTTPClient{responses: map[string]cannedResponse{
		regABase + "/services": {status: 200, body: `[]`},
	}}
	synchronizer, catalog := newSyncFixture(t, client)

	result, err := synchronizer.Sync(context.Background(), "reg-a", regABase)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(result.Removed) != 2 {
		t.Fatalf("expected both reg-a endpoints removed, got %v", result.Removed)
	}

	saved, _ := catalog.Load(context.Background())
	if len(saved.Endpoints) != 2 {
		t.Fatalf("expected manual and foreign endpoints to survive, got %+v", saved.Endpoints)
	}
	if _, ok := saved.Endpoint("manual"); !ok {
		t.Fatalf("manual endpoint removed by scoped sync")
	}
	if _, ok := saved.Endpoint("foreign"); !ok {
		t.Fatalf("foreign endpoint removed by scoped sync")
	}
}

func TestSynchronizer_DiscoverProbesCandidatesInOrder(t *testing.T) {
	base := "https://registry.example.com"
	client := &fakeHTTPClient{responses: map[string]cannedResponse{
		// Root connection-refused (absent), first path serves HTML, second
		// path is the registry.
		base + "/service-registry/services":     {status: 200, contentType: "text/html", body: "<html></html>"},
		base + "/api/service-registry/services": {status: 200, body: `[]`},
	}}
	synchronizer, err := NewSynchronizer(core.NewMemoryCatalogStore(core.EndpointContext{Name: "default", Selected: true}),
		WithHTTPClient(client))
	if err != nil {
		t.Fatalf("new synchronizer: %v", err)
	}

	resolved, err := synchronizer.Discover(context.Background(), "registry.example.com")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if resolved != base+"/api/service-registry" {
		t.Fatalf("unexpected resolved base %q", resolved)
	}

	want := []string{
		base + "/services",
		base + "/service-registry/services",
		base + "/api/service-registry/services",
	}
	if len(client.requested) != len(want) {
		t.Fatalf("expected probes %v, got %v", want, client.requested)
	}
	for idx := range want {
		if client.requested[idx] != want[idx] {
			t.Fatalf("expected probes %v, got %v", want, client.requested)
		}
	}
}

func TestNewSynchronizerFromConfigAppliesRegistrySection(t *testing.T) {
	base := "https://registry.example.com"
	client := &fakeHTTPClient{responses: map[string]cannedResponse{
		base + "/custom/services": {status: 200, body: `[]`},
	}}
	synchronizer, err := NewSynchronizerFromConfig(context.Background(),
		core.NewMemoryCatalogStore(core.EndpointContext{Name: "default", Selected: true}),
		nil,
		core.Config{Registry: core.RegistryConfig{DiscoveryPaths: []string{"custom/"}}},
		WithHTTPClient(client))
	if err != nil {
		t.Fatalf("new synchronizer from config: %v", err)
	}

	resolved, err := synchronizer.Discover(context.Background(), "registry.example.com")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if resolved != base+"/custom" {
		t.Fatalf("unexpected resolved base %q", resolved)
	}
	if len(client.requested) != 1 || client.requested[0] != base+"/custom/services" {
		t.Fatalf("expected configured probe path only, got %v", client.requested)
	}
}

func TestSynchronizer_DiscoverNoMatch(t *testing.T) {
	client := &fakeHTTPClient{responses: map[string]cannedResponse{}}
	synchronizer, err := NewSynchronizer(core.NewMemoryCatalogStore(core.EndpointContext{Name: "default", Selected: true}),
		WithHTTPClient(client))
	if err != nil {
		t.Fatalf("new synchronizer: %v", err)
	}
	_, err = synchronizer.Discover(context.Background(), "nowhere.example.com")
	if !errors.Is(err, core.ErrInvalidServiceRegistry) {
		t.Fatalf("expected ErrInvalidServiceRegistry, got %v", err)
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if richErr.TextCode != core.EndpointsErrorRegistryInvalid {
		t.Fatalf("expected %q text code, got %q", core.EndpointsErrorRegistryInvalid, richErr.TextCode)
	}
}

type useFactory struct{}

func (useFactory) Build(id string, _ core.AuthConfig, _ *events.Bus) (core.Authenticator, error) {
	return &useAuthenticator{id: id}, nil
}

type useAuthenticator struct {
	id     string
	status core.AuthStatus
}

func (a *useAuthenticator) Kind() string { return "fake" }

func (a *useAuthenticator) RestoreSession(context.Context) (core.RestoreResult, error) {
	return core.RestoreResult{Outcome: core.RestoreAuthRequired}, nil
}

func (a *useAuthenticator) Authenticate(context.Context) (core.SessionInfo, error) {
	a.status = core.AuthStatusReady
	return core.SessionInfo{AccessToken: "token", RefreshToken: "refresh"}, nil
}

func (a *useAuthenticator) Refresh(context.Context) (core.SessionInfo, error) {
	return core.SessionInfo{}, core.ErrFeatureNotAvailable
}

func (a *useAuthenticator) Revoke(context.Context) error { return nil }

func (a *useAuthenticator) State() core.AuthState {
	return core.AuthState{AuthenticatorKind: "fake", ID: a.id, Status: a.status}
}

func TestSynchronizer_UseSyncsSelectsAndAuthenticates(t *testing.T) {
	base := "https://reg-a.example.com"
	client := &fakeHTTPClient{responses: map[string]cannedResponse{
		base + "/services": {status: 200, body: `[{"id": "svc1", "url": "https://svc1.example.com", "authentication": {"client_id": "X", "client_secret": "Y"}}]`},
	}}
	catalog := core.NewMemoryCatalogStore(core.EndpointContext{Name: "default", Selected: true})

	manager, err := session.NewManager(catalog, useFactory{})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	synchronizer, err := NewSynchronizer(catalog,
		WithHTTPClient(client),
		WithSessionManager(manager),
	)
	if err != nil {
		t.Fatalf("new synchronizer: %v", err)
	}

	authEnds := 0
	if err := synchronizer.Bus().On(core.EventAuthEnd, events.HandlerFunc(func(*events.Event) error {
		authEnds++
		return nil
	})); err != nil {
		t.Fatalf("subscribe auth-end: %v", err)
	}

	endpointContext, err := synchronizer.Use(context.Background(), base, UseOptions{ContextName: "staging"})
	if err != nil {
		t.Fatalf("use: %v", err)
	}
	if endpointContext.Name != "staging" {
		t.Fatalf("expected staging context selected, got %q", endpointContext.Name)
	}
	imported, ok := endpointContext.Endpoint("svc1")
	if !ok || imported.RegistryID != "reg-a.example.com" {
		t.Fatalf("expected svc1 imported with host ownership tag, got %+v", imported)
	}
	if authEnds != 1 {
		t.Fatalf("expected manager events relayed through the context bus, got %d auth-ends", authEnds)
	}
}

func TestSynchronizer_UseNoAuthEmitsAuthDisabled(t *testing.T) {
	base := "https://reg-a.example.com"
	client := &fakeHTTPClient{responses: map[string]cannedResponse{
		base + "/services": {status: 200, body: `[{"id": "svc1", "url": "https://svc1.example.com"}]`},
	}}
	catalog := core.NewMemoryCatalogStore(core.EndpointContext{Name: "default", Selected: true})
	manager, err := session.NewManager(catalog, useFactory{})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	synchronizer, err := NewSynchronizer(catalog,
		WithHTTPClient(client),
		WithSessionManager(manager),
	)
	if err != nil {
		t.Fatalf("new synchronizer: %v", err)
	}

	disabled := 0
	authBegins := 0
	if err := synchronizer.Bus().On(core.EventAuthDisabled, events.HandlerFunc(func(*events.Event) error {
		disabled++
		return nil
	})); err != nil {
		t.Fatalf("subscribe auth-disabled: %v", err)
	}
	if err := synchronizer.Bus().On(core.EventAuthBegin, events.HandlerFunc(func(*events.Event) error {
		authBegins++
		return nil
	})); err != nil {
		t.Fatalf("subscribe auth-begin: %v", err)
	}

	if _, err := synchronizer.Use(context.Background(), base, UseOptions{NoAuth: true}); err != nil {
		t.Fatalf("use: %v", err)
	}
	if disabled != 1 {
		t.Fatalf("expected one auth-disabled event, got %d", disabled)
	}
	if authBegins != 0 {
		t.Fatalf("expected no authentication pass with NoAuth, got %d auth-begins", authBegins)
	}
}
