package command

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-endpoints/core"
	"github.com/goliatone/go-endpoints/registry"
	"github.com/goliatone/go-endpoints/session"
)

type stubSessionService struct {
	getStatesFn    func(ctx context.Context, endpointIDs ...string) ([]core.ExtendedAuthState, error)
	authenticateFn func(ctx context.Context, options session.AuthenticateOptions) error
	revokeFn       func(ctx context.Context, options session.RevokeOptions) ([]string, error)
}

func (s stubSessionService) GetStates(ctx context.Context, endpointIDs ...string) ([]core.ExtendedAuthState, error) {
	if s.getStatesFn == nil {
		return nil, nil
	}
	return s.getStatesFn(ctx, endpointIDs...)
}

func (s stubSessionService) InitiateAuthentications(ctx context.Context, options session.AuthenticateOptions) error {
	if s.authenticateFn == nil {
		return nil
	}
	return s.authenticateFn(ctx, options)
}

func (s stubSessionService) Revoke(ctx context.Context, options session.RevokeOptions) ([]string, error) {
	if s.revokeFn == nil {
		return nil, nil
	}
	return s.revokeFn(ctx, options)
}

type stubRegistryService struct {
	syncFn func(ctx context.Context, registryID string, baseURL string) (registry.SyncResult, error)
	useFn  func(ctx context.Context, hostnameOrURL string, options registry.UseOptions) (core.EndpointContext, error)
}

func (s stubRegistryService) Sync(ctx context.Context, registryID string, baseURL string) (registry.SyncResult, error) {
	if s.syncFn == nil {
		return registry.SyncResult{}, nil
	}
	return s.syncFn(ctx, registryID, baseURL)
}

func (s stubRegistryService) Use(ctx context.Context, hostnameOrURL string, options registry.UseOptions) (core.EndpointContext, error) {
	if s.useFn == nil {
		return core.EndpointContext{}, nil
	}
	return s.useFn(ctx, hostnameOrURL, options)
}

func TestAuthenticateCommand_ExecuteDelegatesAndStoresStates(t *testing.T) {
	authenticated := false
	svc := stubSessionService{
		authenticateFn: func(_ context.Context, options session.AuthenticateOptions) error {
			authenticated = true
			if !options.ForceRefresh {
				t.Fatalf("expected force refresh to pass through")
			}
			return nil
		},
		getStatesFn: func(_ context.Context, endpointIDs ...string) ([]core.ExtendedAuthState, error) {
			if len(endpointIDs) != 1 || endpointIDs[0] != "E1" {
				t.Fatalf("unexpected endpoint filter: %v", endpointIDs)
			}
			return []core.ExtendedAuthState{{
				AuthState: core.AuthState{Status: core.AuthStatusReady},
				Endpoints: []string{"E1"},
			}}, nil
		},
	}

	cmd := NewAuthenticateCommand(svc)
	collector := gocmd.NewResult[[]core.ExtendedAuthState]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, AuthenticateMessage{Options: session.AuthenticateOptions{
		EndpointIDs:  []string{"E1"},
		ForceRefresh: true,
	}})
	if err != nil {
		t.Fatalf("execute authenticate: %v", err)
	}
	if !authenticated {
		t.Fatalf("expected authentication invocation")
	}
	states, ok := collector.Load()
	if !ok {
		t.Fatalf("expected states to be stored")
	}
	if len(states) != 1 || states[0].Status != core.AuthStatusReady {
		t.Fatalf("unexpected stored states: %#v", states)
	}
}

func TestRevokeCommand_ExecuteStoresAffectedEndpoints(t *testing.T) {
	svc := stubSessionService{
		revokeFn: func(_ context.Context, options session.RevokeOptions) ([]string, error) {
			if len(options.EndpointIDs) != 1 || options.EndpointIDs[0] != "E1" {
				t.Fatalf("unexpected revoke filter: %v", options.EndpointIDs)
			}
			return []string{"E1", "E2"}, nil
		},
	}

	cmd := NewRevokeCommand(svc)
	collector := gocmd.NewResult[[]string]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, RevokeMessage{Options: session.RevokeOptions{EndpointIDs: []string{"E1"}}}); err != nil {
		t.Fatalf("execute revoke: %v", err)
	}
	affected, ok := collector.Load()
	if !ok {
		t.Fatalf("expected affected endpoints to be stored")
	}
	if len(affected) != 2 || affected[0] != "E1" || affected[1] != "E2" {
		t.Fatalf("unexpected affected endpoints: %v", affected)
	}
}

func TestSyncRegistryCommand_ExecuteStoresResult(t *testing.T) {
	svc := stubRegistryService{
		syncFn: func(_ context.Context, registryID string, baseURL string) (registry.SyncResult, error) {
			if registryID != "reg-a" || baseURL != "https://reg-a.example.com" {
				t.Fatalf("unexpected sync input: %q %q", registryID, baseURL)
			}
			return registry.SyncResult{SyncID: "sync_1", Added: []string{"svc1"}}, nil
		},
	}

	cmd := NewSyncRegistryCommand(svc)
	collector := gocmd.NewResult[registry.SyncResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, SyncRegistryMessage{RegistryID: "reg-a", BaseURL: "https://reg-a.example.com"})
	if err != nil {
		t.Fatalf("execute sync: %v", err)
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected sync result to be stored")
	}
	if result.SyncID != "sync_1" || len(result.Added) != 1 {
		t.Fatalf("unexpected sync result: %#v", result)
	}
}

func TestUseCommand_ExecuteStoresContext(t *testing.T) {
	svc := stubRegistryService{
		useFn: func(_ context.Context, hostnameOrURL string, options registry.UseOptions) (core.EndpointContext, error) {
			if hostnameOrURL != "registry.example.com" || options.ContextName != "staging" {
				t.Fatalf("unexpected use input: %q %#v", hostnameOrURL, options)
			}
			return core.EndpointContext{Name: "staging", Selected: true}, nil
		},
	}

	cmd := NewUseCommand(svc)
	collector := gocmd.NewResult[core.EndpointContext]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, UseMessage{
		HostnameOrURL: "registry.example.com",
		Options:       registry.UseOptions{ContextName: "staging"},
	})
	if err != nil {
		t.Fatalf("execute use: %v", err)
	}
	stored, ok := collector.Load()
	if !ok {
		t.Fatalf("expected context to be stored")
	}
	if stored.Name != "staging" {
		t.Fatalf("unexpected stored context: %#v", stored)
	}
}

func TestCommands_ErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	svc := stubSessionService{
		authenticateFn: func(context.Context, session.AuthenticateOptions) error { return boom },
	}
	if err := NewAuthenticateCommand(svc).Execute(context.Background(), AuthenticateMessage{}); !errors.Is(err, boom) {
		t.Fatalf("expected service error to propagate, got %v", err)
	}

	var nilCmd *RevokeCommand
	if err := nilCmd.Execute(context.Background(), RevokeMessage{}); err == nil {
		t.Fatalf("expected dependency error from nil command")
	}
}

func TestMessages_Validate(t *testing.T) {
	if err := (SyncRegistryMessage{}).Validate(); err == nil {
		t.Fatalf("expected registry id requirement")
	}
	if err := (SyncRegistryMessage{RegistryID: "reg-a"}).Validate(); err == nil {
		t.Fatalf("expected base url requirement")
	}
	if err := (UseMessage{}).Validate(); err == nil {
		t.Fatalf("expected hostname requirement")
	}
	if err := (AuthenticateMessage{Options: session.AuthenticateOptions{EndpointIDs: []string{" "}}}).Validate(); err == nil {
		t.Fatalf("expected blank endpoint id rejection")
	}
	if err := (RevokeMessage{}).Validate(); err != nil {
		t.Fatalf("empty revoke message must validate: %v", err)
	}
}
