// Package command exposes the session manager and registry synchronizer as
// go-command messages, so host applications dispatch operations instead of
// holding service references.
package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-endpoints/core"
	"github.com/goliatone/go-endpoints/registry"
	"github.com/goliatone/go-endpoints/session"
)

type SessionService interface {
	GetStates(ctx context.Context, endpointIDs ...string) ([]core.ExtendedAuthState, error)
	InitiateAuthentications(ctx context.Context, options session.AuthenticateOptions) error
	Revoke(ctx context.Context, options session.RevokeOptions) ([]string, error)
}

type RegistryService interface {
	Sync(ctx context.Context, registryID string, baseURL string) (registry.SyncResult, error)
	Use(ctx context.Context, hostnameOrURL string, options registry.UseOptions) (core.EndpointContext, error)
}

type AuthenticateCommand struct {
	service SessionService
}

func NewAuthenticateCommand(service SessionService) *AuthenticateCommand {
	return &AuthenticateCommand{service: service}
}

// Execute runs the authentication pass and stores the resulting states for
// the requested endpoint set.
func (c *AuthenticateCommand) Execute(ctx context.Context, msg AuthenticateMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	if err := c.service.InitiateAuthentications(ctx, msg.Options); err != nil {
		return err
	}
	states, err := c.service.GetStates(ctx, msg.Options.EndpointIDs...)
	if err != nil {
		return err
	}
	storeResult(ctx, states)
	return nil
}

type RevokeCommand struct {
	service SessionService
}

func NewRevokeCommand(service SessionService) *RevokeCommand {
	return &RevokeCommand{service: service}
}

func (c *RevokeCommand) Execute(ctx context.Context, msg RevokeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	affected, err := c.service.Revoke(ctx, msg.Options)
	if err != nil {
		return err
	}
	storeResult(ctx, affected)
	return nil
}

type SyncRegistryCommand struct {
	service RegistryService
}

func NewSyncRegistryCommand(service RegistryService) *SyncRegistryCommand {
	return &SyncRegistryCommand{service: service}
}

func (c *SyncRegistryCommand) Execute(ctx context.Context, msg SyncRegistryMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: registry service is required")
	}
	result, err := c.service.Sync(ctx, msg.RegistryID, msg.BaseURL)
	if err != nil {
		return err
	}
	storeResult(ctx, result)
	return nil
}

type UseCommand struct {
	service RegistryService
}

func NewUseCommand(service RegistryService) *UseCommand {
	return &UseCommand{service: service}
}

func (c *UseCommand) Execute(ctx context.Context, msg UseMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: registry service is required")
	}
	endpointContext, err := c.service.Use(ctx, msg.HostnameOrURL, msg.Options)
	if err != nil {
		return err
	}
	storeResult(ctx, endpointContext)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
