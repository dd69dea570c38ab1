package command

import (
	"strings"

	"github.com/goliatone/go-endpoints/registry"
	"github.com/goliatone/go-endpoints/session"
)

const (
	TypeAuthenticate = "endpoints.command.authenticate"
	TypeRevoke       = "endpoints.command.revoke"
	TypeSyncRegistry = "endpoints.command.registry.sync"
	TypeUse          = "endpoints.command.registry.use"
)

// AuthenticateMessage triggers a bulk authentication pass. Empty endpoint ids
// mean every endpoint in the selected context.
type AuthenticateMessage struct {
	Options session.AuthenticateOptions
}

func (AuthenticateMessage) Type() string { return TypeAuthenticate }

func (m AuthenticateMessage) Validate() error {
	for _, id := range m.Options.EndpointIDs {
		if strings.TrimSpace(id) == "" {
			return commandInvalidInputError("command: endpoint id must not be blank")
		}
	}
	return nil
}

type RevokeMessage struct {
	Options session.RevokeOptions
}

func (RevokeMessage) Type() string { return TypeRevoke }

func (m RevokeMessage) Validate() error {
	for _, id := range m.Options.EndpointIDs {
		if strings.TrimSpace(id) == "" {
			return commandInvalidInputError("command: endpoint id must not be blank")
		}
	}
	return nil
}

type SyncRegistryMessage struct {
	RegistryID string
	BaseURL    string
}

func (SyncRegistryMessage) Type() string { return TypeSyncRegistry }

func (m SyncRegistryMessage) Validate() error {
	if strings.TrimSpace(m.RegistryID) == "" {
		return commandInvalidInputError("command: registry id is required")
	}
	if strings.TrimSpace(m.BaseURL) == "" {
		return commandInvalidInputError("command: registry base url is required")
	}
	return nil
}

type UseMessage struct {
	HostnameOrURL string
	Options       registry.UseOptions
}

func (UseMessage) Type() string { return TypeUse }

func (m UseMessage) Validate() error {
	if strings.TrimSpace(m.HostnameOrURL) == "" {
		return commandInvalidInputError("command: registry hostname or url is required")
	}
	return nil
}
