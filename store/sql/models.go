package sqlstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-endpoints/core"
)

type contextRecord struct {
	bun.BaseModel `bun:"table:endpoint_contexts,alias:ec"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull,unique"`
	Selected  bool      `bun:"selected,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// endpointRecord persists one catalog entry. EndpointID is the domain
// identifier, unique per context; Position preserves catalog order across
// whole-context replacement. Auth payloads are serialized JSON so the shape
// is identical across dialects.
type endpointRecord struct {
	bun.BaseModel `bun:"table:endpoint_entries,alias:ee"`

	ID           string    `bun:"id,pk"`
	ContextID    string    `bun:"context_id,notnull"`
	EndpointID   string    `bun:"endpoint_id,notnull"`
	URL          string    `bun:"url,notnull"`
	Type         string    `bun:"type"`
	AuthJSON     string    `bun:"auth"`
	FallbackJSON string    `bun:"fallback_auth"`
	RegistryID   string    `bun:"registry_id"`
	Position     int       `bun:"position,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newEndpointRecord(contextID string, endpoint core.Endpoint, position int, now time.Time) (*endpointRecord, error) {
	record := &endpointRecord{
		ContextID:  contextID,
		EndpointID: endpoint.ID,
		URL:        endpoint.URL,
		Type:       endpoint.Type,
		RegistryID: endpoint.RegistryID,
		Position:   position,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if !endpoint.Auth.IsZero() {
		payload, err := json.Marshal(endpoint.Auth)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: marshal auth for endpoint %q: %w", endpoint.ID, err)
		}
		record.AuthJSON = string(payload)
	}
	if len(endpoint.FallbackAuth) > 0 {
		payload, err := json.Marshal(endpoint.FallbackAuth)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: marshal fallback auth for endpoint %q: %w", endpoint.ID, err)
		}
		record.FallbackJSON = string(payload)
	}
	return record, nil
}

func (r *endpointRecord) toDomain() (core.Endpoint, error) {
	endpoint := core.Endpoint{
		ID:         r.EndpointID,
		URL:        r.URL,
		Type:       r.Type,
		RegistryID: r.RegistryID,
	}
	if r.AuthJSON != "" {
		if err := json.Unmarshal([]byte(r.AuthJSON), &endpoint.Auth); err != nil {
			return core.Endpoint{}, fmt.Errorf("sqlstore: unmarshal auth for endpoint %q: %w", r.EndpointID, err)
		}
	}
	if r.FallbackJSON != "" {
		if err := json.Unmarshal([]byte(r.FallbackJSON), &endpoint.FallbackAuth); err != nil {
			return core.Endpoint{}, fmt.Errorf("sqlstore: unmarshal fallback auth for endpoint %q: %w", r.EndpointID, err)
		}
	}
	return endpoint, nil
}
