package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-endpoints/core"
)

// CatalogStore persists endpoint contexts in SQL via bun. Save replaces the
// whole context transactionally, matching the whole-context atomicity the
// catalog contract assumes; Load returns the selected context with its
// endpoints in position order.
type CatalogStore struct {
	db        *bun.DB
	contexts  repository.Repository[*contextRecord]
	endpoints repository.Repository[*endpointRecord]
}

func (s *CatalogStore) Load(ctx context.Context) (core.EndpointContext, error) {
	if s == nil || s.db == nil {
		return core.EndpointContext{}, fmt.Errorf("sqlstore: catalog store is not configured")
	}
	record := new(contextRecord)
	err := s.db.NewSelect().Model(record).Where("selected = ?", true).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.EndpointContext{}, fmt.Errorf("sqlstore: no context selected")
		}
		return core.EndpointContext{}, err
	}
	return s.loadContext(ctx, record)
}

func (s *CatalogStore) loadContext(ctx context.Context, record *contextRecord) (core.EndpointContext, error) {
	entries, _, err := s.endpoints.List(ctx,
		repository.SelectBy("context_id", "=", record.ID),
		repository.OrderBy("position ASC"),
	)
	if err != nil {
		return core.EndpointContext{}, err
	}

	endpointContext := core.EndpointContext{
		ID:       record.ID,
		Name:     record.Name,
		Selected: record.Selected,
	}
	for _, entry := range entries {
		endpoint, err := entry.toDomain()
		if err != nil {
			return core.EndpointContext{}, err
		}
		endpointContext.Endpoints = append(endpointContext.Endpoints, endpoint)
	}
	return endpointContext, nil
}

func (s *CatalogStore) Save(ctx context.Context, endpointContext core.EndpointContext) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: catalog store is not configured")
	}
	name := strings.TrimSpace(endpointContext.Name)
	if name == "" {
		return core.ErrContextNameRequired
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()

		record := new(contextRecord)
		err := tx.NewSelect().Model(record).Where("name = ?", name).Limit(1).Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			record = &contextRecord{
				ID:        uuid.NewString(),
				Name:      name,
				Selected:  endpointContext.Selected,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			record.Selected = record.Selected || endpointContext.Selected
			record.UpdatedAt = now
			if _, err := tx.NewUpdate().Model(record).WherePK().Exec(ctx); err != nil {
				return err
			}
		}

		if endpointContext.Selected {
			if err := deselectOthers(ctx, tx, record.ID, now); err != nil {
				return err
			}
		}

		if _, err := tx.NewDelete().
			Model((*endpointRecord)(nil)).
			Where("context_id = ?", record.ID).
			Exec(ctx); err != nil {
			return err
		}

		for position, endpoint := range endpointContext.Endpoints {
			if err := endpoint.Validate(); err != nil {
				return err
			}
			entry, err := newEndpointRecord(record.ID, endpoint, position, now)
			if err != nil {
				return err
			}
			entry.ID = uuid.NewString()
			if _, err := tx.NewInsert().Model(entry).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// Select loads the named context, creating it when absent, and marks it the
// single selected context. The bool result reports whether it already
// existed.
func (s *CatalogStore) Select(ctx context.Context, name string) (core.EndpointContext, bool, error) {
	if s == nil || s.db == nil {
		return core.EndpointContext{}, false, fmt.Errorf("sqlstore: catalog store is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.EndpointContext{}, false, core.ErrContextNameRequired
	}

	found := false
	record := new(contextRecord)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()
		err := tx.NewSelect().Model(record).Where("name = ?", name).Limit(1).Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			record = &contextRecord{
				ID:        uuid.NewString(),
				Name:      name,
				Selected:  true,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			found = true
			record.Selected = true
			record.UpdatedAt = now
			if _, err := tx.NewUpdate().Model(record).WherePK().Exec(ctx); err != nil {
				return err
			}
		}
		return deselectOthers(ctx, tx, record.ID, now)
	})
	if err != nil {
		return core.EndpointContext{}, false, err
	}

	endpointContext, err := s.loadContext(ctx, record)
	if err != nil {
		return core.EndpointContext{}, found, err
	}
	return endpointContext, found, nil
}

// ContextNames lists every stored context name in creation order.
func (s *CatalogStore) ContextNames(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: catalog store is not configured")
	}
	records, _, err := s.contexts.List(ctx, repository.OrderBy("created_at ASC"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(records))
	for _, record := range records {
		names = append(names, record.Name)
	}
	return names, nil
}

func deselectOthers(ctx context.Context, tx bun.Tx, keepID string, now time.Time) error {
	_, err := tx.NewUpdate().
		Model((*contextRecord)(nil)).
		Set("selected = ?", false).
		Set("updated_at = ?", now).
		Where("id != ?", keepID).
		Where("selected = ?", true).
		Exec(ctx)
	return err
}

var (
	_ core.CatalogStore    = (*CatalogStore)(nil)
	_ core.ContextSelector = (*CatalogStore)(nil)
)
