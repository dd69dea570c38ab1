// Package sqlstore persists the endpoint catalog in SQL through bun.
package sqlstore

import (
	"database/sql"
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type RepositoryFactory struct {
	db *bun.DB

	catalogStore *CatalogStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// OpenPostgres builds a factory over a Postgres connection string.
func OpenPostgres(dsn string) (*RepositoryFactory, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
	}
	return NewRepositoryFactoryFromDB(bun.NewDB(sqlDB, pgdialect.New()))
}

// OpenSQLite builds a factory over a sqlite DSN, e.g. a file path or
// file::memory:?cache=shared.
func OpenSQLite(dsn string) (*RepositoryFactory, error) {
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open sqlite: %w", err)
	}
	return NewRepositoryFactoryFromDB(bun.NewDB(sqlDB, sqlitedialect.New()))
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.catalogStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) CatalogStore() *CatalogStore {
	if f == nil {
		return nil
	}
	return f.catalogStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	contextRepo := repository.NewRepository[*contextRecord](f.db, contextHandlers())
	if validator, ok := contextRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid context repository wiring: %w", err)
		}
	}
	endpointRepo := repository.NewRepository[*endpointRecord](f.db, endpointHandlers())
	if validator, ok := endpointRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid endpoint repository wiring: %w", err)
		}
	}

	f.catalogStore = &CatalogStore{
		db:        f.db,
		contexts:  contextRepo,
		endpoints: endpointRepo,
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
