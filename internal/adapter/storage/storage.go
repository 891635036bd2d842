// Package storage opens the configured warehouse backend.
package storage

import (
	"context"
	"fmt"

	"github.com/couchcryptid/fuel-price-etl/internal/adapter/postgres"
	"github.com/couchcryptid/fuel-price-etl/internal/adapter/sqlstore"
	"github.com/couchcryptid/fuel-price-etl/internal/warehouse"
)

// Store is a warehouse backend that can also answer integrity queries.
type Store interface {
	warehouse.Backend
	Dialect() warehouse.Dialect
	Count(ctx context.Context, table string) (int64, error)
	QueryCount(ctx context.Context, query string) (int64, error)
	CheckReadiness(ctx context.Context) error
	Close() error
}

// Open connects to the store for driver: sqlite, mysql or postgres.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "mysql":
		s, err := sqlstore.Open(ctx, driver, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := postgres.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}

var (
	_ Store = (*sqlstore.Store)(nil)
	_ Store = (*postgres.Store)(nil)
)
