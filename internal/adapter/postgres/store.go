// Package postgres rebuilds warehouse tables in PostgreSQL using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/fuel-price-etl/internal/warehouse"
)

// uniqueViolation is the SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// Store is a warehouse.Backend backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and verifies the connection.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Dialect returns the Postgres dialect.
func (s *Store) Dialect() warehouse.Dialect { return warehouse.Postgres }

// DropTable drops name if it exists.
func (s *Store) DropTable(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, warehouse.Postgres.DropTable(name))
	return err
}

// Materialize creates t and bulk loads its rows with COPY in one transaction.
func (s *Store) Materialize(ctx context.Context, t warehouse.Table) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, warehouse.Postgres.CreateTable(t)); err != nil {
		return fmt.Errorf("create: %w", err)
	}
	if len(t.Rows) > 0 {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{t.Name}, t.ColumnNames(), pgx.CopyFromRows(t.Rows))
		if err != nil {
			return copyError(err)
		}
		if n != int64(len(t.Rows)) {
			return fmt.Errorf("copy: wrote %d of %d rows", n, len(t.Rows))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func copyError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("copy: duplicate key %s: %w", pgErr.ConstraintName, err)
	}
	return fmt.Errorf("copy: %w", err)
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	return s.QueryCount(ctx, "SELECT COUNT(*) FROM "+warehouse.Postgres.Quote(table))
}

// QueryCount runs a query returning a single integer.
func (s *Store) QueryCount(ctx context.Context, query string) (int64, error) {
	var n *int64
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	if n == nil {
		return 0, nil
	}
	return *n, nil
}

// CheckReadiness pings the pool.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
