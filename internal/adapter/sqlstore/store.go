// Package sqlstore rebuilds warehouse tables through database/sql. It
// supports SQLite (modernc.org/sqlite) and MySQL (go-sql-driver/mysql).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // registers the "mysql" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/couchcryptid/fuel-price-etl/internal/warehouse"
)

// Store is a warehouse.Backend over a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect warehouse.Dialect
}

// Open connects to driver ("sqlite" or "mysql") and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var dialect warehouse.Dialect
	switch driver {
	case "sqlite":
		dialect = warehouse.SQLite
	case "mysql":
		dialect = warehouse.MySQL
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// One connection keeps ":memory:" databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return New(db, dialect), nil
}

// New wraps an existing database handle.
func New(db *sql.DB, dialect warehouse.Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Dialect returns the SQL dialect of the store.
func (s *Store) Dialect() warehouse.Dialect { return s.dialect }

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// DropTable drops name if it exists.
func (s *Store) DropTable(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, s.dialect.DropTable(name))
	return err
}

// Materialize creates t and inserts its rows in one transaction. MySQL
// commits DDL implicitly, so there the table is created first and dropped
// again if the inserts fail.
func (s *Store) Materialize(ctx context.Context, t warehouse.Table) error {
	if s.dialect.Name == warehouse.MySQL.Name {
		if _, err := s.db.ExecContext(ctx, s.dialect.CreateTable(t)); err != nil {
			return fmt.Errorf("create: %w", err)
		}
		err := s.inTx(ctx, func(tx *sql.Tx) error { return s.insertRows(ctx, tx, t) })
		if err != nil {
			if dropErr := s.DropTable(ctx, t.Name); dropErr != nil {
				return errors.Join(err, fmt.Errorf("drop after failed insert: %w", dropErr))
			}
		}
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.dialect.CreateTable(t)); err != nil {
			return fmt.Errorf("create: %w", err)
		}
		return s.insertRows(ctx, tx, t)
	})
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) insertRows(ctx context.Context, tx *sql.Tx, t warehouse.Table) error {
	if len(t.Rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, s.dialect.Insert(t))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range t.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert row %d: %w", i+1, err)
		}
	}
	return nil
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	return s.QueryCount(ctx, "SELECT COUNT(*) FROM "+s.dialect.Quote(table))
}

// QueryCount runs a query returning a single integer.
func (s *Store) QueryCount(ctx context.Context, query string) (int64, error) {
	var n sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n.Int64, nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
