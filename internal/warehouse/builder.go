package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/couchcryptid/fuel-price-etl/internal/domain"
)

// Backend is a relational store the builder can rebuild tables in.
type Backend interface {
	// DropTable removes the table if it exists.
	DropTable(ctx context.Context, name string) error
	// Materialize creates t and inserts all of its rows. A failure must
	// leave no partially filled table behind.
	Materialize(ctx context.Context, t Table) error
}

// SchemaBuilder drops and recreates every output table. Tables are rebuilt
// one at a time; there is no atomicity across tables.
type SchemaBuilder struct {
	backend Backend
	logger  *slog.Logger
}

// NewSchemaBuilder creates a SchemaBuilder writing to backend.
func NewSchemaBuilder(backend Backend, logger *slog.Logger) *SchemaBuilder {
	return &SchemaBuilder{backend: backend, logger: logger}
}

// Build validates tables, drops every known table in reverse dependency
// order and recreates the given tables in dependency order. Validation
// failures are returned before the store is touched.
func (b *SchemaBuilder) Build(ctx context.Context, tables []Table) (domain.TableCounts, error) {
	ordered, err := orderTables(tables)
	if err != nil {
		return domain.TableCounts{}, err
	}
	for _, t := range ordered {
		if err := Validate(t); err != nil {
			return domain.TableCounts{}, err
		}
	}

	for _, name := range slices.Backward(CreateOrder) {
		if err := b.backend.DropTable(ctx, name); err != nil {
			return domain.TableCounts{}, &domain.SchemaError{Table: name, Err: fmt.Errorf("drop: %w", err)}
		}
	}

	var counts domain.TableCounts
	for _, t := range ordered {
		if err := b.backend.Materialize(ctx, t); err != nil {
			return counts, &domain.SchemaError{Table: t.Name, Err: err}
		}
		b.logger.Info("table rebuilt", "table", t.Name, "rows", len(t.Rows))
		setCount(&counts, t.Name, len(t.Rows))
	}
	return counts, nil
}

func orderTables(tables []Table) ([]Table, error) {
	byName := make(map[string]Table, len(tables))
	for _, t := range tables {
		if !slices.Contains(CreateOrder, t.Name) {
			return nil, &domain.SchemaError{Table: t.Name, Err: errors.New("unknown table")}
		}
		if _, dup := byName[t.Name]; dup {
			return nil, &domain.SchemaError{Table: t.Name, Err: errors.New("table given twice")}
		}
		byName[t.Name] = t
	}
	ordered := make([]Table, 0, len(tables))
	for _, name := range CreateOrder {
		if t, ok := byName[name]; ok {
			ordered = append(ordered, t)
		}
	}
	return ordered, nil
}

// Validate checks row widths, nullability and primary key uniqueness.
func Validate(t Table) error {
	keyIdx := make([]int, len(t.PrimaryKey))
	for i, k := range t.PrimaryKey {
		keyIdx[i] = t.ColumnIndex(k)
		if keyIdx[i] < 0 {
			return &domain.SchemaError{Table: t.Name, Err: fmt.Errorf("primary key column %q not defined", k)}
		}
	}

	seen := make(map[string]int, len(t.Rows))
	for n, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return &domain.SchemaError{Table: t.Name, Err: fmt.Errorf("row %d has %d values, want %d", n+1, len(row), len(t.Columns))}
		}
		for i, c := range t.Columns {
			if row[i] == nil && !c.Nullable {
				return &domain.SchemaError{Table: t.Name, Err: fmt.Errorf("row %d: column %s is null", n+1, c.Name)}
			}
		}
		if len(keyIdx) == 0 {
			continue
		}
		key := ""
		for _, i := range keyIdx {
			key += FormatValue(row[i]) + "\x1f"
		}
		if first, dup := seen[key]; dup {
			return &domain.SchemaError{Table: t.Name, Err: fmt.Errorf("duplicate primary key in rows %d and %d", first, n+1)}
		}
		seen[key] = n + 1
	}
	return nil
}

func setCount(c *domain.TableCounts, table string, n int) {
	switch table {
	case TableBrand:
		c.Brands = n
	case TableBrandLogo:
		c.BrandLogos = n
	case TableLocation:
		c.Locations = n
	case TableServiceStation:
		c.Stations = n
	case TableFuelPrice:
		c.Facts = n
	case TableOpeningHours:
		c.OpeningHours = n
	case TableAugmented:
		c.AugmentedPrice = n
	}
}
