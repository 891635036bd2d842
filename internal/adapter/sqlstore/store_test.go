package sqlstore

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/fuel-price-etl/internal/domain"
	"github.com/couchcryptid/fuel-price-etl/internal/warehouse"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func dataset() warehouse.Dataset {
	at := time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)
	return warehouse.Dataset{
		Schema: domain.StarSchema{
			Brands: []domain.Brand{{ID: 1, Name: "Ampol"}, {ID: 2, Name: "Shell"}},
			Locations: []domain.Location{
				{ID: 1, Address: "1 Victoria Rd", Coords: &domain.Coordinates{Lat: -33.81, Lon: 151.1}},
				{ID: 2, Address: "2 Beecroft Rd"},
			},
			Stations: []domain.ServiceStation{
				{ID: 1, Name: "Ampol Ryde", BrandID: 1, LocationID: 1},
				{ID: 2, Name: "Shell Epping", BrandID: 2, LocationID: 2},
			},
			Facts: []domain.FuelPriceFact{
				{StationID: 1, FuelCode: "E10", PriceUpdatedAt: at, Price: 180.5},
				{StationID: 2, FuelCode: "U91", PriceUpdatedAt: at, Price: 185},
			},
		},
		OpeningHours: []domain.OpeningHoursEntry{{StationName: "Ampol Ryde", DayOfWeek: "Monday", OpenTime: "00:00", CloseTime: "24:00"}},
		Augmented:    []domain.PriceRecord{{StationName: "Ampol Ryde", FuelCode: "E10", PriceUpdatedAt: at, Price: 180.5, Observations: 1}},
		BrandLogos:   []domain.BrandLogo{{BrandID: 2, BrandName: "Shell", ImgPath: "logos/shell.png"}},
	}
}

func build(t *testing.T, s *Store) domain.TableCounts {
	t.Helper()
	b := warehouse.NewSchemaBuilder(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	counts, err := b.Build(context.Background(), dataset().Tables())
	require.NoError(t, err)
	return counts
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported driver "oracle"`)
}

func TestBuild_SQLite(t *testing.T) {
	s := openMemory(t)
	counts := build(t, s)
	ctx := context.Background()

	for table, want := range map[string]int{
		warehouse.TableBrand:          counts.Brands,
		warehouse.TableBrandLogo:      counts.BrandLogos,
		warehouse.TableLocation:       counts.Locations,
		warehouse.TableServiceStation: counts.Stations,
		warehouse.TableFuelPrice:      counts.Facts,
		warehouse.TableOpeningHours:   counts.OpeningHours,
		warehouse.TableAugmented:      counts.AugmentedPrice,
	} {
		got, err := s.Count(ctx, table)
		require.NoError(t, err, table)
		assert.Equal(t, int64(want), got, table)
	}

	checks := append(warehouse.IntegrityChecks(s.Dialect()), warehouse.ValueChecks(s.Dialect())...)
	checks = append(checks, warehouse.BrandLogoChecks(s.Dialect())...)
	for _, check := range checks {
		n, err := s.QueryCount(ctx, check.Query)
		require.NoError(t, err, check.Name)
		assert.Zero(t, n, check.Name)
	}
}

func TestBuild_RebuildReplacesTables(t *testing.T) {
	s := openMemory(t)
	first := build(t, s)
	second := build(t, s)

	assert.Equal(t, first, second)
	n, err := s.Count(context.Background(), warehouse.TableBrand)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "rebuild must not append")
}

func TestBrandLogoChecks_FlagOrphanLogo(t *testing.T) {
	s := openMemory(t)
	ds := dataset()
	ds.BrandLogos = append(ds.BrandLogos, domain.BrandLogo{BrandID: 9, BrandName: "Gone", ImgPath: "logos/gone.png"})
	b := warehouse.NewSchemaBuilder(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := b.Build(context.Background(), ds.Tables())
	require.NoError(t, err)

	checks := warehouse.BrandLogoChecks(s.Dialect())
	require.Len(t, checks, 2)
	n, err := s.QueryCount(context.Background(), checks[1].Query)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestBuild_NullCoordinatesStored(t *testing.T) {
	s := openMemory(t)
	build(t, s)

	n, err := s.QueryCount(context.Background(), `SELECT COUNT(*) FROM "location" WHERE "latitude" IS NULL AND "longitude" IS NULL`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMaterialize_FailedInsertLeavesNoTable(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	tbl := warehouse.BrandTable([]domain.Brand{{ID: 1, Name: "Ampol"}, {ID: 1, Name: "BP"}})

	err := s.Materialize(ctx, tbl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert row 2")

	n, err := s.QueryCount(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'brand'`)
	require.NoError(t, err)
	assert.Zero(t, n)
}
