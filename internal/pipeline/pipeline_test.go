package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/fuel-price-etl/internal/domain"
	"github.com/couchcryptid/fuel-price-etl/internal/observability"
	"github.com/couchcryptid/fuel-price-etl/internal/pipeline"
	"github.com/couchcryptid/fuel-price-etl/internal/warehouse"
)

// --- mocks ---

type mockSource struct {
	prices   []domain.RawPriceRecord
	stations []domain.StationRecord
	err      error
}

func (m *mockSource) PriceHistory(context.Context) ([]domain.RawPriceRecord, error) {
	return m.prices, m.err
}

func (m *mockSource) StationDirectory(context.Context) ([]domain.StationRecord, error) {
	return m.stations, nil
}

type mockBuilder struct {
	tables []warehouse.Table
	err    error
}

func (m *mockBuilder) Build(_ context.Context, tables []warehouse.Table) (domain.TableCounts, error) {
	if m.err != nil {
		return domain.TableCounts{}, m.err
	}
	m.tables = tables
	var c domain.TableCounts
	for _, t := range tables {
		switch t.Name {
		case warehouse.TableBrand:
			c.Brands = len(t.Rows)
		case warehouse.TableBrandLogo:
			c.BrandLogos = len(t.Rows)
		case warehouse.TableLocation:
			c.Locations = len(t.Rows)
		case warehouse.TableServiceStation:
			c.Stations = len(t.Rows)
		case warehouse.TableFuelPrice:
			c.Facts = len(t.Rows)
		case warehouse.TableOpeningHours:
			c.OpeningHours = len(t.Rows)
		case warehouse.TableAugmented:
			c.AugmentedPrice = len(t.Rows)
		}
	}
	return c, nil
}

type mockLogos struct {
	brands []domain.Brand
	result domain.LogoResult
	err    error
}

func (m *mockLogos) Resolve(_ context.Context, brands []domain.Brand) (domain.LogoResult, error) {
	m.brands = brands
	return m.result, m.err
}

type mockMirror struct {
	written int
	err     error
}

func (m *mockMirror) Write(_ context.Context, tables []warehouse.Table) error {
	m.written = len(tables)
	return m.err
}

type mockPublisher struct {
	reports []domain.Report
	err     error
}

func (m *mockPublisher) Publish(_ context.Context, r domain.Report) error {
	m.reports = append(m.reports, r)
	return m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func smallSource() *mockSource {
	coords := &domain.Coordinates{Lat: -33.81, Lon: 151.1}
	return &mockSource{
		prices: []domain.RawPriceRecord{
			{StationName: "Ampol Ryde", Address: "1 Victoria Rd", BrandName: "Ampol", FuelCode: "E10", PriceUpdatedAt: "2025-03-01 08:00:00", Price: "180", Origin: "a:2"},
			{StationName: "Ampol Ryde", Address: "1 Victoria Rd", BrandName: "Ampol", FuelCode: "E10", PriceUpdatedAt: "01/03/2025 08:00:00", Price: "182", Origin: "b:2"},
			{StationName: "Ampol Ryde", Address: "1 Victoria Rd", BrandName: "Ampol", FuelCode: "U91", PriceUpdatedAt: "2025-03-01 08:00:00", Price: "190", Origin: "a:3"},
			{StationName: "Nobody", Address: "2 Nowhere St", BrandName: "Nobrand", FuelCode: "E10", PriceUpdatedAt: "2025-03-01 08:00:00", Price: "150", Origin: "a:4"},
		},
		stations: []domain.StationRecord{
			{StationName: "Ampol Ryde", Address: "1 Victoria Rd", BrandName: "Ampol", Coords: coords},
			{StationName: "Shell Epping", Address: "3 Beecroft Rd", BrandName: "Shell"},
		},
	}
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	src := smallSource()
	builder := &mockBuilder{}
	mirror := &mockMirror{}
	publisher := &mockPublisher{}
	metrics := newTestMetrics()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 2, 1, 0, 0, 0, time.UTC))

	p := pipeline.New(src, domain.NewGapFillEnricher(nil, 1, false, discardLogger()), builder,
		pipeline.Options{StageAugmented: true}, discardLogger(), metrics).
		WithMirror(mirror).
		WithPublisher(publisher).
		WithClock(clock)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, clock.Now(), report.StartedAt)
	assert.Equal(t, 4, report.RawRecords)
	assert.Equal(t, 3, report.DedupedRecords)
	assert.Equal(t, 2, report.DirectoryStations)
	assert.Equal(t, 1, report.DirectoryMisses)
	assert.Equal(t, domain.TableCounts{Brands: 2, Locations: 2, Stations: 1, Facts: 2, AugmentedPrice: 3}, report.Tables)
	assert.Equal(t, 1, report.Errors.JoinMismatches)
	assert.Equal(t, map[domain.MismatchReason]int{domain.MismatchBrandLocation: 1}, report.Errors.MismatchesByReason)
	assert.Equal(t, 1, report.Errors.FactOrphans)

	assert.Equal(t, len(warehouse.CreateOrder)-1, mirror.written, "every table but brand_logo")
	require.Len(t, publisher.reports, 1)
	assert.Equal(t, report.RunID, publisher.reports[0].RunID)

	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.RecordsRead))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.RecordsDeduplicated))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.JoinMismatches.WithLabelValues(string(domain.MismatchBrandLocation))))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.TableRows.WithLabelValues(warehouse.TableFuelPrice)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning))
}

func TestPipeline_Run_WithoutStagingTable(t *testing.T) {
	builder := &mockBuilder{}
	p := pipeline.New(smallSource(), domain.NewGapFillEnricher(nil, 1, false, discardLogger()), builder,
		pipeline.Options{}, discardLogger(), newTestMetrics())

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	for _, tbl := range builder.tables {
		assert.NotEqual(t, warehouse.TableAugmented, tbl.Name)
	}
	assert.Zero(t, report.Tables.AugmentedPrice)
}

func TestPipeline_Run_WithLogos(t *testing.T) {
	builder := &mockBuilder{}
	metrics := newTestMetrics()
	logos := &mockLogos{result: domain.LogoResult{
		Logos:    []domain.BrandLogo{{BrandID: 1, BrandName: "Ampol", ImgPath: "logos/ampol.png"}},
		Failures: []domain.FetchError{{Query: "Shell", Err: errors.New("503")}},
		Stats:    domain.LogoStats{Lookups: 2, Found: 1, FetchErrors: 1},
	}}

	p := pipeline.New(smallSource(), domain.NewGapFillEnricher(nil, 1, false, discardLogger()), builder,
		pipeline.Options{}, discardLogger(), metrics).
		WithLogos(logos)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []domain.Brand{{ID: 1, Name: "Ampol"}, {ID: 2, Name: "Shell"}}, logos.brands)
	assert.Equal(t, 1, report.Tables.BrandLogos)
	assert.Equal(t, 1, report.Errors.FetchErrors)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TableRows.WithLabelValues(warehouse.TableBrandLogo)))
}

func TestPipeline_Run_NoLogosStillCreatesTable(t *testing.T) {
	builder := &mockBuilder{}
	logos := &mockLogos{result: domain.LogoResult{Stats: domain.LogoStats{Lookups: 2, Misses: 2}}}

	p := pipeline.New(smallSource(), domain.NewGapFillEnricher(nil, 1, false, discardLogger()), builder,
		pipeline.Options{}, discardLogger(), newTestMetrics()).
		WithLogos(logos)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	var names []string
	for _, tbl := range builder.tables {
		names = append(names, tbl.Name)
	}
	assert.Contains(t, names, warehouse.TableBrandLogo)
	assert.Equal(t, 2, report.Errors.LogoMisses)
}

func TestPipeline_Run_LogoErrorIsFatal(t *testing.T) {
	builder := &mockBuilder{}
	p := pipeline.New(smallSource(), domain.NewGapFillEnricher(nil, 1, false, discardLogger()), builder,
		pipeline.Options{}, discardLogger(), newTestMetrics()).
		WithLogos(&mockLogos{err: context.DeadlineExceeded})

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "logos: ")
	assert.Nil(t, builder.tables)
}

func TestPipeline_Run_ParseErrorIsFatal(t *testing.T) {
	src := smallSource()
	src.prices[2].Price = "n/a"
	builder := &mockBuilder{}

	p := pipeline.New(src, domain.NewGapFillEnricher(nil, 1, false, discardLogger()), builder,
		pipeline.Options{}, discardLogger(), newTestMetrics())

	_, err := p.Run(context.Background())

	var parseErr *domain.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "a:3", parseErr.Origin)
	assert.Contains(t, err.Error(), "dedupe: ")
	assert.Nil(t, builder.tables, "nothing may be materialized")
}

func TestPipeline_Run_SchemaErrorIsFatal(t *testing.T) {
	builder := &mockBuilder{err: &domain.SchemaError{Table: "brand", Err: errors.New("disk full")}}
	mirror := &mockMirror{}
	publisher := &mockPublisher{}

	p := pipeline.New(smallSource(), domain.NewGapFillEnricher(nil, 1, false, discardLogger()), builder,
		pipeline.Options{}, discardLogger(), newTestMetrics()).
		WithMirror(mirror).
		WithPublisher(publisher)

	_, err := p.Run(context.Background())

	var schemaErr *domain.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, err.Error(), "build: ")
	assert.Zero(t, mirror.written)
	assert.Empty(t, publisher.reports)
}

func TestPipeline_Run_SourceError(t *testing.T) {
	src := smallSource()
	src.err = errors.New("open price history: no such file")

	p := pipeline.New(src, domain.NewGapFillEnricher(nil, 1, false, discardLogger()), &mockBuilder{},
		pipeline.Options{}, discardLogger(), newTestMetrics())

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source: open price history")
}

func TestPipeline_Run_MirrorErrorIsFatal(t *testing.T) {
	p := pipeline.New(smallSource(), domain.NewGapFillEnricher(nil, 1, false, discardLogger()), &mockBuilder{},
		pipeline.Options{}, discardLogger(), newTestMetrics()).
		WithMirror(&mockMirror{err: errors.New("read-only file system")})

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mirror: ")
}

func TestPipeline_Run_PublishErrorIsNotFatal(t *testing.T) {
	publisher := &mockPublisher{err: errors.New("broker down")}
	p := pipeline.New(smallSource(), domain.NewGapFillEnricher(nil, 1, false, discardLogger()), &mockBuilder{},
		pipeline.Options{}, discardLogger(), newTestMetrics()).
		WithPublisher(publisher)

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, publisher.reports, 1)
}

func TestPipeline_Run_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	builder := &mockBuilder{}
	p := pipeline.New(smallSource(), domain.NewGapFillEnricher(nil, 1, false, discardLogger()), builder,
		pipeline.Options{}, discardLogger(), newTestMetrics())

	_, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, builder.tables)
}

func TestPipeline_CheckReadiness(t *testing.T) {
	builder := &mockBuilder{err: &domain.SchemaError{Table: "brand", Err: errors.New("locked")}}
	p := pipeline.New(smallSource(), domain.NewGapFillEnricher(nil, 1, false, discardLogger()), builder,
		pipeline.Options{}, discardLogger(), newTestMetrics())

	require.Error(t, p.CheckReadiness(context.Background()))
	_, ok := p.LastReport()
	require.False(t, ok)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	require.Error(t, p.CheckReadiness(context.Background()), "a failed build is not ready")

	builder.err = nil
	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.NoError(t, p.CheckReadiness(context.Background()))

	last, ok := p.LastReport()
	require.True(t, ok)
	assert.Equal(t, report.RunID, last.RunID)
}

func TestPipeline_Schedule(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	publisher := &mockPublisher{}
	p := pipeline.New(smallSource(), domain.NewGapFillEnricher(nil, 1, false, discardLogger()), &mockBuilder{},
		pipeline.Options{}, discardLogger(), newTestMetrics()).
		WithPublisher(publisher).
		WithClock(clock)

	builds := make(chan domain.Report, 4)
	runCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Schedule(runCtx, time.Hour, func(r domain.Report, err error) {
			assert.NoError(t, err)
			builds <- r
		})
	}()

	first := <-builds
	clock.Advance(time.Hour)
	second := <-builds

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, time.Hour, second.StartedAt.Sub(first.StartedAt))

	stop()
	require.ErrorIs(t, <-errCh, context.Canceled)
	assert.Len(t, publisher.reports, 2)
}
