package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/fuel-price-etl/internal/domain"
	"github.com/couchcryptid/fuel-price-etl/internal/observability"
	"github.com/couchcryptid/fuel-price-etl/internal/warehouse"
)

// Stage names used in logs, metrics and wrapped errors.
const (
	StageSource  = "source"
	StageDedupe  = "dedupe"
	StageAugment = "augment"
	StageEnrich  = "enrich"
	StageExtract = "extract"
	StageLogos   = "logos"
	StageBuild   = "build"
	StageMirror  = "mirror"
	StagePublish = "publish"
)

// Source provides the raw inputs of a build.
type Source interface {
	PriceHistory(ctx context.Context) ([]domain.RawPriceRecord, error)
	StationDirectory(ctx context.Context) ([]domain.StationRecord, error)
}

// Enricher backfills missing fields of augmented records.
type Enricher interface {
	Enrich(ctx context.Context, records []domain.PriceRecord) (domain.EnrichResult, error)
}

// LogoResolver finds brand logos for the brand dimension.
type LogoResolver interface {
	Resolve(ctx context.Context, brands []domain.Brand) (domain.LogoResult, error)
}

// Builder replaces the output tables in the store.
type Builder interface {
	Build(ctx context.Context, tables []warehouse.Table) (domain.TableCounts, error)
}

// Mirror writes copies of the output tables somewhere else.
type Mirror interface {
	Write(ctx context.Context, tables []warehouse.Table) error
}

// ReportPublisher announces a finished build.
type ReportPublisher interface {
	Publish(ctx context.Context, report domain.Report) error
}

// Options tunes a build.
type Options struct {
	StableKeys     bool
	StageAugmented bool
}

// Pipeline runs one full rebuild: read, deduplicate, join, enrich, extract
// and materialize. Stages run strictly in sequence.
type Pipeline struct {
	source    Source
	enricher  Enricher
	logos     LogoResolver
	builder   Builder
	mirror    Mirror
	publisher ReportPublisher
	opts      Options
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	last      atomic.Pointer[domain.Report]
}

// New creates a Pipeline with the given stages and observability.
func New(source Source, enricher Enricher, builder Builder, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		source:   source,
		enricher: enricher,
		builder:  builder,
		opts:     opts,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
		metrics:  metrics,
	}
}

// WithLogos adds the optional brand_logo table.
func (p *Pipeline) WithLogos(r LogoResolver) *Pipeline {
	p.logos = r
	return p
}

// WithMirror adds an optional table mirror.
func (p *Pipeline) WithMirror(m Mirror) *Pipeline {
	p.mirror = m
	return p
}

// WithPublisher adds an optional report publisher.
func (p *Pipeline) WithPublisher(rp ReportPublisher) *Pipeline {
	p.publisher = rp
	return p
}

// WithClock replaces the clock used for report timestamps and durations.
func (p *Pipeline) WithClock(c clockwork.Clock) *Pipeline {
	p.clock = c
	return p
}

// CheckReadiness returns nil once a build has finished successfully, or an
// error describing why the store is not yet usable.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if p.last.Load() == nil {
		return errors.New("no successful build yet")
	}
	return nil
}

// LastReport returns the report of the most recent successful build.
func (p *Pipeline) LastReport() (domain.Report, bool) {
	r := p.last.Load()
	if r == nil {
		return domain.Report{}, false
	}
	return *r, true
}

// Schedule runs a build immediately and then once per interval until ctx is
// cancelled. Every outcome is handed to done; a failed build does not stop
// the schedule.
func (p *Pipeline) Schedule(ctx context.Context, interval time.Duration, done func(domain.Report, error)) error {
	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		report, err := p.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if done != nil {
			done(report, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}
	}
}

// Run executes one build. Fatal errors are returned wrapped with the name
// of the failing stage; non-fatal errors are only counted in the report.
func (p *Pipeline) Run(ctx context.Context) (domain.Report, error) {
	report := domain.Report{RunID: uuid.NewString(), StartedAt: p.clock.Now()}
	logger := p.logger.With("run_id", report.RunID)
	logger.Info("build started")
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	var (
		raw      []domain.RawPriceRecord
		stations []domain.StationRecord
	)
	err := p.stage(ctx, logger, StageSource, func(ctx context.Context) error {
		var err error
		if raw, err = p.source.PriceHistory(ctx); err != nil {
			return err
		}
		stations, err = p.source.StationDirectory(ctx)
		return err
	})
	if err != nil {
		return report, err
	}
	report.RawRecords = len(raw)
	p.metrics.RecordsRead.Add(float64(len(raw)))

	var deduped []domain.PriceRecord
	err = p.stage(ctx, logger, StageDedupe, func(context.Context) error {
		var err error
		deduped, err = domain.Deduplicate(raw)
		return err
	})
	if err != nil {
		return report, err
	}
	report.DedupedRecords = len(deduped)
	p.metrics.RecordsDeduplicated.Add(float64(len(deduped)))

	var augmented []domain.PriceRecord
	var dir *domain.Directory
	err = p.stage(ctx, logger, StageAugment, func(context.Context) error {
		dir = domain.NewDirectory(stations)
		augmented, report.DirectoryMisses = domain.Augment(deduped, dir)
		return nil
	})
	if err != nil {
		return report, err
	}
	report.DirectoryStations = dir.Len()
	report.Errors.DirectoryDuplicates = dir.Duplicates

	var enriched domain.EnrichResult
	err = p.stage(ctx, logger, StageEnrich, func(ctx context.Context) error {
		var err error
		enriched, err = p.enricher.Enrich(ctx, augmented)
		return err
	})
	if err != nil {
		return report, err
	}
	report.GeocodeLookups = enriched.Stats.Lookups
	report.CoordinatesFilled = enriched.Stats.Filled
	report.Errors.FetchErrors = enriched.Stats.FetchErrors
	report.Errors.GeocodeMisses = enriched.Stats.Misses
	report.Errors.HoursSkipped = enriched.Stats.HoursSkipped

	var schema domain.StarSchema
	err = p.stage(ctx, logger, StageExtract, func(context.Context) error {
		schema = domain.Extract(dir.Brands(), enriched.Records, domain.ExtractOptions{StableKeys: p.opts.StableKeys})
		return nil
	})
	if err != nil {
		return report, err
	}
	report.Errors.JoinMismatches = len(schema.Audit.Mismatches)
	report.Errors.MismatchesByReason = schema.Audit.ByReason
	report.Errors.FactOrphans = schema.Audit.FactOrphans
	p.logMismatches(logger, schema.Audit)

	dataset := warehouse.Dataset{Schema: schema, OpeningHours: enriched.OpeningHours}
	if p.logos != nil {
		var logos domain.LogoResult
		err = p.stage(ctx, logger, StageLogos, func(ctx context.Context) error {
			var err error
			logos, err = p.logos.Resolve(ctx, schema.Brands)
			return err
		})
		if err != nil {
			return report, err
		}
		report.Errors.FetchErrors += logos.Stats.FetchErrors
		report.Errors.LogoMisses = logos.Stats.Misses
		dataset.BrandLogos = logos.Logos
		if dataset.BrandLogos == nil {
			dataset.BrandLogos = []domain.BrandLogo{}
		}
	}
	if p.opts.StageAugmented {
		dataset.Augmented = enriched.Records
		if dataset.Augmented == nil {
			dataset.Augmented = []domain.PriceRecord{}
		}
	}
	tables := dataset.Tables()

	err = p.stage(ctx, logger, StageBuild, func(ctx context.Context) error {
		var err error
		report.Tables, err = p.builder.Build(ctx, tables)
		return err
	})
	if err != nil {
		return report, err
	}

	if p.mirror != nil {
		err = p.stage(ctx, logger, StageMirror, func(ctx context.Context) error {
			return p.mirror.Write(ctx, tables)
		})
		if err != nil {
			return report, err
		}
	}

	report.FinishedAt = p.clock.Now()
	p.recordSuccess(report)
	p.last.Store(&report)

	if p.publisher != nil {
		// The store is already rebuilt; a lost report does not fail the run.
		if err := p.publisher.Publish(ctx, report); err != nil {
			logger.Warn("report publish failed", "stage", StagePublish, "error", err)
		}
	}

	logger.Info("build finished",
		"duration", report.Duration(),
		"raw_records", report.RawRecords,
		"deduped_records", report.DedupedRecords,
		"join_mismatches", report.Errors.JoinMismatches,
		"fetch_errors", report.Errors.FetchErrors,
	)
	return report, nil
}

// stage runs fn, times it and wraps its error with the stage name.
func (p *Pipeline) stage(ctx context.Context, logger *slog.Logger, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	start := p.clock.Now()
	err := fn(ctx)
	elapsed := p.clock.Since(start)
	p.metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if err != nil {
		logger.Error("stage failed", "stage", name, "error", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	logger.Debug("stage finished", "stage", name, "duration", elapsed)
	return nil
}

func (p *Pipeline) logMismatches(logger *slog.Logger, audit domain.JoinAudit) {
	for reason, n := range audit.ByReason {
		p.metrics.JoinMismatches.WithLabelValues(string(reason)).Add(float64(n))
	}
	for _, m := range audit.Mismatches {
		logger.Debug("join mismatch", "station", m.StationName, "brand", m.BrandName, "address", m.Address, "reason", m.Reason)
	}
	if len(audit.Mismatches) > 0 {
		logger.Warn("records excluded from service_station", "count", len(audit.Mismatches), "by_reason", audit.ByReason)
	}
}

func (p *Pipeline) recordSuccess(r domain.Report) {
	m := p.metrics
	m.TableRows.WithLabelValues(warehouse.TableBrand).Set(float64(r.Tables.Brands))
	m.TableRows.WithLabelValues(warehouse.TableBrandLogo).Set(float64(r.Tables.BrandLogos))
	m.TableRows.WithLabelValues(warehouse.TableLocation).Set(float64(r.Tables.Locations))
	m.TableRows.WithLabelValues(warehouse.TableServiceStation).Set(float64(r.Tables.Stations))
	m.TableRows.WithLabelValues(warehouse.TableFuelPrice).Set(float64(r.Tables.Facts))
	m.TableRows.WithLabelValues(warehouse.TableOpeningHours).Set(float64(r.Tables.OpeningHours))
	m.TableRows.WithLabelValues(warehouse.TableAugmented).Set(float64(r.Tables.AugmentedPrice))

	m.NonFatalErrors.WithLabelValues(string(domain.KindFetch)).Add(float64(r.Errors.FetchErrors))
	m.NonFatalErrors.WithLabelValues(string(domain.KindJoinMismatch)).Add(float64(r.Errors.JoinMismatches))
	m.NonFatalErrors.WithLabelValues("geocode_miss").Add(float64(r.Errors.GeocodeMisses))
	m.NonFatalErrors.WithLabelValues("logo_miss").Add(float64(r.Errors.LogoMisses))
	m.NonFatalErrors.WithLabelValues("hours_skipped").Add(float64(r.Errors.HoursSkipped))
	m.NonFatalErrors.WithLabelValues("fact_orphan").Add(float64(r.Errors.FactOrphans))
	m.NonFatalErrors.WithLabelValues("directory_duplicate").Add(float64(r.Errors.DirectoryDuplicates))

	m.BuildDuration.Observe(r.Duration().Seconds())
	m.LastSuccess.Set(float64(r.FinishedAt.Unix()))
}

var (
	_ Enricher     = (*domain.GapFillEnricher)(nil)
	_ LogoResolver = (*domain.LogoResolver)(nil)
)
