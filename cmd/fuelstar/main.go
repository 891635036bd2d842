// Command fuelstar rebuilds the fuel-price star schema from a price-history
// extract and a station directory.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/couchcryptid/fuel-price-etl/internal/adapter/brandfetch"
	"github.com/couchcryptid/fuel-price-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/fuel-price-etl/internal/adapter/kafka"
	"github.com/couchcryptid/fuel-price-etl/internal/adapter/lookup"
	"github.com/couchcryptid/fuel-price-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/fuel-price-etl/internal/adapter/mirror"
	"github.com/couchcryptid/fuel-price-etl/internal/adapter/nominatim"
	"github.com/couchcryptid/fuel-price-etl/internal/adapter/places"
	"github.com/couchcryptid/fuel-price-etl/internal/adapter/storage"
	"github.com/couchcryptid/fuel-price-etl/internal/adapter/tabular"
	"github.com/couchcryptid/fuel-price-etl/internal/config"
	"github.com/couchcryptid/fuel-price-etl/internal/domain"
	"github.com/couchcryptid/fuel-price-etl/internal/observability"
	"github.com/couchcryptid/fuel-price-etl/internal/pipeline"
	"github.com/couchcryptid/fuel-price-etl/internal/warehouse"
)

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.RequireInputs()
	}
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, metrics); err != nil {
		logger.Error("build failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	store, err := storage.Open(ctx, cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()
	logger.Info("store opened", "driver", cfg.StoreDriver)

	enricher, err := newEnricher(cfg, logger, metrics)
	if err != nil {
		return err
	}

	source := tabular.NewFileSource(cfg.PriceHistoryPaths, cfg.StationDirectoryPath, logger)
	builder := warehouse.NewSchemaBuilder(store, logger)
	p := pipeline.New(source, enricher, builder, pipeline.Options{
		StableKeys:     cfg.StableKeys,
		StageAugmented: cfg.StageAugmented,
	}, logger, metrics)

	if cfg.BrandfetchAPIKey != "" {
		logos, err := newLogoResolver(cfg, logger, metrics)
		if err != nil {
			return err
		}
		p.WithLogos(logos)
	}

	if cfg.MirrorDir != "" {
		compression, err := mirror.ParseCompression(cfg.MirrorCompression)
		if err != nil {
			return err
		}
		p.WithMirror(mirror.NewWriter(cfg.MirrorDir, compression, logger))
		logger.Info("table mirror enabled", "dir", cfg.MirrorDir, "compression", compression)
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafkaadapter.NewPublisher(cfg, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		p.WithPublisher(publisher)
		logger.Info("report publishing enabled", "topic", cfg.KafkaReportTopic)
	}

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewStatusServer(cfg.HTTPAddr, buildStatus{Pipeline: p, store: store}, metrics.Gatherer, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	if cfg.RebuildInterval > 0 {
		logger.Info("scheduled rebuilds enabled", "interval", cfg.RebuildInterval)
		err := p.Schedule(ctx, cfg.RebuildInterval, func(report domain.Report, err error) {
			if err != nil {
				logger.Error("build failed", "error", err)
				return
			}
			finish(cfg, logger, metrics, report)
		})
		if errors.Is(err, context.Canceled) {
			logger.Info("shutting down")
			return nil
		}
		return err
	}

	report, err := p.Run(ctx)
	if err != nil {
		return err
	}
	finish(cfg, logger, metrics, report)
	return nil
}

// newEnricher wires the configured place lookup behind retries and a cache.
func newEnricher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*domain.GapFillEnricher, error) {
	var (
		client    domain.PlaceLookup
		withHours bool
	)
	switch cfg.Geocoder {
	case config.GeocoderNominatim:
		client = nominatim.NewClient(cfg.NominatimURL, cfg.NominatimUserAgent, cfg.GeocodeRegion,
			cfg.NominatimInterval, cfg.GeocodeTimeout, metrics, logger)
	case config.GeocoderMapbox:
		client = mapbox.NewClient(cfg.MapboxToken, strings.ToLower(cfg.GeocodeRegion), cfg.GeocodeTimeout, metrics, logger)
	case config.GeocoderPlaces:
		client = places.NewClient(cfg.PlacesAPIKey, cfg.GeocodeRegion, cfg.GeocodeTimeout, metrics, logger)
		// Only Places reports opening hours.
		withHours = cfg.EnrichOpeningHours
	default:
		metrics.GeocodeEnabled.Set(0)
		logger.Info("gap-fill enrichment disabled")
		return domain.NewGapFillEnricher(nil, 1, false, logger), nil
	}

	retrying := lookup.NewRetrying(client, cfg.GeocodeMaxRetries, cfg.GeocodeRetryInterval, metrics, logger)
	cached, err := lookup.NewCached(retrying, cfg.GeocodeCacheSize, metrics)
	if err != nil {
		return nil, fmt.Errorf("create lookup cache: %w", err)
	}
	metrics.GeocodeEnabled.Set(1)
	logger.Info("gap-fill enrichment enabled",
		"geocoder", cfg.Geocoder,
		"opening_hours", withHours,
		"cache_size", cfg.GeocodeCacheSize,
		"concurrency", cfg.GeocodeConcurrency,
	)
	return domain.NewGapFillEnricher(cached, cfg.GeocodeConcurrency, withHours, logger), nil
}

// newLogoResolver wires Brandfetch behind the same retry and cache
// decorators as the geocoder.
func newLogoResolver(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*domain.LogoResolver, error) {
	client := brandfetch.NewClient(cfg.BrandfetchAPIKey, cfg.GeocodeTimeout, metrics, logger)
	retrying := lookup.NewRetrying(client, cfg.GeocodeMaxRetries, cfg.GeocodeRetryInterval, metrics, logger)
	cached, err := lookup.NewCached(retrying, cfg.GeocodeCacheSize, metrics)
	if err != nil {
		return nil, fmt.Errorf("create logo cache: %w", err)
	}

	var store domain.LogoStore
	if cfg.BrandLogoDir != "" {
		fs, err := brandfetch.NewFileStore(cfg.BrandLogoDir, cfg.GeocodeTimeout)
		if err != nil {
			return nil, err
		}
		store = fs
	}
	logger.Info("brand logos enabled", "download_dir", cfg.BrandLogoDir)
	return domain.NewLogoResolver(cached, store, cfg.GeocodeConcurrency, logger), nil
}

// finish prints the run summary and pushes metrics when a Pushgateway is set.
func finish(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, report domain.Report) {
	fmt.Print(report.Summary())

	if cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := metrics.Push(ctx, cfg.PushgatewayURL, report.RunID); err != nil {
		logger.Warn("metrics push failed", "error", err)
	}
}

// buildStatus is ready once a build has succeeded and the store answers.
type buildStatus struct {
	*pipeline.Pipeline
	store storage.Store
}

func (b buildStatus) CheckReadiness(ctx context.Context) error {
	if err := b.Pipeline.CheckReadiness(ctx); err != nil {
		return err
	}
	return b.store.CheckReadiness(ctx)
}
