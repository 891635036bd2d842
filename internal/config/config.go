package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Geocoder names.
const (
	GeocoderNone      = "none"
	GeocoderNominatim = "nominatim"
	GeocoderMapbox    = "mapbox"
	GeocoderPlaces    = "places"
)

// Config holds all run settings, populated from environment variables.
type Config struct {
	PriceHistoryPaths    []string
	StationDirectoryPath string

	StoreDriver string
	StoreDSN    string

	MirrorDir         string
	MirrorCompression string

	StableKeys     bool
	StageAugmented bool

	// Gap-fill enrichment.
	Geocoder             string
	NominatimURL         string
	NominatimUserAgent   string
	NominatimInterval    time.Duration
	MapboxToken          string
	PlacesAPIKey         string
	GeocodeRegion        string
	GeocodeTimeout       time.Duration
	GeocodeCacheSize     int
	GeocodeConcurrency   int
	GeocodeMaxRetries    int
	GeocodeRetryInterval time.Duration
	EnrichOpeningHours   bool

	// Brand logos. An empty BrandfetchAPIKey skips the brand_logo table.
	BrandfetchAPIKey string
	BrandLogoDir     string

	KafkaBrokers     []string
	KafkaReportTopic string
	PushgatewayURL   string

	// Service mode. A zero RebuildInterval runs one build and exits.
	HTTPAddr        string
	RebuildInterval time.Duration

	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is loaded first when
// present; variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		PriceHistoryPaths:    splitList(os.Getenv("PRICE_HISTORY_PATHS")),
		StationDirectoryPath: strings.TrimSpace(os.Getenv("STATION_DIRECTORY_PATH")),
		StoreDriver:          sharedcfg.EnvOrDefault("STORE_DRIVER", "sqlite"),
		StoreDSN:             sharedcfg.EnvOrDefault("STORE_DSN", "fuel_price.db"),
		MirrorDir:            os.Getenv("MIRROR_DIR"),
		MirrorCompression:    sharedcfg.EnvOrDefault("MIRROR_COMPRESSION", "none"),
		NominatimURL:         sharedcfg.EnvOrDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		NominatimUserAgent:   sharedcfg.EnvOrDefault("NOMINATIM_USER_AGENT", "fuel-price-etl"),
		MapboxToken:          os.Getenv("MAPBOX_TOKEN"),
		PlacesAPIKey:         os.Getenv("PLACES_API_KEY"),
		GeocodeRegion:        sharedcfg.EnvOrDefault("GEOCODE_REGION", "AU"),
		BrandfetchAPIKey:     os.Getenv("BRANDFETCH_API_KEY"),
		BrandLogoDir:         os.Getenv("BRAND_LOGO_DIR"),
		KafkaReportTopic:     sharedcfg.EnvOrDefault("KAFKA_REPORT_TOPIC", "fuel-price-builds"),
		PushgatewayURL:       os.Getenv("PUSHGATEWAY_URL"),
		HTTPAddr:             os.Getenv("HTTP_ADDR"),
		LogLevel:             sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:      shutdownTimeout,
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if cfg.StableKeys, err = parseBool("STABLE_KEYS", false); err != nil {
		return nil, err
	}
	if cfg.StageAugmented, err = parseBool("STAGE_AUGMENTED", true); err != nil {
		return nil, err
	}
	if cfg.EnrichOpeningHours, err = parseBool("ENRICH_OPENING_HOURS", true); err != nil {
		return nil, err
	}
	if cfg.GeocodeTimeout, err = parseDuration("GEOCODE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.GeocodeRetryInterval, err = parseDuration("GEOCODE_RETRY_INTERVAL", 200*time.Millisecond); err != nil {
		return nil, err
	}
	// Nominatim's public usage policy allows one request per second.
	if cfg.NominatimInterval, err = parseDuration("NOMINATIM_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.RebuildInterval, err = parseDuration("REBUILD_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.GeocodeCacheSize, err = parseInt("GEOCODE_CACHE_SIZE", 1000, 1, 1_000_000); err != nil {
		return nil, err
	}
	if cfg.GeocodeConcurrency, err = parseInt("GEOCODE_CONCURRENCY", 4, 1, 64); err != nil {
		return nil, err
	}
	if cfg.GeocodeMaxRetries, err = parseInt("GEOCODE_MAX_RETRIES", 3, 0, 20); err != nil {
		return nil, err
	}

	cfg.Geocoder = os.Getenv("GEOCODER")
	if cfg.Geocoder == "" {
		cfg.Geocoder = defaultGeocoder(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultGeocoder(cfg *Config) string {
	switch {
	case cfg.MapboxToken != "":
		return GeocoderMapbox
	case cfg.PlacesAPIKey != "":
		return GeocoderPlaces
	default:
		return GeocoderNominatim
	}
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: want sqlite, mysql or postgres", c.StoreDriver)
	}
	if c.StoreDSN == "" {
		return errors.New("STORE_DSN is required")
	}
	switch c.MirrorCompression {
	case "none", "snappy":
	default:
		return fmt.Errorf("invalid MIRROR_COMPRESSION %q: want none or snappy", c.MirrorCompression)
	}
	switch c.Geocoder {
	case GeocoderNone:
	case GeocoderNominatim:
		if strings.TrimSpace(c.NominatimUserAgent) == "" {
			return errors.New("NOMINATIM_USER_AGENT must not be empty")
		}
	case GeocoderMapbox:
		if c.MapboxToken == "" {
			return errors.New("GEOCODER is mapbox but MAPBOX_TOKEN is not set")
		}
	case GeocoderPlaces:
		if c.PlacesAPIKey == "" {
			return errors.New("GEOCODER is places but PLACES_API_KEY is not set")
		}
	default:
		return fmt.Errorf("invalid GEOCODER %q: want none, nominatim, mapbox or places", c.Geocoder)
	}
	if c.BrandLogoDir != "" && c.BrandfetchAPIKey == "" {
		return errors.New("BRAND_LOGO_DIR is set but BRANDFETCH_API_KEY is not")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaReportTopic == "" {
		return errors.New("KAFKA_REPORT_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// StoreConfig is the part of Config that locates a built store.
type StoreConfig struct {
	Driver         string
	DSN            string
	StageAugmented bool
}

// LoadStore reads only the store settings. Tools that inspect an existing
// store use it so unrelated variables cannot stop them. On error the
// returned settings still hold defaults for the bad values.
func LoadStore() (StoreConfig, error) {
	_ = godotenv.Load()

	sc := StoreConfig{
		Driver: sharedcfg.EnvOrDefault("STORE_DRIVER", "sqlite"),
		DSN:    sharedcfg.EnvOrDefault("STORE_DSN", "fuel_price.db"),
	}
	staged, err := parseBool("STAGE_AUGMENTED", true)
	if err != nil {
		staged = true
	}
	sc.StageAugmented = staged
	return sc, err
}

// RequireInputs reports an error unless both input locations are set.
func (c *Config) RequireInputs() error {
	if len(c.PriceHistoryPaths) == 0 {
		return errors.New("PRICE_HISTORY_PATHS is required")
	}
	if c.StationDirectoryPath == "" {
		return errors.New("STATION_DIRECTORY_PATH is required")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", key, s)
	}
	return v, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}

func parseInt(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s %q: want %d..%d", key, s, lo, hi)
	}
	return n, nil
}
