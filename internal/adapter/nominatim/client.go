// Package nominatim implements domain.PlaceLookup with the OpenStreetMap
// Nominatim search API. It needs no API key, so it is the default geocoder.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/fuel-price-etl/internal/adapter/lookup"
	"github.com/couchcryptid/fuel-price-etl/internal/domain"
	"github.com/couchcryptid/fuel-price-etl/internal/observability"
)

const provider = "nominatim"

// Client calls /search. Requests are spaced by a rate limiter shared by all
// callers, and every request carries the configured User-Agent.
type Client struct {
	userAgent  string
	country    string
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Nominatim client. interval is the minimum spacing
// between requests; country is an ISO 3166 alpha-2 code, empty for none.
func NewClient(baseURL, userAgent, country string, interval, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		userAgent:  userAgent,
		country:    strings.ToLower(country),
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		metrics:    metrics,
		logger:     logger,
	}
}

// Lookup forward-geocodes query and returns the best match first.
func (c *Client) Lookup(ctx context.Context, query string) ([]domain.Candidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{
		"q":      {query},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}
	if c.country != "" {
		params.Set("countrycodes", c.country)
	}

	start := time.Now()
	candidates, err := c.doRequest(ctx, c.baseURL+"/search?"+params.Encode())
	c.metrics.GeocodeAPIDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.GeocodeRequests.WithLabelValues(provider, "error").Inc()
	case len(candidates) == 0:
		c.metrics.GeocodeRequests.WithLabelValues(provider, "empty").Inc()
	default:
		c.metrics.GeocodeRequests.WithLabelValues(provider, "success").Inc()
	}
	return candidates, err
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]domain.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, lookup.StatusError(provider, resp)
	}

	var results []result
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(results))
	for _, r := range results {
		coords, ok := r.coordinates()
		if !ok {
			c.logger.Debug("skipping result with unusable coordinates", "place", r.DisplayName, "lat", r.Lat, "lon", r.Lon)
			continue
		}
		candidates = append(candidates, domain.Candidate{Coords: coords, Label: r.DisplayName})
	}
	return candidates, nil
}

// result is one /search hit. Nominatim encodes coordinates as strings.
type result struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (r result) coordinates() (domain.Coordinates, bool) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil || !(lat >= -90 && lat <= 90) {
		return domain.Coordinates{}, false
	}
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil || !(lon >= -180 && lon <= 180) {
		return domain.Coordinates{}, false
	}
	return domain.Coordinates{Lat: lat, Lon: lon}, true
}
