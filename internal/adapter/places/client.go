// Package places implements domain.PlaceLookup with the Google Places
// Text Search API, which returns coordinates and regular opening hours.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/fuel-price-etl/internal/adapter/lookup"
	"github.com/couchcryptid/fuel-price-etl/internal/domain"
	"github.com/couchcryptid/fuel-price-etl/internal/observability"
)

const (
	provider  = "places"
	fieldMask = "places.formattedAddress,places.location,places.regularOpeningHours"
)

// Client calls places:searchText.
type Client struct {
	apiKey     string
	region     string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Places client. region is a CLDR region code used to
// bias results, e.g. "AU".
func NewClient(apiKey, region string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		region:     region,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    "https://places.googleapis.com/v1",
		metrics:    metrics,
		logger:     logger,
	}
}

// Lookup searches for query and returns the best match first.
func (c *Client) Lookup(ctx context.Context, query string) ([]domain.Candidate, error) {
	start := time.Now()
	candidates, err := c.search(ctx, query)
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

func (c *Client) search(ctx context.Context, query string) ([]domain.Candidate, error) {
	body, err := json.Marshal(searchRequest{TextQuery: query, RegionCode: c.region, PageSize: 1})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("places request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, lookup.StatusError(provider, resp)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(sr.Places))
	for _, p := range sr.Places {
		if p.Location == nil {
			c.logger.Debug("skipping place without location", "place", p.FormattedAddress)
			continue
		}
		candidates = append(candidates, domain.Candidate{
			Coords: domain.Coordinates{Lat: p.Location.Latitude, Lon: p.Location.Longitude},
			Label:  p.FormattedAddress,
			Hours:  p.RegularOpeningHours.toDomain(),
		})
	}
	return candidates, nil
}

// Places API request and response types.

type searchRequest struct {
	TextQuery  string `json:"textQuery"`
	RegionCode string `json:"regionCode,omitempty"`
	PageSize   int    `json:"pageSize,omitempty"`
}

type searchResponse struct {
	Places []place `json:"places"`
}

type place struct {
	FormattedAddress    string        `json:"formattedAddress"`
	Location            *latLng       `json:"location"`
	RegularOpeningHours *openingHours `json:"regularOpeningHours"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type openingHours struct {
	Periods             []period `json:"periods"`
	WeekdayDescriptions []string `json:"weekdayDescriptions"`
}

type period struct {
	Open  *point `json:"open"`
	Close *point `json:"close"`
}

// point is a day and time; Day counts from 0=Sunday.
type point struct {
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// mondayBased converts the API's 0=Sunday day index to 0=Monday.
func mondayBased(day int) int {
	return (day + 6) % 7
}

func (h *openingHours) toDomain() domain.OpeningHours {
	if h == nil {
		return domain.OpeningHours{}
	}
	out := domain.OpeningHours{Descriptions: h.WeekdayDescriptions}
	if h.alwaysOpen() {
		for day := range 7 {
			out.Periods = append(out.Periods, domain.Period{Day: day})
		}
		return out
	}
	for _, p := range h.Periods {
		if p.Open == nil || p.Open.Day < 0 || p.Open.Day > 6 {
			continue
		}
		dp := domain.Period{
			Day:  mondayBased(p.Open.Day),
			Open: domain.TimeOfDay{Hour: p.Open.Hour, Minute: p.Open.Minute},
		}
		if p.Close != nil {
			dp.Close = &domain.TimeOfDay{Hour: p.Close.Hour, Minute: p.Close.Minute}
		}
		out.Periods = append(out.Periods, dp)
	}
	return out
}

// alwaysOpen reports the API's shape for a place open around the clock: a
// single period opening Sunday 00:00 with no close.
func (h *openingHours) alwaysOpen() bool {
	if len(h.Periods) != 1 {
		return false
	}
	p := h.Periods[0]
	return p.Close == nil && p.Open != nil && *p.Open == point{}
}
