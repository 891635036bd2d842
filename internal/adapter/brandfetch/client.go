// Package brandfetch looks up brand logos with the Brandfetch search API
// and keeps downloaded copies on disk.
package brandfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/fuel-price-etl/internal/adapter/lookup"
	"github.com/couchcryptid/fuel-price-etl/internal/domain"
	"github.com/couchcryptid/fuel-price-etl/internal/observability"
)

const provider = "brandfetch"

// Client implements domain.PlaceLookup for brand names. Candidates carry
// the brand's icon URL in Image and no coordinates.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Brandfetch client.
func NewClient(apiKey string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    "https://api.brandfetch.io/v2",
		metrics:    metrics,
		logger:     logger,
	}
}

// Lookup searches brands by name, best match first.
func (c *Client) Lookup(ctx context.Context, brand string) ([]domain.Candidate, error) {
	start := time.Now()
	candidates, err := c.search(ctx, brand)
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

func (c *Client) search(ctx context.Context, brand string) ([]domain.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/"+url.PathEscape(brand), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brandfetch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, lookup.StatusError(provider, resp)
	}

	var hits []searchHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(hits))
	for _, h := range hits {
		if h.Icon == "" {
			c.logger.Debug("skipping brand without icon", "brand", h.Name, "domain", h.Domain)
			continue
		}
		candidates = append(candidates, domain.Candidate{Label: h.Name, Image: h.Icon})
	}
	return candidates, nil
}

type searchHit struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Icon   string `json:"icon"`
}
