package lookup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/couchcryptid/fuel-price-etl/internal/domain"
	"github.com/couchcryptid/fuel-price-etl/internal/observability"
)

// Retrying retries transient lookup failures with exponential backoff.
// Errors wrapping domain.ErrLookupRejected are returned immediately.
type Retrying struct {
	inner      domain.PlaceLookup
	maxRetries int
	interval   time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewRetrying creates a retry decorator. interval is the first backoff
// delay; it doubles after every attempt, capped at 5s.
func NewRetrying(inner domain.PlaceLookup, maxRetries int, interval time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Retrying {
	return &Retrying{
		inner:      inner,
		maxRetries: maxRetries,
		interval:   interval,
		metrics:    metrics,
		logger:     logger,
	}
}

// Lookup calls the inner lookup until it succeeds, fails permanently, or
// the retry budget is spent.
func (r *Retrying) Lookup(ctx context.Context, query string) ([]domain.Candidate, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.interval
	exp.MaxInterval = 5 * time.Second
	exp.MaxElapsedTime = 0

	var policy backoff.BackOff = exp
	if r.maxRetries >= 0 {
		policy = backoff.WithMaxRetries(exp, uint64(r.maxRetries))
	}

	op := func() ([]domain.Candidate, error) {
		candidates, err := r.inner.Lookup(ctx, query)
		if err != nil && (errors.Is(err, domain.ErrLookupRejected) || ctx.Err() != nil) {
			return nil, backoff.Permanent(err)
		}
		return candidates, err
	}
	notify := func(err error, wait time.Duration) {
		r.metrics.GeocodeRetries.Inc()
		r.logger.Debug("retrying lookup", "query", query, "wait", wait, "error", err)
	}
	return backoff.RetryNotifyWithData(op, backoff.WithContext(policy, ctx), notify)
}
