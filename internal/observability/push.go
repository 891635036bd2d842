package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

// PushJob is the Pushgateway job name of a build.
const PushJob = "fuel_price_etl"

// Push sends every metric to the Pushgateway at url, grouped by run id.
func (m *Metrics) Push(ctx context.Context, url, runID string) error {
	p := push.New(url, PushJob).Gatherer(m.Gatherer)
	if runID != "" {
		p = p.Grouping("run_id", runID)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
