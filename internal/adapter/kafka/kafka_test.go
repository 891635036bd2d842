package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/fuel-price-etl/internal/config"
	"github.com/couchcryptid/fuel-price-etl/internal/domain"
)

func TestSerializeReport(t *testing.T) {
	finished := time.Date(2025, 3, 2, 1, 30, 0, 0, time.UTC)
	report := domain.Report{
		RunID:      "run-1",
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
		Tables:     domain.TableCounts{Brands: 3, Facts: 120},
		Errors: domain.ErrorCounts{
			JoinMismatches:     2,
			MismatchesByReason: map[domain.MismatchReason]int{domain.MismatchBrand: 2},
		},
	}

	msg, err := serializeReport(report)
	require.NoError(t, err)

	assert.Equal(t, []byte("run-1"), msg.Key)
	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "run_id", msg.Headers[0].Key)
	assert.Equal(t, []byte("run-1"), msg.Headers[0].Value)
	assert.Equal(t, "finished_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(finished.Format(time.RFC3339)), msg.Headers[1].Value)

	var decoded domain.Report
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, 120, decoded.Tables.Facts)
	assert.Equal(t, 2, decoded.Errors.MismatchesByReason[domain.MismatchBrand])
	assert.Contains(t, string(msg.Value), `"join_mismatches_by_reason":{"brand":2}`)
}

func TestNewPublisher(t *testing.T) {
	p := NewPublisher(&config.Config{KafkaBrokers: []string{"localhost:9092"}, KafkaReportTopic: "builds"}, nil)
	assert.Equal(t, "builds", p.writer.Topic)
	assert.NoError(t, p.Close())
}
