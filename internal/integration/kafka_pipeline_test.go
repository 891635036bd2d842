//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/fuel-price-etl/internal/adapter/kafka"
	"github.com/couchcryptid/fuel-price-etl/internal/adapter/sqlstore"
	"github.com/couchcryptid/fuel-price-etl/internal/config"
	"github.com/couchcryptid/fuel-price-etl/internal/domain"
	"github.com/couchcryptid/fuel-price-etl/internal/mockdata"
	"github.com/couchcryptid/fuel-price-etl/internal/observability"
	"github.com/couchcryptid/fuel-price-etl/internal/pipeline"
	"github.com/couchcryptid/fuel-price-etl/internal/warehouse"
)

const testReportTopic = "test-fuel-price-builds"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	ctr, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("fuel-price-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cconn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cconn.Close()

	err = cconn.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	if err != nil && !errors.Is(err, kafkago.TopicAlreadyExists) {
		require.NoError(t, err, "create topic %s", topic)
	}
}

// readReport reads one report message from the topic.
func readReport(ctx context.Context, t *testing.T, broker, topic string) (domain.Report, kafkago.Message) {
	t.Helper()
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1 << 20,
	})
	defer reader.Close()

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	msg, err := reader.ReadMessage(readCtx)
	require.NoError(t, err, "read report")

	var report domain.Report
	require.NoError(t, json.Unmarshal(msg.Value, &report), "unmarshal report")
	return report, msg
}

func headerMap(msg kafkago.Message) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

// mockSource serves the generated fixture directly.
type mockSource struct{ f mockdata.Fixture }

func (s mockSource) PriceHistory(context.Context) ([]domain.RawPriceRecord, error) {
	return s.f.Prices, nil
}

func (s mockSource) StationDirectory(context.Context) ([]domain.StationRecord, error) {
	return s.f.Stations, nil
}

// TestPublisher verifies a report round-trips through Kafka with its key and
// headers.
func TestPublisher(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReportTopic)

	pub := kafka.NewPublisher(&config.Config{KafkaBrokers: []string{broker}, KafkaReportTopic: testReportTopic}, discardLogger())
	defer pub.Close()

	finished := time.Date(2025, 3, 2, 1, 0, 0, 0, time.UTC)
	sent := domain.Report{
		RunID:      "run-1",
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
		RawRecords: 10,
		Tables:     domain.TableCounts{Brands: 2, Facts: 8},
	}
	require.NoError(t, pub.Publish(ctx, sent))

	got, msg := readReport(ctx, t, broker, testReportTopic)
	assert.Equal(t, "run-1", string(msg.Key))
	assert.Equal(t, map[string]string{"run_id": "run-1", "finished_at": "2025-03-02T01:00:00Z"}, headerMap(msg))
	assert.Equal(t, sent.RawRecords, got.RawRecords)
	assert.Equal(t, sent.Tables, got.Tables)
	assert.True(t, sent.FinishedAt.Equal(got.FinishedAt))
}

// TestPipelineEndToEnd runs a full build into SQLite and expects its report
// on the topic.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReportTopic)

	store, err := sqlstore.Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	defer store.Close()

	pub := kafka.NewPublisher(&config.Config{KafkaBrokers: []string{broker}, KafkaReportTopic: testReportTopic}, discardLogger())
	defer pub.Close()

	p := pipeline.New(
		mockSource{f: mockdata.Generate()},
		domain.NewGapFillEnricher(nil, 1, false, discardLogger()),
		warehouse.NewSchemaBuilder(store, discardLogger()),
		pipeline.Options{StableKeys: true},
		discardLogger(),
		observability.NewMetricsForTesting(),
	).WithPublisher(pub)

	report, err := p.Run(ctx)
	require.NoError(t, err)

	got, msg := readReport(ctx, t, broker, testReportTopic)
	assert.Equal(t, report.RunID, string(msg.Key))
	assert.Equal(t, report.RunID, got.RunID)
	assert.Equal(t, report.Tables, got.Tables)
	assert.Equal(t, report.Errors.JoinMismatches, got.Errors.JoinMismatches)

	n, err := store.Count(ctx, warehouse.TableFuelPrice)
	require.NoError(t, err)
	assert.Equal(t, int64(report.Tables.Facts), n)
}
