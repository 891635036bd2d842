package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/fuel-price-etl/internal/warehouse"
)

func TestOpen_SQLite(t *testing.T) {
	s, err := Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, warehouse.SQLite.Name, s.Dialect().Name)
	assert.NoError(t, s.CheckReadiness(context.Background()))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"oracle"`)
}
