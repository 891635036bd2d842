package brandfetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/fuel-price-etl/internal/domain"
	"github.com/couchcryptid/fuel-price-etl/internal/observability"
)

func testClient(baseURL string) *Client {
	c := NewClient("bf-key", 5*time.Second, observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.baseURL = baseURL
	return c
}

func TestClient_Lookup_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/7-Eleven Australia", r.URL.Path)
		assert.Equal(t, "Bearer bf-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
		  {"name":"7-Eleven","domain":"7eleven.com.au","icon":""},
		  {"name":"7-Eleven Australia","domain":"7eleven.com.au","icon":"https://cdn.example/7e.png"}]`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	got, err := c.Lookup(context.Background(), "7-Eleven Australia")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.Candidate{Label: "7-Eleven Australia", Image: "https://cdn.example/7e.png"}, got[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues(provider, "success")))
}

func TestClient_Lookup_NoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	got, err := c.Lookup(context.Background(), "Independent")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues(provider, "empty")))
}

func TestClient_Lookup_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Lookup(context.Background(), "Ampol")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLookupRejected))
}

func TestFileStore_SaveThenStored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	store, err := NewFileStore(dir, 5*time.Second)
	require.NoError(t, err)

	_, ok := store.Stored("BP Connect")
	assert.False(t, ok)

	path, err := store.Save(context.Background(), "BP Connect", srv.URL+"/icon")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bp-connect.png"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	stored, ok := store.Stored("BP Connect")
	require.True(t, ok)
	assert.Equal(t, path, stored)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileStore_DownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store, err := NewFileStore(t.TempDir(), 5*time.Second)
	require.NoError(t, err)
	_, err = store.Save(context.Background(), "Ampol", srv.URL+"/missing.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestExtension(t *testing.T) {
	tests := []struct {
		contentType, url, want string
	}{
		{"image/jpeg", "https://cdn.example/a", ".jpg"},
		{"image/svg+xml; charset=utf-8", "https://cdn.example/a", ".svg"},
		{"application/octet-stream", "https://cdn.example/a/icon.WEBP?w=64", ".webp"},
		{"", "https://cdn.example/a/icon", ".jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extension(tt.contentType, tt.url), tt.contentType+" "+tt.url)
	}
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "7-eleven", slug("7-Eleven"))
	assert.Equal(t, "united-petroleum", slug("  United   Petroleum! "))
	assert.Equal(t, "brand", slug("???"))
}
