// Package tabular reads price history and station directory extracts from
// delimited text files and FuelCheck JSON payloads.
package tabular

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/fuel-price-etl/internal/domain"
)

// FileSource loads the pipeline inputs from local files.
type FileSource struct {
	pricePaths    []string
	directoryPath string
	logger        *slog.Logger
}

// NewFileSource creates a FileSource. Price history files are read in the
// given order, which fixes the first-seen order of the whole run.
func NewFileSource(pricePaths []string, directoryPath string, logger *slog.Logger) *FileSource {
	return &FileSource{pricePaths: pricePaths, directoryPath: directoryPath, logger: logger}
}

// PriceHistory reads and concatenates every price history file.
func (s *FileSource) PriceHistory(ctx context.Context) ([]domain.RawPriceRecord, error) {
	var out []domain.RawPriceRecord
	for _, path := range s.pricePaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open price history: %w", err)
		}
		records, err := ReadPriceHistory(f, filepath.Base(path))
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		s.logger.Info("price history loaded", "path", path, "records", len(records))
		out = append(out, records...)
	}
	return out, nil
}

// StationDirectory reads the station directory, either JSON or delimited.
func (s *FileSource) StationDirectory(ctx context.Context) ([]domain.StationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.directoryPath)
	if err != nil {
		return nil, fmt.Errorf("open station directory: %w", err)
	}

	name := filepath.Base(s.directoryPath)
	var stations []domain.StationRecord
	if isJSON(s.directoryPath, data) {
		stations, err = DecodeDirectoryJSON(data, name)
	} else {
		stations, err = ReadStationDirectory(bytes.NewReader(data), name)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("station directory loaded", "path", s.directoryPath, "stations", len(stations))
	return stations, nil
}

func isJSON(path string, data []byte) bool {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return true
	}
	trimmed := strings.TrimSpace(string(data))
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}
