// Package mirror writes tab-separated copies of the warehouse tables.
package mirror

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"

	"github.com/golang/snappy"

	"github.com/couchcryptid/fuel-price-etl/internal/warehouse"
)

// Compression selects the file encoding of the mirrors.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionSnappy Compression = "snappy"
)

// ParseCompression validates a compression name. Empty means none.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionSnappy:
		return CompressionSnappy, nil
	default:
		return "", fmt.Errorf("unknown compression %q", s)
	}
}

// Writer mirrors tables into a directory. Each table is written as
// <table>.tsv with a header row; partitioned tables are written as
// <table>/<column>=<value>/part-0.tsv without the partition column.
type Writer struct {
	dir         string
	compression Compression
	logger      *slog.Logger
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string, compression Compression, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, compression: compression, logger: logger}
}

// Write replaces the mirror of every table.
func (w *Writer) Write(ctx context.Context, tables []warehouse.Table) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create mirror dir: %w", err)
	}
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		files, err := w.writeTable(t)
		if err != nil {
			return fmt.Errorf("mirror %s: %w", t.Name, err)
		}
		w.logger.Info("table mirrored", "table", t.Name, "rows", len(t.Rows), "files", files)
	}
	return nil
}

func (w *Writer) ext() string {
	if w.compression == CompressionSnappy {
		return ".tsv.sz"
	}
	return ".tsv"
}

func (w *Writer) writeTable(t warehouse.Table) (int, error) {
	flat := filepath.Join(w.dir, t.Name+w.ext())
	partDir := filepath.Join(w.dir, t.Name)
	if err := os.Remove(flat); err != nil && !os.IsNotExist(err) {
		return 0, err
	}
	if err := os.RemoveAll(partDir); err != nil {
		return 0, err
	}

	col := t.ColumnIndex(t.PartitionBy)
	if t.PartitionBy == "" || col < 0 {
		return 1, w.writeFile(flat, t.ColumnNames(), t.Rows)
	}

	header := slices.Delete(t.ColumnNames(), col, col+1)
	var order []string
	parts := map[string][][]any{}
	for _, row := range t.Rows {
		key := warehouse.FormatValue(row[col])
		if _, ok := parts[key]; !ok {
			order = append(order, key)
		}
		parts[key] = append(parts[key], slices.Delete(slices.Clone(row), col, col+1))
	}
	for _, key := range order {
		dir := filepath.Join(partDir, t.PartitionBy+"="+url.PathEscape(key))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
		if err := w.writeFile(filepath.Join(dir, "part-0"+w.ext()), header, parts[key]); err != nil {
			return 0, err
		}
	}
	return len(order), nil
}

func (w *Writer) writeFile(path string, header []string, rows [][]any) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	var out io.Writer = f
	var sw *snappy.Writer
	if w.compression == CompressionSnappy {
		sw = snappy.NewBufferedWriter(f)
		out = sw
	} else {
		bw := bufio.NewWriter(f)
		defer func() {
			if ferr := bw.Flush(); err == nil {
				err = ferr
			}
		}()
		out = bw
	}

	if err := writeTSV(out, header, rows); err != nil {
		return err
	}
	if sw != nil {
		return sw.Close()
	}
	return nil
}

func writeTSV(out io.Writer, header []string, rows [][]any) error {
	cw := csv.NewWriter(out)
	cw.Comma = '\t'
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, v := range row {
			record[i] = warehouse.FormatValue(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
