// Command genmock writes a deterministic FuelCheck-style price history and
// station directory for local runs of fuelstar.
//
// Usage:
//
//	go run ./cmd/genmock -out-dir data/mock
//	PRICE_HISTORY_PATHS=data/mock/price_history.tsv \
//	STATION_DIRECTORY_PATH=data/mock/stations.json go run ./cmd/fuelstar
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/couchcryptid/fuel-price-etl/internal/domain"
	"github.com/couchcryptid/fuel-price-etl/internal/mockdata"
)

const (
	priceFile     = "price_history.tsv"
	directoryFile = "stations.json"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", "", "directory to write price_history.tsv and stations.json into")
	flag.Parse()

	if *outDir == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out-dir")
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	f := mockdata.Generate()

	pricePath := filepath.Join(*outDir, priceFile)
	if err := writeFile(pricePath, func(w io.Writer) error { return mockdata.WritePriceHistory(w, f.Prices) }); err != nil {
		return fmt.Errorf("writing price history: %w", err)
	}
	log.Printf("wrote price history: %s (%d rows)", pricePath, len(f.Prices))

	dirPath := filepath.Join(*outDir, directoryFile)
	if err := writeFile(dirPath, func(w io.Writer) error { return mockdata.WriteDirectory(w, f.Stations) }); err != nil {
		return fmt.Errorf("writing station directory: %w", err)
	}
	log.Printf("wrote station directory: %s (%d rows)", dirPath, len(f.Stations))

	printStats(f)
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(out); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func printStats(f mockdata.Fixture) {
	fuels := map[string]int{}
	for _, p := range f.Prices {
		fuels[p.FuelCode]++
	}
	noCoords := 0
	for _, s := range f.Stations {
		if s.Coords == nil {
			noCoords++
		}
	}

	fmt.Println()
	fmt.Println("=== Mock Data Summary ===")
	fmt.Printf("Price rows:          %d\n", len(f.Prices))
	fmt.Printf("Directory rows:      %d (%d without coordinates)\n", len(f.Stations), noCoords)
	fmt.Printf("Brands:              %d\n", len(mockdata.Brands))
	fmt.Printf("Unlisted station:    %s (brand %q)\n", mockdata.GhostStation, mockdata.GhostBrand)

	codes := make([]string, 0, len(fuels))
	for code := range fuels {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	fmt.Println("Rows by fuel code:")
	for _, code := range codes {
		fmt.Printf("  %-6s %d\n", code, fuels[code])
	}
	fmt.Printf("Timestamp layout:    %s\n", mockdata.TimestampLayout)
	fmt.Printf("Unknown-brand rows:  %d\n", countBrand(f.Prices, mockdata.GhostBrand))
}

func countBrand(prices []domain.RawPriceRecord, brand string) int {
	n := 0
	for _, p := range prices {
		if p.BrandName == brand {
			n++
		}
	}
	return n
}
