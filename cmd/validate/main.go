// Command validate re-checks a built fuel-price store from the consumer side:
// primary keys are unique, every foreign key resolves, coordinates and day
// names are well formed, and every output table is present.
//
// Usage:
//
//	STORE_DRIVER=sqlite STORE_DSN=fuel_price.db go run ./cmd/validate
//	go run ./cmd/validate -driver postgres -dsn postgres://localhost/fuel
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/couchcryptid/fuel-price-etl/internal/adapter/storage"
	"github.com/couchcryptid/fuel-price-etl/internal/config"
	"github.com/couchcryptid/fuel-price-etl/internal/warehouse"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	// Environment only supplies flag defaults.
	cfg, err := config.LoadStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARN: %v, using default\n", err)
	}

	driver := flag.String("driver", cfg.Driver, "store driver: sqlite, mysql or postgres")
	dsn := flag.String("dsn", cfg.DSN, "store DSN or connection URL")
	requireStaging := flag.Bool("require-staging", cfg.StageAugmented, "fail when augmented_price is missing")
	timeout := flag.Duration("timeout", time.Minute, "overall timeout")
	flag.Parse()

	if code := run(*driver, *dsn, *requireStaging, *timeout); code != 0 {
		os.Exit(code)
	}
}

func run(driver, dsn string, requireStaging bool, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	fmt.Println("=== Fuel Price Store Validation ===")
	fmt.Println()

	store, err := storage.Open(ctx, driver, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open store: %v\n", err)
		return 1
	}
	defer store.Close()

	counts, tables := countTables(ctx, store, requireStaging)
	checks := warehouse.IntegrityChecks(store.Dialect())
	if _, ok := counts[warehouse.TableBrandLogo]; ok {
		checks = append(checks, warehouse.BrandLogoChecks(store.Dialect())...)
	}
	phases := []*phase{
		tables,
		runChecks(ctx, store, "Keys and references", checks),
		runChecks(ctx, store, "Column values", warehouse.ValueChecks(store.Dialect())),
		checkShape(counts),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Println("Rows:")
	for _, name := range warehouse.CreateOrder {
		if n, ok := counts[name]; ok {
			fmt.Printf("  %-20s %s\n", name, humanize.Comma(n))
		}
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// countTables counts every output table. augmented_price is only required
// when the build stages it; brand_logo is always optional.
func countTables(ctx context.Context, store storage.Store, requireStaging bool) (map[string]int64, *phase) {
	p := &phase{name: "Tables present"}
	counts := make(map[string]int64, len(warehouse.CreateOrder))
	for _, name := range warehouse.CreateOrder {
		n, err := store.Count(ctx, name)
		if err != nil {
			if name == warehouse.TableBrandLogo || (name == warehouse.TableAugmented && !requireStaging) {
				continue
			}
			p.errorf("%s: %v", name, err)
			continue
		}
		counts[name] = n
	}
	return counts, p
}

func runChecks(ctx context.Context, store storage.Store, name string, checks []warehouse.Check) *phase {
	p := &phase{name: name}
	for _, c := range checks {
		n, err := store.QueryCount(ctx, c.Query)
		switch {
		case err != nil:
			p.errorf("%s: %v", c.Name, err)
		case n != 0:
			p.errorf("%s: %d violating rows", c.Name, n)
		}
	}
	return p
}

// checkShape flags star schemas that are structurally empty: facts without
// stations, or stations without brands or locations.
func checkShape(counts map[string]int64) *phase {
	p := &phase{name: "Star schema shape"}
	if counts[warehouse.TableFuelPrice] > 0 && counts[warehouse.TableServiceStation] == 0 {
		p.errorf("fuel_price has %d rows but service_station is empty", counts[warehouse.TableFuelPrice])
	}
	if counts[warehouse.TableServiceStation] > 0 {
		if counts[warehouse.TableBrand] == 0 {
			p.errorf("service_station has rows but brand is empty")
		}
		if counts[warehouse.TableLocation] == 0 {
			p.errorf("service_station has rows but location is empty")
		}
	}
	return p
}
