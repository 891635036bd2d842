package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// TableCounts holds the row count of every materialized table.
type TableCounts struct {
	Brands         int `json:"brand"`
	BrandLogos     int `json:"brand_logo,omitempty"`
	Locations      int `json:"location"`
	Stations       int `json:"service_station"`
	Facts          int `json:"fuel_price"`
	OpeningHours   int `json:"opening_hours"`
	AugmentedPrice int `json:"augmented_price,omitempty"`
}

// ErrorCounts aggregates non-fatal errors of a successful run.
type ErrorCounts struct {
	FetchErrors         int                    `json:"fetch_errors"`
	GeocodeMisses       int                    `json:"geocode_misses"`
	LogoMisses          int                    `json:"logo_misses"`
	JoinMismatches      int                    `json:"join_mismatches"`
	MismatchesByReason  map[MismatchReason]int `json:"join_mismatches_by_reason,omitempty"`
	HoursSkipped        int                    `json:"hours_skipped"`
	FactOrphans         int                    `json:"fact_orphans"`
	DirectoryDuplicates int                    `json:"directory_duplicates"`
}

// Report summarizes one pipeline run.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	RawRecords        int `json:"raw_records"`
	DedupedRecords    int `json:"deduped_records"`
	DirectoryStations int `json:"directory_stations"`
	DirectoryMisses   int `json:"directory_misses"`
	GeocodeLookups    int `json:"geocode_lookups"`
	CoordinatesFilled int `json:"coordinates_filled"`

	Tables TableCounts `json:"tables"`
	Errors ErrorCounts `json:"errors"`
}

// Duration returns the wall-clock duration of the run.
func (r Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary renders the report for humans, one fact per line.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s finished in %s\n", r.RunID, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "  raw records:        %s\n", humanize.Comma(int64(r.RawRecords)))
	fmt.Fprintf(&b, "  deduplicated:       %s\n", humanize.Comma(int64(r.DedupedRecords)))
	fmt.Fprintf(&b, "  brand:              %s\n", humanize.Comma(int64(r.Tables.Brands)))
	if r.Tables.BrandLogos > 0 {
		fmt.Fprintf(&b, "  brand_logo:         %s\n", humanize.Comma(int64(r.Tables.BrandLogos)))
	}
	fmt.Fprintf(&b, "  location:           %s\n", humanize.Comma(int64(r.Tables.Locations)))
	fmt.Fprintf(&b, "  service_station:    %s\n", humanize.Comma(int64(r.Tables.Stations)))
	fmt.Fprintf(&b, "  fuel_price:         %s\n", humanize.Comma(int64(r.Tables.Facts)))
	fmt.Fprintf(&b, "  opening_hours:      %s\n", humanize.Comma(int64(r.Tables.OpeningHours)))
	fmt.Fprintf(&b, "non-fatal errors:\n")
	fmt.Fprintf(&b, "  %-20s %d\n", KindFetch, r.Errors.FetchErrors)
	fmt.Fprintf(&b, "  %-20s %d\n", KindJoinMismatch, r.Errors.JoinMismatches)

	reasons := make([]string, 0, len(r.Errors.MismatchesByReason))
	for reason := range r.Errors.MismatchesByReason {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(&b, "    %-18s %d\n", reason, r.Errors.MismatchesByReason[MismatchReason(reason)])
	}

	fmt.Fprintf(&b, "  %-20s %d\n", "geocode_miss", r.Errors.GeocodeMisses)
	fmt.Fprintf(&b, "  %-20s %d\n", "logo_miss", r.Errors.LogoMisses)
	fmt.Fprintf(&b, "  %-20s %d\n", "hours_skipped", r.Errors.HoursSkipped)
	fmt.Fprintf(&b, "  %-20s %d\n", "fact_orphan", r.Errors.FactOrphans)
	fmt.Fprintf(&b, "  %-20s %d\n", "directory_duplicate", r.Errors.DirectoryDuplicates)
	return b.String()
}
