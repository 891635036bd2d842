package domain

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// EnrichStats counts enrichment outcomes. Lookup-level counters are per
// distinct query; Filled counts records.
type EnrichStats struct {
	Lookups      int
	Filled       int
	Misses       int
	FetchErrors  int
	HoursSkipped int
}

// EnrichResult is the output of GapFillEnricher.Enrich.
type EnrichResult struct {
	Records      []PriceRecord
	OpeningHours []OpeningHoursEntry
	Failures     []FetchError
	Stats        EnrichStats
}

// GapFillEnricher backfills coordinates and opening hours from a PlaceLookup.
type GapFillEnricher struct {
	lookup      PlaceLookup
	concurrency int
	withHours   bool
	logger      *slog.Logger
}

// NewGapFillEnricher creates an enricher. A nil lookup disables enrichment.
// Concurrency bounds the number of in-flight lookups; withHours adds one
// "name, address" lookup per distinct station for its opening hours.
func NewGapFillEnricher(lookup PlaceLookup, concurrency int, withHours bool, logger *slog.Logger) *GapFillEnricher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &GapFillEnricher{
		lookup:      lookup,
		concurrency: concurrency,
		withHours:   withHours,
		logger:      logger,
	}
}

type lookupOutcome struct {
	candidates []Candidate
	err        error
}

// Enrich looks up every distinct normalized address lacking coordinates, at
// most once each, and merges coordinates back by address. Opening hours come
// from a separate per-station query naming the station, so two stations
// sharing an address keep their own hours. Merge-back walks records and
// queries in input order, so the result does not depend on which lookup
// finished first. Lookup failures are non-fatal; only context cancellation
// aborts.
func (e *GapFillEnricher) Enrich(ctx context.Context, records []PriceRecord) (EnrichResult, error) {
	result := EnrichResult{Records: make([]PriceRecord, len(records))}
	copy(result.Records, records)
	if e.lookup == nil {
		return result, nil
	}

	queries := addressesToLookup(records)
	var stations []stationQuery
	if e.withHours {
		stations = stationsToLookup(records)
		seen := make(map[string]bool, len(queries))
		for _, q := range queries {
			seen[q] = true
		}
		for _, s := range stations {
			if s.query != "" && !seen[s.query] {
				seen[s.query] = true
				queries = append(queries, s.query)
			}
		}
	}

	outcomes := make(map[string]lookupOutcome, len(queries))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, q := range queries {
		g.Go(func() error {
			candidates, err := e.lookup.Lookup(gctx, q)
			mu.Lock()
			outcomes[q] = lookupOutcome{candidates: candidates, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return EnrichResult{}, err
	}

	result.Stats.Lookups = len(queries)
	for _, q := range queries {
		o := outcomes[q]
		switch {
		case o.err != nil:
			e.logger.Warn("place lookup failed", "query", q, "error", o.err)
			result.Failures = append(result.Failures, FetchError{Query: q, Err: o.err})
			result.Stats.FetchErrors++
		case len(o.candidates) == 0:
			e.logger.Warn("place lookup returned no candidate", "query", q)
			result.Stats.Misses++
		}
	}

	for i := range result.Records {
		r := &result.Records[i]
		if r.Coords != nil {
			continue
		}
		o := outcomes[NormalizeAddress(r.Address)]
		if o.err != nil || len(o.candidates) == 0 {
			continue
		}
		c := o.candidates[0].Coords
		r.Coords = &c
		result.Stats.Filled++
	}

	if e.withHours {
		result.OpeningHours, result.Stats.HoursSkipped = e.openingHours(stations, outcomes)
	}
	return result, nil
}

// addressesToLookup returns the distinct normalized addresses of records
// lacking coordinates, in first-seen order.
func addressesToLookup(records []PriceRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		if r.Coords != nil {
			continue
		}
		addr := NormalizeAddress(r.Address)
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}

type stationQuery struct {
	name  string
	query string
}

// stationsToLookup returns one hours query per distinct station name, in
// first-seen order, built from the name and its first-seen address. A station
// with neither yields an empty query, which is never sent and counts as
// skipped.
func stationsToLookup(records []PriceRecord) []stationQuery {
	seen := make(map[string]bool)
	var out []stationQuery
	for _, r := range records {
		if seen[r.StationName] {
			continue
		}
		seen[r.StationName] = true
		out = append(out, stationQuery{name: r.StationName, query: HoursQuery(r.StationName, r.Address)})
	}
	return out
}

// HoursQuery is the lookup text for a station's opening hours: its name and
// address joined by a comma, whitespace-normalized. Either part may be empty.
func HoursQuery(name, address string) string {
	name, address = NormalizeAddress(name), NormalizeAddress(address)
	switch {
	case name == "":
		return address
	case address == "":
		return name
	}
	return name + ", " + address
}

// openingHours expands the first candidate's hours for every station query.
func (e *GapFillEnricher) openingHours(stations []stationQuery, outcomes map[string]lookupOutcome) ([]OpeningHoursEntry, int) {
	var entries []OpeningHoursEntry
	skipped := 0

	for _, s := range stations {
		o := outcomes[s.query]
		if o.err != nil || len(o.candidates) == 0 {
			skipped++
			continue
		}
		expanded := ExpandOpeningHours(s.name, o.candidates[0].Hours)
		if len(expanded) == 0 {
			e.logger.Debug("no opening hours for station", "station", s.name)
			skipped++
			continue
		}
		entries = append(entries, expanded...)
	}
	return entries, skipped
}
