package domain

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are tried in order. FuelCheck extracts use day-first
// dates; the API and re-exported staging files use ISO forms.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"2/01/2006 15:04:05",
	"2/01/2006 15:04",
	"2/1/2006 15:04",
	"02/01/2006 03:04:05 PM",
	"2/1/2006 3:04:05 PM",
	"02/01/2006",
}

var errNoLayout = errors.New("no matching timestamp layout")

// ParseTimestamp parses a price timestamp in any accepted layout. Values
// without a zone are read as UTC; no further zone conversion happens.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errNoLayout
}

// ParsePrice parses a finite decimal price.
func ParsePrice(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("price is not finite")
	}
	return v, nil
}

type naturalKey struct {
	station string
	address string
	fuel    string
	at      time.Time
}

// instant normalizes t for use in a map key: one location and no monotonic
// reading, so equal instants compare equal at any date.
func instant(t time.Time) time.Time {
	return t.UTC().Round(0)
}

type group struct {
	record PriceRecord
	sum    float64
}

// Deduplicate collapses raw records to one PriceRecord per natural key
// (station_name, address, fuel_code, price_updated_at). Descriptive fields
// come from the first record of each group and the price is the mean of the
// group. Output follows first-seen key order.
//
// The first unparseable timestamp or price aborts with a *ParseError.
func Deduplicate(raw []RawPriceRecord) ([]PriceRecord, error) {
	index := make(map[naturalKey]int, len(raw))
	groups := make([]group, 0, len(raw))

	for _, r := range raw {
		at, err := ParseTimestamp(r.PriceUpdatedAt)
		if err != nil {
			return nil, &ParseError{Origin: r.Origin, Field: "price_updated_at", Value: r.PriceUpdatedAt, Err: err}
		}
		price, err := ParsePrice(r.Price)
		if err != nil {
			return nil, &ParseError{Origin: r.Origin, Field: "price", Value: r.Price, Err: err}
		}

		key := naturalKey{station: r.StationName, address: r.Address, fuel: r.FuelCode, at: instant(at)}
		if i, ok := index[key]; ok {
			groups[i].sum += price
			groups[i].record.Observations++
			continue
		}

		index[key] = len(groups)
		groups = append(groups, group{
			record: PriceRecord{
				StationName:    r.StationName,
				Address:        r.Address,
				Suburb:         r.Suburb,
				Postcode:       r.Postcode,
				BrandName:      r.BrandName,
				FuelCode:       r.FuelCode,
				PriceUpdatedAt: at,
				Coords:         r.Coords,
				AdBlue:         r.AdBlue,
				Observations:   1,
			},
			sum: price,
		})
	}

	out := make([]PriceRecord, len(groups))
	for i, g := range groups {
		g.record.Price = g.sum / float64(g.record.Observations)
		out[i] = g.record
	}
	return out, nil
}
