package domain

import (
	"cmp"
	"slices"
	"time"
)

// ExtractOptions controls surrogate-key assignment.
type ExtractOptions struct {
	// StableKeys sorts every dimension by its natural key before numbering,
	// so identical content always yields identical keys.
	StableKeys bool
}

// JoinAudit is the result of the validation pass that runs before
// service_station rows are filtered.
type JoinAudit struct {
	Matched    int
	Mismatches []JoinMismatchError
	ByReason   map[MismatchReason]int

	// FactOrphans counts records whose station name matched no
	// service_station row when facts were joined.
	FactOrphans int
}

// StarSchema holds the dimension and fact rows of one build.
type StarSchema struct {
	Brands    []Brand
	Locations []Location
	Stations  []ServiceStation
	Facts     []FuelPriceFact
	Audit     JoinAudit
}

type locationKey struct {
	address  string
	hasGeo   bool
	lat, lon float64
}

func keyOf(address string, c *Coordinates) locationKey {
	if c == nil {
		return locationKey{address: address}
	}
	return locationKey{address: address, hasGeo: true, lat: c.Lat, lon: c.Lon}
}

type stationKey struct {
	name       string
	adBlue     int8 // -1 null, 0 false, 1 true
	brandID    int64
	locationID int64
}

func triState(b *bool) int8 {
	switch {
	case b == nil:
		return -1
	case *b:
		return 1
	default:
		return 0
	}
}

type factKey struct {
	stationID int64
	fuel      string
	at        time.Time
	price     float64
}

// Extract derives the star schema from the brand feed and the augmented,
// enriched price records.
func Extract(brandNames []string, records []PriceRecord, opts ExtractOptions) StarSchema {
	brands := extractBrands(brandNames, opts)
	locations := extractLocations(records, opts)
	stations, audit := extractStations(records, brands, locations, opts)
	facts, orphans := extractFacts(records, stations, opts)
	audit.FactOrphans = orphans

	return StarSchema{
		Brands:    brands,
		Locations: locations,
		Stations:  stations,
		Facts:     facts,
		Audit:     audit,
	}
}

func extractBrands(names []string, opts ExtractOptions) []Brand {
	names = slices.Clone(names)
	if opts.StableKeys {
		slices.Sort(names)
	}
	out := make([]Brand, len(names))
	for i, n := range names {
		out[i] = Brand{ID: int64(i + 1), Name: n}
	}
	return out
}

func extractLocations(records []PriceRecord, opts ExtractOptions) []Location {
	seen := make(map[locationKey]bool)
	var out []Location
	for _, r := range records {
		k := keyOf(r.Address, r.Coords)
		if seen[k] {
			continue
		}
		seen[k] = true
		loc := Location{Address: r.Address}
		if r.Coords != nil {
			c := *r.Coords
			loc.Coords = &c
		}
		out = append(out, loc)
	}

	if opts.StableKeys {
		slices.SortFunc(out, func(a, b Location) int {
			ka, kb := keyOf(a.Address, a.Coords), keyOf(b.Address, b.Coords)
			return cmp.Or(
				cmp.Compare(ka.address, kb.address),
				compareBool(ka.hasGeo, kb.hasGeo),
				cmp.Compare(ka.lat, kb.lat),
				cmp.Compare(ka.lon, kb.lon),
			)
		})
	}
	for i := range out {
		out[i].ID = int64(i + 1)
	}
	return out
}

// extractStations classifies every record as matched or orphaned, records the
// orphans, and only then builds the distinct station rows from the matches.
func extractStations(records []PriceRecord, brands []Brand, locations []Location, opts ExtractOptions) ([]ServiceStation, JoinAudit) {
	brandIDs := make(map[string]int64, len(brands))
	for _, b := range brands {
		if _, ok := brandIDs[b.Name]; !ok {
			brandIDs[b.Name] = b.ID
		}
	}
	locationIDs := make(map[locationKey]int64, len(locations))
	for _, l := range locations {
		if l.Coords == nil {
			continue // NULL never equals NULL
		}
		locationIDs[keyOf(l.Address, l.Coords)] = l.ID
	}

	type resolved struct {
		record     PriceRecord
		brandID    int64
		locationID int64
	}

	audit := JoinAudit{ByReason: make(map[MismatchReason]int)}
	matched := make([]resolved, 0, len(records))
	for _, r := range records {
		brandID, brandOK := brandIDs[r.BrandName]
		var locationID int64
		locationOK := false
		if r.Coords != nil {
			locationID, locationOK = locationIDs[keyOf(r.Address, r.Coords)]
		}

		var reason MismatchReason
		switch {
		case !brandOK && !locationOK:
			reason = MismatchBrandLocation
		case !brandOK:
			reason = MismatchBrand
		case !locationOK:
			reason = MismatchLocation
		default:
			matched = append(matched, resolved{record: r, brandID: brandID, locationID: locationID})
			continue
		}
		audit.Mismatches = append(audit.Mismatches, JoinMismatchError{
			StationName: r.StationName,
			Address:     r.Address,
			BrandName:   r.BrandName,
			Reason:      reason,
		})
		audit.ByReason[reason]++
	}
	audit.Matched = len(matched)

	seen := make(map[stationKey]bool)
	var out []ServiceStation
	for _, m := range matched {
		k := stationKey{name: m.record.StationName, adBlue: triState(m.record.AdBlue), brandID: m.brandID, locationID: m.locationID}
		if seen[k] {
			continue
		}
		seen[k] = true
		st := ServiceStation{Name: m.record.StationName, BrandID: m.brandID, LocationID: m.locationID}
		if m.record.AdBlue != nil {
			b := *m.record.AdBlue
			st.AdBlue = &b
		}
		out = append(out, st)
	}

	if opts.StableKeys {
		slices.SortFunc(out, func(a, b ServiceStation) int {
			return cmp.Or(
				cmp.Compare(a.Name, b.Name),
				cmp.Compare(triState(a.AdBlue), triState(b.AdBlue)),
				cmp.Compare(a.BrandID, b.BrandID),
				cmp.Compare(a.LocationID, b.LocationID),
			)
		})
	}
	for i := range out {
		out[i].ID = int64(i + 1)
	}
	return out, audit
}

// extractFacts joins records to stations by name only.
func extractFacts(records []PriceRecord, stations []ServiceStation, opts ExtractOptions) ([]FuelPriceFact, int) {
	byName := make(map[string][]int64, len(stations))
	for _, s := range stations {
		byName[s.Name] = append(byName[s.Name], s.ID)
	}

	seen := make(map[factKey]bool)
	var out []FuelPriceFact
	orphans := 0
	for _, r := range records {
		ids, ok := byName[r.StationName]
		if !ok {
			orphans++
			continue
		}
		for _, id := range ids {
			k := factKey{stationID: id, fuel: r.FuelCode, at: instant(r.PriceUpdatedAt), price: r.Price}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, FuelPriceFact{
				StationID:      id,
				FuelCode:       r.FuelCode,
				PriceUpdatedAt: r.PriceUpdatedAt,
				Price:          r.Price,
			})
		}
	}

	if opts.StableKeys {
		slices.SortFunc(out, func(a, b FuelPriceFact) int {
			return cmp.Or(
				cmp.Compare(a.StationID, b.StationID),
				cmp.Compare(a.FuelCode, b.FuelCode),
				a.PriceUpdatedAt.Compare(b.PriceUpdatedAt),
				cmp.Compare(a.Price, b.Price),
			)
		})
	}
	return out, orphans
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
