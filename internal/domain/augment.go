package domain

// Directory indexes the station-directory feed by station name.
type Directory struct {
	byName map[string]StationRecord
	brands []string

	// Duplicates counts directory rows ignored because their station name
	// was already indexed.
	Duplicates int
}

// NewDirectory indexes stations by name; the first row for a name wins.
// Brand names are collected in first-seen order and form the brand feed.
func NewDirectory(stations []StationRecord) *Directory {
	d := &Directory{byName: make(map[string]StationRecord, len(stations))}
	seenBrand := make(map[string]bool)

	for _, s := range stations {
		if _, ok := d.byName[s.StationName]; ok {
			d.Duplicates++
			continue
		}
		d.byName[s.StationName] = s
		if s.BrandName != "" && !seenBrand[s.BrandName] {
			seenBrand[s.BrandName] = true
			d.brands = append(d.brands, s.BrandName)
		}
	}
	return d
}

// Brands returns the distinct directory brand names in first-seen order.
func (d *Directory) Brands() []string {
	out := make([]string, len(d.brands))
	copy(out, d.brands)
	return out
}

// Lookup returns the directory row for a station name.
func (d *Directory) Lookup(name string) (StationRecord, bool) {
	s, ok := d.byName[name]
	return s, ok
}

// Len returns the number of indexed stations.
func (d *Directory) Len() int { return len(d.byName) }

// Augment left-joins deduplicated records to the directory on station name.
// Coordinates and the AdBlue flag are copied from the directory only where
// the record does not already carry them. It returns the augmented records
// and the number of records whose station name is not in the directory.
func Augment(records []PriceRecord, dir *Directory) ([]PriceRecord, int) {
	out := make([]PriceRecord, len(records))
	unmatched := 0

	for i, r := range records {
		s, ok := dir.Lookup(r.StationName)
		if !ok {
			unmatched++
			out[i] = r
			continue
		}
		if r.Coords == nil && s.Coords != nil {
			c := *s.Coords
			r.Coords = &c
		}
		if r.AdBlue == nil && s.AdBlue != nil {
			b := *s.AdBlue
			r.AdBlue = &b
		}
		out[i] = r
	}
	return out, unmatched
}
