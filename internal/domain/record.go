package domain

import (
	"fmt"
	"time"
)

// Coordinates is a WGS-84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RawPriceRecord is one row of the price-history feed as the source adapter
// read it. Timestamp and price are still text; Deduplicate parses them.
type RawPriceRecord struct {
	StationName    string
	Address        string
	Suburb         string
	Postcode       string
	BrandName      string
	FuelCode       string
	PriceUpdatedAt string
	Price          string

	// Optional columns some extracts carry.
	Coords *Coordinates
	AdBlue *bool

	// Origin identifies the source row, e.g. "prices_mar25.csv:42".
	Origin string
}

// StationRecord is one row of the station-directory feed.
type StationRecord struct {
	StationName string
	Address     string
	BrandName   string
	Coords      *Coordinates
	AdBlue      *bool
}

// PriceRecord is a deduplicated price observation. After Augment and Enrich
// it also carries the station's coordinates and AdBlue flag.
type PriceRecord struct {
	StationName    string
	Address        string
	Suburb         string
	Postcode       string
	BrandName      string
	FuelCode       string
	PriceUpdatedAt time.Time
	Price          float64
	Coords         *Coordinates
	AdBlue         *bool

	// Observations is the number of raw rows merged into this record.
	Observations int
}

// Brand is the brand dimension.
type Brand struct {
	ID   int64
	Name string
}

// Location is the location dimension. Coords is nil when neither the
// directory nor the geocoder knew the address.
type Location struct {
	ID      int64
	Address string
	Coords  *Coordinates
}

// ServiceStation is the station dimension. BrandID and LocationID always
// reference rows of the same build.
type ServiceStation struct {
	ID         int64
	Name       string
	AdBlue     *bool
	BrandID    int64
	LocationID int64
}

// FuelPriceFact is one price observation keyed by station surrogate key.
type FuelPriceFact struct {
	StationID      int64
	FuelCode       string
	PriceUpdatedAt time.Time
	Price          float64
}

// OpeningHoursEntry is one opening period of a station in 24-hour HH:MM.
// CloseTime "24:00" means midnight at the end of the same day.
type OpeningHoursEntry struct {
	StationName string
	DayOfWeek   string
	OpenTime    string
	CloseTime   string
}

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// String formats the time as zero-padded HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Period is one structured opening period. Day uses 0=Monday … 6=Sunday.
// Close is nil when the provider reports no closing time.
type Period struct {
	Day   int
	Open  TimeOfDay
	Close *TimeOfDay
}

// OpeningHours is the opening-hours structure returned by a place lookup.
type OpeningHours struct {
	Periods      []Period
	Descriptions []string
}

// Candidate is one match returned by a place lookup.
type Candidate struct {
	Coords Coordinates
	Label  string
	Hours  OpeningHours

	// Image is a logo URL. Only brand lookups set it.
	Image string
}

// BrandLogo is one row of the brand_logo table. ImgPath is a local file
// path when logos are downloaded, otherwise the provider's image URL.
type BrandLogo struct {
	BrandID   int64
	BrandName string
	ImgPath   string
}
