// Package mockdata generates a small deterministic FuelCheck-style data set
// for tests and local runs. The set deliberately contains a repeated
// observation, stations without coordinates, a repeated directory row and a
// station whose brand is not in the directory.
package mockdata

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/couchcryptid/fuel-price-etl/internal/domain"
)

// Fixture shape. Stations with an odd index have no coordinates in the
// directory.
const (
	StationCount = 12
	Days         = 2

	// GhostStation appears in the price history only, with GhostBrand.
	GhostStation = "Ghost Fuel Nowhere"
	GhostBrand   = "Ghost Fuel"
	GhostAddress = "99 Nowhere Rd, Nowhere NSW 2999"
)

var (
	// Brands in directory order.
	Brands    = []string{"Ampol", "BP", "Shell", "7-Eleven", "Metro"}
	fuelCodes = []string{"E10", "U91", "P98"}
	suburbs   = []string{"Ryde", "Epping", "Parramatta", "Chatswood", "Hornsby", "Penrith",
		"Liverpool", "Blacktown", "Manly", "Bondi", "Newtown", "Strathfield"}

	baseDate = time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)
)

// TimestampLayout matches the FuelCheck monthly extracts.
const TimestampLayout = "02/01/2006 15:04:05"

// Fixture is a generated price history and station directory.
type Fixture struct {
	Prices   []domain.RawPriceRecord
	Stations []domain.StationRecord
}

// FuelCount returns how many fuel codes station i sells.
func FuelCount(i int) int { return 1 + i%len(fuelCodes) }

// StationName returns the name of station i.
func StationName(i int) string {
	return fmt.Sprintf("%s %s", Brands[i%len(Brands)], suburbs[i])
}

// Address returns the street address of station i.
func Address(i int) string {
	return fmt.Sprintf("%d Pacific Hwy, %s NSW 2%03d", 10*(i+1), suburbs[i], 100+i)
}

// Generate builds the fixture.
func Generate() Fixture {
	var f Fixture
	for i := range StationCount {
		s := domain.StationRecord{
			StationName: StationName(i),
			Address:     Address(i),
			BrandName:   Brands[i%len(Brands)],
		}
		if i%2 == 0 {
			s.Coords = &domain.Coordinates{Lat: -33.8 - float64(i)/100, Lon: 151.0 + float64(i)/100}
		}
		switch i % 3 {
		case 0:
			s.AdBlue = ptr(true)
		case 1:
			s.AdBlue = ptr(false)
		}
		f.Stations = append(f.Stations, s)

		for fuel := range FuelCount(i) {
			for day := range Days {
				f.Prices = append(f.Prices, price(i, s, fuel, day))
			}
		}
	}

	// Same natural key as the first observation, different price.
	dup := f.Prices[0]
	dup.Price = "182.9"
	f.Prices = append(f.Prices, dup)

	// A later directory row for an existing station is ignored.
	moved := f.Stations[0]
	moved.Address = "1 Elsewhere St, Ryde NSW 2112"
	f.Stations = append(f.Stations, moved)

	for day := range Days {
		f.Prices = append(f.Prices, domain.RawPriceRecord{
			StationName:    GhostStation,
			Address:        GhostAddress,
			Suburb:         "Nowhere",
			Postcode:       "2999",
			BrandName:      GhostBrand,
			FuelCode:       "E10",
			PriceUpdatedAt: baseDate.AddDate(0, 0, day).Format(TimestampLayout),
			Price:          "165.0",
		})
	}
	return f
}

func price(i int, s domain.StationRecord, fuel, day int) domain.RawPriceRecord {
	at := baseDate.AddDate(0, 0, day).Add(time.Duration(i) * time.Minute)
	return domain.RawPriceRecord{
		StationName:    s.StationName,
		Address:        s.Address,
		Suburb:         suburbs[i],
		Postcode:       fmt.Sprintf("2%03d", 100+i),
		BrandName:      s.BrandName,
		FuelCode:       fuelCodes[fuel],
		PriceUpdatedAt: at.Format(TimestampLayout),
		Price:          fmt.Sprintf("%.1f", 170+float64(i)+10*float64(fuel)+0.5*float64(day)),
	}
}

func ptr[T any](v T) *T { return &v }

// WritePriceHistory writes prices as a tab-separated FuelCheck extract.
func WritePriceHistory(w io.Writer, prices []domain.RawPriceRecord) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write([]string{"ServiceStationName", "Address", "Suburb", "Postcode", "Brand", "FuelCode", "PriceUpdatedDate", "Price"}); err != nil {
		return err
	}
	for _, p := range prices {
		if err := cw.Write([]string{p.StationName, p.Address, p.Suburb, p.Postcode, p.BrandName, p.FuelCode, p.PriceUpdatedAt, p.Price}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type directoryJSON struct {
	Stations []stationJSON `json:"stations"`
}

type stationJSON struct {
	Name              string        `json:"name"`
	Address           string        `json:"address"`
	Brand             string        `json:"brand"`
	Location          *locationJSON `json:"location,omitempty"`
	IsAdBlueAvailable *bool         `json:"isAdBlueAvailable,omitempty"`
}

type locationJSON struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// WriteDirectory writes stations as a FuelCheck API payload.
func WriteDirectory(w io.Writer, stations []domain.StationRecord) error {
	payload := directoryJSON{Stations: make([]stationJSON, 0, len(stations))}
	for _, s := range stations {
		js := stationJSON{Name: s.StationName, Address: s.Address, Brand: s.BrandName, IsAdBlueAvailable: s.AdBlue}
		if s.Coords != nil {
			js.Location = &locationJSON{Latitude: s.Coords.Lat, Longitude: s.Coords.Lon}
		}
		payload.Stations = append(payload.Stations, js)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
