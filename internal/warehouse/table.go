// Package warehouse defines the output tables of the star schema and the
// SchemaBuilder that rebuilds them in a relational store.
package warehouse

import (
	"fmt"
	"strconv"
	"time"

	"github.com/couchcryptid/fuel-price-etl/internal/domain"
)

// Table names.
const (
	TableAugmented      = "augmented_price"
	TableBrand          = "brand"
	TableBrandLogo      = "brand_logo"
	TableLocation       = "location"
	TableServiceStation = "service_station"
	TableFuelPrice      = "fuel_price"
	TableOpeningHours   = "opening_hours"
)

// CreateOrder lists every table in dependency order, staging first.
// Drops run in the reverse order.
var CreateOrder = []string{
	TableAugmented,
	TableBrand,
	TableBrandLogo,
	TableLocation,
	TableServiceStation,
	TableFuelPrice,
	TableOpeningHours,
}

// ColumnType is a storage-independent column type.
type ColumnType int

const (
	TypeInt ColumnType = iota
	TypeText
	TypeFloat
	TypeBool
	TypeTimestamp
)

// Column describes one table column.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Table is a fully materialized output table. Row values are int64, string,
// float64, bool, time.Time or nil.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey []string

	// PartitionBy names a column the table is logically partitioned by.
	// Stores ignore it; mirrors write one file per value.
	PartitionBy string

	Rows [][]any
}

// ColumnNames returns the column names in order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of a column, or -1.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Dataset is everything one build materializes.
type Dataset struct {
	Schema       domain.StarSchema
	OpeningHours []domain.OpeningHoursEntry

	// Augmented is the joined, enriched staging data. Nil skips the
	// staging table.
	Augmented []domain.PriceRecord

	// BrandLogos feeds brand_logo. Nil skips the table.
	BrandLogos []domain.BrandLogo
}

// Tables converts the dataset into tables in CreateOrder.
func (d Dataset) Tables() []Table {
	var out []Table
	if d.Augmented != nil {
		out = append(out, AugmentedTable(d.Augmented))
	}
	out = append(out, BrandTable(d.Schema.Brands))
	if d.BrandLogos != nil {
		out = append(out, BrandLogoTable(d.BrandLogos))
	}
	return append(out,
		LocationTable(d.Schema.Locations),
		ServiceStationTable(d.Schema.Stations),
		FuelPriceTable(d.Schema.Facts),
		OpeningHoursTable(d.OpeningHours),
	)
}

// BrandTable builds brand(brand_id PK, brand_name).
func BrandTable(brands []domain.Brand) Table {
	t := Table{
		Name: TableBrand,
		Columns: []Column{
			{Name: "brand_id", Type: TypeInt},
			{Name: "brand_name", Type: TypeText},
		},
		PrimaryKey: []string{"brand_id"},
		Rows:       make([][]any, 0, len(brands)),
	}
	for _, b := range brands {
		t.Rows = append(t.Rows, []any{b.ID, b.Name})
	}
	return t
}

// BrandLogoTable builds brand_logo(brand_id PK, brand_name, img_path).
// brand_id references brand of the same build.
func BrandLogoTable(logos []domain.BrandLogo) Table {
	t := Table{
		Name: TableBrandLogo,
		Columns: []Column{
			{Name: "brand_id", Type: TypeInt},
			{Name: "brand_name", Type: TypeText},
			{Name: "img_path", Type: TypeText},
		},
		PrimaryKey: []string{"brand_id"},
		Rows:       make([][]any, 0, len(logos)),
	}
	for _, l := range logos {
		t.Rows = append(t.Rows, []any{l.BrandID, l.BrandName, l.ImgPath})
	}
	return t
}

// LocationTable builds location(location_id PK, address, latitude, longitude).
func LocationTable(locations []domain.Location) Table {
	t := Table{
		Name: TableLocation,
		Columns: []Column{
			{Name: "location_id", Type: TypeInt},
			{Name: "address", Type: TypeText},
			{Name: "latitude", Type: TypeFloat, Nullable: true},
			{Name: "longitude", Type: TypeFloat, Nullable: true},
		},
		PrimaryKey: []string{"location_id"},
		Rows:       make([][]any, 0, len(locations)),
	}
	for _, l := range locations {
		lat, lon := coordValues(l.Coords)
		t.Rows = append(t.Rows, []any{l.ID, l.Address, lat, lon})
	}
	return t
}

// ServiceStationTable builds service_station. brand_id and location_id
// reference brand and location of the same build; the constraint is not
// declared because keys are regenerated on every run.
func ServiceStationTable(stations []domain.ServiceStation) Table {
	t := Table{
		Name: TableServiceStation,
		Columns: []Column{
			{Name: "station_id", Type: TypeInt},
			{Name: "service_station_name", Type: TypeText},
			{Name: "is_ad_blue_available", Type: TypeBool, Nullable: true},
			{Name: "brand_id", Type: TypeInt},
			{Name: "location_id", Type: TypeInt},
		},
		PrimaryKey: []string{"station_id"},
		Rows:       make([][]any, 0, len(stations)),
	}
	for _, s := range stations {
		t.Rows = append(t.Rows, []any{s.ID, s.Name, boolValue(s.AdBlue), s.BrandID, s.LocationID})
	}
	return t
}

// FuelPriceTable builds the fuel_price fact table, partitioned by fuel_code.
func FuelPriceTable(facts []domain.FuelPriceFact) Table {
	t := Table{
		Name: TableFuelPrice,
		Columns: []Column{
			{Name: "station_id", Type: TypeInt},
			{Name: "fuel_code", Type: TypeText},
			{Name: "price_updated_date", Type: TypeTimestamp},
			{Name: "price", Type: TypeFloat},
		},
		PartitionBy: "fuel_code",
		Rows:        make([][]any, 0, len(facts)),
	}
	for _, f := range facts {
		t.Rows = append(t.Rows, []any{f.StationID, f.FuelCode, f.PriceUpdatedAt.UTC(), f.Price})
	}
	return t
}

// OpeningHoursTable builds opening_hours.
func OpeningHoursTable(entries []domain.OpeningHoursEntry) Table {
	t := Table{
		Name: TableOpeningHours,
		Columns: []Column{
			{Name: "service_station_name", Type: TypeText},
			{Name: "day_of_week", Type: TypeText},
			{Name: "open_time", Type: TypeText},
			{Name: "close_time", Type: TypeText},
		},
		Rows: make([][]any, 0, len(entries)),
	}
	for _, e := range entries {
		t.Rows = append(t.Rows, []any{e.StationName, e.DayOfWeek, e.OpenTime, e.CloseTime})
	}
	return t
}

// AugmentedTable builds the augmented_price staging table.
func AugmentedTable(records []domain.PriceRecord) Table {
	t := Table{
		Name: TableAugmented,
		Columns: []Column{
			{Name: "station_name", Type: TypeText},
			{Name: "address", Type: TypeText},
			{Name: "suburb", Type: TypeText},
			{Name: "postcode", Type: TypeText},
			{Name: "brand_name", Type: TypeText},
			{Name: "fuel_code", Type: TypeText},
			{Name: "price_updated_date", Type: TypeTimestamp},
			{Name: "price", Type: TypeFloat},
			{Name: "latitude", Type: TypeFloat, Nullable: true},
			{Name: "longitude", Type: TypeFloat, Nullable: true},
			{Name: "is_ad_blue_available", Type: TypeBool, Nullable: true},
			{Name: "observations", Type: TypeInt},
		},
		Rows: make([][]any, 0, len(records)),
	}
	for _, r := range records {
		lat, lon := coordValues(r.Coords)
		t.Rows = append(t.Rows, []any{
			r.StationName, r.Address, r.Suburb, r.Postcode, r.BrandName, r.FuelCode,
			r.PriceUpdatedAt.UTC(), r.Price, lat, lon, boolValue(r.AdBlue), int64(r.Observations),
		})
	}
	return t
}

func coordValues(c *domain.Coordinates) (any, any) {
	if c == nil {
		return nil, nil
	}
	return c.Lat, c.Lon
}

func boolValue(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

// FormatValue renders a row value as text. Nil becomes the empty string and
// timestamps use the "2006-01-02 15:04:05" layout.
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case time.Time:
		return v.UTC().Format(time.DateTime)
	default:
		return fmt.Sprint(v)
	}
}
