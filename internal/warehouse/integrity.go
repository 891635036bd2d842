package warehouse

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/fuel-price-etl/internal/domain"
)

// Check is a query returning a single count of violating rows.
type Check struct {
	Name  string
	Query string
}

// IntegrityChecks returns the referential and key checks a consumer can run
// against a built store. Every query must return 0.
func IntegrityChecks(d Dialect) []Check {
	q := d.Quote
	orphans := func(child, fk, parent, pk string) string {
		return fmt.Sprintf("SELECT COUNT(*) FROM %s c LEFT JOIN %s p ON c.%s = p.%s WHERE p.%s IS NULL",
			q(child), q(parent), q(fk), q(pk), q(pk))
	}
	duplicates := func(table, pk string) string {
		return fmt.Sprintf("SELECT COUNT(*) - COUNT(DISTINCT %s) FROM %s", q(pk), q(table))
	}
	return []Check{
		{Name: "brand primary key unique", Query: duplicates(TableBrand, "brand_id")},
		{Name: "location primary key unique", Query: duplicates(TableLocation, "location_id")},
		{Name: "service_station primary key unique", Query: duplicates(TableServiceStation, "station_id")},
		{Name: "service_station.brand_id resolves", Query: orphans(TableServiceStation, "brand_id", TableBrand, "brand_id")},
		{Name: "service_station.location_id resolves", Query: orphans(TableServiceStation, "location_id", TableLocation, "location_id")},
		{Name: "fuel_price.station_id resolves", Query: orphans(TableFuelPrice, "station_id", TableServiceStation, "station_id")},
	}
}

// BrandLogoChecks returns the key checks for the optional brand_logo table.
func BrandLogoChecks(d Dialect) []Check {
	q := d.Quote
	return []Check{
		{
			Name:  "brand_logo primary key unique",
			Query: fmt.Sprintf("SELECT COUNT(*) - COUNT(DISTINCT %s) FROM %s", q("brand_id"), q(TableBrandLogo)),
		},
		{
			Name: "brand_logo.brand_id resolves",
			Query: fmt.Sprintf("SELECT COUNT(*) FROM %s c LEFT JOIN %s p ON c.%s = p.%s WHERE p.%s IS NULL",
				q(TableBrandLogo), q(TableBrand), q("brand_id"), q("brand_id"), q("brand_id")),
		},
	}
}

// ValueChecks returns per-row value checks. Every query must return 0.
func ValueChecks(d Dialect) []Check {
	q := d.Quote
	lat, lon := q("latitude"), q("longitude")
	days := make([]string, 0, 7)
	for i := range 7 {
		name, _ := domain.DayName(i)
		days = append(days, "'"+name+"'")
	}
	return []Check{
		{
			Name:  "location coordinates paired",
			Query: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE (%s IS NULL) <> (%s IS NULL)", q(TableLocation), lat, lon),
		},
		{
			Name: "location coordinates in range",
			Query: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s < -90 OR %s > 90 OR %s < -180 OR %s > 180",
				q(TableLocation), lat, lat, lon, lon),
		},
		{
			Name: "opening_hours day_of_week valid",
			Query: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s NOT IN (%s)",
				q(TableOpeningHours), q("day_of_week"), strings.Join(days, ", ")),
		},
	}
}
