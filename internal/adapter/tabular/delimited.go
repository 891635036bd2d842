package tabular

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/couchcryptid/fuel-price-etl/internal/domain"
)

var errEmpty = errors.New("empty")

// Header aliases, matched after lowercasing and dropping every character
// that is not a letter or digit.
var (
	priceColumns = map[string][]string{
		"station":  {"servicestationname", "stationname", "name"},
		"address":  {"address"},
		"suburb":   {"suburb"},
		"postcode": {"postcode"},
		"brand":    {"brand", "brandname"},
		"fuel":     {"fuelcode", "fueltype"},
		"updated":  {"priceupdateddate", "priceupdated", "lastupdated"},
		"price":    {"price"},
		"lat":      {"latitude", "lat", "locationlatitude"},
		"lon":      {"longitude", "lon", "lng", "locationlongitude"},
		"adblue":   {"isadblueavailable", "adblue"},
	}
	priceRequired = []string{"station", "address", "fuel", "updated", "price"}

	directoryColumns = map[string][]string{
		"station": {"name", "servicestationname", "stationname"},
		"address": {"address"},
		"brand":   {"brand", "brandname"},
		"lat":     {"locationlatitude", "latitude", "lat"},
		"lon":     {"locationlongitude", "longitude", "lon", "lng"},
		"adblue":  {"isadblueavailable", "adblue"},
	}
	directoryRequired = []string{"station", "address", "brand"}
)

// ReadPriceHistory parses a comma or tab separated price history extract.
// name identifies the file in record origins.
func ReadPriceHistory(r io.Reader, name string) ([]domain.RawPriceRecord, error) {
	var out []domain.RawPriceRecord
	err := readDelimited(r, name, priceColumns, priceRequired, func(row fieldRow) error {
		rec := domain.RawPriceRecord{
			StationName:    row.get("station"),
			Address:        row.get("address"),
			Suburb:         row.get("suburb"),
			Postcode:       row.get("postcode"),
			BrandName:      row.get("brand"),
			FuelCode:       row.get("fuel"),
			PriceUpdatedAt: row.get("updated"),
			Price:          row.get("price"),
			Origin:         row.origin,
		}
		var err error
		if rec.Coords, err = parseCoords(row); err != nil {
			return err
		}
		if rec.AdBlue, err = parseOptionalBool(row, "adblue"); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// ReadStationDirectory parses a comma or tab separated station directory.
func ReadStationDirectory(r io.Reader, name string) ([]domain.StationRecord, error) {
	var out []domain.StationRecord
	err := readDelimited(r, name, directoryColumns, directoryRequired, func(row fieldRow) error {
		rec := domain.StationRecord{
			StationName: row.get("station"),
			Address:     row.get("address"),
			BrandName:   row.get("brand"),
		}
		var err error
		if rec.Coords, err = parseCoords(row); err != nil {
			return err
		}
		if rec.AdBlue, err = parseOptionalBool(row, "adblue"); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

type fieldRow struct {
	origin string
	values []string
	index  map[string]int
}

func (r fieldRow) get(field string) string {
	i, ok := r.index[field]
	if !ok || i >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[i])
}

func readDelimited(r io.Reader, name string, columns map[string][]string, required []string, emit func(fieldRow) error) error {
	br := bufio.NewReader(r)
	comma, err := sniffDelimiter(br)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s header: %w", name, err)
	}
	index := mapHeader(header, columns)
	for _, field := range required {
		if _, ok := index[field]; !ok {
			return &domain.ParseError{Origin: name + ":1", Field: "header", Value: field, Err: errors.New("required column missing")}
		}
	}

	for {
		values, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if blank(values) {
			continue
		}
		line, _ := cr.FieldPos(0)
		if err := emit(fieldRow{origin: fmt.Sprintf("%s:%d", name, line), values: values, index: index}); err != nil {
			return err
		}
	}
}

// sniffDelimiter picks tab when the first line holds more tabs than commas.
func sniffDelimiter(br *bufio.Reader) (rune, error) {
	first, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return 0, err
	}
	line := string(first)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if strings.Count(line, "\t") > strings.Count(line, ",") {
		return '\t', nil
	}
	return ',', nil
}

func mapHeader(header []string, columns map[string][]string) map[string]int {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, seen := byName[key]; !seen {
			byName[key] = i
		}
	}
	index := make(map[string]int, len(columns))
	for field, aliases := range columns {
		for _, alias := range aliases {
			if i, ok := byName[alias]; ok {
				index[field] = i
				break
			}
		}
	}
	return index
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func blank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// parseCoords returns nil unless both latitude and longitude are present.
func parseCoords(row fieldRow) (*domain.Coordinates, error) {
	latS, lonS := row.get("lat"), row.get("lon")
	if latS == "" || lonS == "" {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(latS, 64)
	if err != nil {
		return nil, &domain.ParseError{Origin: row.origin, Field: "latitude", Value: latS, Err: err}
	}
	lon, err := strconv.ParseFloat(lonS, 64)
	if err != nil {
		return nil, &domain.ParseError{Origin: row.origin, Field: "longitude", Value: lonS, Err: err}
	}
	return checkCoords(row.origin, lat, lon)
}

var errOutOfRange = errors.New("out of range")

// checkCoords rejects coordinates outside WGS-84 bounds. NaN fails both
// comparisons and is rejected with them.
func checkCoords(origin string, lat, lon float64) (*domain.Coordinates, error) {
	if !(lat >= -90 && lat <= 90) {
		return nil, &domain.ParseError{Origin: origin, Field: "latitude", Value: strconv.FormatFloat(lat, 'g', -1, 64), Err: errOutOfRange}
	}
	if !(lon >= -180 && lon <= 180) {
		return nil, &domain.ParseError{Origin: origin, Field: "longitude", Value: strconv.FormatFloat(lon, 'g', -1, 64), Err: errOutOfRange}
	}
	return &domain.Coordinates{Lat: lat, Lon: lon}, nil
}

func parseOptionalBool(row fieldRow, field string) (*bool, error) {
	s := row.get(field)
	if s == "" {
		return nil, nil
	}
	var v bool
	switch strings.ToLower(s) {
	case "true", "t", "yes", "y", "1":
		v = true
	case "false", "f", "no", "n", "0":
		v = false
	default:
		return nil, &domain.ParseError{Origin: row.origin, Field: field, Value: s, Err: errors.New("not a boolean")}
	}
	return &v, nil
}
