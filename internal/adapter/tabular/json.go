package tabular

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/couchcryptid/fuel-price-etl/internal/domain"
)

// directoryPayload is the FuelCheck station listing.
type directoryPayload struct {
	Stations []stationPayload `json:"stations"`
}

type stationPayload struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Brand    string `json:"brand"`
	Location *struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"location"`
	IsAdBlueAvailable *bool `json:"isAdBlueAvailable"`
}

// DecodeDirectoryJSON decodes either {"stations":[...]} or a bare array of
// stations.
func DecodeDirectoryJSON(data []byte, name string) ([]domain.StationRecord, error) {
	var payload directoryPayload
	if strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		if err := json.Unmarshal(data, &payload.Stations); err != nil {
			return nil, &domain.ParseError{Origin: name, Field: "stations", Err: err}
		}
	} else if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &domain.ParseError{Origin: name, Field: "stations", Err: err}
	}

	out := make([]domain.StationRecord, 0, len(payload.Stations))
	for i, s := range payload.Stations {
		rec := domain.StationRecord{
			StationName: strings.TrimSpace(s.Name),
			Address:     strings.TrimSpace(s.Address),
			BrandName:   strings.TrimSpace(s.Brand),
			AdBlue:      s.IsAdBlueAvailable,
		}
		origin := fmt.Sprintf("%s:stations[%d]", name, i)
		if rec.StationName == "" {
			return nil, &domain.ParseError{Origin: origin, Field: "name", Err: errEmpty}
		}
		if s.Location != nil && s.Location.Latitude != nil && s.Location.Longitude != nil {
			coords, err := checkCoords(origin, *s.Location.Latitude, *s.Location.Longitude)
			if err != nil {
				return nil, err
			}
			rec.Coords = coords
		}
		out = append(out, rec)
	}
	return out, nil
}
