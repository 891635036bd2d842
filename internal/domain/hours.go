package domain

import (
	"strings"
)

// dayNames maps a period day index to its name, 0=Monday … 6=Sunday.
var dayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

const (
	fullDayOpen  = "00:00"
	fullDayClose = "24:00"
)

// DayName returns the weekday name for a 0=Monday day index.
func DayName(day int) (string, bool) {
	if day < 0 || day >= len(dayNames) {
		return "", false
	}
	return dayNames[day], true
}

// ExpandOpeningHours converts a lookup's opening hours into entries for one
// station.
//
// Structured periods win: each valid period becomes one entry. A period with
// no close time closes at 24:00. Periods that cross midnight are kept as
// reported, so the close time may be earlier than the open time.
//
// Without periods, each non-blank description line becomes a full-day
// 00:00–24:00 entry named by the text before its first colon.
//
// It returns nil when neither form is present.
func ExpandOpeningHours(station string, h OpeningHours) []OpeningHoursEntry {
	var out []OpeningHoursEntry
	for _, p := range h.Periods {
		day, ok := DayName(p.Day)
		if !ok {
			continue
		}
		closeTime := fullDayClose
		if p.Close != nil {
			closeTime = p.Close.String()
		}
		out = append(out, OpeningHoursEntry{
			StationName: station,
			DayOfWeek:   day,
			OpenTime:    p.Open.String(),
			CloseTime:   closeTime,
		})
	}
	if len(out) > 0 {
		return out
	}

	for _, line := range h.Descriptions {
		day, _, _ := strings.Cut(line, ":")
		day = strings.TrimSpace(day)
		if day == "" {
			continue
		}
		out = append(out, OpeningHoursEntry{
			StationName: station,
			DayOfWeek:   day,
			OpenTime:    fullDayOpen,
			CloseTime:   fullDayClose,
		})
	}
	return out
}

// NormalizeAddress collapses runs of whitespace and trims the ends.
func NormalizeAddress(address string) string {
	return strings.Join(strings.Fields(address), " ")
}
