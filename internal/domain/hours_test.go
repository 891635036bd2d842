package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandOpeningHours_StructuredPeriods(t *testing.T) {
	h := OpeningHours{
		Periods: []Period{
			{Day: 0, Open: TimeOfDay{6, 0}, Close: &TimeOfDay{22, 0}},
			{Day: 0, Open: TimeOfDay{23, 0}, Close: &TimeOfDay{23, 30}},
			{Day: 6, Open: TimeOfDay{7, 5}, Close: &TimeOfDay{9, 0}},
		},
		Descriptions: []string{"ignored: when periods exist"},
	}

	got := ExpandOpeningHours("Ampol Ryde", h)

	assert.Equal(t, []OpeningHoursEntry{
		{StationName: "Ampol Ryde", DayOfWeek: "Monday", OpenTime: "06:00", CloseTime: "22:00"},
		{StationName: "Ampol Ryde", DayOfWeek: "Monday", OpenTime: "23:00", CloseTime: "23:30"},
		{StationName: "Ampol Ryde", DayOfWeek: "Sunday", OpenTime: "07:05", CloseTime: "09:00"},
	}, got)
}

func TestExpandOpeningHours_OvernightKeptLiterally(t *testing.T) {
	h := OpeningHours{Periods: []Period{{Day: 4, Open: TimeOfDay{22, 0}, Close: &TimeOfDay{2, 0}}}}

	got := ExpandOpeningHours("Night Owl", h)
	require.Len(t, got, 1)
	assert.Equal(t, "Friday", got[0].DayOfWeek)
	assert.Equal(t, "22:00", got[0].OpenTime)
	assert.Equal(t, "02:00", got[0].CloseTime)
}

func TestExpandOpeningHours_MissingCloseIsMidnight(t *testing.T) {
	h := OpeningHours{Periods: []Period{{Day: 2, Open: TimeOfDay{0, 0}}}}

	got := ExpandOpeningHours("24h", h)
	require.Len(t, got, 1)
	assert.Equal(t, "Wednesday", got[0].DayOfWeek)
	assert.Equal(t, "24:00", got[0].CloseTime)
}

func TestExpandOpeningHours_DescriptionsBecomeFullDays(t *testing.T) {
	h := OpeningHours{Descriptions: []string{
		"Monday: Open 24 hours",
		"Tuesday: 6:00 AM – 10:00 PM",
		"   ",
		"Sunday",
	}}

	got := ExpandOpeningHours("Shell Epping", h)
	require.Len(t, got, 3)
	assert.Equal(t, "Monday", got[0].DayOfWeek)
	assert.Equal(t, "Tuesday", got[1].DayOfWeek)
	assert.Equal(t, "Sunday", got[2].DayOfWeek)
	for _, e := range got {
		assert.Equal(t, "00:00", e.OpenTime)
		assert.Equal(t, "24:00", e.CloseTime)
	}
}

func TestExpandOpeningHours_NothingToExpand(t *testing.T) {
	assert.Empty(t, ExpandOpeningHours("x", OpeningHours{}))
	assert.Empty(t, ExpandOpeningHours("x", OpeningHours{Periods: []Period{{Day: 9}}}))
}

func TestDayName(t *testing.T) {
	name, ok := DayName(0)
	assert.True(t, ok)
	assert.Equal(t, "Monday", name)

	_, ok = DayName(7)
	assert.False(t, ok)
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "1 Victoria Rd, Ryde NSW 2112", NormalizeAddress("  1  Victoria Rd,\tRyde NSW\n2112 "))
}
