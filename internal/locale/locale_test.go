package locale

import (
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecimalEU(t *testing.T) {
	tests := []struct {
		raw    string
		want   float64
		wantOK bool
	}{
		{"1,899", 1.899, true},
		{"1.234,56", 1234.56, true},
		{"  2,05 ", 2.05, true},
		{"1.000.000,5", 1000000.5, true},
		{"0,000", 0, true},
		{"1899", 1899, true},
		{"", 0, false},
		{"   ", 0, false},
		{"abc", 0, false},
		{"1,2,3", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"0x1p1", 0, false},
		{"1e2", 0, false},
		{"1,5e1", 0, false},
		{"1_0", 0, false},
		{"+Inf", 0, false},
		{",5", 0, false},
		{"1,", 0, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.raw), func(t *testing.T) {
			got, ok := ParseDecimalEU(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseDecimalEU_RoundTripAllThreeDecimalPrices(t *testing.T) {
	for i := 0; i <= 9999; i++ {
		s := fmt.Sprintf("%d,%03d", i/1000, i%1000)
		want, err := strconv.ParseFloat(fmt.Sprintf("%d.%03d", i/1000, i%1000), 64)
		require.NoError(t, err)

		got, ok := ParseDecimalEU(s)
		require.True(t, ok, s)
		require.Equal(t, want, got, s)
	}
}

func TestParseBoolean01(t *testing.T) {
	for _, raw := range []string{"1", "true", "TRUE", "True", " 1 "} {
		assert.True(t, ParseBoolean01(raw), raw)
	}
	for _, raw := range []string{"0", "", "false", "yes", "2", "t"} {
		assert.False(t, ParseBoolean01(raw), raw)
	}
}

func TestParseItalianDateTime(t *testing.T) {
	got := ParseItalianDateTime("23/09/2025 07:45:12")
	assert.Equal(t, time.Date(2025, 9, 23, 7, 45, 12, 0, time.UTC), got)

	got = ParseItalianDateTime("23/09/2025")
	assert.Equal(t, time.Date(2025, 9, 23, 0, 0, 0, 0, time.UTC), got)

	got = ParseItalianDateTime("23/09/2025 23:59")
	assert.Equal(t, time.Date(2025, 9, 23, 23, 59, 0, 0, time.UTC), got)

	assert.True(t, ParseItalianDateTime("aa/09/2025 10:00:00").IsZero())
	assert.True(t, ParseItalianDateTime("2025-09-23").IsZero())
	assert.True(t, ParseItalianDateTime("").IsZero())
}

func TestParseItalianDateTime_NearMidnightStaysOnDay(t *testing.T) {
	got := ParseItalianDateTime("22/09/2025 23:59:59")
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 22, got.Day())
	assert.Equal(t, time.Date(2025, 9, 22, 0, 0, 0, 0, time.UTC), Day(got))
}

func TestDayOf(t *testing.T) {
	day, err := DayOf("23/09/2025 07:45:12")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 9, 23, 0, 0, 0, 0, time.UTC), day)

	bad := []string{
		"32/09/2025 10:00:00",
		"00/09/2025",
		"10/13/2025",
		"10/00/2025",
		"31/02/2025",
		"10/09/2025 24:00:00",
		"10/09/2025 10:61:00",
		"xx/09/2025",
		"",
	}
	for _, raw := range bad {
		_, err := DayOf(raw)
		assert.ErrorIs(t, err, ErrBadDate, raw)
	}
}

func TestParseISOTimestamp(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"2025-09-23T07:12:00Z", time.Date(2025, 9, 23, 7, 12, 0, 0, time.UTC)},
		{"2025-09-23T09:12:00+02:00", time.Date(2025, 9, 23, 7, 12, 0, 0, time.UTC)},
		{"2025-09-23T07:12:00.123", time.Date(2025, 9, 23, 7, 12, 0, 123000000, time.UTC)},
		{"2025-09-23T07:12:00", time.Date(2025, 9, 23, 7, 12, 0, 0, time.UTC)},
		{"2025-09-23", time.Date(2025, 9, 23, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseISOTimestamp(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.True(t, tt.want.Equal(got), "%s: got %v", tt.raw, got)
	}

	_, err := ParseISOTimestamp("23/09/2025")
	assert.ErrorIs(t, err, ErrBadDate)
}

func TestParseCoordinate(t *testing.T) {
	v := ParseCoordinate("45.4642035")
	require.NotNil(t, v)
	assert.InDelta(t, 45.4642035, *v, 1e-9)

	v = ParseCoordinate("9,1899")
	require.NotNil(t, v)
	assert.InDelta(t, 9.1899, *v, 1e-9)

	assert.Nil(t, ParseCoordinate(""))
	assert.Nil(t, ParseCoordinate("n/a"))
	assert.Nil(t, ParseCoordinate("451234.5"))
	assert.Nil(t, ParseCoordinate("4e1"))
	assert.Nil(t, ParseCoordinate("0x2D"))

	v = ParseCoordinate("-3.7038")
	require.NotNil(t, v)
	assert.InDelta(t, -3.7038, *v, 1e-9)
}
