// Package locale converts raw upstream text fields into canonical typed values.
// The registry feeds use Italian conventions: "," decimal separators, "."
// thousands separators and DD/MM/YYYY dates. All timestamps are built in UTC
// so that the derived day never depends on the server time zone.
package locale

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrBadDate is returned when a date cannot be used as a grouping day.
var ErrBadDate = errors.New("bad date")

// plainDecimal is what remains of a valid EU number once separators are
// normalized. It keeps exponents, hex floats and underscores away from
// strconv.ParseFloat.
var plainDecimal = regexp.MustCompile(`^[+-]?[0-9]+(\.[0-9]+)?$`)

// ParseDecimalEU parses "1.234,56" style numbers.
// ok is false on empty, unparsable or non-finite input; callers skip the
// record in that case and never treat it as zero.
func ParseDecimalEU(raw string) (value float64, ok bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	if !plainDecimal.MatchString(s) {
		return 0, false
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseBoolean01 returns true for "1" or case-insensitive "true", false otherwise.
func ParseBoolean01(raw string) bool {
	s := strings.TrimSpace(raw)
	return s == "1" || strings.EqualFold(s, "true")
}

// ParseItalianDateTime parses "DD/MM/YYYY HH:mm:ss" in UTC. The time part is
// optional and defaults to midnight; seconds are optional too.
// Non-numeric components yield the zero time. Numeric components are not
// range checked here: use DayOf before grouping by day.
func ParseItalianDateTime(raw string) time.Time {
	c, err := splitItalian(raw)
	if err != nil {
		return time.Time{}
	}
	return time.Date(c.year, time.Month(c.month), c.day, c.hour, c.minute, c.second, 0, time.UTC)
}

// DayOf validates raw and returns its UTC calendar day.
// Day must be 1-31, month 1-12, the date must exist and the time components
// must be in range, otherwise ErrBadDate is returned.
func DayOf(raw string) (time.Time, error) {
	c, err := splitItalian(raw)
	if err != nil {
		return time.Time{}, err
	}
	if err := c.validate(); err != nil {
		return time.Time{}, err
	}
	return time.Date(c.year, time.Month(c.month), c.day, 0, 0, 0, 0, time.UTC), nil
}

// ParseISOTimestamp parses the live API timestamps: RFC3339 with or without
// fractional seconds, or a zone-less "2006-01-02T15:04:05" read as UTC.
func ParseISOTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrBadDate
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, raw)
}

// Day truncates t to UTC midnight.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseCoordinate parses a registry latitude/longitude. The registry writes
// coordinates with "." decimals; a "," decimal is accepted too.
// Returns nil for empty, invalid, non-finite or out of range values.
func ParseCoordinate(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	s = strings.Replace(s, ",", ".", 1)
	if !plainDecimal.MatchString(s) {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > 180 {
		return nil
	}
	return &v
}

type components struct {
	day, month, year     int
	hour, minute, second int
}

func splitItalian(raw string) (components, error) {
	var c components

	fields := strings.Fields(raw)
	if len(fields) == 0 || len(fields) > 2 {
		return c, fmt.Errorf("%w: %q", ErrBadDate, raw)
	}

	date := strings.Split(fields[0], "/")
	if len(date) != 3 {
		return c, fmt.Errorf("%w: %q", ErrBadDate, raw)
	}
	var err error
	if c.day, err = strconv.Atoi(date[0]); err != nil {
		return c, fmt.Errorf("%w: day %q", ErrBadDate, date[0])
	}
	if c.month, err = strconv.Atoi(date[1]); err != nil {
		return c, fmt.Errorf("%w: month %q", ErrBadDate, date[1])
	}
	if c.year, err = strconv.Atoi(date[2]); err != nil {
		return c, fmt.Errorf("%w: year %q", ErrBadDate, date[2])
	}

	if len(fields) == 1 {
		return c, nil
	}

	clock := strings.Split(fields[1], ":")
	if len(clock) < 2 || len(clock) > 3 {
		return c, fmt.Errorf("%w: time %q", ErrBadDate, fields[1])
	}
	parts := []*int{&c.hour, &c.minute, &c.second}
	for i, p := range clock {
		if *parts[i], err = strconv.Atoi(p); err != nil {
			return c, fmt.Errorf("%w: time %q", ErrBadDate, fields[1])
		}
	}
	return c, nil
}

func (c components) validate() error {
	if c.day < 1 || c.day > 31 {
		return fmt.Errorf("%w: day %d out of range", ErrBadDate, c.day)
	}
	if c.month < 1 || c.month > 12 {
		return fmt.Errorf("%w: month %d out of range", ErrBadDate, c.month)
	}
	if c.year < 1 {
		return fmt.Errorf("%w: year %d out of range", ErrBadDate, c.year)
	}
	if c.hour < 0 || c.hour > 23 || c.minute < 0 || c.minute > 59 || c.second < 0 || c.second > 59 {
		return fmt.Errorf("%w: time %02d:%02d:%02d out of range", ErrBadDate, c.hour, c.minute, c.second)
	}
	// 31/02 passes the range checks but normalizes into March.
	d := time.Date(c.year, time.Month(c.month), c.day, 0, 0, 0, 0, time.UTC)
	if d.Day() != c.day || int(d.Month()) != c.month {
		return fmt.Errorf("%w: %02d/%02d/%04d does not exist", ErrBadDate, c.day, c.month, c.year)
	}
	return nil
}
