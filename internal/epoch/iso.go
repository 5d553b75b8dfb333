package epoch

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseISO parses an ISO-8601 timestamp. Besides RFC 3339 it accepts:
//
//   - a space instead of the "T" separator, with or without a trailing "Z";
//   - date-only values ("2004-03-01");
//   - ordinal dates ("2004-061", "2004-061T12:00");
//   - out-of-range clock fields produced by some instrument pipelines, where
//     the hour is 24 or the minute or second is 60. These carry into the next
//     unit, so "2004-01-01 24:00:00" is 2004-01-02T00:00:00Z.
//
// Timestamps without an offset are UTC.
func ParseISO(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", ErrInvalidTime)
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}

	s = strings.TrimSuffix(s, "Z")
	datePart, clockPart, _ := strings.Cut(strings.Replace(s, "T", " ", 1), " ")

	day, err := parseDate(datePart)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %s", ErrInvalidTime, s, err)
	}

	clockPart = strings.TrimSpace(clockPart)
	if clockPart == "" {
		return day, nil
	}

	offset, err := parseClock(clockPart)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %s", ErrInvalidTime, s, err)
	}
	return day.Add(offset), nil
}

func parseDate(s string) (time.Time, error) {
	parts := strings.Split(s, "-")
	switch len(parts) {
	case 3:
		return time.Parse(time.DateOnly, s)

	case 2:
		year, err := strconv.Atoi(parts[0])
		if err != nil || len(parts[0]) != 4 {
			return time.Time{}, fmt.Errorf("bad year %q", parts[0])
		}
		doy, err := strconv.Atoi(parts[1])
		if err != nil || len(parts[1]) != 3 {
			return time.Time{}, fmt.Errorf("bad day of year %q", parts[1])
		}
		if doy < 1 || doy > daysIn(year) {
			return time.Time{}, fmt.Errorf("day of year %d out of range", doy)
		}
		return time.Date(year, time.January, doy, 0, 0, 0, 0, time.UTC), nil

	default:
		return time.Time{}, fmt.Errorf("unrecognised date %q", s)
	}
}

func parseClock(s string) (time.Duration, error) {
	fields := strings.Split(s, ":")
	if len(fields) > 3 {
		return 0, fmt.Errorf("unrecognised clock %q", s)
	}

	limits := []float64{24, 60, 60}
	units := []time.Duration{time.Hour, time.Minute, time.Second}

	var d time.Duration
	for i, f := range fields {
		var v float64
		var err error
		if i == 2 {
			v, err = strconv.ParseFloat(f, 64)
		} else {
			var n int
			n, err = strconv.Atoi(f)
			v = float64(n)
		}
		if err != nil {
			return 0, fmt.Errorf("bad clock field %q", f)
		}
		if v < 0 || v > limits[i] {
			return 0, fmt.Errorf("clock field %q out of range", f)
		}
		d += time.Duration(v * float64(units[i]))
	}
	return d, nil
}
