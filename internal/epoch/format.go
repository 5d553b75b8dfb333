package epoch

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrInvalidTime   = errors.New("invalid time value")
	ErrUnknownFormat = errors.New("unknown time format")
)

// Format names a native on-disk time encoding.
type Format string

const (
	// FormatJulian stores Julian dates directly.
	FormatJulian Format = "jd"

	// FormatUnix stores seconds since 1970-01-01T00:00:00Z.
	FormatUnix Format = "unix"

	// FormatDaysSinceYear stores fractional days elapsed since January 1st
	// 00:00 of an origin year.
	FormatDaysSinceYear Format = "days_since_year"

	// FormatDayOfYear stores a 1-based fractional day of the origin year.
	// Values past the end of the year run on into the following years.
	FormatDayOfYear Format = "day_of_year"

	// FormatYearDay stores YYYYDDD.fff floats, e.g. 2004181.5.
	FormatYearDay Format = "year_day"

	// FormatTT2000 stores integer nanoseconds since J2000 in terrestrial time.
	FormatTT2000 Format = "tt2000"

	// FormatISO stores ISO-8601 strings.
	FormatISO Format = "iso"
)

var validFormats = map[Format]struct{}{
	FormatJulian:        {},
	FormatUnix:          {},
	FormatDaysSinceYear: {},
	FormatDayOfYear:     {},
	FormatYearDay:       {},
	FormatTT2000:        {},
	FormatISO:           {},
}

func (f Format) String() string {
	return string(f)
}

// ParseFormat returns the Format named s. An empty string yields an empty
// Format, which lets loaders fall back to their own default.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return f, nil
	}
	if _, ok := validFormats[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
	return f, nil
}

// NeedsOrigin reports whether values in f are relative to an origin year.
func (f Format) NeedsOrigin() bool {
	return f == FormatDaysSinceYear || f == FormatDayOfYear
}

// Normalize converts a raw time column into Julian dates. values is whatever
// the container decoder produced for the column: a slice of floats, integers
// or strings. origin is the reference year for relative encodings and is
// ignored otherwise.
func Normalize(values any, format Format, origin int) ([]JulianDate, error) {
	if format.NeedsOrigin() && origin <= 0 {
		return nil, fmt.Errorf("%w: format %s requires an origin year", ErrInvalidTime, format)
	}

	switch v := values.(type) {
	case []float64:
		return convertNumbers(v, format, origin)
	case []float32:
		return convertNumbers(widen(v), format, origin)
	case []int64:
		if format == FormatTT2000 {
			out := make([]JulianDate, len(v))
			for i, ns := range v {
				out[i] = FromTT2000(ns)
			}
			return out, nil
		}
		return convertNumbers(widen(v), format, origin)
	case []int32:
		return convertNumbers(widen(v), format, origin)
	case []int:
		return convertNumbers(widen(v), format, origin)
	case []string:
		if format != FormatISO {
			return nil, fmt.Errorf("%w: string values cannot be decoded as %s", ErrUnknownFormat, format)
		}
		out := make([]JulianDate, len(v))
		for i, s := range v {
			t, err := ParseISO(s)
			if err != nil {
				return nil, fmt.Errorf("decoding time value %d: %w", i, err)
			}
			out[i] = FromTime(t)
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("%w: no values", ErrInvalidTime)
	default:
		return nil, fmt.Errorf("%w: unsupported column type %T", ErrInvalidTime, values)
	}
}

func widen[T float32 | int64 | int32 | int](v []T) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = float64(v[i])
	}
	return out
}

func convertNumbers(v []float64, format Format, origin int) ([]JulianDate, error) {
	out := make([]JulianDate, len(v))

	var conv func(float64) JulianDate
	switch format {
	case FormatJulian:
		conv = func(x float64) JulianDate { return JulianDate(x) }
	case FormatUnix:
		conv = FromUnix
	case FormatDaysSinceYear:
		start := yearStart(origin)
		conv = func(x float64) JulianDate { return start + JulianDate(x) }
	case FormatDayOfYear:
		conv = func(x float64) JulianDate { return FromDayOfYear(origin, x) }
	case FormatYearDay:
		conv = FromYearDay
	case FormatTT2000:
		conv = func(x float64) JulianDate { return FromTT2000(int64(x)) }
	case FormatISO:
		return nil, fmt.Errorf("%w: numeric values cannot be decoded as %s", ErrUnknownFormat, format)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: value %d is %v", ErrInvalidTime, i, x)
		}
		out[i] = conv(x)
	}
	return out, nil
}

// FromDayOfYear converts a 1-based fractional day count relative to January
// 1st of year. Day counts beyond the length of the year roll over into the
// following years with leap years taken into account, so with year 2004
// (a leap year) day 367 is 2005-01-01.
func FromDayOfYear(year int, day float64) JulianDate {
	if day > daysPer400Years {
		cycles := math.Floor((day - 1) / daysPer400Years)
		year += 400 * int(cycles)
		day -= cycles * daysPer400Years
	}
	for day >= float64(daysIn(year)+1) {
		day -= float64(daysIn(year))
		year++
	}
	return yearStart(year) + JulianDate(day-1)
}

// FromYearDay converts a YYYYDDD.fff value.
func FromYearDay(v float64) JulianDate {
	year := int(math.Floor(v / 1000))
	return FromDayOfYear(year, v-float64(year)*1000)
}

// Parse decodes a single human-entered timestamp: any layout ParseISO
// accepts, or a bare YYYYDDD year-day number.
func Parse(s string) (JulianDate, error) {
	s = strings.TrimSpace(s)
	if len(s) == 7 && strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) < 0 {
		var v float64
		if _, err := fmt.Sscanf(s, "%f", &v); err == nil {
			return FromYearDay(v), nil
		}
	}

	t, err := ParseISO(s)
	if err != nil {
		return 0, err
	}
	return FromTime(t), nil
}
