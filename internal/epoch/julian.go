package epoch

import (
	"math"
	"time"
)

const (
	// UnixEpoch is the Julian date of 1970-01-01T00:00:00Z.
	UnixEpoch JulianDate = 2440587.5

	secondsPerDay = 86400

	daysPer400Years = 146097 // Gregorian calendar repeats every 400 years
)

// JulianDate is the canonical absolute time of every axis: fractional days
// since noon UTC, 4713 BC. It orders with the usual comparison operators and
// subtracts to a time.Duration via Sub.
type JulianDate float64

// FromTime converts t into a Julian date.
func FromTime(t time.Time) JulianDate {
	return UnixEpoch + JulianDate(float64(t.Unix())/secondsPerDay+float64(t.Nanosecond())/(secondsPerDay*1e9))
}

// FromUnix converts seconds since the Unix epoch into a Julian date.
func FromUnix(seconds float64) JulianDate {
	return UnixEpoch + JulianDate(seconds/secondsPerDay)
}

// Time returns j as a UTC time.Time, rounded to the microsecond. A float64
// Julian date carries tens of microseconds of precision around the present
// epoch, so finer digits would be noise.
func (j JulianDate) Time() time.Time {
	secs := j.Unix()
	whole := math.Floor(secs)
	nsec := math.Round((secs - whole) * 1e9)
	return time.Unix(int64(whole), int64(nsec)).UTC().Round(time.Microsecond)
}

// Unix returns j as seconds since the Unix epoch.
func (j JulianDate) Unix() float64 {
	return float64(j-UnixEpoch) * secondsPerDay
}

// Sub returns the duration j-o.
func (j JulianDate) Sub(o JulianDate) time.Duration {
	return time.Duration(math.Round(float64(j-o) * secondsPerDay * float64(time.Second)))
}

// Add returns j shifted by d.
func (j JulianDate) Add(d time.Duration) JulianDate {
	return j + JulianDate(d.Seconds()/secondsPerDay)
}

func (j JulianDate) Before(o JulianDate) bool { return j < o }

func (j JulianDate) After(o JulianDate) bool { return j > o }

func (j JulianDate) String() string {
	return j.Time().Format("2006-01-02T15:04:05.000Z07:00")
}

// YearDay returns the calendar year of j and the 1-based fractional day of
// that year, so that 2004-01-01T12:00:00Z yields (2004, 1.5).
func (j JulianDate) YearDay() (int, float64) {
	t := j.Time()
	start := yearStart(t.Year())
	return t.Year(), float64(j-start) + 1
}

func yearStart(year int) JulianDate {
	return FromTime(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC))
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func daysIn(year int) int {
	if isLeap(year) {
		return 366
	}
	return 365
}
