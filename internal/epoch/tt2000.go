package epoch

import (
	"sort"
	"time"
)

// j2000UTC is the UTC instant of the TT2000 epoch, 2000-01-01T12:00:00 TT.
var j2000UTC = time.Date(2000, time.January, 1, 11, 58, 55, 816_000_000, time.UTC)

// j2000LeapSeconds is TAI-UTC in force at the TT2000 epoch.
const j2000LeapSeconds = 32

type leapSecond struct {
	from  time.Time
	delta int
}

// leapSeconds lists TAI-UTC from each effective date on. Dates before 1972
// use the 1972 offset.
var leapSeconds = []leapSecond{
	{date(1972, 1), 10},
	{date(1972, 7), 11},
	{date(1973, 1), 12},
	{date(1974, 1), 13},
	{date(1975, 1), 14},
	{date(1976, 1), 15},
	{date(1977, 1), 16},
	{date(1978, 1), 17},
	{date(1979, 1), 18},
	{date(1980, 1), 19},
	{date(1981, 7), 20},
	{date(1982, 7), 21},
	{date(1983, 7), 22},
	{date(1985, 7), 23},
	{date(1988, 1), 24},
	{date(1990, 1), 25},
	{date(1991, 1), 26},
	{date(1992, 7), 27},
	{date(1993, 7), 28},
	{date(1994, 7), 29},
	{date(1996, 1), 30},
	{date(1997, 7), 31},
	{date(1999, 1), 32},
	{date(2006, 1), 33},
	{date(2009, 1), 34},
	{date(2012, 7), 35},
	{date(2015, 7), 36},
	{date(2017, 1), 37},
}

func date(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

func taiMinusUTC(t time.Time) int {
	i := sort.Search(len(leapSeconds), func(i int) bool {
		return leapSeconds[i].from.After(t)
	})
	if i == 0 {
		return leapSeconds[0].delta
	}
	return leapSeconds[i-1].delta
}

// TT2000ToTime converts nanoseconds since J2000 terrestrial time into UTC.
// Instants inside an inserted leap second map onto the following second.
func TT2000ToTime(ns int64) time.Time {
	guess := j2000UTC.Add(time.Duration(ns))
	leap := taiMinusUTC(guess)
	utc := guess.Add(-time.Duration(leap-j2000LeapSeconds) * time.Second)
	if l := taiMinusUTC(utc); l != leap {
		utc = guess.Add(-time.Duration(l-j2000LeapSeconds) * time.Second)
	}
	return utc
}

// TimeToTT2000 is the inverse of TT2000ToTime.
func TimeToTT2000(t time.Time) int64 {
	leap := taiMinusUTC(t.UTC())
	return int64(t.Sub(j2000UTC) + time.Duration(leap-j2000LeapSeconds)*time.Second)
}

// FromTT2000 converts a TT2000 value into a Julian date.
func FromTT2000(ns int64) JulianDate {
	return FromTime(TT2000ToTime(ns))
}
