package spectrum

import (
	"fmt"
	"slices"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/roman-kulish/spacelabel/internal/catalogue"
	"github.com/roman-kulish/spacelabel/internal/epoch"
)

// RangeError reports a requested time range that is not inside the data.
type RangeError struct {
	Start, End epoch.JulianDate // Requested
	Min, Max   epoch.JulianDate // Available
}

func (e *RangeError) Error() string {
	if e.Start > e.End {
		return fmt.Sprintf("%s: start %s is after end %s", ErrDateRangeOutOfBounds, e.Start, e.End)
	}
	return fmt.Sprintf("%s: requested %s to %s, data covers %s to %s",
		ErrDateRangeOutOfBounds, e.Start, e.End, e.Min, e.Max)
}

func (e *RangeError) Unwrap() error {
	return ErrDateRangeOutOfBounds
}

// ValidateDates checks that [start, end] lies within the time axis. The
// axis endpoints themselves are accepted. It only needs the header, so it
// should be called before Load.
func (d *DataSet) ValidateDates(start, end epoch.JulianDate) error {
	lo, hi := d.TimeRange()
	if start > end || start < lo || end > hi {
		return &RangeError{Start: start, End: end, Min: lo, Max: hi}
	}
	return nil
}

// Window is a time slice of a dataset. Matrices are copies, owned by the
// caller.
type Window struct {
	Start, End epoch.JulianDate

	Time         []epoch.JulianDate
	Frequency    []float64
	Measurements map[string]*mat.Dense // len(Time) x len(Frequency); empty when Time is
	Units        map[string]string
	Features     []*catalogue.Feature
}

// Empty reports whether no sample fell inside the window.
func (w *Window) Empty() bool {
	return len(w.Time) == 0
}

type windowConfig struct {
	measurements []string
}

// WindowOption configures Window.
type WindowOption func(*windowConfig)

// WithMeasurements limits a window to the named measurements.
func WithMeasurements(names ...string) WindowOption {
	return func(c *windowConfig) {
		c.measurements = append(c.measurements, names...)
	}
}

// Window returns the samples with start <= time <= end. A range that does
// not overlap the data yields an empty window rather than an error.
func (d *DataSet) Window(start, end epoch.JulianDate, opts ...WindowOption) (*Window, error) {
	if !d.loaded {
		return nil, ErrNotLoaded
	}

	var cfg windowConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	names := cfg.measurements
	if len(names) == 0 {
		names = d.MeasurementNames()
	}
	for _, name := range names {
		if _, ok := d.measurements[name]; !ok {
			return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownMeasurement, name, d.MeasurementNames())
		}
	}

	lo, hi := span(d.time, start, end)
	cols := len(d.frequency)

	w := Window{
		Start:        start,
		End:          end,
		Time:         slices.Clone(d.time[lo:hi]),
		Frequency:    slices.Clone(d.frequency),
		Measurements: make(map[string]*mat.Dense, len(names)),
		Units:        make(map[string]string, len(names)+2),
		Features:     d.catalogue.InRange(start, end),
	}
	w.Units[UnitTime] = d.units[UnitTime]
	w.Units[UnitFrequency] = d.units[UnitFrequency]

	for _, name := range names {
		w.Units[name] = d.units[name]
		if hi == lo {
			w.Measurements[name] = &mat.Dense{}
			continue
		}
		m := mat.NewDense(hi-lo, cols, nil)
		m.Copy(d.measurements[name].Slice(lo, hi, 0, cols))
		w.Measurements[name] = m
	}
	return &w, nil
}

// SeriesWindow slices each named series, or all of them when names is empty,
// against its own time axis with the same inclusive bounds as Window.
func (d *DataSet) SeriesWindow(start, end epoch.JulianDate, names ...string) (map[string]Series, error) {
	if !d.loaded {
		return nil, ErrNotLoaded
	}
	if len(names) == 0 {
		names = d.SeriesNames()
	}

	out := make(map[string]Series, len(names))
	for _, name := range names {
		s, ok := d.series[name]
		if !ok {
			return nil, fmt.Errorf("%w: series %q (known: %v)", ErrUnknownMeasurement, name, d.SeriesNames())
		}
		lo, hi := span(s.Time, start, end)
		out[name] = Series{
			Units:  s.Units,
			Time:   slices.Clone(s.Time[lo:hi]),
			Values: slices.Clone(s.Values[lo:hi]),
		}
	}
	return out, nil
}

// span returns the half-open index range of the elements of t inside
// [start, end]. t must be sorted.
func span(t []epoch.JulianDate, start, end epoch.JulianDate) (int, int) {
	lo := sort.Search(len(t), func(i int) bool { return t[i] >= start })
	hi := sort.Search(len(t), func(i int) bool { return t[i] > end })
	if hi < lo {
		hi = lo
	}
	return lo, hi
}
