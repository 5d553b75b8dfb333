package spectrum

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/roman-kulish/spacelabel/internal/epoch"
	"github.com/roman-kulish/spacelabel/internal/rebin"
	"github.com/roman-kulish/spacelabel/internal/storage"
)

func (d *DataSet) checkMutable() error {
	if !d.loaded {
		return ErrNotLoaded
	}
	if d.state == StatePreprocessed {
		return fmt.Errorf("%w: %s", ErrAlreadyPreprocessed, d.source)
	}
	return nil
}

// RebinFrequency moves every measurement onto resolution log-spaced
// frequencies between the current first and last frequency. Either all
// measurements are rebinned or, on error, none is.
func (d *DataSet) RebinFrequency(resolution int) error {
	if err := d.checkMutable(); err != nil {
		return err
	}

	to, err := rebin.LogFrequencies(d.frequency, resolution)
	if err != nil {
		return fmt.Errorf("rebinning frequency: %w", err)
	}

	out := make(map[string]*mat.Dense, len(d.measurements))
	for name, m := range d.measurements {
		if out[name], err = rebin.FrequencyRows(m, d.frequency, to); err != nil {
			return fmt.Errorf("rebinning %s: %w", name, err)
		}
	}

	d.logger.Debug("frequency rebinned", "from", len(d.frequency), "to", resolution)
	d.frequency = to
	d.measurements = out
	return nil
}

// ResampleTime moves every measurement and series onto a uniform time grid
// with the given step in seconds, starting at the first sample. Series are
// interpolated against their own time axes.
func (d *DataSet) ResampleTime(step float64) error {
	if err := d.checkMutable(); err != nil {
		return err
	}

	grid, err := rebin.TimeGrid(d.time, step)
	if err != nil {
		return fmt.Errorf("resampling time: %w", err)
	}
	origin := d.time[0]
	from := rebin.Offsets(d.time, origin)
	to := rebin.Offsets(grid, origin)

	measurements := make(map[string]*mat.Dense, len(d.measurements))
	for name, m := range d.measurements {
		if measurements[name], err = rebin.TimeColumns(m, from, to); err != nil {
			return fmt.Errorf("resampling %s: %w", name, err)
		}
	}

	series := make(map[string]Series, len(d.series))
	for name, s := range d.series {
		if series[name], err = d.resampleSeries(name, s, grid, origin, to); err != nil {
			return err
		}
	}

	d.logger.Debug("time resampled",
		slog.Int("from", len(d.time)),
		slog.Int("to", len(grid)),
		slog.Float64("step", step),
	)
	d.time = grid
	d.measurements = measurements
	d.series = series
	return nil
}

func (d *DataSet) resampleSeries(name string, s Series, grid []epoch.JulianDate, origin epoch.JulianDate, to []float64) (Series, error) {
	out := Series{Units: s.Units, Time: grid}

	if len(s.Time) < 2 {
		d.logger.Warn("series too short to resample, filling with NaN", "series", name, "samples", len(s.Time))
		out.Values = make([]float64, len(grid))
		for i := range out.Values {
			out.Values[i] = math.NaN()
		}
		return out, nil
	}

	values, err := rebin.Interpolate(rebin.Offsets(s.Time, origin), s.Values, to)
	if err != nil {
		return Series{}, fmt.Errorf("resampling series %s: %w", name, err)
	}
	out.Values = values
	return out, nil
}

// MarkPreprocessed moves the dataset to StatePreprocessed and records the
// parameters that produced it.
func (d *DataSet) MarkPreprocessed(p Params) {
	d.state = StatePreprocessed
	d.params = p
}

// Snapshot returns the content of the dataset in the form the cache stores.
// Matrices and slices are shared with the dataset.
func (d *DataSet) Snapshot() (*storage.Snapshot, error) {
	if !d.loaded {
		return nil, ErrNotLoaded
	}

	snap := storage.Snapshot{
		Observer:      d.observer,
		Source:        d.source,
		Time:          d.time,
		TimeUnit:      d.units[UnitTime],
		Frequency:     d.frequency,
		FrequencyUnit: d.units[UnitFrequency],
	}
	if d.params.FrequencyResolution > 0 {
		v := d.params.FrequencyResolution
		snap.FrequencyResolution = &v
	}
	if d.params.TimeMinimum > 0 {
		v := d.params.TimeMinimum
		snap.TimeMinimum = &v
	}

	for _, name := range d.MeasurementNames() {
		snap.Measurements = append(snap.Measurements, storage.Measurement{
			Name:  name,
			Units: d.units[name],
			Data:  d.measurements[name],
		})
	}
	for _, name := range d.SeriesNames() {
		s := d.series[name]
		snap.Series = append(snap.Series, storage.Series{
			Name:   name,
			Units:  s.Units,
			Time:   s.Time,
			Values: s.Values,
		})
	}
	return &snap, nil
}
