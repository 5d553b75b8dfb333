package source

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/roman-kulish/spacelabel/internal/epoch"
	"github.com/roman-kulish/spacelabel/internal/spectrum"
)

// orient returns col as a t x f time-major matrix. The stored layout is
// inferred from the shape; frequencyMajor decides when t == f.
func orient(col *column, t, f int, frequencyMajor bool) (*mat.Dense, error) {
	values, err := col.floats()
	if err != nil {
		return nil, err
	}

	var dims []int
	for _, d := range col.dims {
		if d != 1 {
			dims = append(dims, d)
		}
	}

	var a, b int
	switch {
	case len(dims) == 2:
		a, b = dims[0], dims[1]
	case len(dims) == 1 && t == 1 && dims[0] == f:
		a, b = 1, f
	default:
		return nil, fmt.Errorf("column %s has shape %v, expected %dx%d", col.name, col.dims, t, f)
	}

	timeMajor := a == t && b == f
	freqMajor := a == f && b == t
	switch {
	case freqMajor && (!timeMajor || frequencyMajor):
		return mat.DenseCopyOf(mat.NewDense(f, t, values).T()), nil
	case timeMajor:
		return mat.NewDense(t, f, values), nil
	}
	return nil, fmt.Errorf("column %s has shape %v, expected %dx%d", col.name, col.dims, t, f)
}

// assemble stacks the per-segment matrices of one measurement along time.
func assemble(parts []*column, times [][]epoch.JulianDate, f int, frequencyMajor bool) (*mat.Dense, error) {
	if len(parts) != len(times) {
		return nil, fmt.Errorf("%d segments read, %d expected", len(parts), len(times))
	}

	total := 0
	for _, t := range times {
		total += len(t)
	}
	out := mat.NewDense(total, f, nil)

	row := 0
	for i, col := range parts {
		t := len(times[i])
		if t == 0 {
			continue
		}
		m, err := orient(col, t, f, frequencyMajor)
		if err != nil {
			return nil, err
		}
		out.Slice(row, row+t, 0, f).(*mat.Dense).Copy(m)
		row += t
	}
	return out, nil
}

// subtractBackground removes bg from m in place. bg is either one value per
// frequency, subtracted from every time row, or a matrix of the same shape.
func subtractBackground(m *mat.Dense, bg *column, frequencyMajor bool) error {
	values, err := bg.floats()
	if err != nil {
		return err
	}

	rows, cols := m.Dims()
	switch len(values) {
	case cols:
		for i := 0; i < rows; i++ {
			row := m.RawRowView(i)
			for j := range row {
				row[j] -= values[j]
			}
		}
		return nil

	case rows * cols:
		b, err := orient(bg, rows, cols, frequencyMajor)
		if err != nil {
			return err
		}
		m.Sub(m, b)
		return nil
	}
	return fmt.Errorf("background %s has %d values for a %dx%d matrix", bg.name, len(values), rows, cols)
}

// seriesPart is one segment's contribution to a series.
type seriesPart struct {
	segment int
	time    []epoch.JulianDate
	values  []float64
	units   string
	missing bool // Column absent from the segment
	ok      bool // Read and consistent
}

func (r *rawDataset) readSeries(c container, segment int, name string, have map[string]struct{}) seriesPart {
	spec := r.config.Series[name]
	part := seriesPart{segment: segment}

	if _, ok := have[spec.Value]; !ok {
		part.missing = true
		return part
	}

	warn := func(msg string, err error) seriesPart {
		r.logger.Warn(msg,
			slog.String("series", name),
			slog.String("path", c.Path()),
			slog.Any("error", err),
		)
		return part
	}

	col, err := c.Column(spec.Value)
	if err != nil {
		return warn("series unreadable", err)
	}
	values, err := col.floats()
	if err != nil {
		return warn("series unreadable", err)
	}

	timeColumn := firstNonEmpty(spec.Time, r.config.Time.Value)
	times := r.times[segment]
	if timeColumn != r.config.Time.Value {
		tc, err := c.Column(timeColumn)
		if err != nil {
			return warn("series time unreadable", err)
		}
		format := spec.TimeFormat
		if format == "" {
			format = r.config.Time.Format
		}
		if times, err = tc.times(format, r.origin); err != nil {
			return warn("series time unreadable", err)
		}
	}
	if len(times) != len(values) {
		return warn("series time does not match values", fmt.Errorf("%d times, %d values", len(times), len(values)))
	}

	if spec.Conversion != nil {
		scaled := make([]float64, len(values))
		for i, v := range values {
			scaled[i] = v * *spec.Conversion
		}
		values = scaled
	}

	part.time = times
	part.values = values
	part.units = col.units
	part.ok = true
	return part
}

// assembleSeries joins the segments of a series. A segment with fewer
// samples than the fullest segment minus the gap tolerance, or one that
// could not be read, is replaced by NaN over the segment's primary time
// axis. A series absent from every segment is dropped.
func (r *rawDataset) assembleSeries(name string, parts []seriesPart) (spectrum.Series, bool) {
	spec := r.config.Series[name]

	var largest, present int
	units := spec.Units
	for _, p := range parts {
		if !p.missing {
			present++
		}
		if p.ok {
			largest = max(largest, len(p.values))
			units = firstNonEmpty(units, p.units)
		}
	}
	if present == 0 {
		r.logger.Warn("series column missing, skipping", "series", name, "column", spec.Value)
		return spectrum.Series{}, false
	}

	threshold := largest - r.config.SegmentGapTolerance
	out := spectrum.Series{Units: units}
	for _, p := range parts {
		if p.ok && len(p.values) > 0 && len(p.values) >= threshold {
			out.Time = append(out.Time, p.time...)
			out.Values = append(out.Values, p.values...)
			continue
		}

		placeholder := r.times[p.segment]
		r.logger.Debug("series gap, padding with NaN",
			slog.String("series", name),
			slog.String("path", r.paths[p.segment]),
			slog.Int("samples", len(p.values)),
			slog.Int("threshold", threshold),
		)
		out.Time = append(out.Time, placeholder...)
		for range placeholder {
			out.Values = append(out.Values, math.NaN())
		}
	}
	return out, true
}
