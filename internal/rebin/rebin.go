// Package rebin resamples spectrogram axes: log-spaced frequency rebinning,
// uniform time grids and the linear interpolation that moves measurements
// onto them.
package rebin

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrInvalidResolution    = errors.New("invalid resolution")
	ErrInsufficientAxisData = errors.New("insufficient axis data")
	ErrInvalidAxis          = errors.New("axis must be strictly increasing")
	ErrShapeMismatch        = errors.New("matrix shape does not match axis")
)

// LogFrequencies returns resolution values spaced uniformly in log10 between
// the first and last element of orig:
//
//	f[i] = 10 ** (log10(orig[0]) + i*(log10(orig[n-1])-log10(orig[0]))/(resolution-1))
func LogFrequencies(orig []float64, resolution int) ([]float64, error) {
	if resolution < 2 {
		return nil, fmt.Errorf("%w: need at least 2 bins, got %d", ErrInvalidResolution, resolution)
	}
	if err := CheckAxis(orig); err != nil {
		return nil, err
	}
	if orig[0] <= 0 {
		return nil, fmt.Errorf("%w: frequencies must be positive, first is %g", ErrInvalidAxis, orig[0])
	}

	lo := math.Log10(orig[0])
	hi := math.Log10(orig[len(orig)-1])
	step := (hi - lo) / float64(resolution-1)

	out := make([]float64, resolution)
	for i := range out {
		out[i] = math.Pow(10, lo+float64(i)*step)
	}
	return out, nil
}

// CheckAxis verifies xs can be interpolated against.
func CheckAxis(xs []float64) error {
	if len(xs) < 2 {
		return fmt.Errorf("%w: need at least 2 points, got %d", ErrInsufficientAxisData, len(xs))
	}
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return fmt.Errorf("%w: element %d (%g) follows %g", ErrInvalidAxis, i, xs[i], xs[i-1])
		}
	}
	return nil
}

// Interpolate evaluates the piecewise linear function through (xs, ys) at
// every point of at. Points outside [xs[0], xs[n-1]] take the nearest edge
// value; nothing is extrapolated.
func Interpolate(xs, ys, at []float64) ([]float64, error) {
	if err := CheckAxis(xs); err != nil {
		return nil, err
	}
	if len(ys) != len(xs) {
		return nil, fmt.Errorf("%w: %d values for %d axis points", ErrShapeMismatch, len(ys), len(xs))
	}

	out := make([]float64, len(at))
	interpolateInto(out, xs, ys, at)
	return out, nil
}

// interpolateInto assumes xs has been checked.
func interpolateInto(dst, xs, ys, at []float64) {
	var pl interp.PiecewiseLinear
	_ = pl.Fit(xs, ys)
	for i, x := range at {
		dst[i] = pl.Predict(x)
	}
}

// FrequencyRows resamples every row of m, a T x len(from) time-major matrix,
// from the frequency axis from onto to.
func FrequencyRows(m *mat.Dense, from, to []float64) (*mat.Dense, error) {
	if err := CheckAxis(from); err != nil {
		return nil, err
	}
	rows, cols := m.Dims()
	if cols != len(from) {
		return nil, fmt.Errorf("%w: %d columns for %d frequencies", ErrShapeMismatch, cols, len(from))
	}

	out := mat.NewDense(rows, len(to), nil)
	for i := 0; i < rows; i++ {
		interpolateInto(out.RawRowView(i), from, m.RawRowView(i), to)
	}
	return out, nil
}

// TimeColumns resamples every column of m, a len(from) x F time-major
// matrix, from the time offsets from onto to.
func TimeColumns(m *mat.Dense, from, to []float64) (*mat.Dense, error) {
	if err := CheckAxis(from); err != nil {
		return nil, err
	}
	rows, cols := m.Dims()
	if rows != len(from) {
		return nil, fmt.Errorf("%w: %d rows for %d time samples", ErrShapeMismatch, rows, len(from))
	}

	out := mat.NewDense(len(to), cols, nil)
	col := make([]float64, rows)
	res := make([]float64, len(to))
	for j := 0; j < cols; j++ {
		mat.Col(col, j, m)
		interpolateInto(res, from, col, to)
		out.SetCol(j, res)
	}
	return out, nil
}
