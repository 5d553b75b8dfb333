package rebin

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/roman-kulish/spacelabel/internal/epoch"
)

// instrumentAxis mimics a receiver band: log-spaced at the bottom, linear
// above 100 kHz.
func instrumentAxis() []float64 {
	var f []float64
	for i := 0; i < 24; i++ {
		f = append(f, 1e3*math.Pow(10, float64(i)/12))
	}
	for v := 125e3; v <= 16e6; v += 100e3 {
		f = append(f, v)
	}
	return f
}

func TestLogFrequencies(t *testing.T) {
	orig := instrumentAxis()

	for _, r := range []int{2, 3, 48, 400, 1000} {
		got, err := LogFrequencies(orig, r)
		require.NoError(t, err)
		require.Len(t, got, r)

		assert.InEpsilon(t, orig[0], got[0], 1e-12)
		assert.InEpsilon(t, orig[len(orig)-1], got[r-1], 1e-12)
		for i := 1; i < r; i++ {
			require.Greater(t, got[i], got[i-1], "resolution %d, bin %d", r, i)
		}
	}
}

func TestLogFrequencies_ExactFormula(t *testing.T) {
	orig := []float64{10, 20, 1000}
	got, err := LogFrequencies(orig, 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{10, 100, 1000}, got, 1e-9)
}

func TestLogFrequencies_Errors(t *testing.T) {
	for _, r := range []int{-5, 0, 1} {
		_, err := LogFrequencies([]float64{1, 2, 3}, r)
		assert.ErrorIs(t, err, ErrInvalidResolution, "resolution %d", r)
	}

	_, err := LogFrequencies([]float64{5}, 10)
	assert.ErrorIs(t, err, ErrInsufficientAxisData)

	_, err = LogFrequencies(nil, 10)
	assert.ErrorIs(t, err, ErrInsufficientAxisData)

	_, err = LogFrequencies([]float64{3, 2, 1}, 10)
	assert.ErrorIs(t, err, ErrInvalidAxis)

	_, err = LogFrequencies([]float64{0, 2, 4}, 10)
	assert.ErrorIs(t, err, ErrInvalidAxis)
}

func TestInterpolate_ClampsAtEdges(t *testing.T) {
	got, err := Interpolate([]float64{1, 2, 3}, []float64{10, 20, 40}, []float64{0, 1, 1.5, 2.5, 3, 9})
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 10, 15, 30, 40, 40}, got)

	_, err = Interpolate([]float64{1, 2}, []float64{1}, []float64{1})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Interpolate([]float64{1, 1}, []float64{1, 2}, []float64{1})
	assert.ErrorIs(t, err, ErrInvalidAxis)
}

func TestFrequencyRows_NoOvershoot(t *testing.T) {
	from := instrumentAxis()
	to, err := LogFrequencies(from, 400)
	require.NoError(t, err)

	const rows = 7
	m := mat.NewDense(rows, len(from), nil)
	for i := 0; i < rows; i++ {
		for j := range from {
			m.Set(i, j, math.Sin(float64(i*j)/17)*float64(i+1)+float64(j%5))
		}
	}

	out, err := FrequencyRows(m, from, to)
	require.NoError(t, err)

	r, c := out.Dims()
	assert.Equal(t, rows, r)
	assert.Equal(t, 400, c)

	for i := 0; i < rows; i++ {
		lo, hi := floats.Min(m.RawRowView(i)), floats.Max(m.RawRowView(i))
		for _, v := range out.RawRowView(i) {
			require.False(t, math.IsNaN(v))
			require.GreaterOrEqual(t, v, lo)
			require.LessOrEqual(t, v, hi)
		}
	}

	_, err = FrequencyRows(mat.NewDense(2, 3, nil), from, to)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestTimeColumns(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{
		0, 100,
		10, 200,
		20, 300,
	})

	out, err := TimeColumns(m, []float64{0, 10, 20}, []float64{0, 5, 15, 20, 25})
	require.NoError(t, err)

	want := mat.NewDense(5, 2, []float64{
		0, 100,
		5, 150,
		15, 250,
		20, 300,
		20, 300,
	})
	assert.True(t, mat.EqualApprox(want, out, 1e-12), "got %v", mat.Formatted(out))
}

func TestTimeGrid(t *testing.T) {
	start := epoch.FromDayOfYear(2004, 1)
	axis := []epoch.JulianDate{start, start + 0.5, start + 1}

	grid, err := TimeGrid(axis, 3600)
	require.NoError(t, err)
	assert.Len(t, grid, 25)
	assert.Equal(t, axis[0], grid[0])
	assert.InDelta(t, float64(axis[2]), float64(grid[24]), 1e-9)

	// 1 day / 7 hours = 3.43 -> ceil + 1 = 5 samples
	grid, err = TimeGrid(axis, 7*3600)
	require.NoError(t, err)
	assert.Len(t, grid, 5)

	_, err = TimeGrid(axis[:1], 60)
	assert.ErrorIs(t, err, ErrInsufficientAxisData)

	_, err = TimeGrid(axis, 0)
	assert.ErrorIs(t, err, ErrInvalidResolution)
}

func TestNativeStep(t *testing.T) {
	start := epoch.FromDayOfYear(2004, 1)
	axis := []epoch.JulianDate{start, start.Add(60e9), start.Add(120e9), start.Add(180e9)}
	assert.InDelta(t, 60, NativeStep(axis), 1e-3)
	assert.Zero(t, NativeStep(axis[:1]))

	off := Offsets(axis, start)
	assert.InDeltaSlice(t, []float64{0, 60, 120, 180}, off, 1e-3)
}
