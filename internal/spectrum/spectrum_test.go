package spectrum

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/roman-kulish/spacelabel/internal/catalogue"
	"github.com/roman-kulish/spacelabel/internal/epoch"
	"github.com/roman-kulish/spacelabel/internal/rebin"
)

func day(d float64) epoch.JulianDate {
	return epoch.FromDayOfYear(2004, d)
}

// newTestDataSet builds a loaded dataset sampled once a day from day 1 to
// day days of 2004, with frequencies 10, 20, ... and flux = row*100 + col.
func newTestDataSet(t *testing.T, days, freqs int) *DataSet {
	t.Helper()

	times := make([]epoch.JulianDate, days)
	for i := range times {
		times[i] = day(float64(i + 1))
	}
	frequency := make([]float64, freqs)
	for j := range frequency {
		frequency[j] = float64(10 * (j + 1))
	}

	flux := mat.NewDense(days, freqs, nil)
	for i := 0; i < days; i++ {
		for j := 0; j < freqs; j++ {
			flux.Set(i, j, float64(i*100+j))
		}
	}
	power := mat.NewDense(days, freqs, nil)
	power.Scale(0.5, flux)

	lat := Series{Units: "deg", Time: []epoch.JulianDate{day(1), day(float64(days))}, Values: []float64{0, 10}}

	loader := LoaderFunc(func(context.Context) (*Content, error) {
		return &Content{
			Measurements: map[string]Measurement{
				"Flux":  {Units: "W/m^2/Hz", Data: flux},
				"Power": {Data: power},
			},
			Series: map[string]Series{"Lat": lat},
		}, nil
	})

	ds, err := New(Header{
		Observer:     "Cassini",
		Source:       "test",
		Base:         filepath.Join(t.TempDir(), "2004001"),
		Time:         times,
		Frequency:    frequency,
		Units:        map[string]string{UnitTime: "jd", UnitFrequency: "kHz", "Power": "dB"},
		Measurements: []string{"Power", "Flux"},
	}, loader, nil)
	require.NoError(t, err)
	require.NoError(t, ds.Load(context.Background()))
	return ds
}

func TestNew_Axes(t *testing.T) {
	tests := []struct {
		name string
		time []epoch.JulianDate
		freq []float64
		want error
	}{
		{"valid", []epoch.JulianDate{1, 2}, []float64{1, 2}, nil},
		{"empty time", nil, []float64{1, 2}, rebin.ErrInsufficientAxisData},
		{"unordered time", []epoch.JulianDate{2, 1}, []float64{1, 2}, ErrAxisNotIncreasing},
		{"repeated time", []epoch.JulianDate{1, 1}, []float64{1, 2}, ErrAxisNotIncreasing},
		{"single frequency", []epoch.JulianDate{1}, []float64{1}, rebin.ErrInsufficientAxisData},
		{"unordered frequency", []epoch.JulianDate{1}, []float64{2, 1}, ErrAxisNotIncreasing},
		{"non-positive frequency", []epoch.JulianDate{1}, []float64{0, 1}, rebin.ErrInvalidAxis},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Header{Time: tt.time, Frequency: tt.freq}, nil, nil)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDataSet_Lifecycle(t *testing.T) {
	calls := 0
	ds, err := New(Header{
		Time:         []epoch.JulianDate{1, 2},
		Frequency:    []float64{1, 2},
		Measurements: []string{"B", "A"},
	}, LoaderFunc(func(context.Context) (*Content, error) {
		calls++
		return &Content{Measurements: map[string]Measurement{"A": {Data: mat.NewDense(2, 2, nil)}}}, nil
	}), nil)
	require.NoError(t, err)

	assert.False(t, ds.Loaded())
	assert.Equal(t, StateRaw, ds.State())
	assert.Equal(t, []string{"A", "B"}, ds.MeasurementNames())

	_, err = ds.Window(1, 2)
	assert.ErrorIs(t, err, ErrNotLoaded)

	require.NoError(t, ds.Load(context.Background()))
	require.NoError(t, ds.Load(context.Background()))
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"A"}, ds.MeasurementNames(), "names shrink to what the loader found")
}

func TestDataSet_LoadErrors(t *testing.T) {
	h := Header{Time: []epoch.JulianDate{1, 2}, Frequency: []float64{1, 2}}

	ds, err := New(h, nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, ds.Load(context.Background()), ErrNotLoaded)

	boom := errors.New("boom")
	ds, err = New(h, LoaderFunc(func(context.Context) (*Content, error) { return nil, boom }), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, ds.Load(context.Background()), boom)
	assert.False(t, ds.Loaded())

	ds, err = New(h, LoaderFunc(func(context.Context) (*Content, error) {
		return &Content{Measurements: map[string]Measurement{"A": {Data: mat.NewDense(2, 3, nil)}}}, nil
	}), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, ds.Load(context.Background()), ErrShapeMismatch)
}

func TestDataSet_ValidateDates(t *testing.T) {
	ds := newTestDataSet(t, 365, 4)

	assert.NoError(t, ds.ValidateDates(day(1), day(365)))
	assert.NoError(t, ds.ValidateDates(day(100), day(110)))

	for _, r := range [][2]float64{{0.5, 10}, {10, 365.5}, {20, 10}} {
		err := ds.ValidateDates(day(r[0]), day(r[1]))
		require.ErrorIs(t, err, ErrDateRangeOutOfBounds, r)

		var re *RangeError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, day(1), re.Min)
		assert.Equal(t, day(365), re.Max)
	}
}

func TestDataSet_Window(t *testing.T) {
	ds := newTestDataSet(t, 10, 3)

	w, err := ds.Window(day(3), day(5))
	require.NoError(t, err)

	require.Equal(t, []epoch.JulianDate{day(3), day(4), day(5)}, w.Time, "bounds are inclusive")
	assert.Equal(t, []float64{10, 20, 30}, w.Frequency)
	require.Len(t, w.Measurements, 2)

	flux := w.Measurements["Flux"]
	r, c := flux.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 202.0, flux.At(0, 2))
	assert.Equal(t, 400.0, flux.At(2, 0))
	assert.Equal(t, "W/m^2/Hz", w.Units["Flux"])
	assert.Equal(t, "dB", w.Units["Power"], "header units survive a loader without units")
	assert.Equal(t, "kHz", w.Units[UnitFrequency])

	flux.Set(0, 0, -1)
	again, err := ds.Window(day(3), day(5))
	require.NoError(t, err)
	assert.Equal(t, 200.0, again.Measurements["Flux"].At(0, 0), "windows are copies")
	assert.Equal(t, again.Time, w.Time)
}

func TestDataSet_WindowSubsetAndEmpty(t *testing.T) {
	ds := newTestDataSet(t, 10, 3)

	w, err := ds.Window(day(1), day(2), WithMeasurements("Power"))
	require.NoError(t, err)
	assert.Len(t, w.Measurements, 1)
	assert.Equal(t, 50.0, w.Measurements["Power"].At(1, 0))

	_, err = ds.Window(day(1), day(2), WithMeasurements("Nope"))
	assert.ErrorIs(t, err, ErrUnknownMeasurement)

	w, err = ds.Window(day(40), day(50))
	require.NoError(t, err)
	assert.True(t, w.Empty())
	assert.Empty(t, w.Time)
	assert.True(t, w.Measurements["Flux"].IsEmpty())

	w, err = ds.Window(day(3.2), day(3.8))
	require.NoError(t, err)
	assert.True(t, w.Empty(), "no sample between two days")
}

func TestDataSet_SeriesWindow(t *testing.T) {
	ds := newTestDataSet(t, 10, 3)

	got, err := ds.SeriesWindow(day(1), day(5))
	require.NoError(t, err)
	require.Contains(t, got, "Lat")
	assert.Equal(t, []float64{0}, got["Lat"].Values)

	got, err = ds.SeriesWindow(day(1), day(10), "Lat")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 10}, got["Lat"].Values)

	_, err = ds.SeriesWindow(day(1), day(10), "Lon")
	assert.ErrorIs(t, err, ErrUnknownMeasurement)
}

func TestDataSet_RebinFrequency(t *testing.T) {
	ds := newTestDataSet(t, 5, 8)

	require.NoError(t, ds.RebinFrequency(4))
	f := ds.Frequency()
	require.Len(t, f, 4)
	assert.InDelta(t, 10, f[0], 1e-9)
	assert.InDelta(t, 80, f[3], 1e-9)

	flux, err := ds.Measurement("Flux")
	require.NoError(t, err)
	r, c := flux.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 4, c)
	for i := 0; i < r; i++ {
		row := flux.RawRowView(i)
		assert.GreaterOrEqual(t, floats.Min(row), float64(i*100))
		assert.LessOrEqual(t, floats.Max(row), float64(i*100+7))
	}

	assert.ErrorIs(t, ds.RebinFrequency(1), rebin.ErrInvalidResolution)
}

func TestDataSet_ResampleTime(t *testing.T) {
	ds := newTestDataSet(t, 3, 2)

	require.NoError(t, ds.ResampleTime(12*3600))
	times := ds.Time()
	require.Len(t, times, 5)
	assert.InDelta(t, float64(day(1.5)), float64(times[1]), 1e-9)

	flux, err := ds.Measurement("Flux")
	require.NoError(t, err)
	assert.InDelta(t, 50, flux.At(1, 0), 1e-6)
	assert.InDelta(t, 201, flux.At(4, 1), 1e-6)

	lat, err := ds.SeriesWindow(day(1), day(3), "Lat")
	require.NoError(t, err)
	require.Len(t, lat["Lat"].Values, 5)
	assert.InDelta(t, 2.5, lat["Lat"].Values[1], 1e-6)
	assert.False(t, math.IsNaN(lat["Lat"].Values[4]))
}

func TestDataSet_Preprocessed(t *testing.T) {
	ds := newTestDataSet(t, 3, 4)
	ds.MarkPreprocessed(Params{FrequencyResolution: 4})

	assert.Equal(t, StatePreprocessed, ds.State())
	assert.ErrorIs(t, ds.RebinFrequency(3), ErrAlreadyPreprocessed)
	assert.ErrorIs(t, ds.ResampleTime(3600), ErrAlreadyPreprocessed)

	snap, err := ds.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, snap.FrequencyResolution)
	assert.Equal(t, 4, *snap.FrequencyResolution)
	assert.Nil(t, snap.TimeMinimum)
	assert.Equal(t, "Cassini", snap.Observer)
	require.Len(t, snap.Measurements, 2)
	assert.Equal(t, "Flux", snap.Measurements[0].Name)
	require.Len(t, snap.Series, 1)
	assert.Equal(t, "deg", snap.Series[0].Units)
}

type countingPresenter struct{ refreshed int }

func (p *countingPresenter) Refresh() error {
	p.refreshed++
	return nil
}

func TestDataSet_Features(t *testing.T) {
	ds := newTestDataSet(t, 365, 3)
	p := &countingPresenter{}
	ds.RegisterPresenter(p)

	box := []catalogue.Vertex{
		{Time: day(50), Frequency: 10},
		{Time: day(52), Frequency: 10},
		{Time: day(52), Frequency: 30},
		{Time: day(50), Frequency: 30},
	}
	f, err := ds.AddFeature("arc", box)
	require.NoError(t, err)
	assert.Equal(t, 0, f.ID())

	_, err = ds.AddFeature("line", box[:2])
	assert.ErrorIs(t, err, catalogue.ErrTooFewVertexes)

	assert.Len(t, ds.FeaturesInRange(day(49), day(51)), 1)
	assert.Len(t, ds.FeaturesInRange(day(51), day(53)), 1)
	assert.Empty(t, ds.FeaturesInRange(day(60), day(70)))

	w, err := ds.Window(day(49), day(51))
	require.NoError(t, err)
	require.Len(t, w.Features, 1)
	assert.Equal(t, "arc", w.Features[0].Name())

	require.NoError(t, ds.SaveCatalogue())
	_, err = os.Stat(ds.SummaryPath())
	require.NoError(t, err)

	_, err = ds.AddFeature("unsaved", box)
	require.NoError(t, err)
	require.Len(t, ds.Features(), 2)

	require.NoError(t, ds.ReloadCatalogue())
	assert.Equal(t, 1, p.refreshed)
	require.Len(t, ds.Features(), 1)
	assert.Equal(t, "arc", ds.Features()[0].Name())

	lo, hi := ds.Features()[0].TimeExtent()
	assert.InDelta(t, float64(day(50)), float64(lo), 1e-8)
	assert.InDelta(t, float64(day(52)), float64(hi), 1e-8)
}

func TestDataSet_ReloadMissingCatalogue(t *testing.T) {
	ds := newTestDataSet(t, 3, 2)
	_, err := ds.AddFeature("x", []catalogue.Vertex{{Time: day(1), Frequency: 10}, {Time: day(2), Frequency: 10}, {Time: day(2), Frequency: 20}})
	require.NoError(t, err)

	require.NoError(t, ds.ReloadCatalogue())
	assert.Empty(t, ds.Features())
}
