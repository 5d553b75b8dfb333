package presenter_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/roman-kulish/spacelabel/internal/catalogue"
	"github.com/roman-kulish/spacelabel/internal/epoch"
	"github.com/roman-kulish/spacelabel/internal/presenter"
	"github.com/roman-kulish/spacelabel/internal/spectrum"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func day(d float64) epoch.JulianDate {
	return epoch.FromDayOfYear(2004, d)
}

// fakeView records every window it is asked to draw.
type fakeView struct {
	selection []string
	offered   []string
	drawn     []*spectrum.Window
	err       error
}

func (v *fakeView) SelectMeasurements(available []string) []string {
	v.offered = available
	return v.selection
}

func (v *fakeView) Draw(w *spectrum.Window) error {
	v.drawn = append(v.drawn, w)
	return v.err
}

func (v *fakeView) last() *spectrum.Window {
	return v.drawn[len(v.drawn)-1]
}

// newDataSet returns a loaded dataset sampled daily on days 1..10.
func newDataSet(t *testing.T) *spectrum.DataSet {
	t.Helper()

	times := make([]epoch.JulianDate, 10)
	for i := range times {
		times[i] = day(float64(i + 1))
	}
	loader := spectrum.LoaderFunc(func(context.Context) (*spectrum.Content, error) {
		return &spectrum.Content{Measurements: map[string]spectrum.Measurement{
			"Flux":  {Units: "W/m^2/Hz", Data: mat.NewDense(10, 2, nil)},
			"Power": {Data: mat.NewDense(10, 2, nil)},
		}}, nil
	})

	ds, err := spectrum.New(spectrum.Header{
		Observer:     "Cassini",
		Source:       "test.cdf",
		Base:         filepath.Join(t.TempDir(), "test"),
		Time:         times,
		Frequency:    []float64{10, 20},
		Measurements: []string{"Flux", "Power"},
	}, loader, testLogger)
	require.NoError(t, err)
	require.NoError(t, ds.Load(context.Background()))
	return ds
}

func TestRequestMeasurements(t *testing.T) {
	ds := newDataSet(t)

	view := &fakeView{selection: []string{"Power"}}
	p := presenter.New(ds, view, testLogger)
	got, err := p.RequestMeasurements()
	require.NoError(t, err)
	assert.Equal(t, []string{"Power"}, got)
	assert.Equal(t, []string{"Flux", "Power"}, view.offered)

	require.NoError(t, p.RequestWindow(day(2), day(4)))
	assert.Len(t, view.last().Measurements, 1)
	assert.Contains(t, view.last().Measurements, "Power")

	view.selection = nil
	got, err = p.RequestMeasurements()
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, p.Refresh())
	assert.Len(t, view.last().Measurements, 2)

	view.selection = []string{"Density"}
	_, err = p.RequestMeasurements()
	assert.ErrorIs(t, err, spectrum.ErrUnknownMeasurement)
}

func TestRequestWindow(t *testing.T) {
	ds := newDataSet(t)
	view := &fakeView{}
	p := presenter.New(ds, view, testLogger)

	require.NoError(t, p.RequestWindow(day(2), day(4)))
	w := view.last()
	assert.Equal(t, []epoch.JulianDate{day(2), day(3), day(4)}, w.Time)
	assert.Equal(t, "W/m^2/Hz", w.Units["Flux"])

	start, end, ok := p.Window()
	assert.True(t, ok)
	assert.Equal(t, day(2), start)
	assert.Equal(t, day(4), end)

	err := p.RequestWindow(day(0), day(4))
	assert.ErrorIs(t, err, spectrum.ErrDateRangeOutOfBounds)
	assert.Len(t, view.drawn, 1)

	boom := errors.New("display gone")
	view.err = boom
	assert.ErrorIs(t, p.RequestWindow(day(2), day(4)), boom)
}

func TestRequestNextPrev(t *testing.T) {
	ds := newDataSet(t)
	view := &fakeView{}
	p := presenter.New(ds, view, testLogger)

	assert.ErrorIs(t, p.RequestNext(), presenter.ErrNoWindow)

	require.NoError(t, p.RequestWindow(day(1), day(4)))

	steps := []struct {
		move       func() error
		start, end float64
	}{
		{p.RequestNext, 4, 7},
		{p.RequestNext, 7, 10},
		{p.RequestNext, 7, 10}, // Clamped at the end
		{p.RequestPrev, 4, 7},
		{p.RequestPrev, 1, 4},
		{p.RequestPrev, 1, 4}, // Clamped at the start
	}
	for i, s := range steps {
		require.NoError(t, s.move(), "step %d", i)
		start, end, _ := p.Window()
		assert.InDelta(t, float64(day(s.start)), float64(start), 1e-9, "step %d start", i)
		assert.InDelta(t, float64(day(s.end)), float64(end), 1e-9, "step %d end", i)
	}
	assert.Len(t, view.drawn, 1+len(steps))
}

func TestRequestNext_PartialStep(t *testing.T) {
	ds := newDataSet(t)
	view := &fakeView{}
	p := presenter.New(ds, view, testLogger)

	require.NoError(t, p.RequestWindow(day(5), day(8)))
	require.NoError(t, p.RequestNext())

	start, end, _ := p.Window()
	assert.InDelta(t, float64(day(7)), float64(start), 1e-9)
	assert.InDelta(t, float64(day(10)), float64(end), 1e-9)
}

func TestRequestNext_WiderThanData(t *testing.T) {
	ds := newDataSet(t)
	view := &fakeView{}
	p := presenter.New(ds, view, testLogger)

	require.NoError(t, p.RequestWindow(day(1), day(10)))
	require.NoError(t, p.RequestNext())

	start, end, _ := p.Window()
	assert.Equal(t, day(1), start)
	assert.Equal(t, day(10), end)
}

func TestFeatures(t *testing.T) {
	ds := newDataSet(t)
	view := &fakeView{}
	p := presenter.New(ds, view, testLogger)

	// Adding before any window draws nothing.
	_, err := p.RegisterFeature("early", []catalogue.Vertex{
		{Time: day(8), Frequency: 10},
		{Time: day(9), Frequency: 10},
		{Time: day(9), Frequency: 20},
	})
	require.NoError(t, err)
	assert.Empty(t, view.drawn)

	require.NoError(t, p.RequestWindow(day(1), day(4)))
	assert.Empty(t, view.last().Features)

	f, err := p.RegisterFeature("arc", []catalogue.Vertex{
		{Time: day(2), Frequency: 10},
		{Time: day(3), Frequency: 10},
		{Time: day(3), Frequency: 20},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.ID())
	require.Len(t, view.last().Features, 1)
	assert.Equal(t, "arc", view.last().Features[0].Name())

	_, err = p.RegisterFeature("line", []catalogue.Vertex{{Time: day(2), Frequency: 10}})
	assert.ErrorIs(t, err, catalogue.ErrTooFewVertexes)

	require.NoError(t, p.RequestSave())
	assert.FileExists(t, ds.CataloguePath())
	assert.FileExists(t, ds.SummaryPath())
}

func TestRefreshOnCatalogueReload(t *testing.T) {
	ds := newDataSet(t)
	view := &fakeView{}
	p := presenter.New(ds, view, testLogger)

	require.NoError(t, p.RequestWindow(day(1), day(4)))
	_, err := p.RegisterFeature("arc", []catalogue.Vertex{
		{Time: day(2), Frequency: 10},
		{Time: day(3), Frequency: 10},
		{Time: day(3), Frequency: 20},
	})
	require.NoError(t, err)
	require.NoError(t, p.RequestSave())
	drawn := len(view.drawn)

	// Another session empties the catalogue on disk.
	require.NoError(t, os.WriteFile(ds.CataloguePath(), nil, 0o644))
	require.NoError(t, ds.ReloadCatalogue())

	assert.Len(t, view.drawn, drawn+1)
	assert.Empty(t, view.last().Features)
}
