// Package presenter links a dataset to a view. The view asks for windows of
// data and reports drawn features; the presenter queries the dataset and
// hands the results back to the view.
package presenter

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roman-kulish/spacelabel/internal/catalogue"
	"github.com/roman-kulish/spacelabel/internal/epoch"
	"github.com/roman-kulish/spacelabel/internal/spectrum"
)

var ErrNoWindow = errors.New("no window requested yet")

// View displays windows of a dataset.
type View interface {
	// SelectMeasurements picks the measurements to show from those
	// available. An empty result shows all of them.
	SelectMeasurements(available []string) []string

	// Draw displays the window together with the features overlapping it.
	Draw(w *spectrum.Window) error
}

// Presenter keeps the current window of one dataset on one view.
type Presenter struct {
	ds   *spectrum.DataSet
	view View

	measurements []string // Nil shows all
	start, end   epoch.JulianDate
	hasWindow    bool

	logger *slog.Logger
}

var _ spectrum.Presenter = (*Presenter)(nil)

// New links ds and view and registers the presenter on ds, so catalogue
// reloads redraw the current window.
func New(ds *spectrum.DataSet, view View, logger *slog.Logger) *Presenter {
	if logger == nil {
		logger = slog.Default()
	}
	p := Presenter{ds: ds, view: view, logger: logger}
	ds.RegisterPresenter(&p)
	return &p
}

// RequestMeasurements asks the view which measurements to show and keeps
// the selection for later windows.
func (p *Presenter) RequestMeasurements() ([]string, error) {
	available := p.ds.MeasurementNames()
	selected := p.view.SelectMeasurements(available)

	for _, name := range selected {
		if !slices.Contains(available, name) {
			return nil, fmt.Errorf("%w: %q (known: %v)", spectrum.ErrUnknownMeasurement, name, available)
		}
	}
	if len(selected) == 0 {
		selected = nil
	}

	p.measurements = slices.Clone(selected)
	p.logger.Debug("measurements selected", slog.Any("measurements", selected))
	return selected, nil
}

// Window returns the bounds of the current window.
func (p *Presenter) Window() (epoch.JulianDate, epoch.JulianDate, bool) {
	return p.start, p.end, p.hasWindow
}

// RequestWindow validates [start, end] against the data, queries it and
// draws it.
func (p *Presenter) RequestWindow(start, end epoch.JulianDate) error {
	if err := p.ds.ValidateDates(start, end); err != nil {
		return err
	}
	p.start, p.end, p.hasWindow = start, end, true
	return p.draw()
}

// RequestNext moves the window forward by its own width. The window stops
// at the end of the data.
func (p *Presenter) RequestNext() error {
	return p.move(1)
}

// RequestPrev moves the window back by its own width. The window stops at
// the start of the data.
func (p *Presenter) RequestPrev() error {
	return p.move(-1)
}

func (p *Presenter) move(direction float64) error {
	if !p.hasWindow {
		return ErrNoWindow
	}

	width := p.end - p.start
	start, end := p.clamp(p.start+epoch.JulianDate(direction)*width, p.end+epoch.JulianDate(direction)*width)
	if start == p.start && end == p.end {
		p.logger.Debug("window already at the edge of the data", "start", start, "end", end)
	}
	return p.RequestWindow(start, end)
}

// clamp shifts [start, end] to lie within the data, keeping its width
// unless the data is narrower.
func (p *Presenter) clamp(start, end epoch.JulianDate) (epoch.JulianDate, epoch.JulianDate) {
	lo, hi := p.ds.TimeRange()
	width := end - start
	switch {
	case width >= hi-lo:
		return lo, hi
	case start < lo:
		return lo, lo + width
	case end > hi:
		return hi - width, hi
	}
	return start, end
}

// RegisterFeature adds a feature drawn on the view to the dataset and
// redraws the current window with it.
func (p *Presenter) RegisterFeature(name string, vertexes []catalogue.Vertex) (*catalogue.Feature, error) {
	f, err := p.ds.AddFeature(name, vertexes)
	if err != nil {
		return nil, err
	}
	if p.hasWindow {
		if err = p.draw(); err != nil {
			return f, err
		}
	}
	return f, nil
}

// RequestSave writes the feature catalogue and its text summary.
func (p *Presenter) RequestSave() error {
	return p.ds.SaveCatalogue()
}

// Refresh redraws the current window. It does nothing before the first
// window is requested.
func (p *Presenter) Refresh() error {
	if !p.hasWindow {
		return nil
	}
	return p.draw()
}

func (p *Presenter) draw() error {
	w, err := p.ds.Window(p.start, p.end, spectrum.WithMeasurements(p.measurements...))
	if err != nil {
		return fmt.Errorf("querying window: %w", err)
	}

	p.logger.Debug("drawing window",
		slog.String("start", p.start.String()),
		slog.String("end", p.end.String()),
		slog.Int("samples", len(w.Time)),
		slog.Int("features", len(w.Features)),
	)
	if err = p.view.Draw(w); err != nil {
		return fmt.Errorf("drawing window: %w", err)
	}
	return nil
}
