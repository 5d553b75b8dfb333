// Package spectrum holds the in-memory spectrogram dataset: its axes, its
// time-major measurement matrices, auxiliary time series and the feature
// catalogue drawn on top of them.
package spectrum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/roman-kulish/spacelabel/internal/catalogue"
	"github.com/roman-kulish/spacelabel/internal/epoch"
	"github.com/roman-kulish/spacelabel/internal/instrument"
	"github.com/roman-kulish/spacelabel/internal/rebin"
)

var (
	ErrDateRangeOutOfBounds = errors.New("date range out of bounds")
	ErrAlreadyPreprocessed  = errors.New("dataset is already preprocessed")
	ErrUnknownMeasurement   = errors.New("unknown measurement")
	ErrAxisNotIncreasing    = errors.New("axis is not strictly increasing")
	ErrShapeMismatch        = errors.New("measurement shape does not match axes")
	ErrNotLoaded            = errors.New("dataset is not loaded")
)

const (
	UnitTime      = "Time"
	UnitFrequency = "Frequency"
)

// State is the lifecycle stage of a DataSet.
type State int

const (
	StateRaw State = iota
	StatePreprocessed
)

func (s State) String() string {
	switch s {
	case StateRaw:
		return "raw"
	case StatePreprocessed:
		return "preprocessed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Params records the resampling applied to a preprocessed dataset. Zero
// means the axis was left at native resolution.
type Params struct {
	FrequencyResolution int
	TimeMinimum         float64 // Seconds
}

// Series is a 1-D quantity sampled on its own time axis.
type Series struct {
	Units  string
	Time   []epoch.JulianDate
	Values []float64
}

// Measurement is a T x F matrix with its display unit.
type Measurement struct {
	Units string
	Data  *mat.Dense
}

// Content is the bulk data a Loader produces.
type Content struct {
	Measurements map[string]Measurement
	Series       map[string]Series
}

// Loader reads the bulk data of a dataset whose header has already been
// read.
type Loader interface {
	Load(ctx context.Context) (*Content, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context) (*Content, error)

func (f LoaderFunc) Load(ctx context.Context) (*Content, error) {
	return f(ctx)
}

// Header is the cheap part of a dataset: axes and metadata read without
// touching the measurement data.
type Header struct {
	Observer string
	Source   string // File the data came from
	Base     string // Path without suffix; catalogue and cache files are named after it

	Time      []epoch.JulianDate
	Frequency []float64
	Units     map[string]string

	Measurements []string // Names expected from the loader
	Config       *instrument.Config

	State  State
	Params Params
}

// DataSet is one instrument's spectrogram together with its features. It is
// not safe for concurrent use.
type DataSet struct {
	observer string
	source   string
	base     string
	config   *instrument.Config

	time      []epoch.JulianDate
	frequency []float64
	units     map[string]string
	declared  []string

	measurements map[string]*mat.Dense
	series       map[string]Series

	catalogue *catalogue.Catalogue
	presenter Presenter

	loader Loader
	loaded bool
	state  State
	params Params

	logger *slog.Logger
}

// New validates the header axes and returns an unloaded dataset.
func New(h Header, loader Loader, logger *slog.Logger) (*DataSet, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := checkTime(h.Time); err != nil {
		return nil, err
	}
	if err := checkFrequency(h.Frequency); err != nil {
		return nil, err
	}

	d := DataSet{
		observer:     h.Observer,
		source:       h.Source,
		base:         h.Base,
		config:       h.Config,
		time:         slices.Clone(h.Time),
		frequency:    slices.Clone(h.Frequency),
		units:        make(map[string]string, len(h.Units)+2),
		declared:     slices.Clone(h.Measurements),
		measurements: make(map[string]*mat.Dense),
		series:       make(map[string]Series),
		catalogue:    catalogue.New(),
		loader:       loader,
		state:        h.State,
		params:       h.Params,
		logger:       logger,
	}
	maps.Copy(d.units, h.Units)
	slices.Sort(d.declared)

	return &d, nil
}

func checkTime(t []epoch.JulianDate) error {
	if len(t) == 0 {
		return fmt.Errorf("%w: empty time axis", rebin.ErrInsufficientAxisData)
	}
	for i := 1; i < len(t); i++ {
		if !(t[i] > t[i-1]) {
			return fmt.Errorf("%w: time %d (%s) follows %s", ErrAxisNotIncreasing, i, t[i], t[i-1])
		}
	}
	return nil
}

func checkFrequency(f []float64) error {
	err := rebin.CheckAxis(f)
	if errors.Is(err, rebin.ErrInvalidAxis) {
		return fmt.Errorf("frequency: %w: %w", ErrAxisNotIncreasing, err)
	}
	if err != nil {
		return fmt.Errorf("frequency: %w", err)
	}
	if f[0] <= 0 {
		return fmt.Errorf("frequency: %w: first value %g is not positive", rebin.ErrInvalidAxis, f[0])
	}
	return nil
}

// Load reads the measurement data through the attached loader. It does
// nothing if the data has already been loaded.
func (d *DataSet) Load(ctx context.Context) error {
	if d.loaded {
		return nil
	}
	if d.loader == nil {
		return fmt.Errorf("%w: no loader attached", ErrNotLoaded)
	}

	content, err := d.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading %s: %w", d.source, err)
	}
	if err = d.setContent(content); err != nil {
		return fmt.Errorf("loading %s: %w", d.source, err)
	}

	d.loaded = true
	d.logger.Debug("dataset loaded",
		slog.String("source", d.source),
		slog.Group("shape",
			slog.Int("time", len(d.time)),
			slog.Int("frequency", len(d.frequency)),
		),
		slog.Any("measurements", d.MeasurementNames()),
		slog.Any("series", d.SeriesNames()),
	)
	return nil
}

func (d *DataSet) setContent(c *Content) error {
	if c == nil {
		c = &Content{}
	}

	t, f := len(d.time), len(d.frequency)
	measurements := make(map[string]*mat.Dense, len(c.Measurements))
	for name, m := range c.Measurements {
		if m.Data == nil {
			return fmt.Errorf("%w: measurement %q has no data", ErrShapeMismatch, name)
		}
		if r, cols := m.Data.Dims(); r != t || cols != f {
			return fmt.Errorf("%w: measurement %q is %dx%d, axes are %dx%d", ErrShapeMismatch, name, r, cols, t, f)
		}
		measurements[name] = m.Data
	}

	series := make(map[string]Series, len(c.Series))
	for name, s := range c.Series {
		if len(s.Time) != len(s.Values) {
			return fmt.Errorf("%w: series %q has %d times and %d values", ErrShapeMismatch, name, len(s.Time), len(s.Values))
		}
		series[name] = s
	}

	d.measurements = measurements
	d.series = series
	for name, m := range c.Measurements {
		if m.Units != "" {
			d.units[name] = m.Units
		}
	}
	for name, s := range c.Series {
		if s.Units != "" {
			d.units[name] = s.Units
		}
	}
	return nil
}

func (d *DataSet) Observer() string { return d.observer }

func (d *DataSet) Source() string { return d.source }

// Base is the path catalogue and cache files are named after.
func (d *DataSet) Base() string { return d.base }

// Config is nil for datasets read back from a cache.
func (d *DataSet) Config() *instrument.Config { return d.config }

func (d *DataSet) State() State { return d.state }

func (d *DataSet) Params() Params { return d.params }

func (d *DataSet) Loaded() bool { return d.loaded }

// Time returns a copy of the time axis.
func (d *DataSet) Time() []epoch.JulianDate { return slices.Clone(d.time) }

// Frequency returns a copy of the frequency axis.
func (d *DataSet) Frequency() []float64 { return slices.Clone(d.frequency) }

// TimeRange returns the first and last sample times.
func (d *DataSet) TimeRange() (epoch.JulianDate, epoch.JulianDate) {
	return d.time[0], d.time[len(d.time)-1]
}

// Units returns a copy of the unit table, keyed by measurement name plus
// UnitTime and UnitFrequency.
func (d *DataSet) Units() map[string]string {
	return maps.Clone(d.units)
}

func (d *DataSet) Unit(name string) string {
	return d.units[name]
}

// MeasurementNames returns the sorted names of the loaded measurements, or
// of the expected ones before Load.
func (d *DataSet) MeasurementNames() []string {
	if !d.loaded {
		return slices.Clone(d.declared)
	}
	return slices.Sorted(maps.Keys(d.measurements))
}

func (d *DataSet) SeriesNames() []string {
	return slices.Sorted(maps.Keys(d.series))
}

// Measurement returns the full matrix stored under name. The matrix is
// shared with the dataset and must not be modified.
func (d *DataSet) Measurement(name string) (*mat.Dense, error) {
	if !d.loaded {
		return nil, ErrNotLoaded
	}
	m, ok := d.measurements[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownMeasurement, name, d.MeasurementNames())
	}
	return m, nil
}
