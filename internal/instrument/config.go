// Package instrument describes how an instrument lays out its data inside a
// file and selects the description that matches a given file.
package instrument

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/spacelabel/internal/epoch"
)

const (
	FormatHDF5   = "hdf5"
	FormatCDF    = "cdf"
	FormatSAV    = "sav"
	FormatNetCDF = "netcdf"
)

var validFormats = map[string]struct{}{
	"":           {},
	FormatHDF5:   {},
	FormatCDF:    {},
	FormatSAV:    {},
	FormatNetCDF: {},
}

// Config describes one instrument layout: which columns hold the axes and
// measurements, how time is encoded and how the data is preprocessed by
// default. Configs are validated once, when loaded.
type Config struct {
	// Name is the configuration identifier, taken from the file name.
	Name string `json:"-" yaml:"-" toml:"-"`

	// Format restricts the config to one container format. Empty matches any.
	Format string `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty"`

	Observer string `json:"observer,omitempty" yaml:"observer,omitempty" toml:"observer,omitempty"`

	// ObserverAttribute names a global file attribute holding the observer.
	// It takes precedence over Observer when the attribute is present.
	ObserverAttribute string `json:"observer_attribute,omitempty" yaml:"observer_attribute,omitempty" toml:"observer_attribute,omitempty"`

	Time      Axis `json:"time" yaml:"time" toml:"time"`
	Frequency Axis `json:"frequency" yaml:"frequency" toml:"frequency"`

	// FrequencyMajor marks matrices stored frequency x time. Layout is
	// otherwise inferred from the shape, so this only matters for square
	// matrices.
	FrequencyMajor bool `json:"frequency_major,omitempty" yaml:"frequency_major,omitempty" toml:"frequency_major,omitempty"`

	Measurements map[string]Measurement `json:"measurements" yaml:"measurements" toml:"measurements"`
	Series       map[string]Series      `json:"series,omitempty" yaml:"series,omitempty" toml:"series,omitempty"`

	// SegmentGapTolerance is the number of samples a segment of a
	// multi-file dataset may miss before its series are treated as a gap.
	SegmentGapTolerance int `json:"segment_gap_tolerance,omitempty" yaml:"segment_gap_tolerance,omitempty" toml:"segment_gap_tolerance,omitempty"`

	Preprocess Preprocess `json:"preprocess,omitempty" yaml:"preprocess,omitempty" toml:"preprocess,omitempty"`
}

// Axis locates a time or frequency axis.
type Axis struct {
	Value  string       `json:"value" yaml:"value" toml:"value"`
	Units  string       `json:"units,omitempty" yaml:"units,omitempty" toml:"units,omitempty"`
	Format epoch.Format `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty"`

	// Origin is the reference year of relative time formats.
	Origin int `json:"origin,omitempty" yaml:"origin,omitempty" toml:"origin,omitempty"`
}

// UnmarshalJSON accepts either an object or a bare column name.
func (a *Axis) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*a = Axis{Value: name}
		return nil
	}

	type plain Axis
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Axis(p)
	return nil
}

// UnmarshalYAML accepts either a mapping or a bare column name.
func (a *Axis) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*a = Axis{Value: value.Value}
		return nil
	}

	type plain Axis
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*a = Axis(p)
	return nil
}

// Measurement locates a 2-D quantity sampled on the time x frequency grid.
type Measurement struct {
	Value string `json:"value" yaml:"value" toml:"value"`

	// Background names a column subtracted from Value before conversion.
	Background string `json:"background,omitempty" yaml:"background,omitempty" toml:"background,omitempty"`

	// Conversion multiplies the (background subtracted) values.
	Conversion *float64 `json:"conversion,omitempty" yaml:"conversion,omitempty" toml:"conversion,omitempty"`

	Units string `json:"units,omitempty" yaml:"units,omitempty" toml:"units,omitempty"`

	// Optional measurements do not take part in config resolution.
	Optional bool `json:"optional,omitempty" yaml:"optional,omitempty" toml:"optional,omitempty"`
}

// Series locates a 1-D quantity with its own time axis.
type Series struct {
	Value      string       `json:"value" yaml:"value" toml:"value"`
	Time       string       `json:"time" yaml:"time" toml:"time"`
	TimeFormat epoch.Format `json:"time_format,omitempty" yaml:"time_format,omitempty" toml:"time_format,omitempty"`
	Units      string       `json:"units,omitempty" yaml:"units,omitempty" toml:"units,omitempty"`
	Conversion *float64     `json:"conversion,omitempty" yaml:"conversion,omitempty" toml:"conversion,omitempty"`
}

// Preprocess holds resampling defaults. Nil means no default.
type Preprocess struct {
	FrequencyResolution *int     `json:"frequency_resolution,omitempty" yaml:"frequency_resolution,omitempty" toml:"frequency_resolution,omitempty"`
	TimeMinimum         *float64 `json:"time_minimum,omitempty" yaml:"time_minimum,omitempty" toml:"time_minimum,omitempty"`
}

// RequiredColumns returns the sorted set of columns a file must contain to
// be described by c: both axes and the value and background columns of
// every non-optional measurement.
func (c *Config) RequiredColumns() []string {
	set := map[string]struct{}{
		c.Time.Value:      {},
		c.Frequency.Value: {},
	}
	for _, m := range c.Measurements {
		if m.Optional {
			continue
		}
		set[m.Value] = struct{}{}
		if m.Background != "" {
			set[m.Background] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// MeasurementNames returns the configured measurement names in sorted order.
func (c *Config) MeasurementNames() []string {
	names := make([]string, 0, len(c.Measurements))
	for name := range c.Measurements {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SeriesNames returns the configured series names in sorted order.
func (c *Config) SeriesNames() []string {
	names := make([]string, 0, len(c.Series))
	for name := range c.Series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks c for internal consistency.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := validFormats[strings.ToLower(c.Format)]; !ok {
		errs = append(errs, fmt.Errorf("unknown format %q", c.Format))
	}
	if c.Time.Value == "" {
		errs = append(errs, errors.New("time column is required"))
	}
	if c.Frequency.Value == "" {
		errs = append(errs, errors.New("frequency column is required"))
	}

	format, err := epoch.ParseFormat(string(c.Time.Format))
	if err != nil {
		errs = append(errs, fmt.Errorf("time: %w", err))
	} else if format.NeedsOrigin() && c.Time.Origin <= 0 && c.Format != FormatSAV {
		errs = append(errs, fmt.Errorf("time: format %s requires an origin year", format))
	}

	if len(c.Measurements) == 0 {
		errs = append(errs, errors.New("at least one measurement is required"))
	}
	for _, name := range c.MeasurementNames() {
		m := c.Measurements[name]
		if name == "" {
			errs = append(errs, errors.New("measurement with empty name"))
		}
		if m.Value == "" {
			errs = append(errs, fmt.Errorf("measurement %q: value column is required", name))
		}
	}
	for _, name := range c.SeriesNames() {
		s := c.Series[name]
		if s.Value == "" || s.Time == "" {
			errs = append(errs, fmt.Errorf("series %q: value and time columns are required", name))
		}
		if _, err := epoch.ParseFormat(string(s.TimeFormat)); err != nil {
			errs = append(errs, fmt.Errorf("series %q: %w", name, err))
		}
	}

	if r := c.Preprocess.FrequencyResolution; r != nil && *r < 0 {
		errs = append(errs, fmt.Errorf("preprocess: frequency_resolution must not be negative: %d", *r))
	}
	if m := c.Preprocess.TimeMinimum; m != nil && *m < 0 {
		errs = append(errs, fmt.Errorf("preprocess: time_minimum must not be negative: %g", *m))
	}
	if c.SegmentGapTolerance < 0 {
		errs = append(errs, fmt.Errorf("segment_gap_tolerance must not be negative: %d", c.SegmentGapTolerance))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %w", ErrInvalidConfig, c.Name, errors.Join(errs...))
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
