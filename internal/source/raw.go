package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/spacelabel/internal/epoch"
	"github.com/roman-kulish/spacelabel/internal/instrument"
	"github.com/roman-kulish/spacelabel/internal/spectrum"
)

const defaultTimeUnit = "jd"

var yearPattern = regexp.MustCompile(`\d{4}`)

// rawDataset reads a dataset from one or more raw files sharing one
// configuration. It implements spectrum.Loader.
type rawDataset struct {
	kind   Kind
	paths  []string // Segment files in name order
	config *instrument.Config
	origin int

	times     [][]epoch.JulianDate // Primary time axis of every segment
	frequency []float64

	logger *slog.Logger
}

func openRaw(ctx context.Context, kind Kind, path string, o *opener) (*spectrum.DataSet, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSourceFile, err)
	}

	paths := []string{path}
	if kind == KindCDF {
		var err error
		if paths, err = segmentPaths(path); err != nil {
			return nil, err
		}
	}

	r := rawDataset{kind: kind, paths: paths, logger: o.logger}
	h, err := r.readHeader(ctx, o)
	if err != nil {
		return nil, err
	}

	ds, err := spectrum.New(*h, &r, o.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptSourceFile, path, err)
	}

	o.logger.Info("dataset opened",
		slog.String("path", path),
		slog.String("kind", kind.String()),
		slog.String("config", r.config.Name),
		slog.String("observer", h.Observer),
		slog.Int("segments", len(paths)),
		slog.Group("shape",
			slog.String("time", humanize.Comma(int64(len(h.Time)))),
			slog.String("frequency", humanize.Comma(int64(len(h.Frequency)))),
		),
	)
	return ds, nil
}

func (r *rawDataset) open(path string) (container, error) {
	var (
		c   container
		err error
	)
	var skipped []string
	switch r.kind {
	case KindSAV:
		var sav *savContainer
		if sav, err = openSAV(path); err == nil {
			c, skipped = sav, sav.file.Skipped
		}
	case KindCDF:
		var f *cdfContainer
		if f, err = openCDF(path); err == nil {
			c, skipped = f, f.file.Skipped
		}
	default:
		c, err = openNetCDF(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptSourceFile, path, err)
	}
	if len(skipped) > 0 {
		r.logger.Warn("variables could not be read and were skipped",
			slog.String("path", path),
			slog.Any("variables", skipped),
		)
	}
	return c, nil
}

// readHeader resolves the configuration against the first segment and
// reads the axes of every segment.
func (r *rawDataset) readHeader(ctx context.Context, o *opener) (*spectrum.Header, error) {
	first, err := r.open(r.paths[0])
	if err != nil {
		return nil, err
	}
	defer first.Close()

	cfg, err := instrument.Resolve(first.Columns(), o.configName, instrument.ForFormat(o.configs, r.kind.format()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.paths[0], err)
	}
	r.config = cfg

	if cfg.Time.Format.NeedsOrigin() {
		if r.origin, err = timeOrigin(r.paths[0], o.year, cfg.Time.Origin); err != nil {
			return nil, err
		}
	}

	freq, err := first.Column(cfg.Frequency.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMissingColumn, first.Path(), err)
	}
	if r.frequency, err = freq.floats(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptSourceFile, first.Path(), err)
	}

	h := spectrum.Header{
		Observer:     cfg.Observer,
		Source:       r.paths[0],
		Base:         BasePath(r.paths[0]),
		Frequency:    r.frequency,
		Units:        make(map[string]string),
		Measurements: cfg.MeasurementNames(),
		Config:       cfg,
		State:        spectrum.StateRaw,
	}
	if cfg.ObserverAttribute != "" {
		if v, ok := first.Attribute(cfg.ObserverAttribute); ok && v != "" {
			h.Observer = v
		}
	}

	h.Units[spectrum.UnitTime] = firstNonEmpty(cfg.Time.Units, defaultTimeUnit)
	h.Units[spectrum.UnitFrequency] = firstNonEmpty(cfg.Frequency.Units, freq.units)
	for name, m := range cfg.Measurements {
		if m.Units != "" {
			h.Units[name] = m.Units
		}
	}

	r.times = make([][]epoch.JulianDate, len(r.paths))
	for i, path := range r.paths {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		if r.times[i], err = r.readTime(path, first); err != nil {
			return nil, err
		}
		h.Time = append(h.Time, r.times[i]...)
	}
	return &h, nil
}

// readTime reads the primary time axis of the segment at path, reusing
// first when it is the same file.
func (r *rawDataset) readTime(path string, first container) ([]epoch.JulianDate, error) {
	c := first
	if path != first.Path() {
		var err error
		if c, err = r.open(path); err != nil {
			return nil, err
		}
		defer c.Close()
	}

	col, err := c.Column(r.config.Time.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMissingColumn, path, err)
	}
	t, err := col.times(r.config.Time.Format, r.origin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptSourceFile, path, err)
	}
	return t, nil
}

// checkColumns verifies the axis columns are still present. Files may have
// changed since the header was read.
func (r *rawDataset) checkColumns(c container) error {
	have := make(map[string]struct{})
	for _, name := range c.Columns() {
		have[name] = struct{}{}
	}
	for _, name := range []string{r.config.Time.Value, r.config.Frequency.Value} {
		if _, ok := have[name]; !ok {
			return fmt.Errorf("%w: %s has no column %q; columns are: %s",
				ErrMissingColumn, c.Path(), name, strings.Join(c.Columns(), ", "))
		}
	}
	return nil
}

// Load reads the measurements and series of every segment.
func (r *rawDataset) Load(ctx context.Context) (*spectrum.Content, error) {
	cfg := r.config
	f := len(r.frequency)

	parts := make(map[string][]*column, len(cfg.Measurements))
	skipped := make(map[string]bool)
	backgrounds := make(map[string]*column)
	series := make(map[string][]seriesPart, len(cfg.Series))

	for i, path := range r.paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c, err := r.open(path)
		if err != nil {
			return nil, err
		}
		err = r.loadSegment(c, i, parts, skipped, series)
		if err == nil && i == len(r.paths)-1 {
			r.readBackgrounds(c, skipped, backgrounds)
		}
		c.Close()
		if err != nil {
			return nil, err
		}
	}

	content := spectrum.Content{
		Measurements: make(map[string]spectrum.Measurement),
		Series:       make(map[string]spectrum.Series),
	}

	total := 0
	for _, t := range r.times {
		total += len(t)
	}

	for _, name := range cfg.MeasurementNames() {
		if skipped[name] {
			continue
		}
		spec := cfg.Measurements[name]

		m, err := assemble(parts[name], r.times, f, cfg.FrequencyMajor)
		if err != nil {
			return nil, fmt.Errorf("%w: measurement %s: %w", ErrCorruptSourceFile, name, err)
		}
		if bg, ok := backgrounds[name]; ok {
			if err = subtractBackground(m, bg, cfg.FrequencyMajor); err != nil {
				return nil, fmt.Errorf("%w: measurement %s: %w", ErrCorruptSourceFile, name, err)
			}
		}
		if spec.Conversion != nil {
			m.Scale(*spec.Conversion, m)
		}

		content.Measurements[name] = spectrum.Measurement{
			Units: firstNonEmpty(spec.Units, parts[name][0].units),
			Data:  m,
		}
	}

	for _, name := range cfg.SeriesNames() {
		s, ok := r.assembleSeries(name, series[name])
		if ok {
			content.Series[name] = s
		}
	}

	r.logger.Info("dataset read",
		slog.String("source", r.paths[0]),
		slog.Int("measurements", len(content.Measurements)),
		slog.Int("series", len(content.Series)),
		slog.String("cells", humanize.Comma(int64(total*f*len(content.Measurements)))),
	)
	return &content, nil
}

func (r *rawDataset) loadSegment(c container, i int, parts map[string][]*column, skipped map[string]bool, series map[string][]seriesPart) error {
	if err := r.checkColumns(c); err != nil {
		return err
	}

	freq, err := c.Column(r.config.Frequency.Value)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorruptSourceFile, c.Path(), err)
	}
	if freq.len() != len(r.frequency) {
		return fmt.Errorf("%w: %s has %d frequencies, expected %d",
			ErrCorruptSourceFile, c.Path(), freq.len(), len(r.frequency))
	}

	have := make(map[string]struct{})
	for _, name := range c.Columns() {
		have[name] = struct{}{}
	}

	for _, name := range r.config.MeasurementNames() {
		if skipped[name] {
			continue
		}
		spec := r.config.Measurements[name]
		if _, ok := have[spec.Value]; !ok {
			r.logger.Warn("measurement column missing, skipping",
				slog.String("measurement", name),
				slog.String("column", spec.Value),
				slog.String("path", c.Path()),
			)
			skipped[name] = true
			delete(parts, name)
			continue
		}

		col, err := c.Column(spec.Value)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCorruptSourceFile, c.Path(), err)
		}
		parts[name] = append(parts[name], col)
	}

	for _, name := range r.config.SeriesNames() {
		series[name] = append(series[name], r.readSeries(c, i, name, have))
	}
	return nil
}

// readBackgrounds reads background columns from the last segment, which
// holds the background for the whole dataset.
func (r *rawDataset) readBackgrounds(c container, skipped map[string]bool, out map[string]*column) {
	for name, spec := range r.config.Measurements {
		if spec.Background == "" || skipped[name] {
			continue
		}
		col, err := c.Column(spec.Background)
		if err != nil {
			r.logger.Warn("background column unreadable, not subtracting",
				slog.String("measurement", name),
				slog.String("column", spec.Background),
				slog.Any("error", err),
			)
			continue
		}
		out[name] = col
	}
}

func timeOrigin(path string, override, configured int) (int, error) {
	if override != 0 {
		return override, nil
	}
	if configured != 0 {
		return configured, nil
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if m := yearPattern.FindString(stem); m != "" {
		year, _ := strconv.Atoi(m)
		return year, nil
	}
	return 0, fmt.Errorf("%w: %s has no year in its name; set one explicitly, e.g. SKR_2004_11_12.sav",
		ErrNoTimeOrigin, filepath.Base(path))
}

// segmentPrefix returns the dataset prefix of a segment file stem named
// prefix_date_version.
func segmentPrefix(stem string) (string, bool) {
	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return "", false
	}
	return strings.Join(parts[:len(parts)-2], "_"), true
}

// segmentPaths lists, in name order, the files in the directory of path
// that belong to the same multi-file dataset. Directory order is not
// stable, so the result is sorted.
func segmentPaths(path string) ([]string, error) {
	ext := filepath.Ext(path)
	prefix, ok := segmentPrefix(strings.TrimSuffix(filepath.Base(path), ext))
	if !ok {
		return []string{path}, nil
	}

	dir := filepath.Dir(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing segments: %w", err)
	}

	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ext) {
			continue
		}
		if p, ok := segmentPrefix(strings.TrimSuffix(name, filepath.Ext(name))); ok && p == prefix {
			out = append(out, filepath.Join(dir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
