// Package preprocess resamples a loaded dataset onto coarser axes and
// persists the result, so later sessions can open the cache instead of the
// raw files.
package preprocess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/spacelabel/internal/rebin"
	"github.com/roman-kulish/spacelabel/internal/spectrum"
	"github.com/roman-kulish/spacelabel/internal/storage"
)

var ErrInvalidParameter = errors.New("invalid preprocessing parameter")

// Options are the requested resampling parameters. A nil field takes the
// default of the dataset configuration; an explicit 0 disables resampling
// on that axis.
type Options struct {
	FrequencyResolution *int     // Number of log-spaced frequency bins
	TimeMinimum         *float64 // Time step in seconds
}

// Persister stores a preprocessed dataset. *storage.SqliteCache implements
// it.
type Persister interface {
	Save(ctx context.Context, snap *storage.Snapshot) error
}

// Result reports what Run did.
type Result struct {
	Params            spectrum.Params // Parameters the dataset now carries
	FrequencyRebinned bool
	TimeResampled     bool
	Persisted         bool
}

// Changed reports whether any axis was resampled.
func (r Result) Changed() bool {
	return r.FrequencyRebinned || r.TimeResampled
}

// plan is the resolved, validated work of one Run.
type plan struct {
	resolution int
	step       float64
}

// Run resamples ds according to opts, marks it preprocessed and saves it
// through persister. ds is loaded first if needed.
//
// A dataset that is already preprocessed is left alone when opts is empty
// or zero; any other request fails with spectrum.ErrAlreadyPreprocessed.
func Run(ctx context.Context, ds *spectrum.DataSet, opts Options, persister Persister, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := opts.validate(); err != nil {
		return Result{}, err
	}

	if ds.State() == spectrum.StatePreprocessed {
		return alreadyPreprocessed(ds, opts, logger)
	}

	if err := ds.Load(ctx); err != nil {
		return Result{}, err
	}

	p := resolve(ds, opts)
	if p.step > 0 {
		// Checked before anything is rebinned so a failure leaves ds as it was.
		if n := len(ds.Time()); n < 2 {
			return Result{}, fmt.Errorf("%w: need at least 2 time samples, got %d", rebin.ErrInsufficientAxisData, n)
		}
		native := rebin.NativeStep(ds.Time())
		if p.step < native {
			logger.Warn("time minimum is below the native time step, not resampling time",
				slog.Float64("time_minimum", p.step),
				slog.Float64("native_step", native),
				slog.String("source", ds.Source()),
			)
			p.step = 0
		}
	}

	var res Result
	if p.resolution > 0 {
		if err := ds.RebinFrequency(p.resolution); err != nil {
			return Result{}, err
		}
		res.FrequencyRebinned = true
		res.Params.FrequencyResolution = p.resolution
	}
	if p.step > 0 {
		if err := ds.ResampleTime(p.step); err != nil {
			return Result{}, err
		}
		res.TimeResampled = true
		res.Params.TimeMinimum = p.step
	}

	if !res.Changed() {
		logger.Info("nothing to preprocess", slog.String("source", ds.Source()))
		return res, nil
	}

	ds.MarkPreprocessed(res.Params)

	if persister != nil {
		snap, err := ds.Snapshot()
		if err != nil {
			return res, err
		}
		if err = persister.Save(ctx, snap); err != nil {
			return res, fmt.Errorf("persisting preprocessed dataset: %w", err)
		}
		res.Persisted = true
	}

	t, f := len(ds.Time()), len(ds.Frequency())
	logger.Info("dataset preprocessed",
		slog.String("source", ds.Source()),
		slog.Group("params",
			slog.Int("frequency_resolution", res.Params.FrequencyResolution),
			slog.Float64("time_minimum", res.Params.TimeMinimum),
		),
		slog.Group("shape",
			slog.String("time", humanize.Comma(int64(t))),
			slog.String("frequency", humanize.Comma(int64(f))),
		),
		slog.Bool("persisted", res.Persisted),
	)
	return res, nil
}

func (o Options) validate() error {
	if r := o.FrequencyResolution; r != nil {
		if *r < 0 {
			return fmt.Errorf("%w: frequency resolution %d is negative", ErrInvalidParameter, *r)
		}
		if *r == 1 {
			return fmt.Errorf("%w: need at least 2 bins, got 1", rebin.ErrInvalidResolution)
		}
	}
	if m := o.TimeMinimum; m != nil {
		if math.IsNaN(*m) || math.IsInf(*m, 0) || *m < 0 {
			return fmt.Errorf("%w: time minimum %g", ErrInvalidParameter, *m)
		}
	}
	return nil
}

// resolve fills unset options from the configuration defaults.
func resolve(ds *spectrum.DataSet, opts Options) plan {
	var p plan
	if cfg := ds.Config(); cfg != nil {
		if r := cfg.Preprocess.FrequencyResolution; r != nil {
			p.resolution = *r
		}
		if m := cfg.Preprocess.TimeMinimum; m != nil {
			p.step = *m
		}
	}
	if opts.FrequencyResolution != nil {
		p.resolution = *opts.FrequencyResolution
	}
	if opts.TimeMinimum != nil {
		p.step = *opts.TimeMinimum
	}
	return p
}

// alreadyPreprocessed rejects any resampling request on a dataset that
// carries preprocessed axes, including one that repeats its parameters.
// Nil and zero options are no-ops.
func alreadyPreprocessed(ds *spectrum.DataSet, opts Options, logger *slog.Logger) (Result, error) {
	have := ds.Params()

	var requested []string
	if r := opts.FrequencyResolution; r != nil && *r != 0 {
		requested = append(requested, fmt.Sprintf("frequency resolution %d", *r))
	}
	if m := opts.TimeMinimum; m != nil && *m != 0 {
		requested = append(requested, fmt.Sprintf("time minimum %g", *m))
	}

	if len(requested) > 0 {
		return Result{}, fmt.Errorf("%w: %s was preprocessed with frequency resolution %d and time minimum %g, requested %s",
			spectrum.ErrAlreadyPreprocessed, ds.Source(),
			have.FrequencyResolution, have.TimeMinimum,
			strings.Join(requested, " and "))
	}

	logger.Debug("dataset already preprocessed", slog.String("source", ds.Source()))
	return Result{Params: have}, nil
}
