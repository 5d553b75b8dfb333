package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/roman-kulish/spacelabel/internal/instrument"
	"github.com/roman-kulish/spacelabel/internal/preprocess"
	"github.com/roman-kulish/spacelabel/internal/presenter"
	"github.com/roman-kulish/spacelabel/internal/source"
	"github.com/roman-kulish/spacelabel/internal/spectrum"
	"github.com/roman-kulish/spacelabel/internal/storage"
)

// Run opens the dataset, preprocesses it and draws the requested windows
// as text on out.
func Run(ctx context.Context, config *Config, out io.Writer, logger *slog.Logger) error {
	ds, err := openDataset(ctx, &config.Settings, config.Path, logger)
	if err != nil {
		return err
	}

	// Dates are checked against the header before the expensive load.
	if err = ds.ValidateDates(config.Start, config.End); err != nil {
		return err
	}
	if err = ds.Load(ctx); err != nil {
		return err
	}

	cache := storage.NewSqliteCache(storage.CachePath(ds.Base()))
	opts := preprocess.Options{
		FrequencyResolution: config.FrequencyResolution,
		TimeMinimum:         config.TimeMinimum,
	}
	if _, err = preprocess.Run(ctx, ds, opts, cache, logger); err != nil {
		return fmt.Errorf("preprocessing: %w", err)
	}

	view := newTextView(out, config.Measurements)
	p := presenter.New(ds, view, logger)
	if _, err = p.RequestMeasurements(); err != nil {
		return err
	}
	if err = p.RequestWindow(config.Start, config.End); err != nil {
		return err
	}
	for i := 1; i < config.Windows; i++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = p.RequestNext(); err != nil {
			return err
		}
	}

	if config.Save {
		if err = p.RequestSave(); err != nil {
			return err
		}
	}
	return nil
}

// openDataset reads the instrument configurations and opens the dataset
// header. A missing configuration directory is not fatal: caches need no
// configuration and raw files then fail resolution with the file columns
// listed.
func openDataset(ctx context.Context, s *Settings, path string, logger *slog.Logger) (*spectrum.DataSet, error) {
	configs, err := instrument.LoadDir(s.ConfigDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		logger.Warn("configuration directory not found", slog.String("dir", s.ConfigDir))
	}

	opts := []source.Option{
		source.WithConfigs(configs),
		source.WithConfigName(s.Spacecraft),
		source.WithYear(s.Year),
		source.WithLogger(logger),
	}
	if s.NoCache {
		opts = append(opts, source.WithoutCache())
	}

	ds, err := source.Open(ctx, path, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return ds, nil
}
