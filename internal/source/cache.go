package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/spacelabel/internal/spectrum"
	"github.com/roman-kulish/spacelabel/internal/storage"
)

// cachedDataset reads a dataset back from its preprocessed cache. It
// implements spectrum.Loader.
type cachedDataset struct {
	cache *storage.SqliteCache
}

func openCache(ctx context.Context, path string, logger *slog.Logger) (*spectrum.DataSet, error) {
	cache := storage.NewSqliteCache(path)
	snap, err := cache.Load(ctx, storage.WithoutData())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSourceFile, err)
	}

	h := spectrum.Header{
		Observer:  snap.Observer,
		Source:    path,
		Base:      BasePath(path),
		Time:      snap.Time,
		Frequency: snap.Frequency,
		Units: map[string]string{
			spectrum.UnitTime:      snap.TimeUnit,
			spectrum.UnitFrequency: snap.FrequencyUnit,
		},
		State: spectrum.StatePreprocessed,
	}
	for _, m := range snap.Measurements {
		h.Measurements = append(h.Measurements, m.Name)
		h.Units[m.Name] = m.Units
	}
	for _, s := range snap.Series {
		h.Units[s.Name] = s.Units
	}
	if snap.FrequencyResolution != nil {
		h.Params.FrequencyResolution = *snap.FrequencyResolution
	}
	if snap.TimeMinimum != nil {
		h.Params.TimeMinimum = *snap.TimeMinimum
	}

	ds, err := spectrum.New(h, &cachedDataset{cache: cache}, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptSourceFile, path, err)
	}

	attrs := []any{
		slog.String("path", path),
		slog.String("raw", snap.Source),
		slog.String("observer", snap.Observer),
		slog.Group("params",
			slog.Int("frequency_resolution", h.Params.FrequencyResolution),
			slog.Float64("time_minimum", h.Params.TimeMinimum),
		),
	}
	if info, err := os.Stat(path); err == nil {
		attrs = append(attrs, slog.String("size", humanize.Bytes(uint64(info.Size()))))
	}
	logger.Info("preprocessed dataset opened", attrs...)
	return ds, nil
}

func (c *cachedDataset) Load(ctx context.Context) (*spectrum.Content, error) {
	snap, err := c.cache.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSourceFile, err)
	}

	content := spectrum.Content{
		Measurements: make(map[string]spectrum.Measurement, len(snap.Measurements)),
		Series:       make(map[string]spectrum.Series, len(snap.Series)),
	}
	for _, m := range snap.Measurements {
		content.Measurements[m.Name] = spectrum.Measurement{Units: m.Units, Data: m.Data}
	}
	for _, s := range snap.Series {
		content.Series[s.Name] = spectrum.Series{Units: s.Units, Time: s.Time, Values: s.Values}
	}
	return &content, nil
}
