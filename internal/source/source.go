// Package source opens spectrogram files of the supported container formats
// as spectrum datasets.
//
// Opening is split in two phases. Open resolves the instrument
// configuration, reads the axes and the feature catalogue and returns an
// unloaded dataset. DataSet.Load then reads the measurement data. A dataset
// that has been preprocessed before is opened from its cache instead of the
// raw files.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/roman-kulish/spacelabel/internal/instrument"
	"github.com/roman-kulish/spacelabel/internal/spectrum"
	"github.com/roman-kulish/spacelabel/internal/storage"
)

var (
	ErrCorruptSourceFile = errors.New("corrupt source file")
	ErrMissingColumn     = fmt.Errorf("%w: missing column", ErrCorruptSourceFile)
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoTimeOrigin      = errors.New("no time origin year")
)

// Kind is the storage variant a dataset is read from.
type Kind int

const (
	KindHDF5 Kind = iota + 1
	KindCDF
	KindSAV
	KindNetCDF
	KindPreprocessed
)

func (k Kind) String() string {
	switch k {
	case KindHDF5:
		return "hdf5"
	case KindCDF:
		return "cdf"
	case KindSAV:
		return "sav"
	case KindNetCDF:
		return "netcdf"
	case KindPreprocessed:
		return "preprocessed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// format is the instrument config format matching the kind.
func (k Kind) format() string {
	switch k {
	case KindHDF5:
		return instrument.FormatHDF5
	case KindCDF:
		return instrument.FormatCDF
	case KindSAV:
		return instrument.FormatSAV
	case KindNetCDF:
		return instrument.FormatNetCDF
	}
	return ""
}

var suffixes = map[string]Kind{
	".hdf5": KindHDF5,
	".h5":   KindHDF5,
	".cdf":  KindCDF,
	".sav":  KindSAV,
	".nc":   KindNetCDF,
}

// KindOf returns the kind of the file at path, judged by its name.
func KindOf(path string) (Kind, error) {
	if storage.IsCachePath(path) {
		return KindPreprocessed, nil
	}
	if k, ok := suffixes[strings.ToLower(filepath.Ext(path))]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
}

// BasePath is the path that catalogue and cache files of the dataset in
// path are named after. Multi-file CDF datasets drop the date and version
// parts of the segment name, so rpws_20040101_v01.cdf becomes rpws.
func BasePath(path string) string {
	if storage.IsCachePath(path) {
		return strings.TrimSuffix(path, storage.CacheSuffix)
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	if k, _ := KindOf(path); k == KindCDF {
		if prefix, ok := segmentPrefix(filepath.Base(base)); ok {
			return filepath.Join(filepath.Dir(base), prefix)
		}
	}
	return base
}

type opener struct {
	configs     map[string]*instrument.Config
	configName  string
	year        int
	ignoreCache bool
	logger      *slog.Logger
}

// Option configures Open.
type Option func(*opener)

// WithConfigs sets the instrument configurations to resolve against.
func WithConfigs(configs map[string]*instrument.Config) Option {
	return func(o *opener) {
		o.configs = configs
	}
}

// WithConfigName forces the named configuration instead of picking the one
// that matches the file columns.
func WithConfigName(name string) Option {
	return func(o *opener) {
		o.configName = name
	}
}

// WithYear sets the origin year of relative time encodings, overriding the
// configuration and the year in the file name.
func WithYear(year int) Option {
	return func(o *opener) {
		o.year = year
	}
}

// WithoutCache reads the raw files even if a preprocessed cache exists.
func WithoutCache() Option {
	return func(o *opener) {
		o.ignoreCache = true
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *opener) {
		o.logger = logger
	}
}

// Open reads the header of the dataset in path and returns it unloaded,
// with its feature catalogue attached.
func Open(ctx context.Context, path string, opts ...Option) (*spectrum.DataSet, error) {
	o := opener{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	kind, err := KindOf(path)
	if err != nil {
		return nil, err
	}

	var ds *spectrum.DataSet
	cachePath := storage.CachePath(BasePath(path))

	switch {
	case kind == KindPreprocessed:
		ds, err = openCache(ctx, path, o.logger)

	case !o.ignoreCache && storage.NewSqliteCache(cachePath).Exists():
		o.logger.Info("using preprocessed cache", "source", path, "cache", cachePath)
		ds, err = openCache(ctx, cachePath, o.logger)

	default:
		ds, err = openRaw(ctx, kind, path, &o)
	}
	if err != nil {
		return nil, err
	}

	if err = ds.ReloadCatalogue(); err != nil {
		return nil, err
	}
	return ds, nil
}
