package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/roman-kulish/spacelabel/internal/epoch"
)

func testSnapshot() *Snapshot {
	res := 4
	tmin := 60.0

	times := []epoch.JulianDate{2453006.5, 2453006.6, 2453006.7}
	flux := mat.NewDense(3, 4, []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
	})
	power := mat.NewDense(3, 4, nil)
	power.Scale(2, flux)

	return &Snapshot{
		Observer:            "Cassini",
		Source:              "/data/2004001.sav",
		FrequencyResolution: &res,
		TimeMinimum:         &tmin,
		Time:                times,
		TimeUnit:            "jd",
		Frequency:           []float64{10, 20, 40, 80},
		FrequencyUnit:       "kHz",
		Measurements: []Measurement{
			{Name: "Power", Units: "W/m^2/Hz", Data: power},
			{Name: "Flux", Units: "V^2/m^2/Hz", Data: flux},
		},
		Series: []Series{
			{Name: "Lat", Units: "deg", Time: []epoch.JulianDate{2453006.5, 2453007.5}, Values: []float64{-3.5, 4.25}},
		},
	}
}

func TestSqliteCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := NewSqliteCache(filepath.Join(t.TempDir(), "2004001"+CacheSuffix))
	assert.False(t, cache.Exists())

	want := testSnapshot()
	require.NoError(t, cache.Save(ctx, want))
	assert.True(t, cache.Exists())

	got, err := cache.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, want.Observer, got.Observer)
	assert.Equal(t, want.Source, got.Source)
	require.NotNil(t, got.FrequencyResolution)
	assert.Equal(t, 4, *got.FrequencyResolution)
	require.NotNil(t, got.TimeMinimum)
	assert.Equal(t, 60.0, *got.TimeMinimum)
	assert.Equal(t, want.Time, got.Time)
	assert.Equal(t, want.Frequency, got.Frequency)
	assert.Equal(t, "kHz", got.FrequencyUnit)

	require.Len(t, got.Measurements, 2)
	assert.Equal(t, "Flux", got.Measurements[0].Name)
	assert.Equal(t, "Power", got.Measurements[1].Name)
	assert.Equal(t, "W/m^2/Hz", got.Measurements[1].Units)
	assert.True(t, mat.Equal(want.Measurements[1].Data, got.Measurements[1].Data))
	assert.True(t, mat.Equal(want.Measurements[0].Data, got.Measurements[0].Data))

	require.Len(t, got.Series, 1)
	assert.Equal(t, want.Series[0], got.Series[0])
}

func TestSqliteCache_UnresampledParameters(t *testing.T) {
	ctx := context.Background()
	cache := NewSqliteCache(filepath.Join(t.TempDir(), "x"+CacheSuffix))

	snap := testSnapshot()
	snap.FrequencyResolution = nil
	snap.TimeMinimum = nil
	require.NoError(t, cache.Save(ctx, snap))

	got, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got.FrequencyResolution)
	assert.Nil(t, got.TimeMinimum)
}

func TestSqliteCache_ReadOptions(t *testing.T) {
	ctx := context.Background()
	cache := NewSqliteCache(filepath.Join(t.TempDir(), "x"+CacheSuffix))
	require.NoError(t, cache.Save(ctx, testSnapshot()))

	t.Run("without data", func(t *testing.T) {
		got, err := cache.Load(ctx, WithoutData())
		require.NoError(t, err)

		assert.Len(t, got.Time, 3)
		assert.Len(t, got.Frequency, 4)
		require.Len(t, got.Measurements, 2)
		for _, m := range got.Measurements {
			assert.Nil(t, m.Data, m.Name)
		}
		require.Len(t, got.Series, 1)
		assert.Nil(t, got.Series[0].Values)
	})
}

func TestSqliteCache_Overwrite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cache := NewSqliteCache(filepath.Join(dir, "x"+CacheSuffix))

	require.NoError(t, cache.Save(ctx, testSnapshot()))

	snap := testSnapshot()
	snap.Observer = "Juno"
	snap.Measurements = snap.Measurements[:1]
	require.NoError(t, cache.Save(ctx, snap))

	got, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Juno", got.Observer)
	require.Len(t, got.Measurements, 1)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestSqliteCache_Errors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := NewSqliteCache(filepath.Join(dir, "missing"+CacheSuffix)).Load(ctx)
	assert.ErrorIs(t, err, ErrCacheNotFound)

	snap := testSnapshot()
	snap.Measurements[0].Data = mat.NewDense(2, 4, nil)
	err = NewSqliteCache(filepath.Join(dir, "bad"+CacheSuffix)).Save(ctx, snap)
	assert.ErrorIs(t, err, ErrInvalidSnapshot)

	snap = testSnapshot()
	snap.Frequency = nil
	err = NewSqliteCache(filepath.Join(dir, "bad"+CacheSuffix)).Save(ctx, snap)
	assert.ErrorIs(t, err, ErrInvalidSnapshot)

	snap = testSnapshot()
	snap.Series[0].Values = snap.Series[0].Values[:1]
	err = NewSqliteCache(filepath.Join(dir, "bad"+CacheSuffix)).Save(ctx, snap)
	assert.ErrorIs(t, err, ErrInvalidSnapshot)

	garbage := filepath.Join(dir, "garbage"+CacheSuffix)
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not sqlite, but long enough to look like a header"), 0o644))
	_, err = NewSqliteCache(garbage).Load(ctx)
	assert.Error(t, err)
}

func TestCachePath(t *testing.T) {
	p := CachePath("/data/cassini/2004001")
	assert.Equal(t, "/data/cassini/2004001.preprocessed.sqlite", p)
	assert.True(t, IsCachePath(p))
	assert.False(t, IsCachePath("/data/cassini/2004001.sav"))
}

func TestFloatCodec(t *testing.T) {
	values := []float64{0, -1.5, 3e-20, 1e300}
	for _, compress := range []bool{false, true} {
		data, codec, err := encodeFloats(values, compress)
		require.NoError(t, err)

		got, err := decodeFloats(data, codec, len(values))
		require.NoError(t, err)
		assert.Equal(t, values, got)

		_, err = decodeFloats(data, codec, len(values)+1)
		assert.Error(t, err)
	}

	_, err := decodeFloats(nil, "bogus", 0)
	assert.Error(t, err)
}
