package instrument

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/spacelabel/internal/epoch"
)

func layout(name, timeCol, freqCol string, values ...string) *Config {
	c := &Config{
		Name:         name,
		Time:         Axis{Value: timeCol},
		Frequency:    Axis{Value: freqCol},
		Measurements: map[string]Measurement{},
	}
	for _, v := range values {
		c.Measurements[v] = Measurement{Value: v}
	}
	return c
}

func TestResolve(t *testing.T) {
	x := layout("X", "A", "B")
	y := layout("Y", "A", "B", "C")
	z := layout("Z", "A", "D")

	t.Run("ambiguous", func(t *testing.T) {
		_, err := Resolve([]string{"A", "B", "C"}, "", map[string]*Config{"X": x, "Y": y})
		require.ErrorIs(t, err, ErrAmbiguousConfig)

		var re *ResolveError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, []string{"X", "Y"}, re.Candidates)
		assert.Contains(t, err.Error(), "X, Y")
	})

	t.Run("single match", func(t *testing.T) {
		got, err := Resolve([]string{"A", "B", "C"}, "", map[string]*Config{"X": x, "Z": z})
		require.NoError(t, err)
		assert.Same(t, x, got)
	})

	t.Run("no match lists columns", func(t *testing.T) {
		_, err := Resolve([]string{"Q", "P"}, "", map[string]*Config{"X": x, "Z": z})
		require.ErrorIs(t, err, ErrNoMatchingConfig)
		assert.Contains(t, err.Error(), "P, Q")
	})

	t.Run("requested", func(t *testing.T) {
		got, err := Resolve([]string{"A", "B", "C"}, "Y", map[string]*Config{"X": x, "Y": y})
		require.NoError(t, err)
		assert.Same(t, y, got)
	})

	t.Run("requested unknown", func(t *testing.T) {
		_, err := Resolve([]string{"A", "B"}, "W", map[string]*Config{"X": x, "Y": y})
		require.ErrorIs(t, err, ErrConfigNotFound)
		assert.Contains(t, err.Error(), "X, Y")
	})

	t.Run("requested does not describe file", func(t *testing.T) {
		_, err := Resolve([]string{"A", "B"}, "Y", map[string]*Config{"X": x, "Y": y})
		require.ErrorIs(t, err, ErrNoMatchingConfig)
		assert.Contains(t, err.Error(), "A, B, C")
	})
}

func TestRequiredColumns(t *testing.T) {
	c := layout("c", "Epoch", "Frequency", "Flux")
	c.Measurements["Flux"] = Measurement{Value: "Flux", Background: "Background"}
	c.Measurements["Polarization"] = Measurement{Value: "V", Optional: true}

	assert.Equal(t, []string{"Background", "Epoch", "Flux", "Frequency"}, c.RequiredColumns())
}

func TestValidate(t *testing.T) {
	good := layout("good", "t", "f", "s")
	good.Time.Format = epoch.FormatDayOfYear
	good.Time.Origin = 2004
	require.NoError(t, good.Validate())
	for _, format := range []string{FormatHDF5, FormatCDF, FormatSAV, FormatNetCDF, "NetCDF"} {
		good.Format = format
		assert.NoError(t, good.Validate(), format)
	}

	res := -1
	bad := &Config{
		Name:       "bad",
		Format:     "fits",
		Time:       Axis{Format: "stardate"},
		Preprocess: Preprocess{FrequencyResolution: &res},
	}
	err := bad.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	for _, want := range []string{"unknown format", "time column", "frequency column", "stardate", "at least one measurement", "frequency_resolution"} {
		assert.Contains(t, err.Error(), want)
	}

	noOrigin := layout("no-origin", "t", "f", "s")
	noOrigin.Time.Format = epoch.FormatDaysSinceYear
	assert.ErrorIs(t, noOrigin.Validate(), ErrInvalidConfig)
}

const jsonConfig = `{
  "observer": "Cassini",
  "time": "Epoch",
  "frequency": {"value": "Frequency", "units": "kHz"},
  "measurements": {
    "Flux Density": {"value": "Flux", "background": "Background", "conversion": 1e-3, "units": "W/m^2/Hz"}
  },
  "preprocess": {"frequency_resolution": 400}
}`

const yamlConfig = `
format: sav
observer: Cassini
time:
  value: t
  format: days_since_year
frequency: f
measurements:
  Flux Density: {value: s, units: W/m^2/Hz}
  Polarization: {value: v, optional: true}
series:
  Ephemeris:
    value: r
    time: rt
    time_format: jd
preprocess:
  time_minimum: 60
`

const tomlConfig = `
format = "hdf5"
observer = "Juno"
frequency_major = true

[time]
value = "Time"
units = "JD"
format = "jd"

[frequency]
value = "Frequency"
units = "kHz"

[measurements.Power]
value = "Power"
units = "dB"
`

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rpws.json"), []byte(jsonConfig), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mvp.yaml"), []byte(yamlConfig), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "waves.toml"), []byte(tomlConfig), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	configs, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"mvp", "rpws", "waves"}, Names(configs))

	rpws := configs["rpws"]
	assert.Equal(t, "rpws", rpws.Name)
	assert.Equal(t, Axis{Value: "Epoch"}, rpws.Time)
	assert.Equal(t, "kHz", rpws.Frequency.Units)
	require.NotNil(t, rpws.Measurements["Flux Density"].Conversion)
	assert.Equal(t, 1e-3, *rpws.Measurements["Flux Density"].Conversion)
	require.NotNil(t, rpws.Preprocess.FrequencyResolution)
	assert.Equal(t, 400, *rpws.Preprocess.FrequencyResolution)

	mvp := configs["mvp"]
	assert.Equal(t, FormatSAV, mvp.Format)
	assert.Equal(t, epoch.FormatDaysSinceYear, mvp.Time.Format)
	assert.Equal(t, "f", mvp.Frequency.Value)
	assert.True(t, mvp.Measurements["Polarization"].Optional)
	assert.Equal(t, []string{"f", "s", "t"}, mvp.RequiredColumns())
	assert.Equal(t, "rt", mvp.Series["Ephemeris"].Time)
	require.NotNil(t, mvp.Preprocess.TimeMinimum)
	assert.Equal(t, 60.0, *mvp.Preprocess.TimeMinimum)

	waves := configs["waves"]
	assert.True(t, waves.FrequencyMajor)
	assert.Equal(t, "dB", waves.Measurements["Power"].Units)

	assert.Len(t, ForFormat(configs, FormatHDF5), 2)
	assert.Len(t, ForFormat(configs, FormatCDF), 1)
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"time": `), 0o644))
	_, err := LoadFile(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	path = filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tiem: t\n"), 0o644))
	_, err = LoadFile(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	path = filepath.Join(dir, "config.ini")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), 0o644))
	_, err = LoadFile(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
