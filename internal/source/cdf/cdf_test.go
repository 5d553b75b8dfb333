package cdf_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/spacelabel/internal/source/cdf"
	"github.com/roman-kulish/spacelabel/internal/source/cdf/cdftest"
)

func sample(bigEndian bool) *cdftest.Encoder {
	e := cdftest.NewEncoder(bigEndian)
	e.TT2000("Epoch", []int64{10, 20, 30})
	e.Constant("Frequency", []float64{3.9548, 10, 349.6542})
	e.Double("Flux", []float64{1, 2, 3, 4, 5, 6}, 2)
	e.Double("Spectra", []float64{
		1, 2, 3,
		4, 5, 6,

		7, 8, 9,
		10, 11, 12,
	}, 2, 3)
	e.Float("Power", []float32{0.5, 1.5, 2.5})
	e.Int2("Counts", []int16{-2, 0, 7})
	e.Chars("Labels", 8, []string{"LL", "RR"})
	e.RDouble("Radius", []float64{1, 2, 3})

	e.VarAttr("Frequency", "UNITS", "kHz")
	e.VarAttr("Radius", "UNITS", "R_S")
	e.VarAttr("Flux", "FIELDNAM", "Flux density")
	e.GlobalAttr("Mission_group", "Cassini-Huygens")
	e.GlobalAttr("TEXT", "first line", "second line")
	return e
}

func TestDecode(t *testing.T) {
	for _, bigEndian := range []bool{false, true} {
		f, err := cdf.Decode(sample(bigEndian).Encode())
		require.NoError(t, err)

		assert.True(t, f.RowMajor)
		assert.Empty(t, f.Skipped)
		assert.Equal(t, []string{"Counts", "Epoch", "Flux", "Frequency", "Labels", "Power", "Radius", "Spectra"}, f.Names())

		v, ok := f.Get("Epoch")
		require.True(t, ok)
		assert.Equal(t, cdf.TypeTT2000, v.Type)
		assert.True(t, v.RecordVarying)
		assert.Equal(t, []int{3}, v.Dims)
		assert.Equal(t, []int64{10, 20, 30}, v.Ints)
		assert.Equal(t, 3, v.Len())

		_, ok = f.Get("epoch")
		assert.False(t, ok, "names are case sensitive")

		v, _ = f.Get("Frequency")
		assert.False(t, v.RecordVarying)
		assert.Equal(t, []int{3}, v.Dims)
		assert.Equal(t, []float64{3.9548, 10, 349.6542}, v.Numbers)
		units, ok := v.Attribute("UNITS")
		assert.True(t, ok)
		assert.Equal(t, "kHz", units)

		v, _ = f.Get("Flux")
		assert.Equal(t, []int{3, 2}, v.Dims)
		assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, v.Numbers)
		assert.Equal(t, "Flux density", v.Attributes["FIELDNAM"].Text)
		_, ok = v.Attribute("UNITS")
		assert.False(t, ok)

		v, _ = f.Get("Spectra")
		assert.Equal(t, []int{2, 2, 3}, v.Dims)
		assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, v.Numbers)

		v, _ = f.Get("Power")
		assert.Equal(t, cdf.TypeFloat, v.Type)
		assert.InDeltaSlice(t, []float64{0.5, 1.5, 2.5}, v.Numbers, 1e-6)

		v, _ = f.Get("Counts")
		assert.Equal(t, []float64{-2, 0, 7}, v.Numbers)

		v, _ = f.Get("Labels")
		assert.Equal(t, []int{2}, v.Dims)
		assert.Equal(t, []string{"LL", "RR"}, v.Strings)

		v, _ = f.Get("Radius")
		assert.Equal(t, []float64{1, 2, 3}, v.Numbers)
		units, _ = v.Attribute("UNITS")
		assert.Equal(t, "R_S", units)

		mission, ok := f.Attribute("Mission_group")
		assert.True(t, ok)
		assert.Equal(t, "Cassini-Huygens", mission)
		text, _ := f.Attribute("TEXT")
		assert.Equal(t, "first line second line", text)
		_, ok = f.Attribute("Observatory")
		assert.False(t, ok)
	}
}

func TestDecode_ColumnMajor(t *testing.T) {
	e := sample(false)
	e.ColumnMajor()

	f, err := cdf.Decode(e.Encode())
	require.NoError(t, err)
	assert.False(t, f.RowMajor)

	v, _ := f.Get("Spectra")
	assert.Equal(t, []int{2, 2, 3}, v.Dims)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, v.Numbers)

	v, _ = f.Get("Flux")
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, v.Numbers, "one-dimensional records are not reordered")
}

func TestDecode_MissingRecords(t *testing.T) {
	e := cdftest.NewEncoder(false)
	e.SplitRecords(2)
	e.TT2000("Epoch", []int64{1, 2, 3, 4, 5})
	e.Double("Flux", []float64{10, 20, 30, 40, 50})
	e.DropRecords("Epoch", 4)
	e.DropRecords("Flux", 2)

	f, err := cdf.Decode(e.Encode())
	require.NoError(t, err)

	v, _ := f.Get("Epoch")
	assert.Equal(t, []int64{1, 2, 3, 4, cdf.FillTT2000}, v.Ints)

	v, _ = f.Get("Flux")
	require.Len(t, v.Numbers, 5)
	assert.Equal(t, []float64{10, 20}, v.Numbers[:2])
	assert.True(t, math.IsNaN(v.Numbers[2]))
	assert.Equal(t, []float64{40, 50}, v.Numbers[3:])
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rpws_20040101_v01.cdf")
	sample(false).WriteFile(t, path)

	f, err := cdf.Open(path)
	require.NoError(t, err)
	assert.Len(t, f.Variables, 8)

	_, err = cdf.Open(filepath.Join(t.TempDir(), "missing.cdf"))
	assert.Error(t, err)
}

func TestRead(t *testing.T) {
	f, err := cdf.Read(bytes.NewReader(sample(true).Encode()))
	require.NoError(t, err)
	assert.Contains(t, f.Variables, "Flux")
}

func TestDecode_Invalid(t *testing.T) {
	_, err := cdf.Decode([]byte("CDF"))
	assert.ErrorIs(t, err, cdf.ErrNotCDF)

	_, err = cdf.Decode([]byte("{\"json\": true}"))
	assert.ErrorIs(t, err, cdf.ErrNotCDF)

	_, err = cdf.Decode([]byte{0xCD, 0xF2, 0x60, 0x02, 0, 0, 0xFF, 0xFF})
	assert.ErrorIs(t, err, cdf.ErrUnsupported, "version 2.6")

	_, err = cdf.Decode([]byte{0xCD, 0xF3, 0x00, 0x01, 0xCC, 0xCC, 0x00, 0x01})
	assert.ErrorIs(t, err, cdf.ErrUnsupported, "compressed")

	data := sample(false).Encode()
	_, err = cdf.Decode(data[:len(data)-20])
	assert.ErrorIs(t, err, cdf.ErrMalformed, "truncated file")

	_, err = cdf.Decode(data[:40])
	assert.ErrorIs(t, err, cdf.ErrMalformed)

	bad := bytes.Clone(data)
	binary.BigEndian.PutUint64(bad[20:], 1<<40) // GDR offset
	_, err = cdf.Decode(bad)
	assert.ErrorIs(t, err, cdf.ErrMalformed)
}

// Offsets into a file holding only the variable written by single.
const (
	vdrAt = 8 + 312 + 84 // magic, CDR, GDR
	vxrAt = vdrAt + 352  // zVDR with one dimension

	vdrMaxRec   = vdrAt + 24
	vdrFlags    = vdrAt + 44
	vdrNumElems = vdrAt + 64
	vdrNumDims  = vdrAt + 340
	vdrDimSize  = vdrAt + 344

	vxrNext = vxrAt + 12
	vxrLast = vxrAt + 32
)

// single encodes one record-varying double variable of two records of
// three values.
func single() []byte {
	e := cdftest.NewEncoder(false)
	e.Double("Flux", []float64{1, 2, 3, 4, 5, 6}, 3)
	return e.Encode()
}

func TestDecode_BadVariableDescriptor(t *testing.T) {
	f, err := cdf.Decode(single())
	require.NoError(t, err)
	v, ok := f.Get("Flux")
	require.True(t, ok)
	assert.Equal(t, []int{2, 3}, v.Dims)

	tests := []struct {
		name  string
		at    int
		value int64
		wide  bool
	}{
		{name: "negative max record", at: vdrMaxRec, value: -5},
		{name: "max record beyond file", at: vdrMaxRec, value: 1 << 30},
		{name: "negative dimension", at: vdrDimSize, value: -3},
		{name: "dimension beyond file", at: vdrDimSize, value: 1 << 30},
		{name: "too many dimensions", at: vdrNumDims, value: 1000},
		{name: "no elements", at: vdrNumElems, value: 0},
		{name: "record index beyond max record", at: vxrLast, value: 99},
		{name: "VXR chain loop", at: vxrNext, value: vxrAt, wide: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := single()
			if tt.wide {
				binary.BigEndian.PutUint64(data[tt.at:], uint64(tt.value))
			} else {
				binary.BigEndian.PutUint32(data[tt.at:], uint32(int32(tt.value)))
			}
			assert.NotPanics(t, func() {
				_, err := cdf.Decode(data)
				assert.ErrorIs(t, err, cdf.ErrMalformed)
			})
		})
	}
}

func TestDecode_CompressedVariable(t *testing.T) {
	data := single()
	flags := binary.BigEndian.Uint32(data[vdrFlags:])
	binary.BigEndian.PutUint32(data[vdrFlags:], flags|4)

	f, err := cdf.Decode(data)
	require.NoError(t, err)
	assert.Empty(t, f.Variables)
	assert.Equal(t, []string{"Flux"}, f.Skipped)
}
