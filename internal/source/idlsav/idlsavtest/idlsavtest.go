// Package idlsavtest writes small IDL SAVE files for tests.
package idlsavtest

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"math"
	"os"
	"strings"
	"testing"
)

const (
	recVariable  = 2
	recEndMarker = 6
	recTimestamp = 10

	flagArray = 4
)

// Encoder accumulates variables and renders them as a SAVE file.
type Encoder struct {
	compress bool
	records  [][]byte // Bodies, each prefixed by its record type
	types    []int32
}

// NewEncoder returns an encoder. Compressed files deflate every record body
// the way SAVE, /COMPRESS does.
func NewEncoder(compress bool) *Encoder {
	e := &Encoder{compress: compress}
	// A leading timestamp record the reader has to skip.
	e.add(recTimestamp, make([]byte, 12))
	return e
}

func (e *Encoder) add(recType int32, body []byte) {
	e.types = append(e.types, recType)
	e.records = append(e.records, body)
}

type body struct{ bytes.Buffer }

func (b *body) int32(v int32) {
	_ = binary.Write(&b.Buffer, binary.BigEndian, v)
}

func (b *body) pad() {
	for b.Len()%4 != 0 {
		b.WriteByte(0)
	}
}

func (b *body) name(s string) {
	b.int32(int32(len(s)))
	b.WriteString(strings.ToUpper(s))
	b.pad()
}

func (b *body) stringData(s string) {
	b.int32(int32(len(s)))
	if len(s) == 0 {
		return
	}
	b.int32(int32(len(s)))
	b.WriteString(s)
	b.pad()
}

// header writes everything up to the variable data. dims is row-major and
// nil for scalars.
func header(name string, code int32, dims []int, width int) *body {
	var b body
	b.name(name)
	b.int32(code)
	if dims == nil {
		b.int32(0)
		b.int32(7)
		return &b
	}
	b.int32(flagArray)

	n := 1
	for _, d := range dims {
		n *= d
	}
	b.int32(8)
	b.int32(0)
	b.int32(int32(n * width))
	b.int32(int32(n))
	b.int32(int32(len(dims)))
	b.int32(0)
	b.int32(0)
	b.int32(8)
	for i := 0; i < 8; i++ {
		d := 1
		if i < len(dims) {
			d = dims[len(dims)-1-i]
		}
		b.int32(int32(d))
	}
	b.int32(7)
	return &b
}

func shape(n int, dims []int) []int {
	if len(dims) == 0 {
		return []int{n}
	}
	return dims
}

// Float64 adds a double array. dims is the row-major shape; omitted it is
// 1-D.
func (e *Encoder) Float64(name string, values []float64, dims ...int) {
	b := header(name, 5, shape(len(values), dims), 8)
	for _, v := range values {
		_ = binary.Write(&b.Buffer, binary.BigEndian, math.Float64bits(v))
	}
	e.add(recVariable, b.Bytes())
}

// Float32 adds a float array.
func (e *Encoder) Float32(name string, values []float32, dims ...int) {
	b := header(name, 4, shape(len(values), dims), 4)
	for _, v := range values {
		_ = binary.Write(&b.Buffer, binary.BigEndian, math.Float32bits(v))
	}
	e.add(recVariable, b.Bytes())
}

// Int16 adds an integer array, one value per 32-bit word.
func (e *Encoder) Int16(name string, values []int16, dims ...int) {
	b := header(name, 2, shape(len(values), dims), 2)
	for _, v := range values {
		b.WriteByte(0)
		b.WriteByte(0)
		_ = binary.Write(&b.Buffer, binary.BigEndian, v)
	}
	e.add(recVariable, b.Bytes())
}

// Bytes adds a byte array.
func (e *Encoder) Bytes(name string, values []byte) {
	b := header(name, 1, []int{len(values)}, 1)
	b.int32(int32(len(values)))
	b.Write(values)
	b.pad()
	e.add(recVariable, b.Bytes())
}

// Strings adds a string array.
func (e *Encoder) Strings(name string, values []string) {
	b := header(name, 7, []int{len(values)}, 1)
	for _, s := range values {
		b.stringData(s)
	}
	e.add(recVariable, b.Bytes())
}

// Scalar adds a double scalar.
func (e *Encoder) Scalar(name string, v float64) {
	b := header(name, 5, nil, 8)
	_ = binary.Write(&b.Buffer, binary.BigEndian, math.Float64bits(v))
	e.add(recVariable, b.Bytes())
}

// String adds a string scalar.
func (e *Encoder) String(name, s string) {
	b := header(name, 7, nil, 1)
	b.stringData(s)
	e.add(recVariable, b.Bytes())
}

// Struct adds a structure variable the reader does not decode.
func (e *Encoder) Struct(name string) {
	var b body
	b.name(name)
	b.int32(8)
	b.int32(32 | flagArray)
	b.Write(make([]byte, 64))
	e.add(recVariable, b.Bytes())
}

// Encode renders the file.
func (e *Encoder) Encode() []byte {
	var out bytes.Buffer
	if e.compress {
		out.Write([]byte{'S', 'R', 0, 6})
	} else {
		out.Write([]byte{'S', 'R', 0, 4})
	}

	for i, rec := range e.records {
		if e.compress {
			var z bytes.Buffer
			zw := zlib.NewWriter(&z)
			_, _ = zw.Write(rec)
			_ = zw.Close()
			for z.Len()%4 != 0 {
				z.WriteByte(0)
			}
			rec = z.Bytes()
		}
		next := uint64(out.Len() + 16 + len(rec))
		_ = binary.Write(&out, binary.BigEndian, e.types[i])
		_ = binary.Write(&out, binary.BigEndian, uint32(next))
		_ = binary.Write(&out, binary.BigEndian, uint32(next>>32))
		out.Write(make([]byte, 4))
		out.Write(rec)
	}

	_ = binary.Write(&out, binary.BigEndian, int32(recEndMarker))
	out.Write(make([]byte, 12))
	return out.Bytes()
}

// WriteFile writes the encoded file to path, failing the test on error.
func (e *Encoder) WriteFile(tb testing.TB, path string) {
	tb.Helper()
	if err := os.WriteFile(path, e.Encode(), 0o644); err != nil {
		tb.Fatalf("writing %s: %v", path, err)
	}
}
