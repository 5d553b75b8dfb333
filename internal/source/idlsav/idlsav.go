// Package idlsav reads IDL SAVE files as written by SAVE in IDL 5 and later.
//
// Only plain variables are decoded: numeric and string scalars and arrays.
// Structures, pointers, objects, complex values and system variables are
// listed in File.Skipped and otherwise ignored. Variable names are lower
// cased, matching what IDL users type rather than what the file stores.
package idlsav

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
)

var (
	ErrNotSaveFile = errors.New("not an IDL SAVE file")
	ErrMalformed   = errors.New("malformed IDL SAVE file")
)

// TypeCode is the IDL type of a variable.
type TypeCode int32

const (
	TypeUndefined TypeCode = 0
	TypeByte      TypeCode = 1
	TypeInt16     TypeCode = 2
	TypeInt32     TypeCode = 3
	TypeFloat32   TypeCode = 4
	TypeFloat64   TypeCode = 5
	TypeComplex64 TypeCode = 6
	TypeString    TypeCode = 7
	TypeStruct    TypeCode = 8
	TypeComplex   TypeCode = 9
	TypePointer   TypeCode = 10
	TypeObject    TypeCode = 11
	TypeUint16    TypeCode = 12
	TypeUint32    TypeCode = 13
	TypeInt64     TypeCode = 14
	TypeUint64    TypeCode = 15
)

func (t TypeCode) numeric() bool {
	switch t {
	case TypeByte, TypeInt16, TypeInt32, TypeFloat32, TypeFloat64,
		TypeUint16, TypeUint32, TypeInt64, TypeUint64:
		return true
	}
	return false
}

// Record types.
const (
	recVariable  = 2
	recEndMarker = 6
)

const (
	flagSystem = 2
	flagArray  = 4
	flagStruct = 32

	varStart = 7

	arrayDesc32 = 8
	arrayDesc64 = 18
)

var (
	signature           = []byte{'S', 'R', 0, 4}
	signatureCompressed = []byte{'S', 'R', 0, 6}
)

// Variable is one decoded variable. Numeric values are widened to float64,
// so 64-bit integers above 2^53 lose precision.
type Variable struct {
	Name string
	Type TypeCode

	// Dims is the row-major shape, slowest varying dimension first, which
	// is the reverse of the order IDL declares. Nil for scalars.
	Dims []int

	Numbers []float64 // Numeric types
	Strings []string  // TypeString
}

// IsArray reports whether the variable was saved as an array.
func (v *Variable) IsArray() bool {
	return v.Dims != nil
}

// Len returns the number of elements.
func (v *Variable) Len() int {
	if v.Type == TypeString {
		return len(v.Strings)
	}
	return len(v.Numbers)
}

// File is the decoded content of a SAVE file.
type File struct {
	Variables  map[string]*Variable
	Skipped    []string // Variables that could not be represented
	Compressed bool
}

// Names returns the sorted names of the decoded variables.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Variables))
	for n := range f.Variables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get returns the variable called name, matched case-insensitively.
func (f *File) Get(name string) (*Variable, bool) {
	v, ok := f.Variables[strings.ToLower(name)]
	return v, ok
}

// Open reads and decodes the file at path.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Read decodes a SAVE file from r.
func Read(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode decodes a complete SAVE file held in memory.
func Decode(data []byte) (*File, error) {
	if len(data) < len(signature) {
		return nil, ErrNotSaveFile
	}

	f := File{Variables: make(map[string]*Variable)}
	switch {
	case bytes.Equal(data[:4], signature):
	case bytes.Equal(data[:4], signatureCompressed):
		f.Compressed = true
	default:
		return nil, ErrNotSaveFile
	}

	pos := uint64(len(signature))
	for {
		if pos+16 > uint64(len(data)) {
			return nil, fmt.Errorf("%w: missing end marker", ErrMalformed)
		}
		hdr := data[pos : pos+16]
		recType := int32(binary.BigEndian.Uint32(hdr[0:]))
		next := uint64(binary.BigEndian.Uint32(hdr[4:])) | uint64(binary.BigEndian.Uint32(hdr[8:]))<<32

		if recType == recEndMarker {
			break
		}
		if next <= pos || next > uint64(len(data)) {
			return nil, fmt.Errorf("%w: record at %d points to %d", ErrMalformed, pos, next)
		}

		if recType == recVariable {
			body := data[pos+16 : next]
			if f.Compressed {
				var err error
				if body, err = inflate(body); err != nil {
					return nil, fmt.Errorf("%w: record at %d: %w", ErrMalformed, pos, err)
				}
			}

			v, err := decodeVariable(&cursor{buf: body})
			switch {
			case errors.Is(err, errUnsupported):
				f.Skipped = append(f.Skipped, v.Name)
			case err != nil:
				return nil, fmt.Errorf("%w: record at %d: %w", ErrMalformed, pos, err)
			default:
				f.Variables[v.Name] = v
			}
		}
		pos = next
	}

	return &f, nil
}

func inflate(p []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(p))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

var errUnsupported = errors.New("unsupported variable")

type arrayDesc struct {
	nbytes    int
	nelements int
	dims      []int // IDL order, fastest varying first
}

func decodeVariable(c *cursor) (*Variable, error) {
	name, err := c.string()
	if err != nil {
		return nil, fmt.Errorf("reading name: %w", err)
	}
	v := &Variable{Name: strings.ToLower(name)}

	code, err := c.int32()
	if err != nil {
		return v, err
	}
	flags, err := c.int32()
	if err != nil {
		return v, err
	}
	v.Type = TypeCode(code)

	if flags&flagSystem != 0 || flags&flagStruct != 0 {
		return v, errUnsupported
	}

	var desc *arrayDesc
	if flags&flagArray != 0 {
		if desc, err = c.arrayDesc(); err != nil {
			return v, fmt.Errorf("reading array descriptor of %s: %w", v.Name, err)
		}
	}

	if v.Type == TypeUndefined {
		return v, errUnsupported
	}
	if !v.Type.numeric() && v.Type != TypeString {
		return v, errUnsupported
	}

	start, err := c.int32()
	if err != nil {
		return v, err
	}
	if start != varStart {
		return v, fmt.Errorf("variable %s: expected start marker %d, got %d", v.Name, varStart, start)
	}

	if desc == nil {
		err = c.scalar(v)
	} else {
		err = c.array(v, desc)
	}
	if err != nil {
		return v, fmt.Errorf("reading %s: %w", v.Name, err)
	}
	return v, nil
}

// cursor walks a big-endian, 4-byte aligned record body.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	p := c.buf[c.pos : c.pos+n]
	c.pos += n
	return p, nil
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.pos
}

func (c *cursor) align() {
	if r := c.pos % 4; r != 0 {
		c.pos += 4 - r
	}
}

func (c *cursor) int32() (int32, error) {
	p, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(p)), nil
}

func (c *cursor) uint64() (uint64, error) {
	p, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(p), nil
}

// string reads a length-prefixed name.
func (c *cursor) string() (string, error) {
	n, err := c.int32()
	if err != nil {
		return "", err
	}
	if n <= 0 {
		return "", nil
	}
	p, err := c.take(int(n))
	if err != nil {
		return "", err
	}
	c.align()
	return string(p), nil
}

// stringData reads a string value, whose length is stored twice.
func (c *cursor) stringData() (string, error) {
	n, err := c.int32()
	if err != nil {
		return "", err
	}
	if n <= 0 {
		return "", nil
	}
	return c.string()
}

func (c *cursor) arrayDesc() (*arrayDesc, error) {
	kind, err := c.int32()
	if err != nil {
		return nil, err
	}

	var d arrayDesc
	switch kind {
	case arrayDesc32:
		var vals [4]int32
		if _, err = c.take(4); err != nil {
			return nil, err
		}
		for i := range vals[:3] {
			if vals[i], err = c.int32(); err != nil {
				return nil, err
			}
		}
		if _, err = c.take(8); err != nil {
			return nil, err
		}
		if vals[3], err = c.int32(); err != nil {
			return nil, err
		}
		d.nbytes, d.nelements = int(vals[0]), int(vals[1])
		ndims, nmax := int(vals[2]), int(vals[3])
		if ndims < 1 || ndims > nmax || nmax > 8 {
			return nil, fmt.Errorf("bad dimension count %d of %d", ndims, nmax)
		}
		d.dims = make([]int, nmax)
		for i := range d.dims {
			n, err := c.int32()
			if err != nil {
				return nil, err
			}
			d.dims[i] = int(n)
		}
		d.dims = d.dims[:ndims]

	case arrayDesc64:
		if _, err = c.take(8); err != nil {
			return nil, err
		}
		nbytes, err := c.uint64()
		if err != nil {
			return nil, err
		}
		nelements, err := c.uint64()
		if err != nil {
			return nil, err
		}
		ndims, err := c.int32()
		if err != nil {
			return nil, err
		}
		if _, err = c.take(8); err != nil {
			return nil, err
		}
		if ndims < 1 || ndims > 8 {
			return nil, fmt.Errorf("bad dimension count %d", ndims)
		}
		d.nbytes, d.nelements = int(nbytes), int(nelements)
		d.dims = make([]int, 8)
		for i := range d.dims {
			n, err := c.uint64()
			if err != nil {
				return nil, err
			}
			d.dims[i] = int(n)
		}
		d.dims = d.dims[:ndims]

	default:
		return nil, fmt.Errorf("unknown array descriptor %d", kind)
	}

	if d.nbytes < 0 || d.nelements < 0 {
		return nil, fmt.Errorf("negative size (%d bytes, %d elements)", d.nbytes, d.nelements)
	}
	// Every element takes at least one byte, which bounds the product and
	// keeps it from overflowing.
	total := 1
	for _, n := range d.dims {
		if n <= 0 {
			return nil, fmt.Errorf("dimensions %v are not positive", d.dims)
		}
		if n > len(c.buf) || total*n > len(c.buf) {
			return nil, fmt.Errorf("dimensions %v exceed the %d byte record", d.dims, len(c.buf))
		}
		total *= n
	}
	if total != d.nelements {
		return nil, fmt.Errorf("dimensions %v hold %d elements, descriptor says %d", d.dims, total, d.nelements)
	}
	return &d, nil
}

func (c *cursor) scalar(v *Variable) error {
	if v.Type == TypeString {
		s, err := c.stringData()
		if err != nil {
			return err
		}
		v.Strings = []string{s}
		return nil
	}

	if v.Type == TypeByte {
		// A byte scalar is preceded by its length, always 1.
		n, err := c.int32()
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("byte scalar of length %d", n)
		}
		p, err := c.take(4)
		if err != nil {
			return err
		}
		v.Numbers = []float64{float64(p[0])}
		return nil
	}

	size := width(v.Type)
	if size < 4 {
		size = 4
	}
	p, err := c.take(size)
	if err != nil {
		return err
	}
	v.Numbers = []float64{number(v.Type, p[size-width(v.Type):])}
	return nil
}

func (c *cursor) array(v *Variable, d *arrayDesc) error {
	v.Dims = make([]int, len(d.dims))
	for i, n := range d.dims {
		v.Dims[len(d.dims)-1-i] = n
	}

	if v.Type == TypeString {
		// Each string starts with a 4 byte length.
		if d.nelements > c.remaining()/4 {
			return fmt.Errorf("%d strings do not fit in %d bytes", d.nelements, c.remaining())
		}
		v.Strings = make([]string, d.nelements)
		for i := range v.Strings {
			s, err := c.stringData()
			if err != nil {
				return err
			}
			v.Strings[i] = s
		}
		return nil
	}

	w := width(v.Type)
	stride := w
	switch v.Type {
	case TypeByte:
		n, err := c.int32()
		if err != nil {
			return err
		}
		if int(n) != d.nelements {
			return fmt.Errorf("byte array of length %d, descriptor says %d", n, d.nelements)
		}
	case TypeInt16, TypeUint16:
		// 16-bit values are stored one per 32-bit word.
		stride = 4
	}

	p, err := c.take(stride * d.nelements)
	if err != nil {
		return err
	}
	v.Numbers = make([]float64, d.nelements)
	for i := range v.Numbers {
		off := i*stride + stride - w
		v.Numbers[i] = number(v.Type, p[off:off+w])
	}
	c.align()
	return nil
}

func width(t TypeCode) int {
	switch t {
	case TypeByte:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32:
		return 4
	default:
		return 8
	}
}

func number(t TypeCode, p []byte) float64 {
	switch t {
	case TypeByte:
		return float64(p[0])
	case TypeInt16:
		return float64(int16(binary.BigEndian.Uint16(p)))
	case TypeUint16:
		return float64(binary.BigEndian.Uint16(p))
	case TypeInt32:
		return float64(int32(binary.BigEndian.Uint32(p)))
	case TypeUint32:
		return float64(binary.BigEndian.Uint32(p))
	case TypeFloat32:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(p)))
	case TypeFloat64:
		return math.Float64frombits(binary.BigEndian.Uint64(p))
	case TypeInt64:
		return float64(int64(binary.BigEndian.Uint64(p)))
	case TypeUint64:
		return float64(binary.BigEndian.Uint64(p))
	}
	return math.NaN()
}
