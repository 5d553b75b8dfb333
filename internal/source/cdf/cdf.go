// Package cdf reads NASA Common Data Format files, version 3, as written by
// the CDF library and by cdflib.
//
// Uncompressed single-file CDFs are decoded with their r and z variables,
// variable attributes and global attributes. Variables that are compressed
// or hold EPOCH16 values are listed in File.Skipped. Records missing from a
// variable read as NaN, or as the TIME_TT2000 fill value for 64-bit
// integers.
package cdf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrNotCDF      = errors.New("not a CDF file")
	ErrMalformed   = errors.New("malformed CDF file")
	ErrUnsupported = errors.New("unsupported CDF file")
)

// DataType is the CDF type of a variable or attribute entry.
type DataType int32

const (
	TypeInt1    DataType = 1
	TypeInt2    DataType = 2
	TypeInt4    DataType = 4
	TypeInt8    DataType = 8
	TypeUint1   DataType = 11
	TypeUint2   DataType = 12
	TypeUint4   DataType = 14
	TypeReal4   DataType = 21
	TypeReal8   DataType = 22
	TypeEpoch   DataType = 31
	TypeEpoch16 DataType = 32
	TypeTT2000  DataType = 33
	TypeByte    DataType = 41
	TypeFloat   DataType = 44
	TypeDouble  DataType = 45
	TypeChar    DataType = 51
	TypeUchar   DataType = 52
)

// width returns the size of one value, or zero for types not decoded.
func (t DataType) width() int {
	switch t {
	case TypeInt1, TypeUint1, TypeByte, TypeChar, TypeUchar:
		return 1
	case TypeInt2, TypeUint2:
		return 2
	case TypeInt4, TypeUint4, TypeReal4, TypeFloat:
		return 4
	case TypeInt8, TypeTT2000, TypeReal8, TypeDouble, TypeEpoch:
		return 8
	}
	return 0
}

func (t DataType) text() bool {
	return t == TypeChar || t == TypeUchar
}

func (t DataType) int64() bool {
	return t == TypeInt8 || t == TypeTT2000
}

// FillTT2000 marks TIME_TT2000 and INT8 values of missing records.
const FillTT2000 = math.MinInt64

// Record types.
const (
	recCDR  = 1
	recGDR  = 2
	recRVDR = 3
	recADR  = 4
	recGEDR = 5
	recVXR  = 6
	recVVR  = 7
	recZVDR = 8
	recZEDR = 9
	recCVVR = 13
)

const (
	magicV3           = 0xCDF30001
	magicV26          = 0xCDF26002
	magicV2           = 0x0000FFFF
	magicUncompressed = 0x0000FFFF
	magicCompressed   = 0xCCCC0001

	cdrOffset = 8

	flagRowMajor   = 1
	flagSingleFile = 2

	vdrRecordVariance = 1
	vdrCompressed     = 4

	scopeGlobal        = 1
	scopeVariable      = 2
	scopeGlobalAssumed = 3
	scopeVarAssumed    = 4

	maxDims     = 10
	maxVXRDepth = 16
	nameLen     = 256
)

// Value is one attribute entry.
type Value struct {
	Type    DataType
	Numbers []float64
	Ints    []int64
	Text    string
}

// String renders the entry as text, numbers separated by spaces.
func (v Value) String() string {
	if v.Type.text() {
		return v.Text
	}
	var parts []string
	for _, n := range v.Numbers {
		parts = append(parts, strconv.FormatFloat(n, 'g', -1, 64))
	}
	for _, n := range v.Ints {
		parts = append(parts, strconv.FormatInt(n, 10))
	}
	return strings.Join(parts, " ")
}

// Variable is one decoded variable.
type Variable struct {
	Name          string
	Type          DataType
	RecordVarying bool

	// Dims is the row-major shape. Record-varying variables lead with the
	// record count; a non-varying scalar has the shape [1]. Dimensions
	// declared non-varying are stored once and dropped from the shape.
	Dims []int

	Numbers []float64 // Types narrower than 64 bits, floats and EPOCH
	Ints    []int64   // INT8 and TIME_TT2000
	Strings []string  // CHAR and UCHAR, one per element

	Attributes map[string]Value
}

// Len returns the number of elements.
func (v *Variable) Len() int {
	switch {
	case v.Type.text():
		return len(v.Strings)
	case v.Type.int64():
		return len(v.Ints)
	default:
		return len(v.Numbers)
	}
}

// Attribute returns the variable attribute called name as text.
func (v *Variable) Attribute(name string) (string, bool) {
	a, ok := v.Attributes[name]
	if !ok {
		return "", false
	}
	return a.String(), true
}

// File is the decoded content of a CDF file.
type File struct {
	Variables  map[string]*Variable
	Attributes map[string][]Value // Global attributes, entries in order
	Skipped    []string           // Variables that could not be represented
	RowMajor   bool
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

// Get returns the variable called name. CDF names are case sensitive.
func (f *File) Get(name string) (*Variable, bool) {
	v, ok := f.Variables[name]
	return v, ok
}

// Attribute returns the global attribute called name with its entries
// joined by spaces.
func (f *File) Attribute(name string) (string, bool) {
	entries, ok := f.Attributes[name]
	if !ok {
		return "", false
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if s := strings.TrimSpace(e.String()); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " "), true
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

// Read decodes a CDF file from r.
func Read(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode decodes a complete CDF file held in memory.
func Decode(data []byte) (*File, error) {
	if len(data) < cdrOffset {
		return nil, ErrNotCDF
	}
	switch m := binary.BigEndian.Uint32(data); m {
	case magicV3:
	case magicV26, magicV2:
		return nil, fmt.Errorf("%w: version 2 file", ErrUnsupported)
	default:
		return nil, ErrNotCDF
	}
	switch m := binary.BigEndian.Uint32(data[4:]); m {
	case magicUncompressed:
	case magicCompressed:
		return nil, fmt.Errorf("%w: compressed file", ErrUnsupported)
	default:
		return nil, fmt.Errorf("%w: compression marker %#x", ErrMalformed, m)
	}

	d := decoder{data: data}
	f, err := d.decode()
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return f, nil
}

var errUnsupported = errors.New("unsupported variable")

type decoder struct {
	data  []byte
	order binary.ByteOrder // Encoding of values; record fields are big-endian
	file  *File

	rDims []int
	rVars map[int32]*Variable
	zVars map[int32]*Variable
}

// gdr holds the global descriptor fields the decoder follows.
type gdr struct {
	rVDRHead, zVDRHead, adrHead, eof int64
	nrVars, numAttr, nzVars          int32
}

func (d *decoder) decode() (*File, error) {
	cdr, err := d.record(cdrOffset, recCDR)
	if err != nil {
		return nil, fmt.Errorf("reading CDR: %w", err)
	}
	gdrOffset, _ := cdr.int64()
	version, _ := cdr.int32()
	_, _ = cdr.int32() // release
	encoding, _ := cdr.int32()
	flags, err := cdr.int32()
	if err != nil {
		return nil, fmt.Errorf("reading CDR: %w", err)
	}
	if version != 3 {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupported, version)
	}
	if flags&flagSingleFile == 0 {
		return nil, fmt.Errorf("%w: multi-file CDF", ErrUnsupported)
	}
	if d.order, err = byteOrder(encoding); err != nil {
		return nil, err
	}
	d.file = &File{
		Variables:  make(map[string]*Variable),
		Attributes: make(map[string][]Value),
		RowMajor:   flags&flagRowMajor != 0,
	}

	g, err := d.gdr(gdrOffset)
	if err != nil {
		return nil, fmt.Errorf("reading GDR: %w", err)
	}
	if g.eof > int64(len(d.data)) {
		return nil, fmt.Errorf("file ends at %d, GDR says %d", len(d.data), g.eof)
	}

	d.rVars = make(map[int32]*Variable)
	d.zVars = make(map[int32]*Variable)
	if err = d.variables(g.rVDRHead, g.nrVars, false); err != nil {
		return nil, err
	}
	if err = d.variables(g.zVDRHead, g.nzVars, true); err != nil {
		return nil, err
	}
	if err = d.attributes(g.adrHead, g.numAttr); err != nil {
		return nil, err
	}
	return d.file, nil
}

func byteOrder(encoding int32) (binary.ByteOrder, error) {
	switch encoding {
	case 1, 2, 5, 7, 9, 11, 12, 18:
		return binary.BigEndian, nil
	case 4, 6, 13, 16, 17:
		return binary.LittleEndian, nil
	case 3, 14, 15:
		return nil, fmt.Errorf("%w: VAX encoding %d", ErrUnsupported, encoding)
	}
	return nil, fmt.Errorf("unknown encoding %d", encoding)
}

func (d *decoder) gdr(offset int64) (*gdr, error) {
	c, err := d.record(offset, recGDR)
	if err != nil {
		return nil, err
	}
	var g gdr
	g.rVDRHead, _ = c.int64()
	g.zVDRHead, _ = c.int64()
	g.adrHead, _ = c.int64()
	g.eof, _ = c.int64()
	g.nrVars, _ = c.int32()
	g.numAttr, _ = c.int32()
	_, _ = c.int32() // rMaxRec
	rNumDims, _ := c.int32()
	g.nzVars, _ = c.int32()
	if _, err = c.take(8 + 12); err != nil { // UIRhead, rfuC, LeapSecondLastUpdated, rfuE
		return nil, err
	}
	if rNumDims < 0 || rNumDims > maxDims {
		return nil, fmt.Errorf("bad r dimension count %d", rNumDims)
	}
	if d.rDims, err = c.dims(int(rNumDims)); err != nil {
		return nil, err
	}
	if g.nrVars < 0 || g.nzVars < 0 || g.numAttr < 0 {
		return nil, fmt.Errorf("negative counts (%d r, %d z, %d attributes)", g.nrVars, g.nzVars, g.numAttr)
	}
	return &g, nil
}

// record returns a cursor over the body of the record at offset, after
// checking its type.
func (d *decoder) record(offset int64, want ...int32) (*cursor, error) {
	if offset < cdrOffset || offset > int64(len(d.data))-12 {
		return nil, fmt.Errorf("record offset %d outside the file", offset)
	}
	size := int64(binary.BigEndian.Uint64(d.data[offset:]))
	kind := int32(binary.BigEndian.Uint32(d.data[offset+8:]))
	if size < 12 || size > int64(len(d.data))-offset {
		return nil, fmt.Errorf("record at %d has size %d", offset, size)
	}
	for _, w := range want {
		if kind == w {
			return &cursor{buf: d.data[offset+12 : offset+size], kind: kind}, nil
		}
	}
	return nil, fmt.Errorf("record at %d has type %d, want %v", offset, kind, want)
}

// links follows a chain of at most n records from head, refusing loops.
func links(head int64, n int32, next func(offset int64) (int64, error)) error {
	seen := make(map[int64]bool)
	for off, i := head, int32(0); off != 0 && i < n; i++ {
		if seen[off] {
			return fmt.Errorf("record chain loops at %d", off)
		}
		seen[off] = true
		var err error
		if off, err = next(off); err != nil {
			return err
		}
	}
	return nil
}

// vdr holds the variable descriptor fields the decoder follows.
type vdr struct {
	name     string
	dataType DataType
	maxRec   int32
	vxrHead  int64
	flags    int32
	numElems int32
	num      int32
	dims     []int
	dimVarys []int32
}

func (d *decoder) variables(head int64, n int32, z bool) error {
	want := int32(recRVDR)
	if z {
		want = recZVDR
	}
	return links(head, n, func(off int64) (int64, error) {
		c, err := d.record(off, want)
		if err != nil {
			return 0, fmt.Errorf("reading VDR: %w", err)
		}
		next, desc, err := d.vdr(c, z)
		if err != nil {
			return 0, fmt.Errorf("reading VDR at %d: %w", off, err)
		}

		v, err := d.variable(desc)
		switch {
		case errors.Is(err, errUnsupported):
			d.file.Skipped = append(d.file.Skipped, desc.name)
		case err != nil:
			return 0, fmt.Errorf("variable %s: %w", desc.name, err)
		default:
			d.file.Variables[v.Name] = v
			if z {
				d.zVars[desc.num] = v
			} else {
				d.rVars[desc.num] = v
			}
		}
		return next, nil
	})
}

func (d *decoder) vdr(c *cursor, z bool) (int64, *vdr, error) {
	var desc vdr
	next, _ := c.int64()
	dataType, _ := c.int32()
	desc.dataType = DataType(dataType)
	desc.maxRec, _ = c.int32()
	desc.vxrHead, _ = c.int64()
	_, _ = c.int64() // VXRtail
	desc.flags, _ = c.int32()
	if _, err := c.take(16); err != nil { // SRecords, rfuB, rfuC, rfuF
		return 0, nil, err
	}
	desc.numElems, _ = c.int32()
	desc.num, _ = c.int32()
	if _, err := c.take(12); err != nil { // CPRorSPRoffset, BlockingFactor
		return 0, nil, err
	}
	name, err := c.name()
	if err != nil {
		return 0, nil, err
	}
	desc.name = name

	desc.dims = d.rDims
	if z {
		nd, err := c.int32()
		if err != nil {
			return 0, nil, err
		}
		if nd < 0 || nd > maxDims {
			return 0, nil, fmt.Errorf("bad dimension count %d", nd)
		}
		if desc.dims, err = c.dims(int(nd)); err != nil {
			return 0, nil, err
		}
	}
	desc.dimVarys = make([]int32, len(desc.dims))
	for i := range desc.dimVarys {
		if desc.dimVarys[i], err = c.int32(); err != nil {
			return 0, nil, err
		}
	}
	return next, &desc, nil
}

func (d *decoder) variable(desc *vdr) (*Variable, error) {
	v := &Variable{
		Name:          desc.name,
		Type:          desc.dataType,
		RecordVarying: desc.flags&vdrRecordVariance != 0,
		Attributes:    make(map[string]Value),
	}
	w := v.Type.width()
	if w == 0 || desc.flags&vdrCompressed != 0 {
		return v, errUnsupported
	}
	if desc.numElems < 1 {
		return nil, fmt.Errorf("element count %d", desc.numElems)
	}
	if !v.Type.text() && desc.numElems != 1 {
		return v, errUnsupported
	}
	if desc.maxRec < -1 {
		return nil, fmt.Errorf("max record %d", desc.maxRec)
	}

	var recDims []int
	for i, n := range desc.dims {
		if desc.dimVarys[i] != 0 {
			recDims = append(recDims, n)
		}
	}
	nrec := 1
	if v.RecordVarying {
		nrec = int(desc.maxRec) + 1
		v.Dims = append([]int{nrec}, recDims...)
	} else {
		v.Dims = recDims
		if len(v.Dims) == 0 {
			v.Dims = []int{1}
		}
	}

	// Every stored value takes at least one byte, which bounds the product
	// and keeps it from overflowing.
	limit := len(d.data)
	perRecord := 1
	for _, n := range recDims {
		if n > limit || perRecord*n > limit {
			return nil, fmt.Errorf("dimensions %v exceed the file", recDims)
		}
		perRecord *= n
	}
	size := w * int(desc.numElems)
	recBytes := perRecord * size
	if recBytes > limit || (nrec > 0 && nrec > limit/recBytes) {
		return nil, fmt.Errorf("%d records of %d bytes exceed the file", nrec, recBytes)
	}

	raw := make([]byte, nrec*recBytes)
	present := make([]bool, nrec)
	if desc.vxrHead != 0 {
		if err := d.vxr(desc.vxrHead, 0, raw, present, recBytes); err != nil {
			return v, err
		}
	}

	d.values(v, raw, present, perRecord, size)
	if !d.file.RowMajor && len(recDims) > 1 {
		transpose(v, recDims, perRecord)
	}
	return v, nil
}

// vxr copies the records indexed from the VXR chain at head into raw.
func (d *decoder) vxr(head int64, depth int, raw []byte, present []bool, recBytes int) error {
	if depth > maxVXRDepth {
		return fmt.Errorf("VXR nesting deeper than %d", maxVXRDepth)
	}
	return links(head, math.MaxInt32, func(off int64) (int64, error) {
		c, err := d.record(off, recVXR)
		if err != nil {
			return 0, fmt.Errorf("reading VXR: %w", err)
		}
		next, _ := c.int64()
		nEntries, _ := c.int32()
		nUsed, err := c.int32()
		if err != nil {
			return 0, err
		}
		if nEntries < 0 || nUsed < 0 || nUsed > nEntries || int(nEntries) > c.remaining()/16 {
			return 0, fmt.Errorf("VXR at %d has %d of %d entries", off, nUsed, nEntries)
		}
		first := make([]int32, nEntries)
		last := make([]int32, nEntries)
		offsets := make([]int64, nEntries)
		for i := range first {
			first[i], _ = c.int32()
		}
		for i := range last {
			last[i], _ = c.int32()
		}
		for i := range offsets {
			offsets[i], _ = c.int64()
		}

		for i := 0; i < int(nUsed); i++ {
			lo, hi := int(first[i]), int(last[i])
			if lo < 0 || hi < lo || hi >= len(present) {
				return 0, fmt.Errorf("VXR at %d indexes records %d to %d of %d", off, lo, hi, len(present))
			}
			entry, err := d.record(offsets[i], recVVR, recVXR, recCVVR)
			if err != nil {
				return 0, err
			}
			switch entry.kind {
			case recCVVR:
				return 0, errUnsupported
			case recVXR:
				if err = d.vxr(offsets[i], depth+1, raw, present, recBytes); err != nil {
					return 0, err
				}
				continue
			}
			n := (hi - lo + 1) * recBytes
			p, err := entry.take(n)
			if err != nil {
				return 0, fmt.Errorf("VVR at %d holds fewer than %d bytes", offsets[i], n)
			}
			copy(raw[lo*recBytes:], p)
			for r := lo; r <= hi; r++ {
				present[r] = true
			}
		}
		return next, nil
	})
}

// values decodes raw into v, filling records that were never written.
func (d *decoder) values(v *Variable, raw []byte, present []bool, perRecord, size int) {
	n := len(present) * perRecord
	switch {
	case v.Type.text():
		v.Strings = make([]string, n)
		for i := range v.Strings {
			if present[i/perRecord] {
				v.Strings[i] = text(raw[i*size : (i+1)*size])
			}
		}
	case v.Type.int64():
		v.Ints = make([]int64, n)
		for i := range v.Ints {
			v.Ints[i] = FillTT2000
			if present[i/perRecord] {
				v.Ints[i] = int64(d.order.Uint64(raw[i*size:]))
			}
		}
	default:
		v.Numbers = make([]float64, n)
		for i := range v.Numbers {
			v.Numbers[i] = math.NaN()
			if present[i/perRecord] {
				v.Numbers[i] = number(v.Type, d.order, raw[i*size:])
			}
		}
	}
}

func number(t DataType, order binary.ByteOrder, p []byte) float64 {
	switch t {
	case TypeInt1, TypeByte:
		return float64(int8(p[0]))
	case TypeUint1:
		return float64(p[0])
	case TypeInt2:
		return float64(int16(order.Uint16(p)))
	case TypeUint2:
		return float64(order.Uint16(p))
	case TypeInt4:
		return float64(int32(order.Uint32(p)))
	case TypeUint4:
		return float64(order.Uint32(p))
	case TypeReal4, TypeFloat:
		return float64(math.Float32frombits(order.Uint32(p)))
	default:
		return math.Float64frombits(order.Uint64(p))
	}
}

func text(p []byte) string {
	if i := strings.IndexByte(string(p), 0); i >= 0 {
		p = p[:i]
	}
	return string(p)
}

// transpose reorders each column-major record of v to row-major.
func transpose(v *Variable, dims []int, perRecord int) {
	perm := make([]int, perRecord) // perm[stored] = row-major index
	idx := make([]int, len(dims))
	for c := range perm {
		rem := c
		for k, n := range dims {
			idx[k] = rem % n
			rem /= n
		}
		r := 0
		for k, n := range dims {
			r = r*n + idx[k]
		}
		perm[c] = r
	}
	switch {
	case v.Strings != nil:
		v.Strings = permute(v.Strings, perm)
	case v.Ints != nil:
		v.Ints = permute(v.Ints, perm)
	default:
		v.Numbers = permute(v.Numbers, perm)
	}
}

func permute[T any](vals []T, perm []int) []T {
	out := make([]T, len(vals))
	for base := 0; base < len(vals); base += len(perm) {
		for c, r := range perm {
			out[base+r] = vals[base+c]
		}
	}
	return out
}

func (d *decoder) attributes(head int64, n int32) error {
	return links(head, n, func(off int64) (int64, error) {
		c, err := d.record(off, recADR)
		if err != nil {
			return 0, fmt.Errorf("reading ADR: %w", err)
		}
		next, _ := c.int64()
		grHead, _ := c.int64()
		scope, _ := c.int32()
		_, _ = c.int32() // Num
		nGr, _ := c.int32()
		if _, err = c.take(8); err != nil { // MAXgrEntry, rfuA
			return 0, err
		}
		zHead, _ := c.int64()
		nZ, _ := c.int32()
		if _, err = c.take(8); err != nil { // MAXzEntry, rfuE
			return 0, err
		}
		name, err := c.name()
		if err != nil {
			return 0, fmt.Errorf("reading ADR at %d: %w", off, err)
		}

		switch scope {
		case scopeGlobal, scopeGlobalAssumed:
			var entries []aedr
			if entries, err = d.entries(grHead, nGr, recGEDR); err != nil {
				return 0, fmt.Errorf("attribute %s: %w", name, err)
			}
			sort.SliceStable(entries, func(i, j int) bool { return entries[i].num < entries[j].num })
			values := make([]Value, 0, len(entries))
			for _, e := range entries {
				values = append(values, e.value)
			}
			d.file.Attributes[name] = values

		case scopeVariable, scopeVarAssumed:
			for _, chain := range []struct {
				head int64
				n    int32
				kind int32
				vars map[int32]*Variable
			}{
				{grHead, nGr, recGEDR, d.rVars},
				{zHead, nZ, recZEDR, d.zVars},
			} {
				entries, err := d.entries(chain.head, chain.n, chain.kind)
				if err != nil {
					return 0, fmt.Errorf("attribute %s: %w", name, err)
				}
				for _, e := range entries {
					if v, ok := chain.vars[e.num]; ok {
						v.Attributes[name] = e.value
					}
				}
			}

		default:
			return 0, fmt.Errorf("attribute %s has scope %d", name, scope)
		}
		return next, nil
	})
}

type aedr struct {
	num   int32
	value Value
}

// entries reads an attribute entry chain, leaving out entries of types
// that are not decoded.
func (d *decoder) entries(head int64, n int32, kind int32) ([]aedr, error) {
	var out []aedr
	err := links(head, n, func(off int64) (int64, error) {
		c, err := d.record(off, kind)
		if err != nil {
			return 0, fmt.Errorf("reading AEDR: %w", err)
		}
		next, _ := c.int64()
		_, _ = c.int32() // AttrNum
		dataType, _ := c.int32()
		num, _ := c.int32()
		numElems, _ := c.int32()
		if _, err = c.take(20); err != nil { // NumStrings, rfuB to rfuE
			return 0, fmt.Errorf("reading AEDR at %d: %w", off, err)
		}

		t := DataType(dataType)
		w := t.width()
		if w == 0 {
			return next, nil
		}
		if numElems < 0 || int(numElems) > c.remaining()/w {
			return 0, fmt.Errorf("AEDR at %d has %d elements", off, numElems)
		}
		p, _ := c.take(int(numElems) * w)

		e := aedr{num: num, value: Value{Type: t}}
		switch {
		case t.text():
			e.value.Text = text(p)
		case t.int64():
			for i := 0; i < len(p); i += w {
				e.value.Ints = append(e.value.Ints, int64(d.order.Uint64(p[i:])))
			}
		default:
			for i := 0; i < len(p); i += w {
				e.value.Numbers = append(e.value.Numbers, number(t, d.order, p[i:]))
			}
		}
		out = append(out, e)
		return next, nil
	})
	return out, err
}

// cursor walks a big-endian record body. Once a read runs past the end
// every later read fails too, so fields may be read before checking.
type cursor struct {
	buf  []byte
	pos  int
	kind int32
	err  error
}

func (c *cursor) take(n int) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	if n < 0 || c.pos+n > len(c.buf) {
		c.err = io.ErrUnexpectedEOF
		return nil, c.err
	}
	p := c.buf[c.pos : c.pos+n]
	c.pos += n
	return p, nil
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.pos
}

func (c *cursor) int32() (int32, error) {
	p, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(p)), nil
}

func (c *cursor) int64() (int64, error) {
	p, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(p)), nil
}

// name reads a fixed 256 byte, NUL padded name.
func (c *cursor) name() (string, error) {
	p, err := c.take(nameLen)
	if err != nil {
		return "", err
	}
	return text(p), nil
}

func (c *cursor) dims(n int) ([]int, error) {
	dims := make([]int, n)
	for i := range dims {
		v, err := c.int32()
		if err != nil {
			return nil, err
		}
		if v <= 0 {
			return nil, fmt.Errorf("dimension size %d", v)
		}
		dims[i] = int(v)
	}
	return dims, nil
}
