// Package cdftest writes small CDF version 3 files for tests.
package cdftest

import (
	"encoding/binary"
	"math"
	"os"
	"slices"
	"testing"
)

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

	typeInt2   = 2
	typeFloat  = 44
	typeDouble = 45
	typeTT2000 = 33
	typeChar   = 51

	encodingNetwork = 1
	encodingIBMPC   = 6
)

type variable struct {
	name     string
	dataType int32
	numElems int
	rVar     bool
	varying  bool
	dims     []int   // Record shape, row-major
	records  [][]any // Row-major values of each record
	dropped  map[int]bool
	num      int32
}

type entry struct {
	attr, variable string
	value          string
}

// Encoder accumulates variables and attributes and renders them as a CDF.
type Encoder struct {
	order       binary.AppendByteOrder
	encoding    int32
	columnMajor bool
	perVVR      int

	vars    []*variable
	globals []entry
	varAttr []entry
}

// NewEncoder returns an encoder writing values in the NETWORK (big-endian)
// or IBMPC (little-endian) encoding.
func NewEncoder(bigEndian bool) *Encoder {
	if bigEndian {
		return &Encoder{order: binary.BigEndian, encoding: encodingNetwork}
	}
	return &Encoder{order: binary.LittleEndian, encoding: encodingIBMPC}
}

// ColumnMajor stores multi-dimensional records first dimension fastest.
func (e *Encoder) ColumnMajor() {
	e.columnMajor = true
}

// SplitRecords writes at most n records per VVR, each indexed by its own
// VXR in the chain.
func (e *Encoder) SplitRecords(n int) {
	e.perVVR = n
}

func (e *Encoder) add(v *variable, values []any) {
	n := 1
	for _, d := range v.dims {
		n *= d
	}
	if !v.varying {
		v.records = [][]any{values}
	} else {
		for i := 0; i+n <= len(values); i += n {
			v.records = append(v.records, values[i:i+n])
		}
	}
	e.vars = append(e.vars, v)
}

func anys[T any](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// TT2000 adds a record-varying TIME_TT2000 zVariable, one value per record.
func (e *Encoder) TT2000(name string, values []int64) {
	e.add(&variable{name: name, dataType: typeTT2000, numElems: 1, varying: true}, anys(values))
}

// Double adds a record-varying CDF_DOUBLE zVariable. dims is the row-major
// shape of one record; omitted, each record is a scalar.
func (e *Encoder) Double(name string, values []float64, dims ...int) {
	e.add(&variable{name: name, dataType: typeDouble, numElems: 1, varying: true, dims: dims}, anys(values))
}

// Float adds a record-varying CDF_FLOAT zVariable.
func (e *Encoder) Float(name string, values []float32, dims ...int) {
	e.add(&variable{name: name, dataType: typeFloat, numElems: 1, varying: true, dims: dims}, anys(values))
}

// Int2 adds a record-varying CDF_INT2 zVariable.
func (e *Encoder) Int2(name string, values []int16, dims ...int) {
	e.add(&variable{name: name, dataType: typeInt2, numElems: 1, varying: true, dims: dims}, anys(values))
}

// Constant adds a non-record-varying CDF_DOUBLE zVariable with one
// dimension, as instruments store their frequency table.
func (e *Encoder) Constant(name string, values []float64) {
	e.add(&variable{name: name, dataType: typeDouble, numElems: 1, dims: []int{len(values)}}, anys(values))
}

// Chars adds a non-record-varying CDF_CHAR zVariable of width characters
// per element.
func (e *Encoder) Chars(name string, width int, values []string) {
	e.add(&variable{name: name, dataType: typeChar, numElems: width, dims: []int{len(values)}}, anys(values))
}

// RDouble adds a record-varying scalar CDF_DOUBLE rVariable.
func (e *Encoder) RDouble(name string, values []float64) {
	e.add(&variable{name: name, dataType: typeDouble, numElems: 1, rVar: true, varying: true}, anys(values))
}

// DropRecords leaves the given records of name out of the file.
func (e *Encoder) DropRecords(name string, records ...int) {
	for _, v := range e.vars {
		if v.name != name {
			continue
		}
		if v.dropped == nil {
			v.dropped = make(map[int]bool)
		}
		for _, r := range records {
			v.dropped[r] = true
		}
	}
}

// VarAttr sets the text attribute attr of variable.
func (e *Encoder) VarAttr(variable, attr, value string) {
	e.varAttr = append(e.varAttr, entry{attr: attr, variable: variable, value: value})
}

// GlobalAttr adds a global text attribute with one entry per value.
func (e *Encoder) GlobalAttr(name string, values ...string) {
	for _, v := range values {
		e.globals = append(e.globals, entry{attr: name, value: v})
	}
}

// out is the file under construction. Record headers and offsets are
// big-endian whatever the value encoding.
type out struct{ b []byte }

func (o *out) off() int64 { return int64(len(o.b)) }

func (o *out) i32(v int32) { o.b = binary.BigEndian.AppendUint32(o.b, uint32(v)) }

func (o *out) i64(v int64) { o.b = binary.BigEndian.AppendUint64(o.b, uint64(v)) }

func (o *out) name(s string) {
	p := make([]byte, 256)
	copy(p, s)
	o.b = append(o.b, p...)
}

func (o *out) set32(at int64, v int32) { binary.BigEndian.PutUint32(o.b[at:], uint32(v)) }

func (o *out) set64(at int64, v int64) { binary.BigEndian.PutUint64(o.b[at:], uint64(v)) }

// begin starts a record and returns its offset.
func (o *out) begin(recType int32) int64 {
	at := o.off()
	o.i64(0)
	o.i32(recType)
	return at
}

func (o *out) end(at int64) { o.set64(at, o.off()-at) }

// Encode renders the file.
func (e *Encoder) Encode() []byte {
	var o out
	o.b = binary.BigEndian.AppendUint32(o.b, 0xCDF30001)
	o.b = binary.BigEndian.AppendUint32(o.b, 0x0000FFFF)

	flags := int32(2)
	if !e.columnMajor {
		flags |= 1
	}
	cdr := o.begin(recCDR)
	gdrField := o.off()
	o.i64(0)
	o.i32(3)
	o.i32(9)
	o.i32(e.encoding)
	o.i32(flags)
	o.i32(0)
	o.i32(-1)
	o.i32(0)
	o.i32(2)
	o.i32(-1)
	o.name("Common Data Format (CDF)")
	o.end(cdr)

	gdr := o.begin(recGDR)
	o.set64(gdrField, gdr)
	rHead := o.off()
	o.i64(0)
	zHead := o.off()
	o.i64(0)
	adrHead := o.off()
	o.i64(0)
	eof := o.off()
	o.i64(0)
	counts := o.off() // NrVars, NumAttr, rMaxRec, rNumDims, NzVars
	for range 5 {
		o.i32(0)
	}
	o.i64(0)
	o.i32(0)
	o.i32(0)
	o.i32(-1)
	o.end(gdr)

	var nr, nz, rMaxRec int32 = 0, 0, -1
	nextR, nextZ := rHead, zHead
	for _, v := range e.vars {
		if v.rVar {
			v.num, nr = nr, nr+1
			rMaxRec = max(rMaxRec, int32(len(v.records)-1))
			nextR = e.vdr(&o, v, nextR)
		} else {
			v.num, nz = nz, nz+1
			nextZ = e.vdr(&o, v, nextZ)
		}
	}

	nAttr := e.attributes(&o, adrHead)

	o.set32(counts, nr)
	o.set32(counts+4, nAttr)
	o.set32(counts+8, rMaxRec)
	o.set32(counts+16, nz)
	o.set64(eof, o.off())
	return o.b
}

// vdr writes the descriptor and data of v, links it from the field at
// link and returns the position of its own next field.
func (e *Encoder) vdr(o *out, v *variable, link int64) int64 {
	recType := int32(recZVDR)
	if v.rVar {
		recType = recRVDR
	}
	at := o.begin(recType)
	o.set64(link, at)
	next := o.off()
	o.i64(0)
	o.i32(v.dataType)
	o.i32(int32(len(v.records) - 1))
	vxrHead := o.off()
	o.i64(0)
	vxrTail := o.off()
	o.i64(0)
	var flags int32
	if v.varying {
		flags = 1
	}
	o.i32(flags)
	o.i32(0)
	o.i32(0)
	o.i32(-1)
	o.i32(-1)
	o.i32(int32(v.numElems))
	o.i32(v.num)
	o.i64(-1)
	o.i32(0)
	o.name(v.name)
	if !v.rVar {
		o.i32(int32(len(v.dims)))
		for _, d := range v.dims {
			o.i32(int32(d))
		}
		for range v.dims {
			o.i32(-1)
		}
	}
	o.end(at)

	link = vxrHead
	for _, run := range e.runs(v) {
		vxr := o.begin(recVXR)
		o.set64(link, vxr)
		o.set64(vxrTail, vxr)
		link = o.off()
		o.i64(0)
		o.i32(1)
		o.i32(1)
		o.i32(int32(run[0]))
		o.i32(int32(run[len(run)-1]))
		entryField := o.off()
		o.i64(0)
		o.end(vxr)

		vvr := o.begin(recVVR)
		o.set64(entryField, vvr)
		for _, r := range run {
			o.b = e.record(o.b, v, v.records[r])
		}
		o.end(vvr)
	}
	return next
}

// runs groups the written records of v into consecutive runs of at most
// perVVR records.
func (e *Encoder) runs(v *variable) [][]int {
	var runs [][]int
	var cur []int
	for r := range v.records {
		if v.dropped[r] {
			if cur != nil {
				runs, cur = append(runs, cur), nil
			}
			continue
		}
		cur = append(cur, r)
		if e.perVVR > 0 && len(cur) == e.perVVR {
			runs, cur = append(runs, cur), nil
		}
	}
	if cur != nil {
		runs = append(runs, cur)
	}
	return runs
}

// record encodes one record, reordering multi-dimensional records for
// column-major files.
func (e *Encoder) record(b []byte, v *variable, values []any) []byte {
	if e.columnMajor && len(v.dims) > 1 {
		values = columnMajor(values, v.dims)
	}
	for _, x := range values {
		switch x := x.(type) {
		case int64:
			b = e.order.AppendUint64(b, uint64(x))
		case int16:
			b = e.order.AppendUint16(b, uint16(x))
		case float32:
			b = e.order.AppendUint32(b, math.Float32bits(x))
		case float64:
			b = e.order.AppendUint64(b, math.Float64bits(x))
		case string:
			p := make([]byte, v.numElems)
			copy(p, x)
			b = append(b, p...)
		}
	}
	return b
}

func columnMajor(values []any, dims []int) []any {
	out := make([]any, len(values))
	idx := make([]int, len(dims))
	for c := range out {
		rem := c
		for k, n := range dims {
			idx[k] = rem % n
			rem /= n
		}
		r := 0
		for k, n := range dims {
			r = r*n + idx[k]
		}
		out[c] = values[r]
	}
	return out
}

// attributes writes the global attributes followed by the variable
// attributes and returns how many were written.
func (e *Encoder) attributes(o *out, link int64) int32 {
	var names []string
	scope := make(map[string]int32)
	for _, g := range e.globals {
		if !slices.Contains(names, g.attr) {
			names = append(names, g.attr)
			scope[g.attr] = 1
		}
	}
	for _, a := range e.varAttr {
		if !slices.Contains(names, a.attr) {
			names = append(names, a.attr)
			scope[a.attr] = 2
		}
	}

	byName := make(map[string]*variable)
	for _, v := range e.vars {
		byName[v.name] = v
	}

	for num, name := range names {
		var gr, z []entry
		if scope[name] == 1 {
			for _, g := range e.globals {
				if g.attr == name {
					gr = append(gr, g)
				}
			}
		} else {
			for _, a := range e.varAttr {
				if a.attr != name {
					continue
				}
				if v, ok := byName[a.variable]; ok && v.rVar {
					gr = append(gr, a)
				} else if ok {
					z = append(z, a)
				}
			}
		}

		adr := o.begin(recADR)
		o.set64(link, adr)
		link = o.off()
		o.i64(0)
		grHead := o.off()
		o.i64(0)
		o.i32(scope[name])
		o.i32(int32(num))
		o.i32(int32(len(gr)))
		o.i32(int32(len(gr) - 1))
		o.i32(0)
		zHead := o.off()
		o.i64(0)
		o.i32(int32(len(z)))
		o.i32(int32(len(z) - 1))
		o.i32(-1)
		o.name(name)
		o.end(adr)

		e.entries(o, gr, grHead, recGEDR, int32(num), byName)
		e.entries(o, z, zHead, recZEDR, int32(num), byName)
	}
	return int32(len(names))
}

func (e *Encoder) entries(o *out, entries []entry, link int64, recType, attrNum int32, byName map[string]*variable) {
	for i, a := range entries {
		num := int32(i)
		if v, ok := byName[a.variable]; ok {
			num = v.num
		}
		at := o.begin(recType)
		o.set64(link, at)
		link = o.off()
		o.i64(0)
		o.i32(attrNum)
		o.i32(typeChar)
		o.i32(num)
		o.i32(int32(len(a.value)))
		o.i32(1)
		o.i32(0)
		o.i32(0)
		o.i32(-1)
		o.i32(-1)
		o.b = append(o.b, a.value...)
		o.end(at)
	}
}

// WriteFile writes the encoded file to path, failing the test on error.
func (e *Encoder) WriteFile(tb testing.TB, path string) {
	tb.Helper()
	if err := os.WriteFile(path, e.Encode(), 0o644); err != nil {
		tb.Fatalf("writing %s: %v", path, err)
	}
}
