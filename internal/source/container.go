package source

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/roman-kulish/spacelabel/internal/epoch"
	"github.com/roman-kulish/spacelabel/internal/source/cdf"
	"github.com/roman-kulish/spacelabel/internal/source/idlsav"
)

// container is one opened file of a dataset.
type container interface {
	Path() string
	Columns() []string
	Column(name string) (*column, error)
	Attribute(name string) (string, bool)
	Close()
}

// column is a variable flattened to row-major order.
type column struct {
	name  string
	dims  []int // Row-major shape; a single element for 1-D columns
	units string

	numbers []float64
	ints    []int64 // Set instead of numbers for 1-D int64 columns, which hold TT2000 epochs
	strings []string
}

func (c *column) len() int {
	switch {
	case c.strings != nil:
		return len(c.strings)
	case c.ints != nil:
		return len(c.ints)
	default:
		return len(c.numbers)
	}
}

// raw returns the values in the form epoch.Normalize accepts.
func (c *column) raw() any {
	switch {
	case c.strings != nil:
		return c.strings
	case c.ints != nil:
		return c.ints
	default:
		return c.numbers
	}
}

// floats returns numeric values, widening int64 columns.
func (c *column) floats() ([]float64, error) {
	switch {
	case c.strings != nil:
		return nil, fmt.Errorf("column %s holds strings", c.name)
	case c.ints != nil:
		out := make([]float64, len(c.ints))
		for i, v := range c.ints {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return c.numbers, nil
	}
}

func (c *column) times(format epoch.Format, origin int) ([]epoch.JulianDate, error) {
	t, err := epoch.Normalize(c.raw(), format, origin)
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", c.name, err)
	}
	return t, nil
}

// netcdfContainer reads NetCDF classic and HDF5 files, sniffing the
// encoding from the content rather than the suffix.
type netcdfContainer struct {
	path  string
	group api.Group
}

func openNetCDF(path string) (*netcdfContainer, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return nil, err
	}
	return &netcdfContainer{path: path, group: g}, nil
}

func (c *netcdfContainer) Path() string { return c.path }

func (c *netcdfContainer) Columns() []string {
	return c.group.ListVariables()
}

func (c *netcdfContainer) Column(name string) (*column, error) {
	v, err := c.group.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	col, err := flatten(name, v.Values)
	if err != nil {
		return nil, err
	}
	if v.Attributes != nil {
		for _, key := range []string{"UNITS", "units", "Units"} {
			if u, ok := attributeString(v.Attributes, key); ok {
				col.units = u
				break
			}
		}
	}
	return col, nil
}

func (c *netcdfContainer) Attribute(name string) (string, bool) {
	return attributeString(c.group.Attributes(), name)
}

func (c *netcdfContainer) Close() {
	c.group.Close()
}

func attributeString(attrs api.AttributeMap, key string) (string, bool) {
	if attrs == nil {
		return "", false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), true
	case []string:
		return strings.TrimSpace(strings.Join(s, " ")), true
	default:
		return fmt.Sprint(v), true
	}
}

// flatten walks nested slices of numbers or strings, recording the shape.
func flatten(name string, values any) (*column, error) {
	col := column{name: name}
	if values == nil {
		return nil, fmt.Errorf("column %s has no values", name)
	}

	rv := reflect.ValueOf(values)
	if rv.Kind() != reflect.Slice {
		// Scalars are read as one element columns.
		s := reflect.MakeSlice(reflect.SliceOf(rv.Type()), 1, 1)
		s.Index(0).Set(rv)
		rv = s
	}

	for t := rv.Type(); t.Kind() == reflect.Slice; t = t.Elem() {
		col.dims = append(col.dims, 0)
	}
	if ints, ok := values.([]int64); ok {
		col.dims[0] = len(ints)
		col.ints = ints
		return &col, nil
	}

	var walk func(v reflect.Value, depth int) error
	walk = func(v reflect.Value, depth int) error {
		if v.Kind() == reflect.Slice {
			if col.dims[depth] == 0 {
				col.dims[depth] = v.Len()
			} else if col.dims[depth] != v.Len() {
				return fmt.Errorf("column %s is ragged at depth %d", name, depth)
			}
			for i := 0; i < v.Len(); i++ {
				if err := walk(v.Index(i), depth+1); err != nil {
					return err
				}
			}
			return nil
		}

		switch v.Kind() {
		case reflect.Float32, reflect.Float64:
			col.numbers = append(col.numbers, v.Float())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			col.numbers = append(col.numbers, float64(v.Int()))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			col.numbers = append(col.numbers, float64(v.Uint()))
		case reflect.String:
			col.strings = append(col.strings, v.String())
		default:
			return fmt.Errorf("column %s has unsupported element type %s", name, v.Type())
		}
		return nil
	}
	if err := walk(rv, 0); err != nil {
		return nil, err
	}

	// Empty slices leave nothing appended; keep the column typed as numeric.
	if col.numbers == nil && col.strings == nil {
		col.numbers = []float64{}
	}
	return &col, nil
}

// cdfContainer reads NASA CDF files.
type cdfContainer struct {
	path string
	file *cdf.File
}

func openCDF(path string) (*cdfContainer, error) {
	f, err := cdf.Open(path)
	if err != nil {
		return nil, err
	}
	return &cdfContainer{path: path, file: f}, nil
}

func (c *cdfContainer) Path() string { return c.path }

func (c *cdfContainer) Columns() []string {
	return c.file.Names()
}

func (c *cdfContainer) Column(name string) (*column, error) {
	v, ok := c.file.Get(name)
	if !ok {
		return nil, fmt.Errorf("reading %s: no such variable", name)
	}

	col := column{name: name, dims: v.Dims}
	switch {
	case v.Strings != nil:
		col.strings = v.Strings
	case v.Ints != nil && len(v.Dims) == 1:
		col.ints = v.Ints
	case v.Ints != nil:
		col.numbers = make([]float64, len(v.Ints))
		for i, n := range v.Ints {
			col.numbers[i] = float64(n)
		}
	default:
		col.numbers = v.Numbers
	}
	for _, key := range []string{"UNITS", "units", "Units"} {
		if u, ok := v.Attribute(key); ok {
			col.units = strings.TrimSpace(u)
			break
		}
	}
	return &col, nil
}

func (c *cdfContainer) Attribute(name string) (string, bool) {
	return c.file.Attribute(name)
}

func (c *cdfContainer) Close() {}

// savContainer reads IDL SAVE files.
type savContainer struct {
	path string
	file *idlsav.File
}

func openSAV(path string) (*savContainer, error) {
	f, err := idlsav.Open(path)
	if err != nil {
		return nil, err
	}
	return &savContainer{path: path, file: f}, nil
}

func (c *savContainer) Path() string { return c.path }

func (c *savContainer) Columns() []string {
	return c.file.Names()
}

func (c *savContainer) Column(name string) (*column, error) {
	v, ok := c.file.Get(name)
	if !ok {
		return nil, fmt.Errorf("reading %s: no such variable", name)
	}

	col := column{name: name, dims: v.Dims}
	if col.dims == nil {
		col.dims = []int{v.Len()}
	}
	if v.Type == idlsav.TypeString {
		col.strings = v.Strings
	} else {
		col.numbers = v.Numbers
	}
	return &col, nil
}

// Attribute always fails: SAVE files have no global attributes.
func (c *savContainer) Attribute(string) (string, bool) {
	return "", false
}

func (c *savContainer) Close() {}
