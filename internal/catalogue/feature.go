// Package catalogue holds the polygons a user draws on the time-frequency
// plane and reads and writes them as a time-frequency GeoJSON catalogue.
package catalogue

import (
	"errors"
	"fmt"
	"math"

	"github.com/roman-kulish/spacelabel/internal/epoch"
)

// MinVertexes is the smallest number of vertexes that encloses an area.
const MinVertexes = 3

var (
	ErrTooFewVertexes = errors.New("feature needs at least 3 vertexes")
	ErrInvalidVertex  = errors.New("invalid vertex")
)

// Vertex is one corner of a feature polygon.
type Vertex struct {
	Time      epoch.JulianDate
	Frequency float64
}

// Feature is a named polygon on the time-frequency plane. The last vertex
// connects back to the first.
type Feature struct {
	id       int
	name     string
	vertexes []Vertex
}

func newFeature(id int, name string, vertexes []Vertex) (*Feature, error) {
	if len(vertexes) < MinVertexes {
		return nil, fmt.Errorf("%w: %q has %d", ErrTooFewVertexes, name, len(vertexes))
	}
	for i, v := range vertexes {
		if !finite(float64(v.Time)) || !finite(v.Frequency) {
			return nil, fmt.Errorf("%w: %q vertex %d is (%v, %v)", ErrInvalidVertex, name, i, float64(v.Time), v.Frequency)
		}
	}

	return &Feature{
		id:       id,
		name:     name,
		vertexes: append([]Vertex(nil), vertexes...),
	}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ID is the position of the feature in its catalogue at the time it was
// added. It is not stable across catalogue rewrites.
func (f *Feature) ID() int { return f.id }

func (f *Feature) Name() string { return f.name }

func (f *Feature) Rename(name string) { f.name = name }

// Vertexes returns a copy of the polygon corners.
func (f *Feature) Vertexes() []Vertex {
	return append([]Vertex(nil), f.vertexes...)
}

// TimeExtent returns the earliest and latest vertex time.
func (f *Feature) TimeExtent() (epoch.JulianDate, epoch.JulianDate) {
	lo, hi := f.vertexes[0].Time, f.vertexes[0].Time
	for _, v := range f.vertexes[1:] {
		lo = min(lo, v.Time)
		hi = max(hi, v.Time)
	}
	return lo, hi
}

// FrequencyExtent returns the lowest and highest vertex frequency.
func (f *Feature) FrequencyExtent() (float64, float64) {
	lo, hi := f.vertexes[0].Frequency, f.vertexes[0].Frequency
	for _, v := range f.vertexes[1:] {
		lo = min(lo, v.Frequency)
		hi = max(hi, v.Frequency)
	}
	return lo, hi
}

// InTimeRange reports whether the feature's time extent overlaps the
// inclusive range [start, end].
func (f *Feature) InTimeRange(start, end epoch.JulianDate) bool {
	lo, hi := f.TimeExtent()
	return lo <= end && hi >= start
}

// Summary formats the feature's bounding box as
// "name, time min, time max, frequency min, frequency max".
func (f *Feature) Summary() string {
	t0, t1 := f.TimeExtent()
	f0, f1 := f.FrequencyExtent()
	return fmt.Sprintf("%s, %s, %s, %g, %g", f.name, t0, t1, f0, f1)
}
