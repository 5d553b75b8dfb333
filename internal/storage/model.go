package storage

import (
	"gonum.org/v1/gonum/mat"

	"github.com/roman-kulish/spacelabel/internal/epoch"
)

// Snapshot is the full content of a preprocessed dataset as it is stored in
// a cache file.
type Snapshot struct {
	Observer string
	Source   string // File the dataset was originally read from

	// Resampling parameters that produced the snapshot. Nil means the axis
	// was not resampled.
	FrequencyResolution *int
	TimeMinimum         *float64

	Time          []epoch.JulianDate
	TimeUnit      string
	Frequency     []float64
	FrequencyUnit string

	Measurements []Measurement // Ordered by name
	Series       []Series      // Ordered by name
}

// Measurement is a time-major (time x frequency) matrix.
type Measurement struct {
	Name  string
	Units string
	Data  *mat.Dense // Nil when read without data
}

// Series is a 1-D quantity sampled on its own time axis.
type Series struct {
	Name   string
	Units  string
	Time   []epoch.JulianDate
	Values []float64
}
