package catalogue

import (
	"github.com/roman-kulish/spacelabel/internal/epoch"
)

// Catalogue is the ordered set of features owned by one dataset. Features
// are appended during a session and only ever removed by replacing the
// whole sequence. It is not safe for concurrent use.
type Catalogue struct {
	features []*Feature
}

func New() *Catalogue {
	return &Catalogue{}
}

// Add appends a feature. Its ID is the number of features before the append.
func (c *Catalogue) Add(name string, vertexes []Vertex) (*Feature, error) {
	f, err := newFeature(len(c.features), name, vertexes)
	if err != nil {
		return nil, err
	}
	c.features = append(c.features, f)
	return f, nil
}

func (c *Catalogue) Len() int {
	return len(c.features)
}

// Features returns the features in insertion order.
func (c *Catalogue) Features() []*Feature {
	return append([]*Feature(nil), c.features...)
}

// InRange returns, in insertion order, the features whose time extent
// overlaps [start, end]. A feature is included when either end of its
// extent falls inside the window, or when it spans the whole window.
func (c *Catalogue) InRange(start, end epoch.JulianDate) []*Feature {
	var out []*Feature
	for _, f := range c.features {
		if f.InTimeRange(start, end) {
			out = append(out, f)
		}
	}
	return out
}

// Replace discards every feature and re-adds the given ones, renumbering
// them by position.
func (c *Catalogue) Replace(features []*Feature) {
	c.features = make([]*Feature, len(features))
	for i, f := range features {
		f.id = i
		c.features[i] = f
	}
}
