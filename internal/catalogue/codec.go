package catalogue

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/xeipuuv/gojsonschema"

	"github.com/roman-kulish/spacelabel/internal/epoch"
)

var ErrCatalogueParse = errors.New("malformed feature catalogue")

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

const (
	timeCoordsID   = "unix"
	featureTypeKey = "feature_type"
)

// Meta describes the coordinate system written alongside the features.
type Meta struct {
	Observer      string
	FrequencyUnit string
}

func (m Meta) crs() map[string]any {
	return map[string]any{
		"type": "Cartesian",
		"name": "Time-Frequency",
		"properties": map[string]any{
			"type":           "Cartesian",
			"name":           "Time-Frequency",
			"time_coords_id": timeCoordsID,
			"time_coords": map[string]any{
				"id":          timeCoordsID,
				"name":        "Timestamp (Unix Time)",
				"unit":        "s",
				"time_origin": "1970-01-01T00:00:00.000Z",
				"time_scale":  "UTC",
			},
			"spectral_coords": map[string]any{
				"name": "Frequency",
				"unit": m.FrequencyUnit,
			},
			"ref_position_id": m.Observer,
			"ref_position":    map[string]any{"id": m.Observer},
		},
	}
}

// Encode writes features as a GeoJSON FeatureCollection whose polygons have
// (unix seconds, frequency) coordinates. Every ring is emitted
// counter-clockwise; clockwise input is reversed.
func Encode(features []*Feature, meta Meta) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	fc.ExtraMembers = geojson.Properties{"crs": meta.crs()}

	for _, f := range features {
		ring := make(orb.Ring, len(f.vertexes))
		for i, v := range f.vertexes {
			ring[i] = orb.Point{v.Time.Unix(), v.Frequency}
		}
		if ring.Orientation() == orb.CW {
			ring.Reverse()
		}

		gf := geojson.NewFeature(orb.Polygon{ring})
		gf.ID = f.id
		gf.Properties[featureTypeKey] = f.name
		fc.Append(gf)
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding catalogue: %w", err)
	}
	return data, nil
}

// Decode parses a catalogue written by Encode or by another tool following
// the same layout. Empty input yields no features. IDs are assigned by
// position, so a decoded catalogue is numbered 0..n-1 regardless of the IDs
// stored in the document.
func Decode(data []byte) ([]*Feature, Meta, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, Meta{}, nil
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, Meta{}, fmt.Errorf("%w: %w", ErrCatalogueParse, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return nil, Meta{}, fmt.Errorf("%w: %s", ErrCatalogueParse, strings.Join(details, "; "))
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("%w: %w", ErrCatalogueParse, err)
	}

	features := make([]*Feature, 0, len(fc.Features))
	for i, gf := range fc.Features {
		poly, ok := gf.Geometry.(orb.Polygon)
		if !ok || len(poly) == 0 {
			return nil, Meta{}, fmt.Errorf("%w: feature %d is not a polygon", ErrCatalogueParse, i)
		}

		ring := poly[0]
		if ring.Closed() {
			ring = ring[:len(ring)-1]
		}

		vertexes := make([]Vertex, len(ring))
		for j, p := range ring {
			vertexes[j] = Vertex{Time: epoch.FromUnix(p[0]), Frequency: p[1]}
		}

		name, _ := gf.Properties[featureTypeKey].(string)
		f, err := newFeature(i, name, vertexes)
		if err != nil {
			return nil, Meta{}, fmt.Errorf("%w: feature %d: %w", ErrCatalogueParse, i, err)
		}
		features = append(features, f)
	}

	return features, decodeMeta(fc.ExtraMembers), nil
}

func decodeMeta(extra geojson.Properties) Meta {
	var meta Meta

	crs, _ := extra["crs"].(map[string]any)
	props, _ := crs["properties"].(map[string]any)
	if props == nil {
		return meta
	}

	if id, ok := props["ref_position_id"].(string); ok {
		meta.Observer = id
	} else if ref, ok := props["ref_position"].(map[string]any); ok {
		meta.Observer, _ = ref["id"].(string)
	}
	if sc, ok := props["spectral_coords"].(map[string]any); ok {
		meta.FrequencyUnit, _ = sc["unit"].(string)
	}
	return meta
}
