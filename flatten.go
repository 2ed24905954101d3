package geobucket

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

type envelope struct {
	Type       string                 `json:"type"`
	ID         json.RawMessage        `json:"id"`
	Features   json.RawMessage        `json:"features"`
	Geometry   json.RawMessage        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type rawGeometry struct {
	Type        string            `json:"type"`
	Coordinates json.RawMessage   `json:"coordinates"`
	Geometries  []json.RawMessage `json:"geometries"`
}

var knownGeometries = map[string]bool{
	"Point":           true,
	"MultiPoint":      true,
	"LineString":      true,
	"MultiLineString": true,
	"Polygon":         true,
	"MultiPolygon":    true,
}

// Flatten walks a GeoJSON value into one ordered sequence of features.
// data can be a geometry, a feature, any object with a geometry member, an
// array of those or a FeatureCollection, collections may be nested.
// Features get their position in the resulting sequence as Index.
func Flatten(data []byte) ([]*Feature, error) {
	var features []*Feature
	if err := walk(data, &features); err != nil {
		return nil, err
	}
	return features, nil
}

func walk(data json.RawMessage, features *[]*Feature) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty geojson input")
	}

	switch data[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return errors.Wrap(err, "can't decode geojson array")
		}
		for _, item := range items {
			if err := walk(item, features); err != nil {
				return err
			}
		}
		return nil
	case '{':
	case 'n':
		if isNull(data) {
			// keep the position, the feature contributes nothing
			*features = append(*features, &Feature{Index: len(*features)})
			return nil
		}
		fallthrough
	default:
		return errors.Errorf("unsupported geojson input starting with %q", data[0])
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return errors.Wrap(err, "can't decode geojson object")
	}

	switch env.Type {
	case "FeatureCollection":
		if isNull(env.Features) {
			return nil
		}
		return walk(env.Features, features)
	case "Feature":
		*features = append(*features, &Feature{
			Index: len(*features),
			ID:    decodeID(env.ID),
			Geom:  DecodeGeometry(env.Geometry),
			Props: env.Properties,
		})
	default:
		// geometry bearing object without a Feature type
		if env.Geometry != nil {
			*features = append(*features, &Feature{
				Index: len(*features),
				ID:    decodeID(env.ID),
				Geom:  DecodeGeometry(env.Geometry),
				Props: env.Properties,
			})
			return nil
		}
		*features = append(*features, &Feature{
			Index: len(*features),
			Geom:  DecodeGeometry(data),
		})
	}
	return nil
}

// DecodeGeometry decodes a GeoJSON geometry, malformed geometries return nil.
// Malformed children of a GeometryCollection are skipped.
func DecodeGeometry(data json.RawMessage) geom.T {
	if isNull(data) {
		return nil
	}
	var rg rawGeometry
	if err := json.Unmarshal(data, &rg); err != nil {
		return nil
	}

	if rg.Type == "GeometryCollection" {
		gc := geom.NewGeometryCollection()
		for _, child := range rg.Geometries {
			cg := DecodeGeometry(child)
			if cg == nil {
				continue
			}
			if err := gc.Push(cg); err != nil {
				continue
			}
		}
		return gc
	}

	if !knownGeometries[rg.Type] || isNull(rg.Coordinates) {
		return nil
	}

	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		return nil
	}
	return g
}

// FlattenCollection turns an already decoded collection into features
func FlattenCollection(fc *geojson.FeatureCollection) []*Feature {
	features := make([]*Feature, 0, len(fc.Features))
	for i, f := range fc.Features {
		nf := &Feature{Index: i}
		if f != nil {
			nf.ID = f.ID
			nf.Geom = f.Geometry
			nf.Props = f.Properties
		}
		features = append(features, nf)
	}
	return features
}

// Reindex assigns every feature its position as Index
func Reindex(features []*Feature) {
	for i, f := range features {
		f.Index = i
	}
}

func decodeID(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func isNull(data json.RawMessage) bool {
	data = bytes.TrimSpace(data)
	return len(data) == 0 || bytes.Equal(data, []byte("null"))
}
