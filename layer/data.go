package layer

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/akhenakh/geobucket"
	"github.com/akhenakh/geobucket/columnar"
)

// Data is the input of a layer, either Objects or Columns
type Data interface {
	isData()
}

// Objects features of the object path
type Objects struct {
	Features []*geobucket.Feature
}

// Columns collection of the columnar path
type Columns struct {
	Collection *columnar.Collection
}

func (Objects) isData() {}

func (Columns) isData() {}

// Decode reads a GeoJSON value or a columnar collection encoded as JSON.
// An object with points, lines and polygons keys is always columnar.
func Decode(data []byte) (Data, error) {
	if isColumnar(data) {
		c := &columnar.Collection{}
		if err := json.Unmarshal(data, c); err != nil {
			return nil, errors.Wrap(err, "can't decode columnar collection")
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return Columns{Collection: c}, nil
	}

	features, err := geobucket.Flatten(data)
	if err != nil {
		return nil, err
	}
	return Objects{Features: features}, nil
}

func isColumnar(data []byte) bool {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	for _, k := range []string{"points", "lines", "polygons"} {
		if _, ok := probe[k]; !ok {
			return false
		}
	}
	return true
}
