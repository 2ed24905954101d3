// Package columnar is the pre flattened input path: geometries come as
// typed arrays per kind and features are only synthesized on demand.
package columnar

import (
	"io"
	"sort"

	"github.com/fxamacker/cbor"
	"github.com/pkg/errors"
	"github.com/twpayne/go-geom"

	"github.com/akhenakh/geobucket"
)

// Positions are flat coordinates, Size values per vertex
type Positions struct {
	Value []float64 `json:"value" cbor:"value"`
	Size  int       `json:"size" cbor:"size"`
}

func (p *Positions) size() int {
	if p.Size <= 0 {
		return 2
	}
	return p.Size
}

// NumVertices returns the count of vertices stored
func (p *Positions) NumVertices() int {
	return len(p.Value) / p.size()
}

// Points one primitive per vertex
type Points struct {
	Positions        Positions `json:"positions" cbor:"positions"`
	GlobalFeatureIDs []uint32  `json:"globalFeatureIds" cbor:"globalFeatureIds"`
}

// Lines one primitive per path,
// path i spans the vertices [PathIndices[i], PathIndices[i+1])
type Lines struct {
	Positions        Positions `json:"positions" cbor:"positions"`
	PathIndices      []uint32  `json:"pathIndices" cbor:"pathIndices"`
	GlobalFeatureIDs []uint32  `json:"globalFeatureIds" cbor:"globalFeatureIds"`
}

// Polygons one primitive per polygon,
// polygon i spans the vertices [PolygonIndices[i], PolygonIndices[i+1]),
// PrimitivePolygonIndices holds the start vertex of every ring plus the end.
type Polygons struct {
	Positions               Positions `json:"positions" cbor:"positions"`
	PolygonIndices          []uint32  `json:"polygonIndices" cbor:"polygonIndices"`
	PrimitivePolygonIndices []uint32  `json:"primitivePolygonIndices" cbor:"primitivePolygonIndices"`
	GlobalFeatureIDs        []uint32  `json:"globalFeatureIds" cbor:"globalFeatureIds"`
}

// Collection is a feature collection as structures of arrays
type Collection struct {
	Points   *Points   `json:"points" cbor:"points"`
	Lines    *Lines    `json:"lines" cbor:"lines"`
	Polygons *Polygons `json:"polygons" cbor:"polygons"`
	// Properties indexed by global feature id
	Properties []map[string]interface{} `json:"properties,omitempty" cbor:"properties"`
	// FeatureCount is the number of source features
	FeatureCount int `json:"featureCount,omitempty" cbor:"featureCount"`
}

// Validate checks the offsets are consistent with the positions
func (c *Collection) Validate() error {
	if c.Points == nil || c.Lines == nil || c.Polygons == nil {
		return errors.New("columnar collection needs points, lines and polygons")
	}

	if err := checkPositions(&c.Points.Positions); err != nil {
		return errors.Wrap(err, "invalid points")
	}
	if len(c.Points.GlobalFeatureIDs) != c.Points.Positions.NumVertices() {
		return errors.Errorf("invalid points: %d ids for %d points",
			len(c.Points.GlobalFeatureIDs), c.Points.Positions.NumVertices())
	}

	if err := checkPositions(&c.Lines.Positions); err != nil {
		return errors.Wrap(err, "invalid lines")
	}
	if err := checkOffsets(c.Lines.PathIndices, c.Lines.Positions.NumVertices()); err != nil {
		return errors.Wrap(err, "invalid lines path indices")
	}
	if n := primitives(c.Lines.PathIndices); len(c.Lines.GlobalFeatureIDs) != n {
		return errors.Errorf("invalid lines: %d ids for %d paths", len(c.Lines.GlobalFeatureIDs), n)
	}

	p := c.Polygons
	if err := checkPositions(&p.Positions); err != nil {
		return errors.Wrap(err, "invalid polygons")
	}
	if err := checkOffsets(p.PolygonIndices, p.Positions.NumVertices()); err != nil {
		return errors.Wrap(err, "invalid polygons polygon indices")
	}
	if err := checkOffsets(p.PrimitivePolygonIndices, p.Positions.NumVertices()); err != nil {
		return errors.Wrap(err, "invalid polygons primitive polygon indices")
	}
	for _, start := range p.PolygonIndices {
		i := sort.Search(len(p.PrimitivePolygonIndices), func(i int) bool {
			return p.PrimitivePolygonIndices[i] >= start
		})
		if i == len(p.PrimitivePolygonIndices) || p.PrimitivePolygonIndices[i] != start {
			return errors.Errorf("invalid polygons: polygon starting at %d is not a ring start", start)
		}
	}
	if n := primitives(p.PolygonIndices); len(p.GlobalFeatureIDs) != n {
		return errors.Errorf("invalid polygons: %d ids for %d polygons", len(p.GlobalFeatureIDs), n)
	}

	return nil
}

func checkPositions(p *Positions) error {
	if p.Size < 0 || p.Size == 1 || p.Size > 4 {
		return errors.Errorf("unsupported positions size %d", p.Size)
	}
	if len(p.Value)%p.size() != 0 {
		return errors.Errorf("%d values is not a multiple of size %d", len(p.Value), p.size())
	}
	return nil
}

// checkOffsets offsets are ascending, starting at 0 and ending at vertices
func checkOffsets(offsets []uint32, vertices int) error {
	if len(offsets) == 0 {
		if vertices != 0 {
			return errors.Errorf("no offsets for %d vertices", vertices)
		}
		return nil
	}
	if offsets[0] != 0 {
		return errors.New("offsets must start at 0")
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return errors.Errorf("offsets not ascending at %d", i)
		}
	}
	if int(offsets[len(offsets)-1]) != vertices {
		return errors.Errorf("last offset %d does not match %d vertices", offsets[len(offsets)-1], vertices)
	}
	return nil
}

func primitives(offsets []uint32) int {
	if len(offsets) == 0 {
		return 0
	}
	return len(offsets) - 1
}

// Encode writes the collection as CBOR
func Encode(w io.Writer, c *Collection) error {
	enc := cbor.NewEncoder(w, cbor.CanonicalEncOptions())
	if err := enc.Encode(c); err != nil {
		return errors.Wrap(err, "can't encode columnar collection")
	}
	return nil
}

// Decode reads a CBOR collection and validates it
func Decode(r io.Reader) (*Collection, error) {
	c := &Collection{}
	dec := cbor.NewDecoder(r)
	if err := dec.Decode(c); err != nil {
		return nil, errors.Wrap(err, "can't decode columnar collection")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// layout from the positions size
func (p *Positions) layout() geom.Layout {
	return geobucket.LayoutFromStride(p.size())
}
