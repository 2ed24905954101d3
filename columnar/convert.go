package columnar

import (
	"github.com/twpayne/go-geom"

	"github.com/akhenakh/geobucket"
)

// FromFeatures builds the columnar equivalent of features, primitives are
// in the same order as the object path buckets.
// Coordinates are truncated or zero padded to size values.
func FromFeatures(features []*geobucket.Feature, size int) *Collection {
	if size < 2 || size > 4 {
		size = 2
	}
	b := geobucket.Separate(features, nil)

	c := &Collection{
		Points:       &Points{Positions: Positions{Size: size}, GlobalFeatureIDs: []uint32{}},
		Lines:        &Lines{Positions: Positions{Size: size}, GlobalFeatureIDs: []uint32{}},
		Polygons:     &Polygons{Positions: Positions{Size: size}, GlobalFeatureIDs: []uint32{}},
		Properties:   make([]map[string]interface{}, len(features)),
		FeatureCount: len(features),
	}
	for i, f := range features {
		c.Properties[i] = f.Props
	}

	for _, r := range b.Points.Records {
		c.Points.Positions.Value = appendCoords(c.Points.Positions.Value, r.Geometry, size)
		c.Points.GlobalFeatureIDs = append(c.Points.GlobalFeatureIDs, uint32(r.SourceIndex))
	}

	lines := c.Lines
	lines.PathIndices = []uint32{0}
	for _, r := range b.Lines.Records {
		lines.Positions.Value = appendCoords(lines.Positions.Value, r.Geometry, size)
		lines.PathIndices = append(lines.PathIndices, uint32(lines.Positions.NumVertices()))
		lines.GlobalFeatureIDs = append(lines.GlobalFeatureIDs, uint32(r.SourceIndex))
	}

	polys := c.Polygons
	polys.PolygonIndices = []uint32{0}
	polys.PrimitivePolygonIndices = []uint32{0}
	for _, r := range b.Polygons.Records {
		p := r.Geometry.(*geom.Polygon)
		for j := 0; j < p.NumLinearRings(); j++ {
			polys.Positions.Value = appendCoords(polys.Positions.Value, p.LinearRing(j), size)
			polys.PrimitivePolygonIndices = append(polys.PrimitivePolygonIndices, uint32(polys.Positions.NumVertices()))
		}
		polys.PolygonIndices = append(polys.PolygonIndices, uint32(polys.Positions.NumVertices()))
		polys.GlobalFeatureIDs = append(polys.GlobalFeatureIDs, uint32(r.SourceIndex))
	}

	return c
}

// MaxStride returns the largest coordinates stride of the features,
// between 2 and 4, so FromFeatures keeps every ordinate
func MaxStride(features []*geobucket.Feature) int {
	size := 2
	for _, f := range features {
		if f == nil || f.Geom == nil {
			continue
		}
		if s := f.Geom.Stride(); s > size {
			size = s
		}
	}
	if size > 4 {
		size = 4
	}
	return size
}

func appendCoords(dst []float64, g geom.T, size int) []float64 {
	flat := g.FlatCoords()
	stride := g.Stride()
	for i := 0; i+stride <= len(flat); i += stride {
		for j := 0; j < size; j++ {
			if j < stride {
				dst = append(dst, flat[i+j])
				continue
			}
			dst = append(dst, 0)
		}
	}
	return dst
}
