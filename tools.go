package geobucket

import (
	"github.com/twpayne/go-geom"
)

// Normalize classifies the feature geometry and returns its flat records,
// Multi* geometries are expanded into one record per part.
// A missing or unknown geometry contributes nothing.
func Normalize(f *Feature) []Record {
	if f == nil || f.Geom == nil {
		return nil
	}
	sub := 0
	return appendGeometry(nil, f, f.Geom, &sub)
}

func appendGeometry(out []Record, f *Feature, g geom.T, sub *int) []Record {
	switch rg := g.(type) {
	case *geom.Point:
		if !rg.Empty() {
			out = append(out, newRecord(f, *sub, Point, rg))
		}
		*sub++
	case *geom.MultiPoint:
		for i := 0; i < rg.NumPoints(); i++ {
			p := rg.Point(i)
			if !p.Empty() {
				out = append(out, newRecord(f, *sub, Point, p))
			}
			*sub++
		}
	case *geom.LineString:
		if !rg.Empty() {
			out = append(out, newRecord(f, *sub, Line, rg))
		}
		*sub++
	case *geom.MultiLineString:
		for i := 0; i < rg.NumLineStrings(); i++ {
			ls := rg.LineString(i)
			if !ls.Empty() {
				out = append(out, newRecord(f, *sub, Line, ls))
			}
			*sub++
		}
	case *geom.Polygon:
		if !rg.Empty() {
			out = append(out, newRecord(f, *sub, Polygon, rg))
		}
		*sub++
	case *geom.MultiPolygon:
		for i := 0; i < rg.NumPolygons(); i++ {
			p := rg.Polygon(i)
			if !p.Empty() {
				out = append(out, newRecord(f, *sub, Polygon, p))
			}
			*sub++
		}
	case *geom.GeometryCollection:
		for _, cg := range rg.Geoms() {
			out = appendGeometry(out, f, cg, sub)
		}
	}
	return out
}

func newRecord(f *Feature, sub int, k Kind, g geom.T) Record {
	return Record{
		SourceIndex: f.Index,
		SubIndex:    sub,
		Kind:        k,
		Geometry:    g,
		Feature:     f,
	}
}

// Outline derives one line record per ring of the polygon records
func Outline(polygons []Record) []Record {
	var out []Record
	for _, r := range polygons {
		p, ok := r.Geometry.(*geom.Polygon)
		if !ok {
			continue
		}
		for i := 0; i < p.NumLinearRings(); i++ {
			lr := p.LinearRing(i)
			out = append(out, Record{
				SourceIndex: r.SourceIndex,
				SubIndex:    r.SubIndex,
				Ring:        i,
				Kind:        Line,
				Geometry:    geom.NewLineStringFlat(lr.Layout(), lr.FlatCoords()),
				Feature:     r.Feature,
			})
		}
	}
	return out
}

// LayoutFromStride returns the coordinates layout for a stride of size
func LayoutFromStride(size int) geom.Layout {
	switch size {
	case 3:
		return geom.XYZ
	case 4:
		return geom.XYZM
	}
	return geom.XY
}
