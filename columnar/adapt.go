package columnar

import (
	"sort"

	"github.com/twpayne/go-geom"

	"github.com/akhenakh/geobucket"
)

// Bucket is a view over one kind of the collection, nothing is copied
type Bucket struct {
	Type geobucket.BucketType
	coll *Collection
}

// Buckets the adapted collection
type Buckets struct {
	Points   Bucket
	Lines    Bucket
	Polygons Bucket
	// Outlines share the polygons primitives
	Outlines Bucket
}

// Adapt validates the collection and exposes it as buckets
func Adapt(c *Collection) (*Buckets, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Buckets{
		Points:   Bucket{Type: geobucket.Points, coll: c},
		Lines:    Bucket{Type: geobucket.Lines, coll: c},
		Polygons: Bucket{Type: geobucket.Polygons, coll: c},
		Outlines: Bucket{Type: geobucket.Outlines, coll: c},
	}, nil
}

// Bucket returns the bucket of type t, Text maps to the points
func (b *Buckets) Bucket(t geobucket.BucketType) *Bucket {
	switch t {
	case geobucket.Points, geobucket.Text:
		return &b.Points
	case geobucket.Lines:
		return &b.Lines
	case geobucket.Polygons:
		return &b.Polygons
	case geobucket.Outlines:
		return &b.Outlines
	}
	return nil
}

// Collection returns the backing store
func (b *Bucket) Collection() *Collection {
	return b.coll
}

func (b *Bucket) ids() []uint32 {
	switch b.Type {
	case geobucket.Points, geobucket.Text:
		return b.coll.Points.GlobalFeatureIDs
	case geobucket.Lines:
		return b.coll.Lines.GlobalFeatureIDs
	case geobucket.Polygons, geobucket.Outlines:
		return b.coll.Polygons.GlobalFeatureIDs
	}
	return nil
}

// Len returns the count of primitives
func (b *Bucket) Len() int {
	if b.coll == nil {
		return 0
	}
	return len(b.ids())
}

// FeatureIndex returns the global feature id of primitive i
func (b *Bucket) FeatureIndex(i int) int {
	if b.coll == nil {
		return geobucket.NoFeature
	}
	ids := b.ids()
	if i < 0 || i >= len(ids) {
		return geobucket.NoFeature
	}
	return int(ids[i])
}

// Geometry slices the coordinates of primitive i into a new geometry,
// the flat coordinates share the backing store
func (b *Bucket) Geometry(i int) geom.T {
	if i < 0 || i >= b.Len() {
		return nil
	}
	c := b.coll
	switch b.Type {
	case geobucket.Points, geobucket.Text:
		p := &c.Points.Positions
		s := p.size()
		return geom.NewPointFlat(p.layout(), p.Value[i*s:(i+1)*s])
	case geobucket.Lines:
		p := &c.Lines.Positions
		s := p.size()
		start, end := int(c.Lines.PathIndices[i]), int(c.Lines.PathIndices[i+1])
		return geom.NewLineStringFlat(p.layout(), p.Value[start*s:end*s])
	case geobucket.Polygons, geobucket.Outlines:
		p := &c.Polygons.Positions
		s := p.size()
		start, end := c.Polygons.PolygonIndices[i], c.Polygons.PolygonIndices[i+1]
		rings := c.Polygons.PrimitivePolygonIndices
		first := sort.Search(len(rings), func(j int) bool { return rings[j] > start })
		var ends []int
		for j := first; j < len(rings) && rings[j] <= end; j++ {
			ends = append(ends, int(rings[j]-start)*s)
		}
		return geom.NewPolygonFlat(p.layout(), p.Value[int(start)*s:int(end)*s], ends)
	}
	return nil
}

// Properties looks up the properties table of primitive i
func (b *Bucket) Properties(i int) map[string]interface{} {
	id := b.FeatureIndex(i)
	if id == geobucket.NoFeature || id >= len(b.coll.Properties) {
		return nil
	}
	return b.coll.Properties[id]
}

// View synthesizes the feature of primitive i, it is built lazily on every
// call and never cached
func (b *Bucket) View(i int) geobucket.FeatureView {
	return &view{b: b, i: i}
}

type view struct {
	b *Bucket
	i int
}

func (v *view) Geometry() geom.T { return v.b.Geometry(v.i) }

func (v *view) Properties() map[string]interface{} { return v.b.Properties(v.i) }

func (v *view) SourceIndex() int { return v.b.FeatureIndex(v.i) }
