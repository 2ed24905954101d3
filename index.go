package geobucket

import (
	"fmt"
	"sort"

	"github.com/twpayne/go-geom"
)

// NoFeature is returned when a primitive can't be resolved back to a feature
const NoFeature = -1

// Kind is the geometry kind of a record
type Kind uint8

const (
	Point Kind = iota
	Line
	Polygon
)

func (k Kind) String() string {
	switch k {
	case Point:
		return "point"
	case Line:
		return "line"
	case Polygon:
		return "polygon"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// BucketType identifies one of the output buckets handed to the renderer
type BucketType uint8

const (
	Points BucketType = iota
	Lines
	Polygons
	// Outlines are the polygon rings drawn as lines
	Outlines
	// Text is the label sub bucket of the points
	Text
)

// BucketTypes lists the geometry buckets in a stable order
var BucketTypes = []BucketType{Points, Lines, Polygons, Outlines}

var bucketNames = map[BucketType]string{
	Points:   "points",
	Lines:    "lines",
	Polygons: "polygons",
	Outlines: "outlines",
	Text:     "text",
}

func (t BucketType) String() string {
	if n, ok := bucketNames[t]; ok {
		return n
	}
	return fmt.Sprintf("bucket(%d)", uint8(t))
}

// ParseBucketType returns the bucket type named s
func ParseBucketType(s string) (BucketType, error) {
	for t, n := range bucketNames {
		if n == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown bucket type %q", s)
}

// MarshalText so BucketType can be used as a JSON map key
func (t BucketType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *BucketType) UnmarshalText(b []byte) error {
	v, err := ParseBucketType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// FeatureView is what per feature accessors are evaluated against,
// backed either by a Feature or by a columnar primitive.
type FeatureView interface {
	Geometry() geom.T
	Properties() map[string]interface{}
	SourceIndex() int
}

// Feature representation in memory
type Feature struct {
	// Index is the position in the flattened input
	Index int
	ID    string
	Geom  geom.T
	Props map[string]interface{}
}

func (f *Feature) Geometry() geom.T { return f.Geom }

func (f *Feature) Properties() map[string]interface{} { return f.Props }

func (f *Feature) SourceIndex() int { return f.Index }

// Record is one flat geometry produced from a feature
type Record struct {
	SourceIndex int
	// SubIndex is the part number inside a Multi* or a GeometryCollection
	SubIndex int
	// Ring is the ring number, only set on outline records
	Ring int
	Kind Kind
	// Geometry is a *geom.Point, *geom.LineString or *geom.Polygon
	Geometry geom.T
	// Feature is the originating feature, nil on the columnar path
	Feature *Feature
}

// View returns the record as a FeatureView
func (r *Record) View() FeatureView {
	if r.Feature != nil {
		return r.Feature
	}
	return &Feature{Index: r.SourceIndex, Geom: r.Geometry}
}

func (r *Record) less(o *Record) bool {
	if r.SourceIndex != o.SourceIndex {
		return r.SourceIndex < o.SourceIndex
	}
	if r.SubIndex != o.SubIndex {
		return r.SubIndex < o.SubIndex
	}
	return r.Ring < o.Ring
}

// Bucket is an ordered sequence of records of one kind,
// sorted by (SourceIndex, SubIndex, Ring).
type Bucket struct {
	Type    BucketType
	Records []Record
}

func (b *Bucket) Len() int { return len(b.Records) }

// Span returns the positions [lo, hi) of the records whose source index
// falls in [start, end).
func (b *Bucket) Span(start, end int) (lo, hi int) {
	lo = sort.Search(len(b.Records), func(i int) bool {
		return b.Records[i].SourceIndex >= start
	})
	hi = lo + sort.Search(len(b.Records)-lo, func(i int) bool {
		return b.Records[lo+i].SourceIndex >= end
	})
	return lo, hi
}

// FeatureIndex returns the source index of the record at position i
func (b *Bucket) FeatureIndex(i int) int {
	if i < 0 || i >= len(b.Records) {
		return NoFeature
	}
	return b.Records[i].SourceIndex
}

// Sorted reports whether the ordering contract holds
func (b *Bucket) Sorted() bool {
	for i := 1; i < len(b.Records); i++ {
		if b.Records[i].less(&b.Records[i-1]) {
			return false
		}
	}
	return true
}

// Buckets are the decomposed outputs
type Buckets struct {
	Points   Bucket
	Lines    Bucket
	Polygons Bucket
	Outlines Bucket
}

// NewBuckets returns empty typed buckets
func NewBuckets() Buckets {
	return Buckets{
		Points:   Bucket{Type: Points},
		Lines:    Bucket{Type: Lines},
		Polygons: Bucket{Type: Polygons},
		Outlines: Bucket{Type: Outlines},
	}
}

// Bucket returns the bucket of type t, nil for Text
func (b *Buckets) Bucket(t BucketType) *Bucket {
	switch t {
	case Points:
		return &b.Points
	case Lines:
		return &b.Lines
	case Polygons:
		return &b.Polygons
	case Outlines:
		return &b.Outlines
	}
	return nil
}

func (b *Buckets) add(r Record) {
	switch r.Kind {
	case Point:
		b.Points.Records = append(b.Points.Records, r)
	case Line:
		b.Lines.Records = append(b.Lines.Records, r)
	case Polygon:
		b.Polygons.Records = append(b.Polygons.Records, r)
	}
}

// Range is a half open interval [Start, End)
type Range struct {
	Start int `json:"startRow"`
	End   int `json:"endRow"`
}

func (r Range) Len() int { return r.End - r.Start }

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Report lists per bucket the output positions rewritten by an update
type Report map[BucketType][]Range

// Changed reports whether any position of bucket t was rewritten
func (r Report) Changed(t BucketType) bool {
	for _, rg := range r[t] {
		if rg.Len() > 0 {
			return true
		}
	}
	return false
}
