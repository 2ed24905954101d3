// Package picking maps a rendered primitive back to its source feature.
package picking

import (
	"github.com/akhenakh/geobucket"
	"github.com/akhenakh/geobucket/columnar"
)

// Resolver resolves primitives of the object path buckets or of the
// columnar buckets, only one of them is set.
type Resolver struct {
	Objects *geobucket.Buckets
	Columns *columnar.Buckets
}

// Columnar reports whether the resolver works on the columnar path
func (r Resolver) Columnar() bool {
	return r.Columns != nil
}

// Resolve returns the global feature index of primitive i of bucket t,
// geobucket.NoFeature when i is stale or out of range.
// Text primitives are expected as point primitives, characters are remapped
// by the caller.
func (r Resolver) Resolve(t geobucket.BucketType, i int) int {
	if r.Columns != nil {
		b := r.Columns.Bucket(t)
		if b == nil {
			return geobucket.NoFeature
		}
		return b.FeatureIndex(i)
	}

	if r.Objects == nil {
		return geobucket.NoFeature
	}
	if t == geobucket.Text {
		t = geobucket.Points
	}
	b := r.Objects.Bucket(t)
	if b == nil {
		return geobucket.NoFeature
	}
	return b.FeatureIndex(i)
}
