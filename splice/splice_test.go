package splice

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/akhenakh/geobucket"
)

type recordKey struct {
	Src, Sub, Ring int
	Kind           geobucket.Kind
	Flat           []float64
	Ends           []int
}

func keys(recs []geobucket.Record) []recordKey {
	res := make([]recordKey, 0, len(recs))
	for _, r := range recs {
		res = append(res, recordKey{
			Src:  r.SourceIndex,
			Sub:  r.SubIndex,
			Ring: r.Ring,
			Kind: r.Kind,
			Flat: r.Geometry.FlatCoords(),
			Ends: r.Geometry.Ends(),
		})
	}
	return res
}

func TestApplyRanges_Example(t *testing.T) {
	features := []*geobucket.Feature{
		{Index: 0, Geom: geom.NewMultiPointFlat(geom.XY, []float64{0, 0, 1, 1})},
		{Index: 1, Geom: geom.NewPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 0}, []int{8})},
	}

	s := Rebuild(Store{}, features)
	require.Equal(t, 2, s.Buckets.Points.Len())
	require.Equal(t, 0, s.Buckets.Lines.Len())
	require.Equal(t, 1, s.Buckets.Polygons.Len())
	require.Equal(t, 1, s.Buckets.Points.Records[1].SubIndex)

	features[0] = &geobucket.Feature{Index: 0, Geom: geom.NewPointFlat(geom.XY, []float64{5, 5})}

	s, report := ApplyRanges(s, features, []geobucket.Range{{Start: 0, End: 1}})
	require.Equal(t, 1, s.Buckets.Points.Len())
	require.Equal(t, []float64{5, 5}, s.Buckets.Points.Records[0].Geometry.FlatCoords())
	require.Equal(t, 1, s.Buckets.Polygons.Len())

	require.Equal(t, []geobucket.Range{{Start: 0, End: 1}}, report[geobucket.Points])
	require.True(t, report.Changed(geobucket.Points))
	require.False(t, report.Changed(geobucket.Polygons))
	require.False(t, report.Changed(geobucket.Lines))
	require.Equal(t, []geobucket.Range{{Start: 0, End: 0}}, report[geobucket.Polygons])
	_, ok := report[geobucket.Outlines]
	require.False(t, ok, "outlines are not maintained when not stroked")
}

func TestApplyRanges_MultipleRangesShiftPositions(t *testing.T) {
	mp := func(n int) geom.T {
		flat := make([]float64, 0, 2*n)
		for i := 0; i < n; i++ {
			flat = append(flat, float64(i), float64(i))
		}
		return geom.NewMultiPointFlat(geom.XY, flat)
	}

	features := []*geobucket.Feature{
		{Index: 0, Geom: mp(1)},
		{Index: 1, Geom: mp(2)},
		{Index: 2, Geom: mp(1)},
		{Index: 3, Geom: mp(3)},
		{Index: 4, Geom: mp(1)},
	}
	s := Rebuild(Store{}, features)
	require.Equal(t, 8, s.Buckets.Points.Len())

	// feature 1 grows to 4 points, feature 3 shrinks to none
	features[1] = &geobucket.Feature{Index: 1, Geom: mp(4)}
	features[3] = &geobucket.Feature{Index: 3}

	s, report := ApplyRanges(s, features, []geobucket.Range{{Start: 1, End: 2}, {Start: 3, End: 4}})
	require.Equal(t, []geobucket.Range{{Start: 1, End: 5}, {Start: 6, End: 6}}, report[geobucket.Points])
	require.Equal(t, 7, s.Buckets.Points.Len())
	require.True(t, s.Buckets.Points.Sorted())
}

func TestApplyRanges_RebindsFreshCollection(t *testing.T) {
	decode := func() []*geobucket.Feature {
		return []*geobucket.Feature{
			{Index: 0, Geom: geom.NewMultiPointFlat(geom.XY, []float64{0, 0, 1, 1})},
			{Index: 1, Geom: geom.NewLineStringFlat(geom.XY, []float64{0, 0, 1, 1})},
			{Index: 2, Geom: geom.NewPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 0}, []int{8})},
		}
	}

	s := Rebuild(Store{Stroked: true}, decode())

	// same row count, new objects, only row 1 reported as changed
	fresh := decode()
	s, _ = ApplyRanges(s, fresh, []geobucket.Range{{Start: 1, End: 2}})

	for _, bt := range geobucket.BucketTypes {
		for _, rec := range s.Buckets.Bucket(bt).Records {
			require.Same(t, fresh[rec.SourceIndex], rec.Feature, "%s record of row %d", bt, rec.SourceIndex)
		}
	}
}

func TestApplyRanges_Stroked(t *testing.T) {
	square := func(x float64, holes int) geom.T {
		flat := []float64{x, 0, x + 4, 0, x + 4, 4, x, 0}
		ends := []int{8}
		for i := 0; i < holes; i++ {
			flat = append(flat, x+1, 1, x+2, 1, x+2, 2, x+1, 1)
			ends = append(ends, len(flat))
		}
		return geom.NewPolygonFlat(geom.XY, flat, ends)
	}

	features := []*geobucket.Feature{
		{Index: 0, Geom: square(0, 0)},
		{Index: 1, Geom: square(10, 1)},
		{Index: 2, Geom: square(20, 0)},
	}
	s := Rebuild(Store{Stroked: true}, features)
	require.Equal(t, 4, s.Buckets.Outlines.Len())

	features[1] = &geobucket.Feature{Index: 1, Geom: square(10, 2)}
	s, report := ApplyRanges(s, features, []geobucket.Range{{Start: 1, End: 2}})

	require.Equal(t, []geobucket.Range{{Start: 1, End: 2}}, report[geobucket.Polygons])
	require.Equal(t, []geobucket.Range{{Start: 1, End: 4}}, report[geobucket.Outlines])
	require.Equal(t, 5, s.Buckets.Outlines.Len())

	want := Rebuild(Store{Stroked: true}, features)
	require.Equal(t, keys(want.Buckets.Outlines.Records), keys(s.Buckets.Outlines.Records))
}

func TestOrderedAndNormalizeRanges(t *testing.T) {
	tests := []struct {
		name        string
		ranges      []geobucket.Range
		wantOrdered bool
		want        []geobucket.Range
	}{
		{"empty", nil, true, []geobucket.Range{}},
		{
			"ascending",
			[]geobucket.Range{{Start: 0, End: 2}, {Start: 2, End: 3}, {Start: 5, End: 9}},
			true,
			[]geobucket.Range{{Start: 0, End: 2}, {Start: 2, End: 3}, {Start: 5, End: 9}},
		},
		{
			"unordered",
			[]geobucket.Range{{Start: 5, End: 9}, {Start: 0, End: 2}},
			false,
			[]geobucket.Range{{Start: 0, End: 2}, {Start: 5, End: 9}},
		},
		{
			"overlapping",
			[]geobucket.Range{{Start: 0, End: 4}, {Start: 2, End: 6}, {Start: 3, End: 5}},
			false,
			[]geobucket.Range{{Start: 0, End: 6}},
		},
		{
			"inverted",
			[]geobucket.Range{{Start: 4, End: 2}, {Start: 6, End: 7}},
			false,
			[]geobucket.Range{{Start: 6, End: 7}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.wantOrdered, Ordered(tt.ranges))
			got := NormalizeRanges(tt.ranges)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("NormalizeRanges() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplyRanges_UnorderedInput(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	features := randomFeatures(rnd, 20)
	s := Rebuild(Store{}, features)

	features[12] = randomFeature(rnd, 12)
	features[3] = randomFeature(rnd, 3)
	s, _ = ApplyRanges(s, features, []geobucket.Range{{Start: 12, End: 13}, {Start: 2, End: 5}, {Start: 3, End: 4}})

	want := Rebuild(Store{}, features)
	for _, bt := range geobucket.BucketTypes[:3] {
		require.Equal(t, keys(want.Buckets.Bucket(bt).Records), keys(s.Buckets.Bucket(bt).Records), bt.String())
	}
}

// TestApplyRanges_Random replaces random ranges and cross checks with a full rebuild
func TestApplyRanges_Random(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	for iter := 0; iter < 200; iter++ {
		n := 1 + rnd.Intn(40)
		features := randomFeatures(rnd, n)
		s := Rebuild(Store{Stroked: iter%2 == 0}, features)

		before := make(map[geobucket.BucketType][]recordKey)
		oldBuckets := make(map[geobucket.BucketType]geobucket.Bucket)
		for _, bt := range s.types() {
			b := s.Buckets.Bucket(bt)
			before[bt] = keys(b.Records)
			oldBuckets[bt] = geobucket.Bucket{Records: append([]geobucket.Record(nil), b.Records...)}
		}

		ranges := randomRanges(rnd, n)
		for _, r := range ranges {
			for i := r.Start; i < r.End; i++ {
				features[i] = randomFeature(rnd, i)
			}
		}

		s, report := ApplyRanges(s, features, ranges)
		want := Rebuild(Store{Stroked: s.Stroked}, features)

		for _, bt := range s.types() {
			got := s.Buckets.Bucket(bt)
			require.True(t, got.Sorted(), "iter %d bucket %s not sorted", iter, bt)
			if diff := cmp.Diff(keys(want.Buckets.Bucket(bt).Records), keys(got.Records)); diff != "" {
				t.Fatalf("iter %d bucket %s ranges %v differs from rebuild:\n%s", iter, bt, ranges, diff)
			}

			reported := report[bt]
			require.Len(t, reported, len(ranges))

			// positions outside the report are the untouched old records
			old := oldBuckets[bt]
			var wantKept []recordKey
			prev := 0
			for _, r := range ranges {
				lo, hi := old.Span(r.Start, r.End)
				wantKept = append(wantKept, before[bt][prev:lo]...)
				prev = hi
			}
			wantKept = append(wantKept, before[bt][prev:]...)

			var gotKept []recordKey
			all := keys(got.Records)
			prev = 0
			for _, r := range reported {
				require.LessOrEqual(t, prev, r.Start)
				gotKept = append(gotKept, all[prev:r.Start]...)
				prev = r.End

				// reported positions hold the records of the changed rows
				for _, k := range all[r.Start:r.End] {
					require.True(t, inRanges(k.Src, ranges), "record of row %d reported but not changed", k.Src)
				}
			}
			gotKept = append(gotKept, all[prev:]...)

			if diff := cmp.Diff(wantKept, gotKept); diff != "" {
				t.Fatalf("iter %d bucket %s unreported positions changed:\n%s", iter, bt, diff)
			}
		}
	}
}

// TestReplace_Random replaces [a,b) with m features and cross checks with a full rebuild
func TestReplace_Random(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))

	for iter := 0; iter < 200; iter++ {
		n := rnd.Intn(30)
		features := randomFeatures(rnd, n)
		s := Rebuild(Store{Stroked: iter%3 == 0}, features)

		a := rnd.Intn(n + 1)
		b := a + rnd.Intn(n-a+1)
		m := rnd.Intn(6)

		next := make([]*geobucket.Feature, 0, n-(b-a)+m)
		next = append(next, features[:a]...)
		next = append(next, randomFeatures(rnd, m)...)
		next = append(next, features[b:]...)
		geobucket.Reindex(next)

		s, report := Replace(s, next, geobucket.Range{Start: a, End: b}, m)
		want := Rebuild(Store{Stroked: s.Stroked}, next)

		for _, bt := range s.types() {
			got := s.Buckets.Bucket(bt)
			if diff := cmp.Diff(keys(want.Buckets.Bucket(bt).Records), keys(got.Records)); diff != "" {
				t.Fatalf("iter %d bucket %s replace [%d,%d) by %d differs from rebuild:\n%s", iter, bt, a, b, m, diff)
			}
			for _, rec := range got.Records {
				require.Same(t, next[rec.SourceIndex], rec.Feature)
			}

			require.Len(t, report[bt], 1)
			r := report[bt][0]
			require.LessOrEqual(t, r.Start, r.End)
			require.LessOrEqual(t, r.End, got.Len())
			if m != b-a && r.Start < got.Len() {
				require.Equal(t, got.Len(), r.End, "shifted records must be reported")
			}
		}
	}
}

func TestReplace_Shrink(t *testing.T) {
	features := []*geobucket.Feature{
		{Index: 0, Geom: geom.NewPointFlat(geom.XY, []float64{0, 0})},
		{Index: 1, Geom: geom.NewPointFlat(geom.XY, []float64{1, 1})},
		{Index: 2, Geom: geom.NewPointFlat(geom.XY, []float64{2, 2})},
		{Index: 3, Geom: geom.NewLineStringFlat(geom.XY, []float64{3, 3, 4, 4})},
	}
	s := Rebuild(Store{}, features)

	// rows 1 and 2 are removed
	next := []*geobucket.Feature{features[0], features[3]}
	geobucket.Reindex(next)

	s, report := Replace(s, next, geobucket.Range{Start: 1, End: 3}, 0)
	require.Equal(t, 1, s.Buckets.Points.Len())
	require.Equal(t, []geobucket.Range{{Start: 1, End: 1}}, report[geobucket.Points])
	require.Equal(t, 1, s.Buckets.Lines.Records[0].SourceIndex)
	require.Equal(t, []geobucket.Range{{Start: 0, End: 1}}, report[geobucket.Lines])
}

func inRanges(i int, ranges []geobucket.Range) bool {
	for _, r := range ranges {
		if i >= r.Start && i < r.End {
			return true
		}
	}
	return false
}

func randomRanges(rnd *rand.Rand, n int) []geobucket.Range {
	var ranges []geobucket.Range
	pos := 0
	for pos < n {
		start := pos + rnd.Intn(n-pos+1)
		if start >= n {
			break
		}
		end := start + rnd.Intn(n-start+1)
		ranges = append(ranges, geobucket.Range{Start: start, End: end})
		pos = end + 1
	}
	return ranges
}

func randomFeatures(rnd *rand.Rand, n int) []*geobucket.Feature {
	res := make([]*geobucket.Feature, n)
	for i := range res {
		res[i] = randomFeature(rnd, i)
	}
	return res
}

func randomFeature(rnd *rand.Rand, idx int) *geobucket.Feature {
	return &geobucket.Feature{Index: idx, Geom: randomGeometry(rnd, true)}
}

func randomGeometry(rnd *rand.Rand, nested bool) geom.T {
	coord := func() []float64 { return []float64{rnd.Float64() * 100, rnd.Float64() * 100} }
	ring := func(flat []float64) []float64 {
		start := coord()
		flat = append(flat, start...)
		flat = append(flat, coord()...)
		flat = append(flat, coord()...)
		return append(flat, start...)
	}
	polygon := func(flat []float64) ([]float64, []int) {
		var ends []int
		rings := 1 + rnd.Intn(3)
		for r := 0; r < rings; r++ {
			flat = ring(flat)
			ends = append(ends, len(flat))
		}
		return flat, ends
	}

	choices := 7
	if nested {
		choices = 8
	}
	switch rnd.Intn(choices) {
	case 0:
		return nil
	case 1:
		return geom.NewPointFlat(geom.XY, coord())
	case 2:
		var flat []float64
		for i, n := 0, rnd.Intn(4); i < n; i++ {
			flat = append(flat, coord()...)
		}
		return geom.NewMultiPointFlat(geom.XY, flat)
	case 3:
		return geom.NewLineStringFlat(geom.XY, append(coord(), coord()...))
	case 4:
		var flat []float64
		var ends []int
		for i, n := 0, rnd.Intn(4); i < n; i++ {
			flat = append(flat, coord()...)
			flat = append(flat, coord()...)
			ends = append(ends, len(flat))
		}
		return geom.NewMultiLineStringFlat(geom.XY, flat, ends)
	case 5:
		flat, ends := polygon(nil)
		return geom.NewPolygonFlat(geom.XY, flat, ends)
	case 6:
		var flat []float64
		var endss [][]int
		for i, n := 0, rnd.Intn(4); i < n; i++ {
			var ends []int
			flat, ends = polygon(flat)
			endss = append(endss, ends)
		}
		return geom.NewMultiPolygonFlat(geom.XY, flat, endss)
	default:
		gc := geom.NewGeometryCollection()
		for i, n := 0, rnd.Intn(4); i < n; i++ {
			if g := randomGeometry(rnd, false); g != nil {
				if err := gc.Push(g); err != nil {
					panic(err)
				}
			}
		}
		return gc
	}
}
