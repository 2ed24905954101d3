// Package splice keeps decomposed buckets up to date when only some
// rows of the source collection changed.
package splice

import (
	"slices"
	"sort"

	"github.com/akhenakh/geobucket"
)

// Store holds the buckets of a layer between update passes
type Store struct {
	Buckets geobucket.Buckets
	// Stroked maintains the outline bucket
	Stroked bool
}

// Rebuild separates all the features from scratch
func Rebuild(s Store, features []*geobucket.Feature) Store {
	s.Buckets = geobucket.Separate(features, nil)
	if s.Stroked {
		s.Buckets.Outlines.Records = geobucket.Outline(s.Buckets.Polygons.Records)
	}
	return s
}

func (s *Store) types() []geobucket.BucketType {
	if s.Stroked {
		return geobucket.BucketTypes
	}
	return geobucket.BucketTypes[:3]
}

// replacement separates the features in r, deriving outlines when needed
func (s *Store) replacement(features []*geobucket.Feature, r geobucket.Range) geobucket.Buckets {
	sub := geobucket.Separate(features, &r)
	if s.Stroked {
		sub.Outlines.Records = geobucket.Outline(sub.Polygons.Records)
	}
	return sub
}

// ApplyRanges recomputes the records of the features in every range and
// splices them into the buckets in place.
// ranges are over source rows, they are expected ascending and non
// overlapping, the row count of the collection must not have changed.
// Every record is bound to features, which may be a freshly decoded
// collection.
// The report holds one entry per range for each bucket.
func ApplyRanges(s Store, features []*geobucket.Feature, ranges []geobucket.Range) (Store, geobucket.Report) {
	if !Ordered(ranges) {
		ranges = NormalizeRanges(ranges)
	}

	report := make(geobucket.Report)
	for _, t := range s.types() {
		report[t] = make([]geobucket.Range, 0, len(ranges))
	}

	for _, r := range ranges {
		sub := s.replacement(features, r)
		for _, t := range s.types() {
			b := s.Buckets.Bucket(t)
			lo, hi := b.Span(r.Start, r.End)
			repl := sub.Bucket(t).Records
			b.Records = slices.Replace(b.Records, lo, hi, repl...)
			report[t] = append(report[t], geobucket.Range{Start: lo, End: lo + len(repl)})
		}
	}

	// untouched records point to the new collection
	for _, t := range s.types() {
		rebind(s.Buckets.Bucket(t).Records, features)
	}

	return s, report
}

func rebind(records []geobucket.Record, features []*geobucket.Feature) {
	for i := range records {
		if idx := records[i].SourceIndex; idx >= 0 && idx < len(features) {
			records[i].Feature = features[idx]
		}
	}
}

// Replace handles the rows r of the source being replaced by count rows.
// features is the collection after the replacement.
// Records after the replaced span get their source index shifted, they are
// reported as changed when the shift is not zero.
func Replace(s Store, features []*geobucket.Feature, r geobucket.Range, count int) (Store, geobucket.Report) {
	if count < 0 {
		count = 0
	}
	delta := count - r.Len()
	report := make(geobucket.Report)

	sub := s.replacement(features, geobucket.Range{Start: r.Start, End: r.Start + count})
	for _, t := range s.types() {
		b := s.Buckets.Bucket(t)
		lo, hi := b.Span(r.Start, r.End)

		if delta != 0 {
			for i := hi; i < len(b.Records); i++ {
				rec := &b.Records[i]
				rec.SourceIndex += delta
				if rec.SourceIndex >= 0 && rec.SourceIndex < len(features) {
					rec.Feature = features[rec.SourceIndex]
				}
			}
		}

		repl := sub.Bucket(t).Records
		b.Records = slices.Replace(b.Records, lo, hi, repl...)

		end := lo + len(repl)
		if delta != 0 && end < len(b.Records) {
			end = len(b.Records)
		}
		report[t] = []geobucket.Range{{Start: lo, End: end}}
	}

	return s, report
}

// Ordered reports whether the ranges are ascending and non overlapping
func Ordered(ranges []geobucket.Range) bool {
	for i, r := range ranges {
		if r.End < r.Start {
			return false
		}
		if i > 0 && r.Start < ranges[i-1].End {
			return false
		}
	}
	return true
}

// NormalizeRanges sorts the ranges, drops the inverted ones and merges the
// overlapping ones
func NormalizeRanges(ranges []geobucket.Range) []geobucket.Range {
	res := make([]geobucket.Range, 0, len(ranges))
	for _, r := range ranges {
		if r.End < r.Start {
			continue
		}
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Start != res[j].Start {
			return res[i].Start < res[j].Start
		}
		return res[i].End < res[j].End
	})

	merged := res[:0]
	for _, r := range res {
		if n := len(merged); n > 0 && r.Start < merged[n-1].End {
			if r.End > merged[n-1].End {
				merged[n-1].End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}
