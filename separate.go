package geobucket

// Separate runs Normalize over the features and routes the records into
// their bucket, in source order.
// When r is not nil only the features whose index is in r are processed.
// Outlines are not derived, see Outline.
func Separate(features []*Feature, r *Range) Buckets {
	b := NewBuckets()

	start, end := 0, len(features)
	if r != nil {
		start, end = clamp(r.Start, len(features)), clamp(r.End, len(features))
	}

	for i := start; i < end; i++ {
		for _, rec := range Normalize(features[i]) {
			b.add(rec)
		}
	}
	return b
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v > n {
		return n
	}
	return v
}
