// Package label expands point labels into character primitives.
package label

import (
	"sort"
	"strings"

	"github.com/rivo/uniseg"

	"github.com/akhenakh/geobucket"
)

// Characters one primitive per grapheme cluster,
// the characters of point i are [StartIndices[i], StartIndices[i+1]).
type Characters struct {
	Values       []string
	StartIndices []int
}

// Build expands the text of the n points
func Build(n int, text func(i int) string) *Characters {
	c := &Characters{StartIndices: make([]int, 0, n+1)}
	for i := 0; i < n; i++ {
		c.StartIndices = append(c.StartIndices, len(c.Values))
		g := uniseg.NewGraphemes(text(i))
		for g.Next() {
			c.Values = append(c.Values, g.Str())
		}
	}
	c.StartIndices = append(c.StartIndices, len(c.Values))
	return c
}

// Len returns the count of character primitives
func (c *Characters) Len() int {
	return len(c.Values)
}

// PointIndex returns the point primitive owning character ci
func (c *Characters) PointIndex(ci int) int {
	if c == nil || ci < 0 || ci >= len(c.Values) {
		return geobucket.NoFeature
	}
	// last start <= ci, empty labels share their start with the next point
	i := sort.Search(len(c.StartIndices), func(i int) bool {
		return c.StartIndices[i] > ci
	})
	return i - 1
}

// Text returns the label of point i
func (c *Characters) Text(i int) string {
	if c == nil || i < 0 || i+1 >= len(c.StartIndices) {
		return ""
	}
	return strings.Join(c.Values[c.StartIndices[i]:c.StartIndices[i+1]], "")
}
