// Package layer drives the decomposition of one data source across update
// passes and exposes the buckets, accessors and picking to a renderer.
package layer

import (
	"fmt"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/akhenakh/geobucket"
	"github.com/akhenakh/geobucket/columnar"
	"github.com/akhenakh/geobucket/label"
	"github.com/akhenakh/geobucket/picking"
	"github.com/akhenakh/geobucket/splice"
)

// ErrColumnar returned by object path only operations
var ErrColumnar = errors.New("operation not supported on columnar data")

// Options for a Layer
type Options struct {
	// Stroked maintains the polygon outlines bucket
	Stroked bool
	// TextProperty is the property used as point label, no label when empty
	TextProperty string
}

// Layer owns the buckets of a data source, it is not safe for concurrent use
type Layer struct {
	logger log.Logger
	opts   Options

	features []*geobucket.Feature
	store    splice.Store
	columns  *columnar.Buckets
	chars    *label.Characters

	report  geobucket.Report
	version uint64
}

func New(logger log.Logger, opts Options) *Layer {
	return &Layer{
		logger: log.With(logger, "component", "layer"),
		opts:   opts,
		store:  splice.Store{Buckets: geobucket.NewBuckets(), Stroked: opts.Stroked},
	}
}

// OnDataChanged runs an update pass.
// A full change, a columnar input or a change of the feature count rebuilds
// everything, otherwise only the features in ranges are recomputed.
func (l *Layer) OnDataChanged(d Data, full bool, ranges []geobucket.Range) (geobucket.Report, error) {
	start := time.Now()

	switch d := d.(type) {
	case Columns:
		cb, err := columnar.Adapt(d.Collection)
		if err != nil {
			return nil, errors.Wrap(err, "can't adapt columnar data")
		}
		l.features = nil
		l.store = splice.Store{Buckets: geobucket.NewBuckets(), Stroked: l.opts.Stroked}
		l.columns = cb
		l.report = nil
		l.observe("columnar", start)
		level.Debug(l.logger).Log("msg", "adapted columnar data",
			"points", cb.Points.Len(),
			"lines", cb.Lines.Len(),
			"polygons", cb.Polygons.Len(),
		)

	case Objects:
		partial := !full && l.columns == nil && l.features != nil && len(d.Features) == len(l.features)
		l.columns = nil
		l.features = d.Features
		if !partial {
			l.store = splice.Rebuild(l.store, l.features)
			l.report = nil
			l.observe("full", start)
			level.Debug(l.logger).Log("msg", "rebuilt buckets",
				"features", len(l.features),
				"points", l.store.Buckets.Points.Len(),
				"lines", l.store.Buckets.Lines.Len(),
				"polygons", l.store.Buckets.Polygons.Len(),
			)
			break
		}
		l.store, l.report = splice.ApplyRanges(l.store, l.features, ranges)
		l.countSpliced()
		l.observe("partial", start)
		level.Debug(l.logger).Log("msg", "spliced buckets", "ranges", fmt.Sprint(ranges))

	default:
		return nil, errors.Errorf("unsupported data %T", d)
	}

	l.buildLabels()
	l.reportLabels()
	l.version++

	return l.report, nil
}

// ReplaceFeatures replaces the source rows r by features
func (l *Layer) ReplaceFeatures(r geobucket.Range, features []*geobucket.Feature) (geobucket.Report, error) {
	if l.columns != nil {
		return nil, ErrColumnar
	}
	if r.Start < 0 || r.End < r.Start || r.End > len(l.features) {
		return nil, errors.Errorf("invalid range %s for %d features", r, len(l.features))
	}
	start := time.Now()

	next := make([]*geobucket.Feature, 0, len(l.features)-r.Len()+len(features))
	next = append(next, l.features[:r.Start]...)
	next = append(next, features...)
	next = append(next, l.features[r.End:]...)
	geobucket.Reindex(next)

	l.features = next
	l.store, l.report = splice.Replace(l.store, l.features, r, len(features))
	l.countSpliced()
	l.observe("replace", start)
	l.buildLabels()
	l.reportLabels()
	l.version++

	level.Debug(l.logger).Log("msg", "replaced features",
		"range", r.String(),
		"count", len(features),
		"total", len(l.features),
	)

	return l.report, nil
}

func (l *Layer) observe(kind string, start time.Time) {
	updateCounter.WithLabelValues(kind).Inc()
	updateDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (l *Layer) countSpliced() {
	for t, ranges := range l.report {
		for _, r := range ranges {
			splicedRecordsCounter.WithLabelValues(t.String()).Add(float64(r.Len()))
		}
	}
}

// reportLabels marks the whole text bucket as changed, labels are rebuilt
// on every pass
func (l *Layer) reportLabels() {
	if l.report == nil || l.chars == nil {
		return
	}
	l.report[geobucket.Text] = []geobucket.Range{{Start: 0, End: l.chars.Len()}}
}

func (l *Layer) buildLabels() {
	l.chars = nil
	if l.opts.TextProperty == "" {
		return
	}
	n := l.Len(geobucket.Points)
	l.chars = label.Build(n, func(i int) string {
		v := l.View(geobucket.Points, i)
		if v == nil {
			return ""
		}
		p, ok := v.Properties()[l.opts.TextProperty]
		if !ok || p == nil {
			return ""
		}
		if s, ok := p.(string); ok {
			return s
		}
		return fmt.Sprint(p)
	})
}

// Columnar reports whether the layer holds columnar data
func (l *Layer) Columnar() bool {
	return l.columns != nil
}

// Version is incremented on every update pass
func (l *Layer) Version() uint64 {
	return l.version
}

// Report returns the change report of the last partial update, nil after a rebuild
func (l *Layer) Report() geobucket.Report {
	return l.report
}

// Features returns the object path features
func (l *Layer) Features() []*geobucket.Feature {
	return l.features
}

// Buckets returns the object path buckets, nil on the columnar path
func (l *Layer) Buckets() *geobucket.Buckets {
	if l.columns != nil {
		return nil
	}
	return &l.store.Buckets
}

// Columns returns the columnar buckets, nil on the object path
func (l *Layer) Columns() *columnar.Buckets {
	return l.columns
}

// Labels returns the character primitives, nil without TextProperty
func (l *Layer) Labels() *label.Characters {
	return l.chars
}

// Len returns the count of primitives of bucket t
func (l *Layer) Len(t geobucket.BucketType) int {
	if t == geobucket.Text {
		if l.chars != nil {
			return l.chars.Len()
		}
		t = geobucket.Points
	}
	if l.columns != nil {
		if b := l.columns.Bucket(t); b != nil {
			return b.Len()
		}
		return 0
	}
	if b := l.store.Buckets.Bucket(t); b != nil {
		return b.Len()
	}
	return 0
}

// View returns the feature view of primitive i of bucket t,
// nil when out of range. Text primitives are characters.
func (l *Layer) View(t geobucket.BucketType, i int) geobucket.FeatureView {
	if t == geobucket.Text {
		i = l.textToPoint(i)
		t = geobucket.Points
	}
	if i < 0 || i >= l.Len(t) {
		return nil
	}
	if l.columns != nil {
		return l.columns.Bucket(t).View(i)
	}
	return l.store.Buckets.Bucket(t).Records[i].View()
}

// Accessor returns a function evaluating fn on the primitives of bucket t,
// the same styling function works for both data paths
func Accessor[T any](l *Layer, t geobucket.BucketType, fn func(geobucket.FeatureView) T) func(i int) T {
	return func(i int) T {
		var zero T
		v := l.View(t, i)
		if v == nil {
			return zero
		}
		return fn(v)
	}
}

// Pick resolves primitive i of bucket t to its global feature index,
// geobucket.NoFeature when it can't.
func (l *Layer) Pick(t geobucket.BucketType, i int) int {
	if t == geobucket.Text {
		i = l.textToPoint(i)
	}

	r := picking.Resolver{Columns: l.columns}
	if l.columns == nil {
		r.Objects = &l.store.Buckets
	}
	idx := r.Resolve(t, i)
	if idx == geobucket.NoFeature {
		pickMissCounter.Inc()
	}
	return idx
}

func (l *Layer) textToPoint(ci int) int {
	if l.chars == nil {
		return ci
	}
	return l.chars.PointIndex(ci)
}
