package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto"
	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/opentracing/opentracing-go"
	slog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/akhenakh/geobucket"
	"github.com/akhenakh/geobucket/columnar"
	"github.com/akhenakh/geobucket/layer"
)

// ErrUnknownLayer returned when querying a layer that was never loaded
var ErrUnknownLayer = errors.New("unknown layer")

// CollectionStore persists the collections of the layers
type CollectionStore interface {
	Names() ([]string, error)
	LoadCollection(name string) (*columnar.Collection, error)
	SaveCollection(name string, c *columnar.Collection, infos *geobucket.CollectionInfos) error
}

// Server exposes named layers
type Server struct {
	sync.Mutex
	logger  log.Logger
	storage CollectionStore
	cache   *ristretto.Cache
	layers  map[string]*layer.Layer
	opts    Options
}

type Options struct {
	// CacheCount rendered buckets to keep, no cache when 0
	CacheCount   int
	Stroked      bool
	TextProperty string
	Version      string
}

// New returns a server with the layers found in storage, storage may be nil
func New(ctx context.Context, logger log.Logger, storage CollectionStore, opts Options) (*Server, error) {
	logger = log.With(logger, "component", "server")

	s := &Server{
		logger:  logger,
		storage: storage,
		layers:  make(map[string]*layer.Layer),
		opts:    opts,
	}

	if opts.CacheCount > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: int64(opts.CacheCount) * 10, // number of keys to track frequency
			MaxCost:     int64(opts.CacheCount),
			BufferItems: 64, // number of keys per Get buffer.
		})
		if err != nil {
			return nil, fmt.Errorf("cache error: %w", err)
		}
		s.cache = cache
	}

	if storage == nil {
		return s, nil
	}

	names, err := storage.Names()
	if err != nil {
		return nil, errors.Wrap(err, "can't list stored collections")
	}
	for _, name := range names {
		c, err := storage.LoadCollection(name)
		if err != nil {
			return nil, err
		}
		l := s.newLayer(name)
		if _, err := l.OnDataChanged(layer.Columns{Collection: c}, true, nil); err != nil {
			return nil, errors.Wrapf(err, "can't load layer %s", name)
		}
		s.layers[name] = l
		level.Info(logger).Log("msg", "loaded layer from storage", "name", name,
			"points", l.Len(geobucket.Points),
			"lines", l.Len(geobucket.Lines),
			"polygons", l.Len(geobucket.Polygons),
		)
	}

	return s, nil
}

func (s *Server) newLayer(name string) *layer.Layer {
	return layer.New(log.With(s.logger, "layer", name), layer.Options{
		Stroked:      s.opts.Stroked,
		TextProperty: s.opts.TextProperty,
	})
}

// Summary describes a layer
type Summary struct {
	Name     string                       `json:"name"`
	Columnar bool                         `json:"columnar"`
	Version  uint64                       `json:"version"`
	Lengths  map[geobucket.BucketType]int `json:"lengths"`
	Report   geobucket.Report             `json:"report,omitempty"`
}

func summarize(name string, l *layer.Layer) *Summary {
	sum := &Summary{
		Name:     name,
		Columnar: l.Columnar(),
		Version:  l.Version(),
		Lengths:  make(map[geobucket.BucketType]int),
		Report:   l.Report(),
	}
	for _, t := range geobucket.BucketTypes {
		sum.Lengths[t] = l.Len(t)
	}
	sum.Lengths[geobucket.Text] = l.Len(geobucket.Text)
	return sum
}

// Load fully replaces the data of layer name, creating it if needed
func (s *Server) Load(ctx context.Context, name string, d layer.Data) (*Summary, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Load")
	defer span.Finish()

	s.Lock()
	defer s.Unlock()

	l, ok := s.layers[name]
	if !ok {
		l = s.newLayer(name)
	}
	if _, err := l.OnDataChanged(d, true, nil); err != nil {
		s.handleError(err, span)
		return nil, err
	}
	s.layers[name] = l

	if s.storage != nil {
		if err := s.persist(name, l, d); err != nil {
			s.handleError(err, span)
			return nil, err
		}
	}

	level.Info(s.logger).Log("msg", "loaded layer", "name", name, "columnar", l.Columnar())

	return summarize(name, l), nil
}

func (s *Server) persist(name string, l *layer.Layer, d layer.Data) error {
	var c *columnar.Collection
	switch d := d.(type) {
	case layer.Columns:
		c = d.Collection
	case layer.Objects:
		c = columnar.FromFeatures(l.Features(), columnar.MaxStride(l.Features()))
	}
	return s.storage.SaveCollection(name, c, &geobucket.CollectionInfos{IndexerVersion: s.opts.Version})
}

// Replace replaces the rows r of layer name by features
func (s *Server) Replace(ctx context.Context, name string, r geobucket.Range, features []*geobucket.Feature) (geobucket.Report, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Replace")
	defer span.Finish()

	span.LogFields(
		slog.String("layer", name),
		slog.Int("start_row", r.Start),
		slog.Int("end_row", r.End),
		slog.Int("count", len(features)),
	)

	s.Lock()
	defer s.Unlock()

	l, ok := s.layers[name]
	if !ok {
		return nil, ErrUnknownLayer
	}
	rep, err := l.ReplaceFeatures(r, features)
	if err != nil {
		s.handleError(err, span)
		return nil, err
	}

	if s.storage != nil {
		if err := s.persist(name, l, layer.Objects{Features: l.Features()}); err != nil {
			s.handleError(err, span)
			return nil, err
		}
	}

	return rep, nil
}

// Summary returns the summary of layer name
func (s *Server) Summary(name string) (*Summary, error) {
	s.Lock()
	defer s.Unlock()

	l, ok := s.layers[name]
	if !ok {
		return nil, ErrUnknownLayer
	}
	return summarize(name, l), nil
}

// Pick resolves primitive i of bucket t of layer name to its feature
func (s *Server) Pick(ctx context.Context, name string, t geobucket.BucketType, i int) (int, geobucket.FeatureView, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Pick")
	defer span.Finish()

	s.Lock()
	defer s.Unlock()

	l, ok := s.layers[name]
	if !ok {
		return geobucket.NoFeature, nil, ErrUnknownLayer
	}

	idx := l.Pick(t, i)
	if idx == geobucket.NoFeature {
		return idx, nil, nil
	}

	level.Debug(s.logger).Log("msg", "picked feature",
		"layer", name,
		"bucket", t.String(),
		"primitive", i,
		"feature", idx,
	)

	return idx, l.View(t, i), nil
}

func (s *Server) handleError(terr error, span opentracing.Span) {
	if terr == nil {
		return
	}
	errorCounter.Inc()
	span.LogFields(
		slog.String("error", terr.Error()),
	)
	span.SetTag("error", true)

	level.Error(s.logger).Log("error", terr)
}
