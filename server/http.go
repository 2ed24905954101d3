package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/akhenakh/geobucket"
	"github.com/akhenakh/geobucket/layer"
)

// maximum accepted body
const maxBodySize = 64 << 20

// PatchRequest replaces the rows [startRow, endRow) by features
type PatchRequest struct {
	geobucket.Range
	Features json.RawMessage `json:"features"`
}

// Middleware wraps a handler, id is the route name for metrics
type Middleware func(id string, h http.Handler) http.Handler

// RegisterRoutes adds the API handlers to r, mw may be nil
func (s *Server) RegisterRoutes(r *mux.Router, mw Middleware) {
	if mw == nil {
		mw = func(_ string, h http.Handler) http.Handler { return h }
	}
	r.Handle("/api/layers/{name}",
		mw("/api/layers/name", http.HandlerFunc(s.LayerHandler))).Methods(http.MethodGet)
	r.Handle("/api/layers/{name}",
		mw("/api/layers/name/put", http.HandlerFunc(s.PutLayerHandler))).Methods(http.MethodPut)
	r.Handle("/api/layers/{name}",
		mw("/api/layers/name/patch", http.HandlerFunc(s.PatchLayerHandler))).Methods(http.MethodPatch)
	r.Handle("/api/layers/{name}/buckets/{bucket}",
		mw("/api/layers/name/buckets/bucket", http.HandlerFunc(s.BucketHandler))).Methods(http.MethodGet)
	r.Handle("/api/layers/{name}/pick/{bucket}/{index}",
		mw("/api/layers/name/pick/bucket/index", http.HandlerFunc(s.PickHandler))).Methods(http.MethodGet)
}

// PutLayerHandler HTTP 1.1 Handler loading GeoJSON or columnar data into a layer
func (s *Server) PutLayerHandler(w http.ResponseWriter, r *http.Request) {
	span, ctx := opentracing.StartSpanFromContext(r.Context(), "PutLayerHandler")
	defer span.Finish()

	name := mux.Vars(r)["name"]

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	d, err := layer.Decode(body)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sum, err := s.Load(ctx, name, d)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, sum)
}

// PatchLayerHandler HTTP 1.1 Handler replacing a range of rows of a layer
func (s *Server) PatchLayerHandler(w http.ResponseWriter, r *http.Request) {
	span, ctx := opentracing.StartSpanFromContext(r.Context(), "PatchLayerHandler")
	defer span.Finish()

	name := mux.Vars(r)["name"]

	var req PatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		jsonError(w, "invalid patch request: "+err.Error(), http.StatusBadRequest)
		return
	}

	var features []*geobucket.Feature
	if len(req.Features) > 0 {
		var err error
		features, err = geobucket.Flatten(req.Features)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	rep, err := s.Replace(ctx, name, req.Range, features)
	switch {
	case err == ErrUnknownLayer:
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	case err == layer.ErrColumnar:
		jsonError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, rep)
}

// LayerHandler HTTP 1.1 Handler returning a layer summary
func (s *Server) LayerHandler(w http.ResponseWriter, r *http.Request) {
	sum, err := s.Summary(mux.Vars(r)["name"])
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, sum)
}

// BucketHandler HTTP 1.1 Handler returning a bucket as GeoJSON
func (s *Server) BucketHandler(w http.ResponseWriter, r *http.Request) {
	span, ctx := opentracing.StartSpanFromContext(r.Context(), "BucketHandler")
	defer span.Finish()

	vars := mux.Vars(r)

	t, err := geobucket.ParseBucketType(vars["bucket"])
	if err != nil {
		jsonError(w, "invalid parameter bucket", http.StatusBadRequest)
		return
	}

	b, err := s.RenderBucket(ctx, vars["name"], t)
	if err == ErrUnknownLayer {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}

// PickHandler HTTP 1.1 Handler resolving a primitive to its feature, returns GeoJSON
func (s *Server) PickHandler(w http.ResponseWriter, r *http.Request) {
	span, ctx := opentracing.StartSpanFromContext(r.Context(), "PickHandler")
	defer span.Finish()

	vars := mux.Vars(r)

	t, err := geobucket.ParseBucketType(vars["bucket"])
	if err != nil {
		jsonError(w, "invalid parameter bucket", http.StatusBadRequest)
		return
	}
	i, err := strconv.Atoi(vars["index"])
	if err != nil {
		jsonError(w, "invalid parameter index", http.StatusBadRequest)
		return
	}

	idx, v, err := s.Pick(ctx, vars["name"], t, i)
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	if idx == geobucket.NoFeature {
		jsonError(w, "no feature for this primitive", http.StatusNotFound)
		return
	}

	props := make(map[string]interface{}, len(v.Properties())+1)
	for k, p := range v.Properties() {
		props[k] = p
	}
	props["featureIndex"] = idx

	b, err := json.Marshal(&geojson.Feature{Geometry: v.Geometry(), Properties: props})
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}

// RenderBucket returns bucket t of layer name as a GeoJSON FeatureCollection
func (s *Server) RenderBucket(ctx context.Context, name string, t geobucket.BucketType) ([]byte, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "RenderBucket")
	defer span.Finish()

	s.Lock()
	defer s.Unlock()

	l, ok := s.layers[name]
	if !ok {
		return nil, ErrUnknownLayer
	}

	key := fmt.Sprintf("%s/%s/%d", name, t, l.Version())
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			bucketHitCounter.Inc()
			return v.([]byte), nil
		}
		bucketMissCounter.Inc()
	}

	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, l.Len(t))}
	var records []geobucket.Record
	if bs := l.Buckets(); bs != nil && t != geobucket.Text {
		records = bs.Bucket(t).Records
	}

	for i := 0; i < l.Len(t); i++ {
		v := l.View(t, i)
		if v == nil {
			continue
		}
		props := make(map[string]interface{}, len(v.Properties())+3)
		for k, p := range v.Properties() {
			props[k] = p
		}
		props["sourceIndex"] = l.Pick(t, i)
		if records != nil {
			props["subIndex"] = records[i].SubIndex
			if t == geobucket.Outlines {
				props["ring"] = records[i].Ring
			}
		}
		if chars := l.Labels(); chars != nil && t == geobucket.Text {
			props["character"] = chars.Values[i]
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   v.Geometry(),
			Properties: props,
		})
	}

	b, err := fc.MarshalJSON()
	if err != nil {
		s.handleError(err, span)
		return nil, errors.Wrapf(err, "can't render bucket %s of %s", t, name)
	}

	if s.cache != nil {
		s.cache.Set(key, b, 1)
	}

	return b, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"msg": msg})
}
