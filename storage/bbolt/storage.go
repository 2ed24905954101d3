package bbolt

import (
	"bytes"
	"fmt"
	"time"

	"github.com/fxamacker/cbor"
	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/akhenakh/geobucket"
	"github.com/akhenakh/geobucket/columnar"
)

var (
	collectionBucket = []byte("collection")
	infoBucket       = []byte("info")
)

// ErrNotFound returned when a collection is not stored
var ErrNotFound = errors.New("collection not found")

// Storage stores named columnar collections
type Storage struct {
	*bbolt.DB
	logger log.Logger
}

// NewStorage returns a storage using bbolt
func NewStorage(path string, logger log.Logger) (*Storage, func() error, error) {
	// Creating DB
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(collectionBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(infoBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, nil, errors.Wrap(err, "can't create buckets into DB")
	}

	return &Storage{
		DB:     db,
		logger: log.With(logger, "component", "storage"),
	}, db.Close, nil
}

// NewROStorage returns a read only storage using bbolt
func NewROStorage(path string, logger log.Logger) (*Storage, func() error, error) {
	// Creating DB
	db, err := bbolt.Open(path, 0600, &bbolt.Options{ReadOnly: true, Timeout: 5 * time.Second})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open DB for reading at %s: %w", path, err)
	}

	return &Storage{
		DB:     db,
		logger: log.With(logger, "component", "storage"),
	}, db.Close, nil
}

// SaveCollection stores the collection and its infos under name
func (s *Storage) SaveCollection(name string, c *columnar.Collection, infos *geobucket.CollectionInfos) error {
	if err := c.Validate(); err != nil {
		return errors.Wrapf(err, "not storing invalid collection %s", name)
	}

	b := new(bytes.Buffer)
	if err := columnar.Encode(b, c); err != nil {
		return err
	}

	if infos == nil {
		infos = &geobucket.CollectionInfos{}
	}
	infos.Name = name
	infos.FeatureCount = uint32(c.FeatureCount)
	infos.PointCount = uint32(len(c.Points.GlobalFeatureIDs))
	infos.LineCount = uint32(len(c.Lines.GlobalFeatureIDs))
	infos.PolygonCount = uint32(len(c.Polygons.GlobalFeatureIDs))
	if infos.IndexTime.IsZero() {
		infos.IndexTime = time.Now()
	}

	infoBytes := new(bytes.Buffer)
	enc := cbor.NewEncoder(infoBytes, cbor.CanonicalEncOptions())
	if err := enc.Encode(infos); err != nil {
		return errors.Wrap(err, "failed encoding CollectionInfos")
	}

	err := s.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(collectionBucket).Put(geobucket.CollectionKey(name), b.Bytes()); err != nil {
			return err
		}
		return tx.Bucket(infoBucket).Put(geobucket.InfoKey(name), infoBytes.Bytes())
	})
	if err != nil {
		return errors.Wrapf(err, "failed storing collection %s into DB", name)
	}

	level.Debug(s.logger).Log(
		"msg", "stored collection",
		"name", name,
		"bytes", b.Len(),
		"feature_count", infos.FeatureCount,
	)

	return nil
}

// LoadCollection loads one collection from the DB
func (s *Storage) LoadCollection(name string) (*columnar.Collection, error) {
	var c *columnar.Collection
	err := s.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(collectionBucket)
		if b == nil {
			return ErrNotFound
		}
		v := b.Get(geobucket.CollectionKey(name))
		if v == nil {
			return ErrNotFound
		}

		var err error
		c, err = columnar.Decode(bytes.NewReader(v))
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "can't load collection %s", name)
	}

	return c, nil
}

// LoadInfos loads the infos of one collection
func (s *Storage) LoadInfos(name string) (*geobucket.CollectionInfos, error) {
	infos := &geobucket.CollectionInfos{}

	err := s.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(infoBucket)
		if b == nil {
			return ErrNotFound
		}
		value := b.Get(geobucket.InfoKey(name))
		if value == nil {
			return ErrNotFound
		}
		dec := cbor.NewDecoder(bytes.NewReader(value))
		return dec.Decode(infos)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "can't load infos %s", name)
	}

	return infos, nil
}

// Names lists the stored collections
func (s *Storage) Names() ([]string, error) {
	var names []string
	err := s.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(infoBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			names = append(names, geobucket.NameFromKey(k))
			return nil
		})
	})
	return names, err
}
