package geobucket

import (
	"fmt"
	"time"
)

const (
	collectionPrefix = 'C'
	infoPrefix       = 'i'
)

// CollectionInfos used to store information about a stored collection
type CollectionInfos struct {
	Name           string
	Filename       string
	IndexTime      time.Time
	IndexerVersion string
	FeatureCount   uint32
	PointCount     uint32
	LineCount      uint32
	PolygonCount   uint32
}

func (infos *CollectionInfos) String() string {
	return fmt.Sprintf("Name: %s\nFilename: %s\nIndexTime: %s\nIndexerVersion: %s\nFeatureCount %d\nPoints %d Lines %d Polygons %d\n",
		infos.Name,
		infos.Filename,
		infos.IndexTime,
		infos.IndexerVersion,
		infos.FeatureCount,
		infos.PointCount,
		infos.LineCount,
		infos.PolygonCount,
	)
}

func CollectionKey(name string) []byte {
	return append([]byte{collectionPrefix}, name...)
}

func InfoKey(name string) []byte {
	return append([]byte{infoPrefix}, name...)
}

// NameFromKey returns the collection name of a key built by CollectionKey or InfoKey
func NameFromKey(k []byte) string {
	if len(k) < 1 {
		return ""
	}
	return string(k[1:])
}
