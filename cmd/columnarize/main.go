package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/joho/godotenv"
	"github.com/namsral/flag"

	"github.com/akhenakh/geobucket"
	"github.com/akhenakh/geobucket/columnar"
	"github.com/akhenakh/geobucket/storage/bbolt"
)

const appName = "columnarize"

var (
	version = "no version from LDFLAGS"

	geoJSONPath = flag.String("geojson", "", "Input GeoJSON file")
	dbPath      = flag.String("dbPath", "out.db", "Database path")
	name        = flag.String("name", "", "Collection name, defaults to the file base name")
	size        = flag.Int("size", 2, "Coordinates per position, 2 or 3")
)

func main() {
	_ = godotenv.Load()
	flag.Parse()

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger, "caller", log.Caller(5), "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "app", appName)
	logger = level.NewFilter(logger, level.AllowAll())

	if *geoJSONPath == "" {
		level.Error(logger).Log("msg", "missing geojson input file")
		os.Exit(2)
	}
	if *size != 2 && *size != 3 {
		level.Error(logger).Log("msg", "invalid position size", "size", *size)
		os.Exit(2)
	}
	if *name == "" {
		base := filepath.Base(*geoJSONPath)
		*name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	start := time.Now()

	data, err := os.ReadFile(*geoJSONPath)
	if err != nil {
		level.Error(logger).Log("msg", "can't read geojson", "error", err)
		os.Exit(2)
	}

	features, err := geobucket.Flatten(data)
	if err != nil {
		level.Error(logger).Log("msg", "can't decode geojson", "error", err)
		os.Exit(2)
	}

	c := columnar.FromFeatures(features, *size)

	storage, clean, err := bbolt.NewStorage(*dbPath, logger)
	if err != nil {
		level.Error(logger).Log("msg", "failed to open storage", "error", err, "db_path", *dbPath)
		os.Exit(2)
	}
	defer clean()

	infos := &geobucket.CollectionInfos{
		Filename:       filepath.Base(*geoJSONPath),
		IndexTime:      time.Now(),
		IndexerVersion: version,
	}
	if err := storage.SaveCollection(*name, c, infos); err != nil {
		level.Error(logger).Log("msg", "can't store collection", "error", err)
		os.Exit(2)
	}

	level.Info(logger).Log("msg", "stored collection",
		"infos", infos.String(),
		"duration", time.Since(start),
	)
}
