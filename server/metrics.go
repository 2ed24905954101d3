package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	errorCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "geobucket_server",
		Name:      "error_total",
		Help:      "The total number of errors occurring",
	})

	bucketHitCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "geobucket_server",
		Name:      "bucket_cache_hit_total",
		Help:      "Rendered buckets cache hits",
	})

	bucketMissCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "geobucket_server",
		Name:      "bucket_cache_miss_total",
		Help:      "Rendered buckets cache misses",
	})
)
