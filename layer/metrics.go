package layer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	updateCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geobucket",
		Name:      "update_total",
		Help:      "The total number of update passes by kind",
	}, []string{"kind"})

	splicedRecordsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geobucket",
		Name:      "spliced_records_total",
		Help:      "Records rewritten by partial updates",
	}, []string{"bucket"})

	pickMissCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "geobucket",
		Name:      "pick_miss_total",
		Help:      "Picks resolving to no feature",
	})

	updateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "geobucket",
		Name:      "update_duration_seconds",
		Help:      "Duration of update passes",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"kind"})
)
