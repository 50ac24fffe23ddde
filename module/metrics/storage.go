package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/membercoin/membernode/module"
)

type StorageCollector struct {
	stored *prometheus.CounterVec
	lookup *prometheus.HistogramVec
}

var _ module.StorageMetrics = (*StorageCollector)(nil)

func NewStorageCollector(registerer prometheus.Registerer) *StorageCollector {
	factory := promauto.With(registerer)
	return &StorageCollector{
		stored: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "stored_total",
			Namespace: namespaceStorage,
			Subsystem: subsystemHeaders,
			Help:      "the number of headers written",
		}, []string{LabelResource}),
		lookup: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:      "lookup_seconds",
			Namespace: namespaceStorage,
			Subsystem: subsystemHeaders,
			Help:      "duration of header reads",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}, []string{LabelResult}),
	}
}

func (sc *StorageCollector) HeaderStored(count int) {
	sc.stored.WithLabelValues("header").Add(float64(count))
}

func (sc *StorageCollector) HeaderLookup(duration time.Duration, found bool) {
	result := "miss"
	if found {
		result = "hit"
	}
	sc.lookup.WithLabelValues(result).Observe(duration.Seconds())
}
