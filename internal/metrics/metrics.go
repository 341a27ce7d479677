package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "featurestream_events_processed_total",
		Help: "Total number of events that passed validation and updated state.",
	})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "featurestream_events_dropped_total",
		Help: "Total number of events dropped during validation, labelled by reason.",
	}, []string{"reason"})

	BucketsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "featurestream_buckets_evicted_total",
		Help: "Total number of daily buckets removed by watermark-driven eviction.",
	})

	CustomersTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "featurestream_customers_tracked",
		Help: "Number of customers with live aggregate state.",
	})

	EventsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "featurestream_events_enqueued_total",
		Help: "Total number of raw events accepted from a source, labelled by source.",
	}, []string{"source"})
)
