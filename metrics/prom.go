package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastry_paste_created_total",
		Help: "no. of pastes created",
	})
	PasteRetrieved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastry_paste_retrieved_total",
		Help: "no. of pastes retrieved",
	})
	PasteUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastry_paste_updated_total",
		Help: "no. of pastes updated",
	})
	PasteDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastry_paste_deleted_total",
		Help: "no. of pastes deleted",
	})
	ViewsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastry_views_recorded_total",
		Help: "no. of deduplicated view increments",
	})
	SelfDestructs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastry_self_destructs_total",
		Help: "no. of self-destruct expiries triggered",
	})
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastry_cache_hits_total",
		Help: "no. of content cache hits",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastry_cache_misses_total",
		Help: "no. of content cache misses",
	})
	QuotaRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pastry_quota_rejections_total",
			Help: "no. of create requests rejected by quota",
		},
		[]string{"reason"},
	)
	ThrottleHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pastry_throttle_hits_total",
			Help: "no. of HTTP throttle rejections",
		},
		[]string{"endpoint"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pastry_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	PruneCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastry_prune_cycles_total",
		Help: "no. of cleanup worker cycles",
	})
)

func Init() {
}
