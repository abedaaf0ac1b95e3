// Package metrics holds the Prometheus collectors of the scheduler, the sync
// service and the notification dispatcher.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "content_calendar"

var (
	SchedulerTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "ticks_total",
		Help:      "Scheduler checks by outcome (ok, busy, error).",
	}, []string{"result"})

	PostsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "posts_published_total",
		Help:      "Posts published, by platform.",
	}, []string{"platform"})

	PostsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "posts_failed_total",
		Help:      "Posts marked failed, by platform and failure category.",
	}, []string{"platform", "category"})

	PostsDeferred = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "posts_deferred_total",
		Help:      "Due posts left for the next check after a transient error.",
	})

	SyncEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "events_total",
		Help:      "Mirror sync events by operation and result (replayed, failed, dropped).",
	}, []string{"operation", "result"})

	SyncQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "queue_depth",
		Help:      "Events waiting to be replayed on the mirror.",
	})

	ReconciledDeletes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "reconciled_deletes_total",
		Help:      "Posts deleted because their chat message disappeared.",
	})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "deliveries_total",
		Help:      "Notification deliveries by channel (email, chat) and result (sent, failed, skipped).",
	}, []string{"channel", "result"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
