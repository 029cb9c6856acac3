package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Recomputes        *prometheus.CounterVec
	Dropped           prometheus.Counter
	TimersScheduled   prometheus.Counter
	SourceErrors      prometheus.Counter
	RecomputeDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Recomputes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stage_recomputes_total",
			Help: "Пересчёты сводок по триггеру (change/timer/force/retry).",
		}, []string{"trigger"}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "stage_notifications_dropped_total",
			Help: "Уведомления, отброшенные по свежести кэша.",
		}),
		TimersScheduled: f.NewCounter(prometheus.CounterOpts{
			Name: "stage_recompute_timers_total",
			Help: "Отложенные пересчёты, поставленные на таймер.",
		}),
		SourceErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "stage_source_errors_total",
			Help: "Ошибки чтения источника при пересчёте.",
		}),
		RecomputeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stage_recompute_duration_seconds",
			Help:    "Длительность одного пересчёта.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
