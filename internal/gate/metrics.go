package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const outcomeFailed = "failed"

type Metrics struct {
	// Исходы попыток проведения: posted, approval_required, failed
	PostAttempts *prometheus.CounterVec

	// Решения финансистов: granted, forbidden
	Approvals *prometheus.CounterVec

	// Latency переходов хост-системы
	TransitionDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		PostAttempts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_post_attempts_total",
			Help: "Post attempts by outcome.",
		}, []string{"outcome"}),

		Approvals: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_approvals_total",
			Help: "Finance approval actions by result.",
		}, []string{"result"}),

		TransitionDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paygate_transition_duration_seconds",
			Help:    "Latency of host lifecycle transitions.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"transition"}),
	}
}
