package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Orders holds the collectors for order placement.
type Orders struct {
	Placements     *prometheus.CounterVec
	CommitAttempts *prometheus.CounterVec
	Duration       prometheus.Histogram
}

// NewOrders creates and registers the collectors on reg.
func NewOrders(reg prometheus.Registerer) *Orders {
	m := &Orders{
		Placements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orders",
			Name:      "placements_total",
			Help:      "Order placement attempts by terminal outcome.",
		}, []string{"outcome"}),
		CommitAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orders",
			Name:      "commit_attempts_total",
			Help:      "Individual commit transactions by result, retries included.",
		}, []string{"result"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "orders",
			Name:      "placement_duration_seconds",
			Help:      "Time from receiving a cart to its terminal outcome.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.Placements, m.CommitAttempts, m.Duration)
	return m
}

func (m *Orders) CommitAttempt(result string) {
	m.CommitAttempts.WithLabelValues(result).Inc()
}

func (m *Orders) Placement(outcome string, took time.Duration) {
	m.Placements.WithLabelValues(outcome).Inc()
	m.Duration.Observe(took.Seconds())
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
