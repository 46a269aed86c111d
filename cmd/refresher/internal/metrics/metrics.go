package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shubham-shewale/price-widget/cmd/refresher/internal/trigger"
	"github.com/shubham-shewale/price-widget/pkg/coordinator"
)

type Metrics struct {
	refreshes *prometheus.CounterVec
	instances *prometheus.CounterVec
	duration  prometheus.Histogram
}

var _ trigger.Observer = (*Metrics)(nil)

// New registers the refresher metrics on reg. active reports the number of attached instances.
func New(reg prometheus.Registerer, active func() int) *Metrics {
	f := promauto.With(reg)

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "widget_active_instances",
		Help: "Widget instances currently attached to a surface.",
	}, func() float64 { return float64(active()) })

	return &Metrics{
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "widget_refresh_total",
			Help: "Refresh passes by trigger.",
		}, []string{"trigger"}),
		instances: f.NewCounterVec(prometheus.CounterOpts{
			Name: "widget_instances_total",
			Help: "Per-instance refresh outcomes.",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "widget_refresh_duration_seconds",
			Help:    "Wall time of one refresh pass.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
}

func (m *Metrics) Observe(kind trigger.Kind, res coordinator.Result, elapsed time.Duration) {
	m.refreshes.WithLabelValues(string(kind)).Inc()
	m.instances.WithLabelValues("rendered").Add(float64(len(res.Rendered)))
	m.instances.WithLabelValues("skipped").Add(float64(len(res.Skipped)))
	m.instances.WithLabelValues("failed").Add(float64(len(res.Failed)))
	m.duration.Observe(elapsed.Seconds())
}
