package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "talko_notify_events_published_total",
		Help: "Events published to the fan-out hub.",
	})
	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "talko_notify_events_dropped_total",
		Help: "Events dropped because a subscriber buffer was full.",
	})
	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "talko_notify_subscribers",
		Help: "Currently registered hub subscriptions.",
	})
)
