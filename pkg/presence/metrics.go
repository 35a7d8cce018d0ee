package presence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var typingGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "talko_presence_typing_active",
	Help: "Typing flags currently held across all conversations.",
})
