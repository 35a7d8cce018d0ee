package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	appendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "talko_store_appends_total",
		Help: "Messages appended to the store.",
	})
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talko_store_mutations_total",
		Help: "Committed point mutations by kind.",
	}, []string{"kind"})
	queriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "talko_store_queries_total",
		Help: "Conversation page queries served.",
	})
)
