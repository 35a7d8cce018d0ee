package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	enqueueTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "talko_ingest_enqueue_total",
		Help: "Operations offered to the ingest queue.",
	})
	enqueueFailTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "talko_ingest_enqueue_fail_total",
		Help: "Operations rejected at enqueue (full queue or cancellation).",
	})
	opTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talko_ingest_ops_total",
		Help: "Operations committed by the write worker.",
	}, []string{"type"})
	opFailTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talko_ingest_ops_failed_total",
		Help: "Operations rejected by the write worker.",
	}, []string{"type"})
)
