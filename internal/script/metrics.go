package script

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "winsentry",
		Subsystem: "script",
		Name:      "jobs_total",
		Help:      "Finished script jobs by terminal status.",
	}, []string{"status"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "winsentry",
		Subsystem: "script",
		Name:      "queue_depth",
		Help:      "Jobs waiting for a worker.",
	})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "winsentry",
		Subsystem: "script",
		Name:      "job_duration_seconds",
		Help:      "Script execution wall time.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	})
)
