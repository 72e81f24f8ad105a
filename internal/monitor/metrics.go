package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "winsentry",
		Subsystem: "monitor",
		Name:      "checks_total",
		Help:      "Completed item polls by class and resulting status.",
	}, []string{"class", "status"})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "winsentry",
		Subsystem: "monitor",
		Name:      "transitions_total",
		Help:      "Observed status transitions by class.",
	}, []string{"class"})

	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "winsentry",
		Subsystem: "monitor",
		Name:      "actions_fired_total",
		Help:      "Recovery scripts submitted by class.",
	}, []string{"class"})

	probeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "winsentry",
		Subsystem: "monitor",
		Name:      "probe_errors_total",
		Help:      "Probe-level faults by class.",
	}, []string{"class"})

	checkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "winsentry",
		Subsystem: "monitor",
		Name:      "check_duration_seconds",
		Help:      "Time spent probing one item.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"class"})
)
