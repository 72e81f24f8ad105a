package alert

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "winsentry",
	Subsystem: "alert",
	Name:      "sends_total",
	Help:      "Alert delivery attempts by rule kind and outcome.",
}, []string{"kind", "result"})
