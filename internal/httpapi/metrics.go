package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var checkinAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "presence",
	Name:      "checkin_attempts_total",
	Help:      "Check-in attempts by outcome.",
}, []string{"result"})

func observeCheckin(result string) {
	checkinAttempts.WithLabelValues(result).Inc()
}
