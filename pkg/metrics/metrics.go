package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SnapshotsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "chirpfeed", Name: "snapshots_delivered_total", Help: "Live-view snapshots delivered, by subscription scope."},
		[]string{"scope"},
	)
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "chirpfeed", Name: "uploads_total", Help: "Blob uploads by final state."},
		[]string{"state"},
	)
	AuthOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "chirpfeed", Name: "auth_operations_total", Help: "Identity operations by kind and outcome."},
		[]string{"op", "outcome"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "chirpfeed", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "chirpfeed", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(SnapshotsDelivered)
	reg.MustRegister(UploadsTotal)
	reg.MustRegister(AuthOps)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
