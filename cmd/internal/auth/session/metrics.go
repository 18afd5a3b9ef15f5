package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the session subsystem's Prometheus instruments.
type Metrics struct {
	SessionsIssued  prometheus.Counter
	Rotations       prometheus.Counter
	ReuseIncidents  prometheus.Counter
	SessionsRevoked prometheus.Counter
	SweepDeleted    prometheus.Counter
	RotateDuration  prometheus.Histogram
}

// NewMetrics registers and returns the session metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		SessionsIssued: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tipcast_auth_sessions_issued_total",
			Help: "Sessions issued at login.",
		}),
		Rotations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tipcast_auth_refresh_rotations_total",
			Help: "Successful refresh-token rotations.",
		}),
		ReuseIncidents: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tipcast_auth_token_reuse_incidents_total",
			Help: "Refresh-token reuse incidents detected.",
		}),
		SessionsRevoked: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tipcast_auth_sessions_revoked_total",
			Help: "Sessions revoked by logout, rotation cleanup, or incident response.",
		}),
		SweepDeleted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tipcast_auth_sweep_deleted_total",
			Help: "Long-expired revoked records deleted by the retention sweep.",
		}),
		RotateDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "tipcast_auth_rotate_duration_seconds",
			Help:    "Wall time of the check-then-rotate sequence.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
