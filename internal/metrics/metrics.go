// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fastygo/floorplan/domain"
)

var (
	// MutationsTotal counts floor mutations by operation and outcome.
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floorplan_mutations_total",
		Help: "Floor mutations by operation and outcome",
	}, []string{"operation", "outcome"})

	// CacheRequestsTotal counts snapshot cache lookups by result (hit, miss, error).
	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floorplan_cache_requests_total",
		Help: "Snapshot cache lookups by result",
	}, []string{"result"})

	// FloorVersion is the last committed floor version seen by this process.
	FloorVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "floorplan_floor_version",
		Help: "Last committed floor version",
	})

	// ReplayActionsTotal counts offline actions replayed by outcome.
	ReplayActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floorplan_replay_actions_total",
		Help: "Replayed offline actions by outcome",
	}, []string{"outcome"})
)

// Outcome converts an operation error into a low-cardinality label.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	if dErr, ok := domain.AsError(err); ok {
		switch dErr.Code {
		case domain.ErrCodeConflict:
			return "conflict"
		case domain.ErrCodeGone:
			return "gone"
		case domain.ErrCodeForbidden, domain.ErrCodeUnauthorized:
			return "forbidden"
		case domain.ErrCodeInvalid:
			return "invalid"
		case domain.ErrCodeNotFound:
			return "not_found"
		}
	}
	return "error"
}
