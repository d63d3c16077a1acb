package aggregates

import (
	"strings"
	"time"

	"github.com/yungbote/lotline-backend/internal/observability"
)

// Hooks receives aggregate-level observability signals.
type Hooks interface {
	ObserveOperation(name, status string, dur time.Duration)
	IncConflict(name string)
	IncRetry(name string)
	// IncCompliance counts accepted-but-notable compliance outcomes such as
	// capacity overrides and temperature holds.
	IncCompliance(event, subject string)
	IncEffectFailure(effect string)
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(string, string, time.Duration) {}
func (noopHooks) IncConflict(string)                             {}
func (noopHooks) IncRetry(string)                                {}
func (noopHooks) IncCompliance(string, string)                   {}
func (noopHooks) IncEffectFailure(string)                        {}

type metricsHooks struct {
	metrics *observability.Metrics
}

// NewObservabilityHooks reports aggregate signals to the process metrics.
func NewObservabilityHooks(metrics *observability.Metrics) Hooks {
	if metrics == nil {
		return noopHooks{}
	}
	return &metricsHooks{metrics: metrics}
}

func (h *metricsHooks) ObserveOperation(name, status string, dur time.Duration) {
	h.metrics.ObserveAggregateOperation(strings.TrimSpace(name), strings.TrimSpace(status), dur)
}

func (h *metricsHooks) IncConflict(name string) {
	h.metrics.IncAggregateConflict(strings.TrimSpace(name))
}

func (h *metricsHooks) IncRetry(name string) {
	h.metrics.IncAggregateRetry(strings.TrimSpace(name))
}

func (h *metricsHooks) IncCompliance(event, subject string) {
	h.metrics.IncComplianceEvent(strings.TrimSpace(event), strings.TrimSpace(subject))
}

func (h *metricsHooks) IncEffectFailure(effect string) {
	h.metrics.IncEffectFailure(strings.TrimSpace(effect))
}
