package testutil

import (
	"sync"
	"time"

	"github.com/yungbote/lotline-backend/internal/data/aggregates"
)

// HooksRecorder captures aggregate hook signals in tests.
type HooksRecorder struct {
	mu sync.Mutex

	Operations []OperationEvent
	Conflicts  []string
	Retries    []string
	Compliance []ComplianceEvent
	Effects    []string
}

type OperationEvent struct {
	Name     string
	Status   string
	Duration time.Duration
}

type ComplianceEvent struct {
	Event   string
	Subject string
}

var _ aggregates.Hooks = (*HooksRecorder)(nil)

func (h *HooksRecorder) ObserveOperation(name, status string, dur time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Operations = append(h.Operations, OperationEvent{Name: name, Status: status, Duration: dur})
}

func (h *HooksRecorder) IncConflict(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Conflicts = append(h.Conflicts, name)
}

func (h *HooksRecorder) IncRetry(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Retries = append(h.Retries, name)
}

func (h *HooksRecorder) IncCompliance(event, subject string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Compliance = append(h.Compliance, ComplianceEvent{Event: event, Subject: subject})
}

func (h *HooksRecorder) IncEffectFailure(effect string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Effects = append(h.Effects, effect)
}

// StatusOf returns the status of the last observed call of name.
func (h *HooksRecorder) StatusOf(name string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.Operations) - 1; i >= 0; i-- {
		if h.Operations[i].Name == name {
			return h.Operations[i].Status
		}
	}
	return ""
}
