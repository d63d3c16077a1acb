package aggregates

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

// spyTxRunner runs the body on a bare context and fails the first FailFirst
// attempts with FailErr.
type spyTxRunner struct {
	FailFirst int
	FailErr   error

	BeginCalls int
}

func (r *spyTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.BeginCalls++
	if fn != nil {
		if err := fn(dbctx.Context{Ctx: ctx}); err != nil {
			return err
		}
	}
	if r.BeginCalls <= r.FailFirst {
		return r.FailErr
	}
	return nil
}

type spyHooks struct {
	mu sync.Mutex

	Operations []spyOperation
	Conflicts  []string
	Retries    []string
	Compliance []spyCompliance
	Effects    []string
}

type spyOperation struct {
	Name   string
	Status string
}

type spyCompliance struct {
	Event   string
	Subject string
}

func (h *spyHooks) ObserveOperation(name, status string, _ time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Operations = append(h.Operations, spyOperation{Name: name, Status: status})
}

func (h *spyHooks) IncConflict(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Conflicts = append(h.Conflicts, name)
}

func (h *spyHooks) IncRetry(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Retries = append(h.Retries, name)
}

func (h *spyHooks) IncCompliance(event, subject string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Compliance = append(h.Compliance, spyCompliance{Event: event, Subject: subject})
}

func (h *spyHooks) IncEffectFailure(effect string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Effects = append(h.Effects, effect)
}

func (h *spyHooks) StatusOf(name string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.Operations) - 1; i >= 0; i-- {
		if h.Operations[i].Name == name {
			return h.Operations[i].Status
		}
	}
	return ""
}
