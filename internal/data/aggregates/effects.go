package aggregates

import (
	"context"

	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

// Effects are infrastructure side effects of committed mutations. Failures
// are logged and never undo the commit.
type Effects interface {
	// AuditAppended publishes committed audit events.
	AuditAppended(ctx context.Context, ev *production.AuditEvent) error
	// GenealogyChanged refreshes derived genealogy views (trace cache,
	// graph projection) after a link is committed.
	GenealogyChanged(ctx context.Context, parent, child *production.Lot, link *production.GenealogyLink) error
	// LotChanged invalidates cached views that include the lot.
	LotChanged(ctx context.Context, lot *production.Lot) error
}

type NoopEffects struct{}

func (NoopEffects) AuditAppended(context.Context, *production.AuditEvent) error { return nil }
func (NoopEffects) GenealogyChanged(context.Context, *production.Lot, *production.Lot, *production.GenealogyLink) error {
	return nil
}
func (NoopEffects) LotChanged(context.Context, *production.Lot) error { return nil }

// MultiEffects fans out to every non-nil member.
type MultiEffects []Effects

func (m MultiEffects) AuditAppended(ctx context.Context, ev *production.AuditEvent) error {
	var first error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.AuditAppended(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiEffects) GenealogyChanged(ctx context.Context, parent, child *production.Lot, link *production.GenealogyLink) error {
	var first error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.GenealogyChanged(ctx, parent, child, link); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiEffects) LotChanged(ctx context.Context, lot *production.Lot) error {
	var first error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.LotChanged(ctx, lot); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type effect struct {
	name string
	fn   func(ctx context.Context) error
}

type afterCommit struct {
	effects []effect
}

func (a *afterCommit) add(name string, fn func(ctx context.Context) error) {
	if a == nil || fn == nil {
		return
	}
	a.effects = append(a.effects, effect{name: name, fn: fn})
}

func (a *afterCommit) reset() {
	if a != nil {
		a.effects = a.effects[:0]
	}
}

func (a *afterCommit) run(ctx context.Context, log *logger.Logger, hooks Hooks) {
	if a == nil {
		return
	}
	for _, e := range a.effects {
		if err := e.fn(ctx); err != nil {
			log.Warn("After-commit effect failed", "effect", e.name, "error", err)
			hooks.IncEffectFailure(e.name)
		}
	}
}
