package aggregates

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/domain/compliance"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

// RetryPolicy bounds how often a write is re-run after a
// PersistenceUnavailable failure.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 25 * time.Millisecond, MaxDelay: 500 * time.Millisecond}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

type BaseDeps struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Runner   TxRunner
	Hooks    Hooks
	CASGuard CASGuard
	Retry    RetryPolicy
	Enforcer *compliance.Enforcer
	Effects  Effects
	Now      func() time.Time
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Runner == nil {
		d.Runner = NewGormTxRunner(d.DB)
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	if d.CASGuard.db == nil {
		d.CASGuard = NewCASGuard(d.DB)
	}
	if d.Retry.Attempts <= 0 {
		d.Retry = DefaultRetryPolicy()
	}
	if d.Enforcer == nil {
		d.Enforcer = compliance.NewEnforcer(nil)
	}
	if d.Effects == nil {
		d.Effects = NoopEffects{}
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return d
}

func executeWrite(ctx context.Context, deps BaseDeps, op string, fn func(dbc dbctx.Context) error) error {
	start := time.Now()
	deps = deps.withDefaults()
	op = strings.TrimSpace(op)
	if op == "" {
		op = "aggregate.write"
	}

	var mapped error
	for attempt := 1; ; attempt++ {
		mapped = MapError(op, deps.Runner.InTx(ctx, fn))
		if mapped == nil || !domainagg.IsCode(mapped, domainagg.CodeRetryable) {
			break
		}
		if attempt >= deps.Retry.Attempts || ctx.Err() != nil {
			break
		}
		deps.Hooks.IncRetry(op)
		deps.Log.Debug("Retrying aggregate write", "op", op, "attempt", attempt, "error", mapped.Error())
		t := time.NewTimer(deps.Retry.delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			mapped = MapError(op, ctx.Err())
		case <-t.C:
			continue
		}
		break
	}

	status := "success"
	if mapped != nil {
		status = aggregateErrorStatus(mapped)
		if domainagg.IsCode(mapped, domainagg.CodeConflict) {
			deps.Hooks.IncConflict(op)
		}
	}
	deps.Hooks.ObserveOperation(op, status, time.Since(start))
	return mapped
}

// executeWriteFx is executeWrite plus effects that run only after a
// successful commit. Effects registered by failed attempts are discarded.
func executeWriteFx(ctx context.Context, deps BaseDeps, op string, fn func(dbc dbctx.Context, fx *afterCommit) error) error {
	deps = deps.withDefaults()
	fx := &afterCommit{}
	err := executeWrite(ctx, deps, op, func(dbc dbctx.Context) error {
		fx.reset()
		return fn(dbc, fx)
	})
	if err != nil {
		return err
	}
	fx.run(ctx, deps.Log.With("op", op), deps.Hooks)
	return nil
}

func aggregateErrorStatus(err error) string {
	if err == nil {
		return "success"
	}
	code := strings.TrimSpace(string(domainagg.CodeOf(err)))
	if code == "" {
		code = strings.TrimSpace(string(domainagg.CodeOf(MapError("aggregate.status", err))))
	}
	if code == "" {
		return "failure"
	}
	return code
}
