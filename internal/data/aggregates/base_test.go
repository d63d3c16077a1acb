package aggregates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestExecuteWriteObservesSuccessStatus(t *testing.T) {
	hooks := &spyHooks{}
	err := executeWrite(context.Background(), BaseDeps{
		Runner: &spyTxRunner{},
		Hooks:  hooks,
	}, "Production.Test.Success", func(_ dbctx.Context) error { return nil })
	require.NoError(t, err)
	require.Len(t, hooks.Operations, 1)
	assert.Equal(t, "success", hooks.Operations[0].Status)
}

func TestExecuteWriteObservesKindSpecificCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code domainagg.ErrorCode
		kind domainagg.ErrorKind
	}{
		{"invariant", InvariantError("broken"), domainagg.CodeInvariantViolation, domainagg.KindInternal},
		{"validation", ValidationError("bad"), domainagg.CodeValidation, domainagg.KindValidation},
		{"cycle", production.Errorf(production.ErrCycleDetected, "loop"), domainagg.CodeInvariantViolation, domainagg.KindCycleDetected},
		{"step not ready", production.Errorf(production.ErrStepNotReady, "pending"), domainagg.CodePreconditionFailed, domainagg.KindStepNotReady},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hooks := &spyHooks{}
			err := executeWrite(context.Background(), BaseDeps{
				Runner: &spyTxRunner{},
				Hooks:  hooks,
			}, "Production.Test.Kind", func(_ dbctx.Context) error { return tc.err })
			require.Error(t, err)
			assert.True(t, domainagg.IsCode(err, tc.code), "code=%s", domainagg.CodeOf(err))
			assert.Equal(t, tc.kind, domainagg.KindOf(err))
			require.Len(t, hooks.Operations, 1)
			assert.Equal(t, string(tc.code), hooks.Operations[0].Status)
		})
	}
}

func TestExecuteWriteCountsConflicts(t *testing.T) {
	hooks := &spyHooks{}
	err := executeWrite(context.Background(), BaseDeps{
		Runner: &spyTxRunner{},
		Hooks:  hooks,
		Retry:  fastRetry(),
	}, "Production.Test.Conflict", func(_ dbctx.Context) error {
		return ConflictError("stale version")
	})
	require.Error(t, err)
	assert.True(t, domainagg.IsCode(err, domainagg.CodeConflict))
	assert.Equal(t, []string{"Production.Test.Conflict"}, hooks.Conflicts)
	assert.Empty(t, hooks.Retries)
}

func TestExecuteWriteRetriesPersistenceFailures(t *testing.T) {
	hooks := &spyHooks{}
	runner := &spyTxRunner{FailFirst: 2, FailErr: errors.New("database is locked")}
	calls := 0
	err := executeWrite(context.Background(), BaseDeps{
		Runner: runner,
		Hooks:  hooks,
		Retry:  fastRetry(),
	}, "Production.Test.Retry", func(_ dbctx.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, hooks.Retries, 2)
	assert.Equal(t, "success", hooks.StatusOf("Production.Test.Retry"))
}

func TestExecuteWriteGivesUpAfterAttempts(t *testing.T) {
	hooks := &spyHooks{}
	runner := &spyTxRunner{FailFirst: 10, FailErr: errors.New("deadlock detected")}
	err := executeWrite(context.Background(), BaseDeps{
		Runner: runner,
		Hooks:  hooks,
		Retry:  fastRetry(),
	}, "Production.Test.Exhausted", func(_ dbctx.Context) error { return nil })
	require.Error(t, err)
	assert.Equal(t, domainagg.KindPersistenceUnavailable, domainagg.KindOf(err))
	assert.Equal(t, 3, runner.BeginCalls)
	assert.Len(t, hooks.Retries, 2)
}

func TestExecuteWriteStopsRetryingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &spyTxRunner{FailFirst: 10, FailErr: errors.New("database is locked")}
	err := executeWrite(ctx, BaseDeps{
		Runner: runner,
		Retry:  RetryPolicy{Attempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour},
	}, "Production.Test.Cancel", func(_ dbctx.Context) error {
		cancel()
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 1, runner.BeginCalls)
}

func TestExecuteWriteFxRunsEffectsOnlyAfterCommit(t *testing.T) {
	runner := &spyTxRunner{FailFirst: 1, FailErr: errors.New("database is locked")}
	var ran []string
	err := executeWriteFx(context.Background(), BaseDeps{Runner: runner, Retry: fastRetry()}, "Production.Test.Fx",
		func(_ dbctx.Context, fx *afterCommit) error {
			fx.add("record", func(context.Context) error {
				ran = append(ran, "record")
				return nil
			})
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"record"}, ran, "effects from the failed attempt must be discarded")

	ran = nil
	err = executeWriteFx(context.Background(), BaseDeps{Runner: &spyTxRunner{}}, "Production.Test.FxFail",
		func(_ dbctx.Context, fx *afterCommit) error {
			fx.add("record", func(context.Context) error {
				ran = append(ran, "record")
				return nil
			})
			return ValidationError("nope")
		})
	require.Error(t, err)
	assert.Empty(t, ran)
}

func TestExecuteWriteFxCountsFailedEffects(t *testing.T) {
	hooks := &spyHooks{}
	var ran []string
	err := executeWriteFx(context.Background(), BaseDeps{Runner: &spyTxRunner{}, Hooks: hooks}, "Production.Test.FxEffects",
		func(_ dbctx.Context, fx *afterCommit) error {
			fx.add("publish", func(context.Context) error { return errors.New("redis down") })
			fx.add("projection", func(context.Context) error {
				ran = append(ran, "projection")
				return nil
			})
			return nil
		})
	require.NoError(t, err, "effect failures never undo the commit")
	assert.Equal(t, []string{"projection"}, ran)
	assert.Equal(t, []string{"publish"}, hooks.Effects)
}

func TestRetryPolicyDelayIsCapped(t *testing.T) {
	p := RetryPolicy{Attempts: 10, BaseDelay: 25 * time.Millisecond, MaxDelay: 100 * time.Millisecond}
	assert.Equal(t, 25*time.Millisecond, p.delay(1))
	assert.Equal(t, 50*time.Millisecond, p.delay(2))
	assert.Equal(t, 100*time.Millisecond, p.delay(3))
	assert.Equal(t, 100*time.Millisecond, p.delay(8))
}

func TestAggregateErrorStatus(t *testing.T) {
	assert.Equal(t, "success", aggregateErrorStatus(nil))
	assert.Equal(t, string(domainagg.CodeInvariantViolation), aggregateErrorStatus(InvariantError("x")))
	assert.Equal(t, string(domainagg.CodeConflict), aggregateErrorStatus(ConflictError("x")))
	assert.Equal(t, string(domainagg.CodeRetryable), aggregateErrorStatus(RetryableError("x")))
	assert.Equal(t, string(domainagg.CodeRetryable), aggregateErrorStatus(context.DeadlineExceeded))
}
