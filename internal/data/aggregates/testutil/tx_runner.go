package testutil

import (
	"context"
	"sync"

	"github.com/yungbote/lotline-backend/internal/data/aggregates"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

// InjectedTxRunner injects failures around a transaction body. With Inner
// set the body runs in a real transaction; otherwise it gets a bare context.
type InjectedTxRunner struct {
	mu sync.Mutex

	Inner aggregates.TxRunner

	FailBegin error
	// FailFirst fails the first N attempts with FailErr after the body ran,
	// rolling back the real transaction.
	FailFirst int
	FailErr   error

	BeginCalls    int
	CommitCalls   int
	RollbackCalls int
}

var _ aggregates.TxRunner = (*InjectedTxRunner)(nil)

func (r *InjectedTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.BeginCalls++
	attempt := r.BeginCalls
	failBegin := r.FailBegin
	inject := attempt <= r.FailFirst
	failErr := r.FailErr
	r.mu.Unlock()

	if failBegin != nil {
		return failBegin
	}
	body := func(dbc dbctx.Context) error {
		if fn != nil {
			if err := fn(dbc); err != nil {
				return err
			}
		}
		if inject {
			return failErr
		}
		return nil
	}
	var err error
	if r.Inner != nil {
		err = r.Inner.InTx(ctx, body)
	} else {
		err = body(dbctx.Context{Ctx: ctx})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.RollbackCalls++
		return err
	}
	r.CommitCalls++
	return nil
}
