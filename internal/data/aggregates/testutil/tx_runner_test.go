package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

func TestInjectedTxRunner_CommitsOnSuccess(t *testing.T) {
	r := &InjectedTxRunner{}
	called := false
	err := r.InTx(context.Background(), func(dbc dbctx.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if !called || r.CommitCalls != 1 || r.RollbackCalls != 0 {
		t.Fatalf("unexpected counters: called=%v commit=%d rollback=%d", called, r.CommitCalls, r.RollbackCalls)
	}
}

func TestInjectedTxRunner_FailsFirstAttempts(t *testing.T) {
	boom := errors.New("serialization failure")
	r := &InjectedTxRunner{FailFirst: 2, FailErr: boom}
	body := func(dbc dbctx.Context) error { return nil }

	for i := 0; i < 2; i++ {
		if err := r.InTx(context.Background(), body); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: expected injected error, got %v", i+1, err)
		}
	}
	if err := r.InTx(context.Background(), body); err != nil {
		t.Fatalf("third attempt: %v", err)
	}
	if r.BeginCalls != 3 || r.RollbackCalls != 2 || r.CommitCalls != 1 {
		t.Fatalf("unexpected counters: begin=%d rollback=%d commit=%d", r.BeginCalls, r.RollbackCalls, r.CommitCalls)
	}
}

func TestInjectedTxRunner_FailBegin(t *testing.T) {
	boom := errors.New("no connection")
	r := &InjectedTxRunner{FailBegin: boom}
	called := false
	err := r.InTx(context.Background(), func(dbc dbctx.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, boom) || called {
		t.Fatalf("expected begin failure without running body, got err=%v called=%v", err, called)
	}
}
