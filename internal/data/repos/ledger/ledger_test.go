package ledger

import (
	"context"
	"testing"

	"github.com/yungbote/lotline-backend/internal/data/repos/testutil"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

func TestIdempotencyRepoClaim(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewIdempotencyRepo(db, testutil.Logger(t))

	first, created, err := repo.Claim(dbc, "run.start", "k1", "hash-a")
	if err != nil || !created || first == nil {
		t.Fatalf("Claim: want created got=%v err=%v", created, err)
	}
	if err := repo.Complete(dbc, first.ID, "run-1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	again, created, err := repo.Claim(dbc, "run.start", "k1", "hash-b")
	if err != nil || created {
		t.Fatalf("Claim replay: want created=false got=%v err=%v", created, err)
	}
	if again.RequestHash != "hash-a" || again.ResultRef != "run-1" || again.CompletedAt == nil {
		t.Fatalf("Claim replay: want original record got=%+v", again)
	}

	// Same key, other scope, is independent.
	if _, created, err := repo.Claim(dbc, "lot.register", "k1", "hash-a"); err != nil || !created {
		t.Fatalf("Claim other scope: want created got=%v err=%v", created, err)
	}
}

func TestCodeSequenceRepoNext(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewCodeSequenceRepo(db, testutil.Logger(t))

	for want := int64(1); want <= 3; want++ {
		got, err := repo.Next(dbc, "RAW-20260124-DUNA")
		if err != nil || got != want {
			t.Fatalf("Next: want=%d got=%d err=%v", want, got, err)
		}
	}
	if got, err := repo.Next(dbc, "RUN-20260124-DUNA"); err != nil || got != 1 {
		t.Fatalf("Next other prefix: want=1 got=%d err=%v", got, err)
	}
}

func TestCodeSequenceRepoObserve(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewCodeSequenceRepo(db, testutil.Logger(t))

	if err := repo.Observe(dbc, "RAW-20260124-DUNA", 7); err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if err := repo.Observe(dbc, "RAW-20260124-DUNA", 3); err != nil {
		t.Fatalf("Observe lower: %v", err)
	}
	next, err := repo.Next(dbc, "RAW-20260124-DUNA")
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if next != 8 {
		t.Fatalf("Next after Observe: want=8 got=%d", next)
	}
}
