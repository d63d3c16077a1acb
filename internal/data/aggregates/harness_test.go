package aggregates

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/lotline-backend/internal/data/repos"
	repotest "github.com/yungbote/lotline-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/domain/compliance"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

var harnessNow = time.Date(2026, 1, 24, 9, 30, 0, 0, time.UTC)

type harness struct {
	ctx     context.Context
	db      *gorm.DB
	repos   repos.Set
	hooks   *spyHooks
	effects *recordingEffects

	flow domainagg.FlowAggregate
	run  domainagg.RunAggregate
	lot  domainagg.LotAggregate
	inv  domainagg.InventoryAggregate
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := repotest.DB(t)
	log := repotest.Logger(t)
	set := repos.NewSet(db, log)
	h := &harness{
		ctx:     context.Background(),
		db:      db,
		repos:   set,
		hooks:   &spyHooks{},
		effects: &recordingEffects{},
	}
	base := BaseDeps{
		DB:       db,
		Log:      log,
		Hooks:    h.hooks,
		Retry:    RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		Enforcer: compliance.NewEnforcer(nil),
		Effects:  h.effects,
		Now:      func() time.Time { return harnessNow },
	}
	aggs := NewSet(base, set)
	h.flow, h.run, h.lot, h.inv = aggs.Flow, aggs.Run, aggs.Lot, aggs.Inventory
	return h
}

func (h *harness) dbc() dbctx.Context {
	return dbctx.Context{Ctx: h.ctx}
}

func (h *harness) lotByID(t *testing.T, id uuid.UUID) *production.Lot {
	t.Helper()
	l, err := h.repos.Lots.GetByID(h.dbc(), id)
	if err != nil || l == nil {
		t.Fatalf("get lot %s: %v", id, err)
	}
	return l
}

func (h *harness) history(t *testing.T, entityType, entityID string) []string {
	t.Helper()
	events, err := h.repos.AuditEvents.Query(h.dbc(), entityType, entityID, 100)
	if err != nil {
		t.Fatalf("audit query: %v", err)
	}
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.EventType)
	}
	return out
}

func ptr[T any](v T) *T { return &v }

type recordingEffects struct {
	mu      sync.Mutex
	audits  []string
	links   int
	lotSeen map[string]string
}

func (r *recordingEffects) AuditAppended(_ context.Context, ev *production.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits = append(r.audits, ev.EventType)
	return nil
}

func (r *recordingEffects) GenealogyChanged(_ context.Context, _, _ *production.Lot, _ *production.GenealogyLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links++
	return nil
}

func (r *recordingEffects) LotChanged(_ context.Context, lot *production.Lot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lotSeen == nil {
		r.lotSeen = map[string]string{}
	}
	r.lotSeen[lot.LotCode] = lot.Status
	return nil
}
