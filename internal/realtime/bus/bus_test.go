package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/lotline-backend/internal/domain/production"
)

type captureBus struct {
	msgs []AuditMessage
}

func (c *captureBus) Publish(_ context.Context, msg AuditMessage) error {
	c.msgs = append(c.msgs, msg)
	return nil
}
func (c *captureBus) Subscribe(context.Context, func(AuditMessage)) error { return nil }
func (c *captureBus) Close() error                                        { return nil }

func TestEffectsPublishesAuditEvents(t *testing.T) {
	cb := &captureBus{}
	eff := Effects{Bus: cb}
	ev := &production.AuditEvent{
		ID:         42,
		EventType:  production.EventRunStarted,
		EntityType: production.EntityRun,
		EntityID:   "run-1",
		ActorID:    "op-7",
		Metadata:   datatypes.JSON(`{"run_code":"RUN-20260124-DUNA-0001"}`),
		CreatedAt:  time.Date(2026, 1, 24, 9, 30, 0, 0, time.UTC),
	}
	if err := eff.AuditAppended(context.Background(), ev); err != nil {
		t.Fatalf("AuditAppended: %v", err)
	}
	if len(cb.msgs) != 1 {
		t.Fatalf("published: want=1 got=%d", len(cb.msgs))
	}
	raw, err := json.Marshal(cb.msgs[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back["seq"] != float64(42) || back["event_type"] != production.EventRunStarted {
		t.Fatalf("message: got=%s", raw)
	}
	meta, _ := back["metadata"].(map[string]any)
	if meta["run_code"] != "RUN-20260124-DUNA-0001" {
		t.Fatalf("metadata: want run_code got=%v", back["metadata"])
	}
}

func TestEffectsWithoutBus(t *testing.T) {
	if err := (Effects{}).AuditAppended(context.Background(), &production.AuditEvent{}); err != nil {
		t.Fatalf("want=nil got=%v", err)
	}
}
