package aggregates

import (
	"testing"

	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/domain/production"
)

func TestContractsCoverEveryAuditEntity(t *testing.T) {
	h := newHarness(t)
	aggs := []domainagg.Aggregate{h.flow, h.run, h.lot, h.inv}

	owners := map[string][]string{}
	for _, a := range aggs {
		c := a.Contract()
		if c.Name == "" || len(c.AuditEntities) == 0 || len(c.Locks) == 0 {
			t.Fatalf("incomplete contract: %+v", c)
		}
		for _, e := range c.AuditEntities {
			owners[e] = append(owners[e], c.Name)
		}
	}
	for _, e := range []string{
		production.EntityFlowDefinition,
		production.EntityFlowVersion,
		production.EntityRun,
		production.EntityLot,
		production.EntityBuffer,
		production.EntityGenealogyLink,
		production.EntityQCInspection,
		production.EntityTemperatureLog,
		production.EntityStockMove,
	} {
		if len(owners[e]) == 0 {
			t.Errorf("no aggregate audits %s", e)
		}
	}
}

func TestContractReplayOps(t *testing.T) {
	h := newHarness(t)
	if !h.run.Contract().ReplaysOn("StartRun") {
		t.Fatal("StartRun must replay on its idempotency key")
	}
	if !h.inv.Contract().ReplaysOn("MoveStock") {
		t.Fatal("MoveStock must replay on its idempotency key")
	}
	if h.flow.Contract().ReplaysOn("Approve") {
		t.Fatal("flow transitions are not keyed")
	}
	if !h.inv.Contract().Audits(production.EntityLot) {
		t.Fatal("inventory exhaustion changes lot status and must audit it")
	}
}
