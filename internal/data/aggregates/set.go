package aggregates

import (
	"github.com/yungbote/lotline-backend/internal/data/repos"
	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
)

// Set is every write boundary sharing one BaseDeps.
type Set struct {
	Flow      domainagg.FlowAggregate
	Run       domainagg.RunAggregate
	Lot       domainagg.LotAggregate
	Inventory domainagg.InventoryAggregate
}

func NewSet(base BaseDeps, r repos.Set) Set {
	return Set{
		Flow: NewFlowAggregate(FlowAggregateDeps{
			Base:        base,
			Definitions: r.FlowDefinitions,
			Versions:    r.FlowVersions,
			Runs:        r.Runs,
			Audit:       r.AuditEvents,
		}),
		Run: NewRunAggregate(RunAggregateDeps{
			Base:          base,
			Versions:      r.FlowVersions,
			Runs:          r.Runs,
			Steps:         r.RunSteps,
			Lots:          r.Lots,
			Inspections:   r.Inspections,
			Audit:         r.AuditEvents,
			Idempotency:   r.Idempotency,
			CodeSequences: r.CodeSequences,
		}),
		Lot: NewLotAggregate(LotAggregateDeps{
			Base:           base,
			Runs:           r.Runs,
			Lots:           r.Lots,
			Genealogy:      r.Genealogy,
			Inspections:    r.Inspections,
			Temperatures:   r.Temperatures,
			Buffers:        r.Buffers,
			InventoryItems: r.InventoryItems,
			Audit:          r.AuditEvents,
			Idempotency:    r.Idempotency,
			CodeSequences:  r.CodeSequences,
		}),
		Inventory: NewInventoryAggregate(InventoryAggregateDeps{
			Base:           base,
			Buffers:        r.Buffers,
			InventoryItems: r.InventoryItems,
			StockMoves:     r.StockMoves,
			Lots:           r.Lots,
			Genealogy:      r.Genealogy,
			Audit:          r.AuditEvents,
			Idempotency:    r.Idempotency,
		}),
	}
}
