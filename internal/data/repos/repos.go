package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/lotline-backend/internal/data/repos/audit"
	"github.com/yungbote/lotline-backend/internal/data/repos/flows"
	"github.com/yungbote/lotline-backend/internal/data/repos/inventory"
	"github.com/yungbote/lotline-backend/internal/data/repos/ledger"
	"github.com/yungbote/lotline-backend/internal/data/repos/lots"
	"github.com/yungbote/lotline-backend/internal/data/repos/runs"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

type FlowDefinitionRepo = flows.FlowDefinitionRepo
type FlowVersionRepo = flows.FlowVersionRepo

type ProductionRunRepo = runs.ProductionRunRepo
type RunStepExecutionRepo = runs.RunStepExecutionRepo

type LotRepo = lots.LotRepo
type GenealogyLinkRepo = lots.GenealogyLinkRepo
type QCInspectionRepo = lots.QCInspectionRepo
type TemperatureLogRepo = lots.TemperatureLogRepo

type BufferRepo = inventory.BufferRepo
type InventoryItemRepo = inventory.InventoryItemRepo
type StockMoveRepo = inventory.StockMoveRepo

type AuditEventRepo = audit.AuditEventRepo

type IdempotencyRepo = ledger.IdempotencyRepo
type CodeSequenceRepo = ledger.CodeSequenceRepo

// Set is every table repo, built over one *gorm.DB.
type Set struct {
	FlowDefinitions FlowDefinitionRepo
	FlowVersions    FlowVersionRepo
	Runs            ProductionRunRepo
	RunSteps        RunStepExecutionRepo
	Lots            LotRepo
	Genealogy       GenealogyLinkRepo
	Inspections     QCInspectionRepo
	Temperatures    TemperatureLogRepo
	Buffers         BufferRepo
	InventoryItems  InventoryItemRepo
	StockMoves      StockMoveRepo
	AuditEvents     AuditEventRepo
	Idempotency     IdempotencyRepo
	CodeSequences   CodeSequenceRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		FlowDefinitions: flows.NewFlowDefinitionRepo(db, baseLog),
		FlowVersions:    flows.NewFlowVersionRepo(db, baseLog),
		Runs:            runs.NewProductionRunRepo(db, baseLog),
		RunSteps:        runs.NewRunStepExecutionRepo(db, baseLog),
		Lots:            lots.NewLotRepo(db, baseLog),
		Genealogy:       lots.NewGenealogyLinkRepo(db, baseLog),
		Inspections:     lots.NewQCInspectionRepo(db, baseLog),
		Temperatures:    lots.NewTemperatureLogRepo(db, baseLog),
		Buffers:         inventory.NewBufferRepo(db, baseLog),
		InventoryItems:  inventory.NewInventoryItemRepo(db, baseLog),
		StockMoves:      inventory.NewStockMoveRepo(db, baseLog),
		AuditEvents:     audit.NewAuditEventRepo(db, baseLog),
		Idempotency:     ledger.NewIdempotencyRepo(db, baseLog),
		CodeSequences:   ledger.NewCodeSequenceRepo(db, baseLog),
	}
}
