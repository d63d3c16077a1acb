package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/lotline-backend/internal/domain/production"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		// Flow registry
		&production.FlowDefinition{},
		&production.FlowVersion{},

		// Runs
		&production.ProductionRun{},
		&production.RunStepExecution{},

		// Lots + genealogy + QC
		&production.Lot{},
		&production.GenealogyLink{},
		&production.QCInspection{},
		&production.TemperatureLog{},

		// Inventory
		&production.Buffer{},
		&production.InventoryItem{},
		&production.StockMove{},

		// Ledgers
		&production.AuditEvent{},
		&production.IdempotencyRecord{},
		&production.CodeSequence{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if err := ensurePartialIndexes(db); err != nil {
		return err
	}
	return InstallTriggers(db)
}

var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_flow_version_one_published
		ON flow_version (flow_definition_id) WHERE status = 'PUBLISHED'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_flow_version_one_editable
		ON flow_version (flow_definition_id) WHERE status IN ('DRAFT', 'REVIEW')`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_inventory_item_one_open
		ON inventory_item (lot_id) WHERE exited_at IS NULL`,
}

func ensurePartialIndexes(db *gorm.DB) error {
	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create partial index: %w", err)
		}
	}
	return nil
}
