package db

import (
	"fmt"

	"gorm.io/gorm"
)

// Trigger messages start with one of these tags so callers can classify
// storage-level rejections without parsing dialect-specific errors.
const (
	TagImmutableVersion = "immutable_version"
	TagAppendOnly       = "append_only"
	TagBufferPurity     = "buffer_purity"
	TagRunVersionPinned = "run_version_pinned"
	TagLotCoreImmutable = "lot_core_immutable"
	TagSelfLink         = "genealogy_self_link"
	TagMoveEndpoints    = "stock_move_endpoints"
)

// InstallTriggers creates the storage guards for the current dialect.
func InstallTriggers(db *gorm.DB) error {
	var stmts []string
	switch db.Dialector.Name() {
	case "postgres":
		stmts = postgresTriggers
	case "sqlite":
		stmts = sqliteTriggers
	default:
		return fmt.Errorf("install triggers: unsupported dialect %q", db.Dialector.Name())
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("install triggers: %w", err)
		}
	}
	return nil
}

var postgresTriggers = []string{
	`CREATE OR REPLACE FUNCTION lotline_flow_version_guard() RETURNS trigger AS $$
	BEGIN
		IF TG_OP = 'DELETE' THEN
			IF OLD.status IN ('PUBLISHED', 'DEPRECATED') THEN
				RAISE EXCEPTION 'immutable_version: % flow version cannot be deleted', OLD.status;
			END IF;
			RETURN OLD;
		END IF;
		IF OLD.status = 'DEPRECATED' THEN
			RAISE EXCEPTION 'immutable_version: deprecated flow version cannot be modified';
		END IF;
		IF OLD.status = 'PUBLISHED' AND (NEW.status <> 'DEPRECATED' OR NEW.graph::text <> OLD.graph::text) THEN
			RAISE EXCEPTION 'immutable_version: published flow version cannot be modified';
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS trg_flow_version_guard ON flow_version`,
	`CREATE TRIGGER trg_flow_version_guard BEFORE UPDATE OR DELETE ON flow_version
		FOR EACH ROW EXECUTE FUNCTION lotline_flow_version_guard()`,

	`CREATE OR REPLACE FUNCTION lotline_audit_append_only() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'append_only: audit_event rows cannot be modified';
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS trg_audit_append_only ON audit_event`,
	`CREATE TRIGGER trg_audit_append_only BEFORE UPDATE OR DELETE ON audit_event
		FOR EACH ROW EXECUTE FUNCTION lotline_audit_append_only()`,

	`CREATE OR REPLACE FUNCTION lotline_run_version_pinned() RETURNS trigger AS $$
	BEGIN
		IF NEW.flow_version_id <> OLD.flow_version_id THEN
			RAISE EXCEPTION 'run_version_pinned: flow_version_id cannot change';
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS trg_run_version_pinned ON production_run`,
	`CREATE TRIGGER trg_run_version_pinned BEFORE UPDATE ON production_run
		FOR EACH ROW EXECUTE FUNCTION lotline_run_version_pinned()`,

	`CREATE OR REPLACE FUNCTION lotline_lot_core_immutable() RETURNS trigger AS $$
	BEGIN
		IF NEW.lot_code <> OLD.lot_code OR NEW.lot_type <> OLD.lot_type OR NEW.seq <> OLD.seq THEN
			RAISE EXCEPTION 'lot_core_immutable: lot code and type cannot change';
		END IF;
		IF OLD.status = 'FINISHED' THEN
			RAISE EXCEPTION 'lot_core_immutable: FINISHED lot cannot be modified';
		END IF;
		IF OLD.status = 'CONSUMED' AND (
			NEW.status NOT IN ('CONSUMED', 'FINISHED')
			OR NEW.run_id IS DISTINCT FROM OLD.run_id
			OR NEW.step_index IS DISTINCT FROM OLD.step_index
			OR NEW.weight_kg IS DISTINCT FROM OLD.weight_kg
			OR NEW.temperature_c IS DISTINCT FROM OLD.temperature_c
			OR NEW.operator_id IS DISTINCT FROM OLD.operator_id
			OR NEW.metadata IS DISTINCT FROM OLD.metadata
		) THEN
			RAISE EXCEPTION 'lot_core_immutable: CONSUMED lot may only move to FINISHED';
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS trg_lot_core_immutable ON lot`,
	`CREATE TRIGGER trg_lot_core_immutable BEFORE UPDATE ON lot
		FOR EACH ROW EXECUTE FUNCTION lotline_lot_core_immutable()`,

	`CREATE OR REPLACE FUNCTION lotline_buffer_types_fixed() RETURNS trigger AS $$
	BEGIN
		IF NEW.allowed_lot_types::text <> OLD.allowed_lot_types::text THEN
			RAISE EXCEPTION 'buffer_purity: allowed_lot_types is fixed at creation';
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS trg_buffer_types_fixed ON buffer`,
	`CREATE TRIGGER trg_buffer_types_fixed BEFORE UPDATE ON buffer
		FOR EACH ROW EXECUTE FUNCTION lotline_buffer_types_fixed()`,

	`CREATE OR REPLACE FUNCTION lotline_inventory_purity() RETURNS trigger AS $$
	BEGIN
		IF NOT EXISTS (
			SELECT 1 FROM buffer b JOIN lot l ON l.id = NEW.lot_id
			WHERE b.id = NEW.buffer_id AND jsonb_exists(b.allowed_lot_types, l.lot_type)
		) THEN
			RAISE EXCEPTION 'buffer_purity: lot type not accepted by buffer';
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS trg_inventory_purity ON inventory_item`,
	`CREATE TRIGGER trg_inventory_purity BEFORE INSERT ON inventory_item
		FOR EACH ROW EXECUTE FUNCTION lotline_inventory_purity()`,

	`CREATE OR REPLACE FUNCTION lotline_genealogy_self_link() RETURNS trigger AS $$
	BEGIN
		IF NEW.parent_lot_id = NEW.child_lot_id THEN
			RAISE EXCEPTION 'genealogy_self_link: a lot cannot be its own parent';
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS trg_genealogy_self_link ON genealogy_link`,
	`CREATE TRIGGER trg_genealogy_self_link BEFORE INSERT ON genealogy_link
		FOR EACH ROW EXECUTE FUNCTION lotline_genealogy_self_link()`,

	`CREATE OR REPLACE FUNCTION lotline_stock_move_endpoints() RETURNS trigger AS $$
	BEGIN
		IF NEW.from_buffer_id IS NULL AND NEW.to_buffer_id IS NULL THEN
			RAISE EXCEPTION 'stock_move_endpoints: a move needs a source or a destination';
		END IF;
		IF NEW.from_buffer_id = NEW.to_buffer_id THEN
			RAISE EXCEPTION 'stock_move_endpoints: source and destination are the same buffer';
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS trg_stock_move_endpoints ON stock_move`,
	`CREATE TRIGGER trg_stock_move_endpoints BEFORE INSERT ON stock_move
		FOR EACH ROW EXECUTE FUNCTION lotline_stock_move_endpoints()`,
}

var sqliteTriggers = []string{
	`CREATE TRIGGER IF NOT EXISTS trg_flow_version_guard_update BEFORE UPDATE ON flow_version
	WHEN OLD.status = 'DEPRECATED'
		OR (OLD.status = 'PUBLISHED' AND (NEW.status <> 'DEPRECATED' OR NEW.graph IS NOT OLD.graph))
	BEGIN
		SELECT RAISE(ABORT, 'immutable_version: published flow version cannot be modified');
	END`,
	`CREATE TRIGGER IF NOT EXISTS trg_flow_version_guard_delete BEFORE DELETE ON flow_version
	WHEN OLD.status IN ('PUBLISHED', 'DEPRECATED')
	BEGIN
		SELECT RAISE(ABORT, 'immutable_version: flow version cannot be deleted');
	END`,

	`CREATE TRIGGER IF NOT EXISTS trg_audit_no_update BEFORE UPDATE ON audit_event
	BEGIN
		SELECT RAISE(ABORT, 'append_only: audit_event rows cannot be modified');
	END`,
	`CREATE TRIGGER IF NOT EXISTS trg_audit_no_delete BEFORE DELETE ON audit_event
	BEGIN
		SELECT RAISE(ABORT, 'append_only: audit_event rows cannot be modified');
	END`,

	`CREATE TRIGGER IF NOT EXISTS trg_run_version_pinned BEFORE UPDATE ON production_run
	WHEN NEW.flow_version_id IS NOT OLD.flow_version_id
	BEGIN
		SELECT RAISE(ABORT, 'run_version_pinned: flow_version_id cannot change');
	END`,

	`DROP TRIGGER IF EXISTS trg_lot_core_immutable`,
	`CREATE TRIGGER trg_lot_core_immutable BEFORE UPDATE ON lot
	WHEN NEW.lot_code IS NOT OLD.lot_code
		OR NEW.lot_type IS NOT OLD.lot_type
		OR NEW.seq IS NOT OLD.seq
		OR OLD.status = 'FINISHED'
		OR (OLD.status = 'CONSUMED' AND (
			NEW.status NOT IN ('CONSUMED', 'FINISHED')
			OR NEW.run_id IS NOT OLD.run_id
			OR NEW.step_index IS NOT OLD.step_index
			OR NEW.weight_kg IS NOT OLD.weight_kg
			OR NEW.temperature_c IS NOT OLD.temperature_c
			OR NEW.operator_id IS NOT OLD.operator_id
			OR NEW.metadata IS NOT OLD.metadata
		))
	BEGIN
		SELECT RAISE(ABORT, 'lot_core_immutable: lot core fields cannot change');
	END`,

	`CREATE TRIGGER IF NOT EXISTS trg_buffer_types_fixed BEFORE UPDATE ON buffer
	WHEN NEW.allowed_lot_types IS NOT OLD.allowed_lot_types
	BEGIN
		SELECT RAISE(ABORT, 'buffer_purity: allowed_lot_types is fixed at creation');
	END`,

	`CREATE TRIGGER IF NOT EXISTS trg_inventory_purity BEFORE INSERT ON inventory_item
	WHEN NOT EXISTS (
		SELECT 1 FROM buffer b, lot l, json_each(b.allowed_lot_types) j
		WHERE b.id = NEW.buffer_id AND l.id = NEW.lot_id AND j.value = l.lot_type
	)
	BEGIN
		SELECT RAISE(ABORT, 'buffer_purity: lot type not accepted by buffer');
	END`,

	`CREATE TRIGGER IF NOT EXISTS trg_genealogy_self_link BEFORE INSERT ON genealogy_link
	WHEN NEW.parent_lot_id = NEW.child_lot_id
	BEGIN
		SELECT RAISE(ABORT, 'genealogy_self_link: a lot cannot be its own parent');
	END`,

	`CREATE TRIGGER IF NOT EXISTS trg_stock_move_endpoints BEFORE INSERT ON stock_move
	WHEN (NEW.from_buffer_id IS NULL AND NEW.to_buffer_id IS NULL)
		OR NEW.from_buffer_id = NEW.to_buffer_id
	BEGIN
		SELECT RAISE(ABORT, 'stock_move_endpoints: invalid source or destination');
	END`,
}
