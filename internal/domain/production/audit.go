package production

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrAuditAppendOnly is returned by the gorm hooks when code tries to
// rewrite history. Storage triggers reject the same statements.
var ErrAuditAppendOnly = errors.New("append_only: audit_event rows cannot be modified")

// AuditEvent is an append-only record of a state change. ID is the
// storage-assigned sequence number.
type AuditEvent struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	EventType  string `gorm:"column:event_type;not null;index" json:"event_type"`
	EntityType string `gorm:"column:entity_type;not null;index:idx_audit_entity,priority:1" json:"entity_type"`
	EntityID   string `gorm:"column:entity_id;not null;index:idx_audit_entity,priority:2" json:"entity_id"`
	ActorID    string `gorm:"column:actor_id;not null;default:'';index" json:"actor_id"`

	OldState datatypes.JSON `gorm:"type:jsonb" json:"old_state,omitempty"`
	NewState datatypes.JSON `gorm:"type:jsonb" json:"new_state,omitempty"`
	Metadata datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (AuditEvent) TableName() string { return "audit_event" }

func (*AuditEvent) BeforeUpdate(*gorm.DB) error { return ErrAuditAppendOnly }
func (*AuditEvent) BeforeDelete(*gorm.DB) error { return ErrAuditAppendOnly }

const (
	EntityFlowDefinition = "flow_definition"
	EntityFlowVersion    = "flow_version"
	EntityRun            = "production_run"
	EntityLot            = "lot"
	EntityBuffer         = "buffer"
	EntityGenealogyLink  = "genealogy_link"
	EntityQCInspection   = "qc_inspection"
	EntityTemperatureLog = "temperature_log"
	EntityStockMove      = "stock_move"
)

const (
	EventFlowCreated         = "FLOW_CREATED"
	EventFlowDeleted         = "FLOW_DELETED"
	EventFlowDraftCreated    = "FLOW_DRAFT_CREATED"
	EventFlowDraftUpdated    = "FLOW_DRAFT_UPDATED"
	EventFlowDraftDiscarded  = "FLOW_DRAFT_DISCARDED"
	EventFlowSubmitted       = "FLOW_SUBMITTED"
	EventFlowApproved        = "FLOW_APPROVED"
	EventFlowRejected        = "FLOW_REJECTED"
	EventFlowDeprecated      = "FLOW_DEPRECATED"
	EventRunStarted          = "RUN_STARTED"
	EventRunStepAdvanced     = "RUN_STEP_ADVANCED"
	EventRunStepRolledBack   = "RUN_STEP_ROLLED_BACK"
	EventRunHeld             = "RUN_HELD"
	EventRunResumed          = "RUN_RESUMED"
	EventRunCompleted        = "RUN_COMPLETED"
	EventRunAborted          = "RUN_ABORTED"
	EventRunArchived         = "RUN_ARCHIVED"
	EventLotRegistered       = "LOT_REGISTERED"
	EventLotStatusChanged    = "LOT_STATUS_CHANGED"
	EventInspectionRequested = "QC_INSPECTION_REQUESTED"
	EventInspectionRecorded  = "QC_INSPECTION_RECORDED"
	EventGenealogyLinked     = "GENEALOGY_LINKED"
	EventTemperatureRecorded = "TEMPERATURE_RECORDED"
	EventTempViolationHold   = "TEMP_VIOLATION_HOLD"
	EventStockMoved          = "STOCK_MOVED"
	EventBufferCreated       = "BUFFER_CREATED"
	EventBufferUpdated       = "BUFFER_UPDATED"
	EventCapacityOverride    = "CAPACITY_OVERRIDE"
)
