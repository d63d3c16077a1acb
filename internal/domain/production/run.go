package production

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductionRun executes exactly one PUBLISHED FlowVersion. FlowVersionID
// never changes after insert.
type ProductionRun struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	RunCode       string    `gorm:"column:run_code;not null;uniqueIndex" json:"run_code"`
	FlowVersionID uuid.UUID `gorm:"type:uuid;not null;index" json:"flow_version_id"`

	// IDLE|RUNNING|HOLD|COMPLETED|ABORTED
	Status           string `gorm:"column:status;not null;index" json:"status"`
	CurrentStepIndex int    `gorm:"column:current_step_index;not null;default:0" json:"current_step_index"`
	StepCount        int    `gorm:"column:step_count;not null" json:"step_count"`

	StartedBy   string     `gorm:"column:started_by;not null;default:''" json:"started_by"`
	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	AbortedAt   *time.Time `gorm:"column:aborted_at" json:"aborted_at,omitempty"`
	EndedAt     *time.Time `gorm:"column:ended_at;index" json:"ended_at,omitempty"`
	ArchivedAt  *time.Time `gorm:"column:archived_at;index" json:"archived_at,omitempty"`
	HoldReason  string     `gorm:"column:hold_reason;not null;default:''" json:"hold_reason,omitempty"`
	AbortReason string     `gorm:"column:abort_reason;not null;default:''" json:"abort_reason,omitempty"`

	IdempotencyKey string `gorm:"column:idempotency_key;not null;uniqueIndex" json:"idempotency_key"`

	// Optimistic concurrency counter, bumped on every step transition.
	Version int `gorm:"column:version;not null;default:0" json:"version"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ProductionRun) TableName() string { return "production_run" }

func (r *ProductionRun) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// FinalStepIndex is the index of the last step, or -1 for an empty sequence.
func (r *ProductionRun) FinalStepIndex() int {
	return r.StepCount - 1
}

// RunStepExecution records one step of a run's canonical step sequence.
type RunStepExecution struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	RunID     uuid.UUID `gorm:"type:uuid;not null;index:idx_run_step_exec_run_step,unique,priority:1" json:"run_id"`
	StepIndex int       `gorm:"column:step_index;not null;index:idx_run_step_exec_run_step,unique,priority:2" json:"step_index"`

	NodeID   string `gorm:"column:node_id;not null" json:"node_id"`
	NodeType string `gorm:"column:node_type;not null" json:"node_type"`
	Label    string `gorm:"column:label;not null;default:''" json:"label"`

	// PENDING|IN_PROGRESS|COMPLETED|SKIPPED
	Status      string     `gorm:"column:status;not null" json:"status"`
	OperatorID  string     `gorm:"column:operator_id;not null;default:''" json:"operator_id,omitempty"`
	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (RunStepExecution) TableName() string { return "run_step_execution" }

func (s *RunStepExecution) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
