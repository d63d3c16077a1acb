package production

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Lot is a traceable quantity of material.
type Lot struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	LotCode string `gorm:"column:lot_code;not null;uniqueIndex" json:"lot_code"`
	LotType string `gorm:"column:lot_type;not null;index" json:"lot_type"`

	// Storage-assigned, strictly increasing registration order. Genealogy
	// links require parent.Seq < child.Seq.
	Seq int64 `gorm:"column:seq;not null;uniqueIndex" json:"seq"`

	RunID     *uuid.UUID `gorm:"type:uuid;index:idx_lot_run_step,priority:1" json:"run_id,omitempty"`
	StepIndex *int       `gorm:"column:step_index;index:idx_lot_run_step,priority:2" json:"step_index,omitempty"`

	// CREATED|QUARANTINE|RELEASED|HOLD|REJECTED|CONSUMED|FINISHED
	Status string `gorm:"column:status;not null;index" json:"status"`

	WeightKg     *float64 `gorm:"column:weight_kg" json:"weight_kg,omitempty"`
	TemperatureC *float64 `gorm:"column:temperature_c" json:"temperature_c,omitempty"`
	OperatorID   string   `gorm:"column:operator_id;not null;default:''" json:"operator_id"`

	Metadata datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Lot) TableName() string { return "lot" }

func (l *Lot) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// GenealogyLink is a directed parent -> child edge of the lot DAG.
type GenealogyLink struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	ParentLotID uuid.UUID `gorm:"type:uuid;not null;index:idx_genealogy_parent_child,unique,priority:1;index" json:"parent_lot_id"`
	ChildLotID  uuid.UUID `gorm:"type:uuid;not null;index:idx_genealogy_parent_child,unique,priority:2;index" json:"child_lot_id"`

	QuantityKg *float64 `gorm:"column:quantity_kg" json:"quantity_kg,omitempty"`
	CreatedBy  string   `gorm:"column:created_by;not null;default:''" json:"created_by"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (GenealogyLink) TableName() string { return "genealogy_link" }

func (g *GenealogyLink) BeforeCreate(*gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// QCInspection is a quality decision on a lot. A nil Decision is a pending
// inspection and blocks the step it belongs to.
type QCInspection struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	LotID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"lot_id"`
	RunID     *uuid.UUID `gorm:"type:uuid;index:idx_qc_run_step,priority:1" json:"run_id,omitempty"`
	StepIndex *int       `gorm:"column:step_index;index:idx_qc_run_step,priority:2" json:"step_index,omitempty"`

	InspectionType string  `gorm:"column:inspection_type;not null" json:"inspection_type"`
	IsCCP          bool    `gorm:"column:is_ccp;not null;default:false" json:"is_ccp"`
	Decision       *string `gorm:"column:decision;index" json:"decision,omitempty"`
	Notes          string  `gorm:"column:notes;not null;default:''" json:"notes,omitempty"`

	InspectorID string     `gorm:"column:inspector_id;not null;default:''" json:"inspector_id,omitempty"`
	InspectedAt *time.Time `gorm:"column:inspected_at" json:"inspected_at,omitempty"`

	IdempotencyKey string `gorm:"column:idempotency_key;not null;uniqueIndex" json:"idempotency_key"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (QCInspection) TableName() string { return "qc_inspection" }

func (q *QCInspection) BeforeCreate(*gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// TemperatureLog is a reading against exactly one of a lot or a buffer.
type TemperatureLog struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	LotID        *uuid.UUID `gorm:"type:uuid;index" json:"lot_id,omitempty"`
	BufferID     *uuid.UUID `gorm:"type:uuid;index" json:"buffer_id,omitempty"`
	InspectionID *uuid.UUID `gorm:"type:uuid;index" json:"inspection_id,omitempty"`

	TemperatureC    float64  `gorm:"column:temperature_c;not null" json:"temperature_c"`
	MeasurementType string   `gorm:"column:measurement_type;not null" json:"measurement_type"`
	IsViolation     bool     `gorm:"column:is_violation;not null;default:false;index" json:"is_violation"`
	ThresholdC      *float64 `gorm:"column:threshold_c" json:"threshold_c,omitempty"`

	RecordedBy string    `gorm:"column:recorded_by;not null;default:''" json:"recorded_by"`
	RecordedAt time.Time `gorm:"column:recorded_at;not null;index" json:"recorded_at"`
}

func (TemperatureLog) TableName() string { return "temperature_log" }

func (t *TemperatureLog) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
