package production

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Buffer is a physical storage location. AllowedLotTypes is fixed at creation.
type Buffer struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	BufferCode string `gorm:"column:buffer_code;size:20;not null;uniqueIndex" json:"buffer_code"`
	BufferType string `gorm:"column:buffer_type;not null;index" json:"buffer_type"`

	// JSON array of lot type strings.
	AllowedLotTypes datatypes.JSON `gorm:"type:jsonb;not null" json:"allowed_lot_types"`

	CapacityKg float64 `gorm:"column:capacity_kg;not null" json:"capacity_kg"`
	TempMinC   float64 `gorm:"column:temp_min_c;not null" json:"temp_min_c"`
	TempMaxC   float64 `gorm:"column:temp_max_c;not null" json:"temp_max_c"`
	IsActive   bool    `gorm:"column:is_active;not null;default:true;index" json:"is_active"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Buffer) TableName() string { return "buffer" }

func (b *Buffer) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// AllowedTypes decodes AllowedLotTypes; malformed JSON yields an empty set.
func (b *Buffer) AllowedTypes() []string {
	var out []string
	if b == nil || len(b.AllowedLotTypes) == 0 {
		return out
	}
	_ = json.Unmarshal(b.AllowedLotTypes, &out)
	return out
}

// InventoryItem is a lot's residency in a buffer. ExitedAt nil means the
// lot is still there; at most one open item exists per lot.
type InventoryItem struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	LotID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"lot_id"`
	BufferID uuid.UUID  `gorm:"type:uuid;not null;index" json:"buffer_id"`
	RunID    *uuid.UUID `gorm:"type:uuid;index" json:"run_id,omitempty"`

	QuantityKg float64    `gorm:"column:quantity_kg;not null" json:"quantity_kg"`
	EnteredAt  time.Time  `gorm:"column:entered_at;not null" json:"entered_at"`
	ExitedAt   *time.Time `gorm:"column:exited_at;index" json:"exited_at,omitempty"`
}

func (InventoryItem) TableName() string { return "inventory_item" }

func (i *InventoryItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// StockMove records one buffer transfer. Exactly one side may be nil.
type StockMove struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	LotID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"lot_id"`
	FromBufferID *uuid.UUID `gorm:"type:uuid;index" json:"from_buffer_id,omitempty"`
	ToBufferID   *uuid.UUID `gorm:"type:uuid;index" json:"to_buffer_id,omitempty"`

	QuantityKg float64 `gorm:"column:quantity_kg;not null" json:"quantity_kg"`
	// RECEIVE|TRANSFER|SHIP|CONSUME
	MoveType   string `gorm:"column:move_type;not null" json:"move_type"`
	OperatorID string `gorm:"column:operator_id;not null;default:''" json:"operator_id"`

	IdempotencyKey string `gorm:"column:idempotency_key;not null;uniqueIndex" json:"idempotency_key"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (StockMove) TableName() string { return "stock_move" }

func (m *StockMove) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// BufferSummary is a read model of current buffer load.
type BufferSummary struct {
	BufferID    uuid.UUID `json:"buffer_id"`
	BufferCode  string    `json:"buffer_code"`
	BufferType  string    `json:"buffer_type"`
	CapacityKg  float64   `json:"capacity_kg"`
	LoadKg      float64   `json:"load_kg"`
	LotCount    int       `json:"lot_count"`
	Utilization float64   `json:"utilization"`
	IsActive    bool      `json:"is_active"`
}
