package production

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IdempotencyRecord claims a client key for one logical mutation. The
// request hash lets a replay with a different payload be told apart from a
// genuine retry.
type IdempotencyRecord struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	Scope string `gorm:"column:scope;not null;index:idx_idempotency_scope_key,unique,priority:1" json:"scope"`
	Key   string `gorm:"column:key;not null;index:idx_idempotency_scope_key,unique,priority:2" json:"key"`

	RequestHash string `gorm:"column:request_hash;not null" json:"request_hash"`
	// Entity id (or other reference) produced by the original mutation.
	ResultRef string `gorm:"column:result_ref;not null;default:''" json:"result_ref"`

	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (IdempotencyRecord) TableName() string { return "idempotency_record" }

func (r *IdempotencyRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// CodeSequence is the storage-side counter behind generated codes and lot
// registration order.
type CodeSequence struct {
	Prefix    string    `gorm:"column:prefix;primaryKey" json:"prefix"`
	LastSeq   int64     `gorm:"column:last_seq;not null;default:0" json:"last_seq"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (CodeSequence) TableName() string { return "code_sequence" }
