package production

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FlowDefinition is the named, versioned production recipe.
type FlowDefinition struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	// {"hu": "...", "en": "..."}
	Name        datatypes.JSON `gorm:"type:jsonb;not null" json:"name"`
	Description string         `gorm:"column:description;not null;default:''" json:"description"`
	OwnerID     string         `gorm:"column:owner_id;not null;default:'';index" json:"owner_id"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (FlowDefinition) TableName() string { return "flow_definition" }

func (d *FlowDefinition) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// FlowVersion is one numbered revision of a FlowDefinition graph.
// Once PUBLISHED only the move to DEPRECATED is permitted; storage triggers
// reject any other change.
type FlowVersion struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	FlowDefinitionID uuid.UUID `gorm:"type:uuid;not null;index:idx_flow_version_def_num,unique,priority:1;index" json:"flow_definition_id"`
	VersionNum       int       `gorm:"column:version_num;not null;index:idx_flow_version_def_num,unique,priority:2" json:"version_num"`

	// DRAFT|REVIEW|PUBLISHED|DEPRECATED
	Status string `gorm:"column:status;not null;index" json:"status"`

	Graph datatypes.JSON `gorm:"type:jsonb;not null" json:"graph"`

	CreatedBy       string     `gorm:"column:created_by;not null;default:''" json:"created_by"`
	ReviewedBy      string     `gorm:"column:reviewed_by;not null;default:''" json:"reviewed_by,omitempty"`
	RejectionReason string     `gorm:"column:rejection_reason;not null;default:''" json:"rejection_reason,omitempty"`
	PublishedAt     *time.Time `gorm:"column:published_at" json:"published_at,omitempty"`
	DeprecatedAt    *time.Time `gorm:"column:deprecated_at" json:"deprecated_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (FlowVersion) TableName() string { return "flow_version" }

func (v *FlowVersion) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
