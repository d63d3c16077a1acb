package aggregates

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/lotline-backend/internal/domain/production"
)

var InventoryAggregateContract = Contract{
	Name:          "Production.InventoryAggregate",
	AuditEntities: []string{production.EntityBuffer, production.EntityStockMove, production.EntityLot},
	Locks:         []string{"lot", "buffer (by id order)"},
	Idempotent:    []string{"MoveStock"},
	Notes: "Owns buffer residency: one open inventory item per lot, buffer purity, " +
		"soft capacity overrides and idempotent stock moves.",
}

// InventoryAggregate owns buffers and stock movement.
type InventoryAggregate interface {
	Aggregate

	CreateBuffer(ctx context.Context, in CreateBufferInput) (*production.Buffer, error)
	UpdateBuffer(ctx context.Context, in UpdateBufferInput) (*production.Buffer, error)
	// MoveStock is idempotent on IdempotencyKey: a repeat returns the original move.
	MoveStock(ctx context.Context, in MoveStockInput) (MoveStockResult, error)
}

type CreateBufferInput struct {
	BufferCode      string
	BufferType      string
	AllowedLotTypes []string
	CapacityKg      float64
	TempMinC        float64
	TempMaxC        float64
	ActorID         string
}

// UpdateBufferInput has no AllowedLotTypes: the accepted set is fixed at creation.
type UpdateBufferInput struct {
	BufferID   uuid.UUID
	CapacityKg *float64
	TempMinC   *float64
	TempMaxC   *float64
	IsActive   *bool
	ActorID    string
}

type MoveStockInput struct {
	LotID        uuid.UUID
	FromBufferID *uuid.UUID
	ToBufferID   *uuid.UUID
	QuantityKg   float64
	// Optional; inferred from which side is nil (RECEIVE/TRANSFER/SHIP).
	MoveType       string
	OperatorID     string
	IdempotencyKey string
}

type MoveStockResult struct {
	Move             *production.StockMove `json:"move"`
	Lot              *production.Lot       `json:"lot"`
	Replayed         bool                  `json:"replayed"`
	CapacityOverride bool                  `json:"capacity_override"`
}
