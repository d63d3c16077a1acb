package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/http/response"
	"github.com/yungbote/lotline-backend/internal/services"
)

type InventoryHandler struct {
	inventory domainagg.InventoryAggregate
	reads     services.InventoryService
}

func NewInventoryHandler(inventory domainagg.InventoryAggregate, reads services.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventory: inventory, reads: reads}
}

type createBufferRequest struct {
	BufferCode      string   `json:"buffer_code" binding:"required"`
	BufferType      string   `json:"buffer_type" binding:"required"`
	AllowedLotTypes []string `json:"allowed_lot_types" binding:"required"`
	CapacityKg      float64  `json:"capacity_kg"`
	TempMinC        float64  `json:"temp_min_c"`
	TempMaxC        float64  `json:"temp_max_c"`
}

// POST /api/buffers
func (h *InventoryHandler) CreateBuffer(c *gin.Context) {
	const op = "HTTP.Buffers.Create"
	var req createBufferRequest
	if !bindJSON(c, op, &req) {
		return
	}
	b, err := h.inventory.CreateBuffer(c.Request.Context(), domainagg.CreateBufferInput{
		BufferCode:      req.BufferCode,
		BufferType:      req.BufferType,
		AllowedLotTypes: req.AllowedLotTypes,
		CapacityKg:      req.CapacityKg,
		TempMinC:        req.TempMinC,
		TempMaxC:        req.TempMaxC,
		ActorID:         actorID(c),
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, b)
}

// GET /api/buffers
func (h *InventoryHandler) ListBuffers(c *gin.Context) {
	active, ok := queryBool(c, "HTTP.Buffers.List", "active")
	if !ok {
		return
	}
	buffers, err := h.reads.ListBuffers(c.Request.Context(), c.Query("buffer_type"), active)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondList(c, buffers, 0, 0)
}

// GET /api/buffers/summary
func (h *InventoryHandler) Summaries(c *gin.Context) {
	out, err := h.reads.BufferSummaries(c.Request.Context())
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondList(c, out, 0, 0)
}

// allowed_lot_types is absent: the accepted set is fixed at creation.
type updateBufferRequest struct {
	CapacityKg *float64 `json:"capacity_kg"`
	TempMinC   *float64 `json:"temp_min_c"`
	TempMaxC   *float64 `json:"temp_max_c"`
	IsActive   *bool    `json:"is_active"`
}

// PATCH /api/buffers/:id
func (h *InventoryHandler) UpdateBuffer(c *gin.Context) {
	const op = "HTTP.Buffers.Update"
	id, ok := pathUUID(c, op, "id")
	if !ok {
		return
	}
	var req updateBufferRequest
	if !bindJSON(c, op, &req) {
		return
	}
	b, err := h.inventory.UpdateBuffer(c.Request.Context(), domainagg.UpdateBufferInput{
		BufferID:   id,
		CapacityKg: req.CapacityKg,
		TempMinC:   req.TempMinC,
		TempMaxC:   req.TempMaxC,
		IsActive:   req.IsActive,
		ActorID:    actorID(c),
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, b)
}

// GET /api/buffers/:id/contents
func (h *InventoryHandler) Contents(c *gin.Context) {
	id, ok := pathUUID(c, "HTTP.Buffers.Contents", "id")
	if !ok {
		return
	}
	out, err := h.reads.GetBufferContents(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, out)
}

type moveRequest struct {
	LotID          uuid.UUID  `json:"lot_id" binding:"required"`
	FromBufferID   *uuid.UUID `json:"from_buffer_id"`
	ToBufferID     *uuid.UUID `json:"to_buffer_id"`
	QuantityKg     float64    `json:"quantity_kg"`
	MoveType       string     `json:"move_type"`
	IdempotencyKey string     `json:"idempotency_key"`
}

// POST /api/inventory/moves
func (h *InventoryHandler) Move(c *gin.Context) {
	const op = "HTTP.Inventory.Move"
	var req moveRequest
	if !bindJSON(c, op, &req) {
		return
	}
	key := idempotencyKey(c, req.IdempotencyKey)
	if key == "" {
		response.RespondInvalid(c, op, fmt.Errorf("Idempotency-Key header is required"))
		return
	}
	res, err := h.inventory.MoveStock(c.Request.Context(), domainagg.MoveStockInput{
		LotID:          req.LotID,
		FromBufferID:   req.FromBufferID,
		ToBufferID:     req.ToBufferID,
		QuantityKg:     req.QuantityKg,
		MoveType:       req.MoveType,
		OperatorID:     actorID(c),
		IdempotencyKey: key,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondReplay(c, res.Replayed, res)
}

// GET /api/buffers/:id
func (h *InventoryHandler) GetBuffer(c *gin.Context) {
	id, ok := pathUUID(c, "HTTP.Buffers.Get", "id")
	if !ok {
		return
	}
	b, err := h.reads.GetBuffer(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, b)
}

// GET /api/inventory/items
func (h *InventoryHandler) ListItems(c *gin.Context) {
	const op = "HTTP.Inventory.ListItems"
	limit, offset, ok := page(c, op)
	if !ok {
		return
	}
	lotID, ok := queryUUID(c, op, "lot_id")
	if !ok {
		return
	}
	bufferID, ok := queryUUID(c, op, "buffer_id")
	if !ok {
		return
	}
	open, ok := queryBool(c, op, "open")
	if !ok {
		return
	}
	out, err := h.reads.ListItems(c.Request.Context(), services.ItemListFilter{
		LotID:    lotID,
		BufferID: bufferID,
		OpenOnly: open != nil && *open,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondList(c, out, limit, offset)
}

// GET /api/inventory/moves
func (h *InventoryHandler) ListMoves(c *gin.Context) {
	const op = "HTTP.Inventory.ListMoves"
	limit, offset, ok := page(c, op)
	if !ok {
		return
	}
	lotID, ok := queryUUID(c, op, "lot_id")
	if !ok {
		return
	}
	bufferID, ok := queryUUID(c, op, "buffer_id")
	if !ok {
		return
	}
	out, err := h.reads.ListMoves(c.Request.Context(), services.MoveListFilter{
		LotID:    lotID,
		BufferID: bufferID,
		MoveType: c.Query("move_type"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondList(c, out, limit, offset)
}
