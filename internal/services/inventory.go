package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/lotline-backend/internal/data/repos"
	"github.com/yungbote/lotline-backend/internal/data/repos/inventory"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

type BufferContent struct {
	Item *production.InventoryItem `json:"item"`
	Lot  *production.Lot           `json:"lot"`
}

type BufferContents struct {
	Buffer *production.Buffer `json:"buffer"`
	LoadKg float64            `json:"load_kg"`
	Items  []BufferContent    `json:"items"`
}

type ItemListFilter struct {
	LotID    uuid.UUID
	BufferID uuid.UUID
	OpenOnly bool
	Limit    int
	Offset   int
}

type MoveListFilter struct {
	LotID    uuid.UUID
	BufferID uuid.UUID
	MoveType string
	Limit    int
	Offset   int
}

type InventoryService interface {
	GetBuffer(ctx context.Context, id uuid.UUID) (*production.Buffer, error)
	ListBuffers(ctx context.Context, bufferType string, active *bool) ([]*production.Buffer, error)
	GetBufferContents(ctx context.Context, bufferID uuid.UUID) (*BufferContents, error)
	BufferSummaries(ctx context.Context) ([]*production.BufferSummary, error)
	ListItems(ctx context.Context, f ItemListFilter) ([]*production.InventoryItem, error)
	ListMoves(ctx context.Context, f MoveListFilter) ([]*production.StockMove, error)
}

type inventoryService struct {
	log     *logger.Logger
	buffers repos.BufferRepo
	items   repos.InventoryItemRepo
	moves   repos.StockMoveRepo
	lots    repos.LotRepo
}

func NewInventoryService(
	log *logger.Logger,
	buffers repos.BufferRepo,
	items repos.InventoryItemRepo,
	moves repos.StockMoveRepo,
	lotRepo repos.LotRepo,
) InventoryService {
	return &inventoryService{
		log:     log.With("service", "InventoryService"),
		buffers: buffers,
		items:   items,
		moves:   moves,
		lots:    lotRepo,
	}
}

func (s *inventoryService) GetBuffer(ctx context.Context, id uuid.UUID) (*production.Buffer, error) {
	const op = "Production.Inventory.GetBuffer"
	buf, err := s.buffers.GetByID(dbctx.With(ctx), id)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if buf == nil {
		return nil, notFound(op, "buffer %s not found", id)
	}
	return buf, nil
}

func (s *inventoryService) ListBuffers(ctx context.Context, bufferType string, active *bool) ([]*production.Buffer, error) {
	const op = "Production.Inventory.ListBuffers"
	out, err := s.buffers.List(dbctx.With(ctx), inventory.BufferFilter{
		BufferType: strings.ToUpper(strings.TrimSpace(bufferType)),
		Active:     active,
	})
	if err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (s *inventoryService) GetBufferContents(ctx context.Context, bufferID uuid.UUID) (*BufferContents, error) {
	const op = "Production.Inventory.GetBufferContents"
	dbc := dbctx.With(ctx)
	buf, err := s.buffers.GetByID(dbc, bufferID)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if buf == nil {
		return nil, notFound(op, "buffer %s not found", bufferID)
	}
	items, err := s.items.ListOpenByBuffer(dbc, bufferID)
	if err != nil {
		return nil, storageErr(op, err)
	}
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.LotID)
	}
	lotRows, err := s.lots.GetByIDs(dbc, ids)
	if err != nil {
		return nil, storageErr(op, err)
	}
	byID := make(map[uuid.UUID]*production.Lot, len(lotRows))
	for _, l := range lotRows {
		byID[l.ID] = l
	}
	out := &BufferContents{Buffer: buf, Items: make([]BufferContent, 0, len(items))}
	for _, it := range items {
		out.LoadKg += it.QuantityKg
		out.Items = append(out.Items, BufferContent{Item: it, Lot: byID[it.LotID]})
	}
	return out, nil
}

func (s *inventoryService) BufferSummaries(ctx context.Context) ([]*production.BufferSummary, error) {
	const op = "Production.Inventory.BufferSummaries"
	out, err := s.buffers.Summaries(dbctx.With(ctx))
	if err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (s *inventoryService) ListItems(ctx context.Context, f ItemListFilter) ([]*production.InventoryItem, error) {
	const op = "Production.Inventory.ListItems"
	out, err := s.items.List(dbctx.With(ctx), inventory.ItemFilter{
		LotID:    f.LotID,
		BufferID: f.BufferID,
		OpenOnly: f.OpenOnly,
		Limit:    f.Limit,
		Offset:   f.Offset,
	})
	if err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (s *inventoryService) ListMoves(ctx context.Context, f MoveListFilter) ([]*production.StockMove, error) {
	const op = "Production.Inventory.ListMoves"
	f.MoveType = strings.ToUpper(strings.TrimSpace(f.MoveType))
	if f.MoveType != "" && !production.IsMoveType(f.MoveType) {
		return nil, invalid(op, "unknown move type %q", f.MoveType)
	}
	out, err := s.moves.List(dbctx.With(ctx), inventory.MoveFilter{
		LotID:    f.LotID,
		BufferID: f.BufferID,
		MoveType: f.MoveType,
		Limit:    f.Limit,
		Offset:   f.Offset,
	})
	if err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}
