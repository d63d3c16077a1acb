package inventory

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

type ItemFilter struct {
	LotID    uuid.UUID
	BufferID uuid.UUID
	OpenOnly bool
	Limit    int
	Offset   int
}

type InventoryItemRepo interface {
	Create(dbc dbctx.Context, item *types.InventoryItem) (*types.InventoryItem, error)
	GetOpenByLot(dbc dbctx.Context, lotID uuid.UUID) (*types.InventoryItem, error)
	ListOpenByBuffer(dbc dbctx.Context, bufferID uuid.UUID) ([]*types.InventoryItem, error)
	List(dbc dbctx.Context, f ItemFilter) ([]*types.InventoryItem, error)
	LoadKg(dbc dbctx.Context, bufferID uuid.UUID) (float64, error)
	Close(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error)
}

type inventoryItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInventoryItemRepo(db *gorm.DB, baseLog *logger.Logger) InventoryItemRepo {
	return &inventoryItemRepo{db: db, log: baseLog.With("repo", "InventoryItemRepo")}
}

func (r *inventoryItemRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *inventoryItemRepo) Create(dbc dbctx.Context, item *types.InventoryItem) (*types.InventoryItem, error) {
	if item == nil {
		return nil, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func (r *inventoryItemRepo) GetOpenByLot(dbc dbctx.Context, lotID uuid.UUID) (*types.InventoryItem, error) {
	if lotID == uuid.Nil {
		return nil, nil
	}
	var row types.InventoryItem
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("lot_id = ? AND exited_at IS NULL", lotID).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *inventoryItemRepo) ListOpenByBuffer(dbc dbctx.Context, bufferID uuid.UUID) ([]*types.InventoryItem, error) {
	out := []*types.InventoryItem{}
	if bufferID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("buffer_id = ? AND exited_at IS NULL", bufferID).
		Order("entered_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *inventoryItemRepo) LoadKg(dbc dbctx.Context, bufferID uuid.UUID) (float64, error) {
	if bufferID == uuid.Nil {
		return 0, nil
	}
	var sum struct{ Total *float64 }
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.InventoryItem{}).
		Select("SUM(quantity_kg) AS total").
		Where("buffer_id = ? AND exited_at IS NULL", bufferID).
		Scan(&sum).Error; err != nil {
		return 0, err
	}
	if sum.Total == nil {
		return 0, nil
	}
	return *sum.Total, nil
}

func (r *inventoryItemRepo) Close(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.InventoryItem{}).
		Where("id = ? AND exited_at IS NULL", id).
		Update("exited_at", at.UTC())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *inventoryItemRepo) List(dbc dbctx.Context, f ItemFilter) ([]*types.InventoryItem, error) {
	out := []*types.InventoryItem{}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	q := r.dbx(dbc).WithContext(dbc.Ctx).Model(&types.InventoryItem{})
	if f.LotID != uuid.Nil {
		q = q.Where("lot_id = ?", f.LotID)
	}
	if f.BufferID != uuid.Nil {
		q = q.Where("buffer_id = ?", f.BufferID)
	}
	if f.OpenOnly {
		q = q.Where("exited_at IS NULL")
	}
	if err := q.Order("entered_at DESC").
		Limit(f.Limit).
		Offset(max(f.Offset, 0)).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
