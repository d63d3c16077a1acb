package inventory

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

type MoveFilter struct {
	LotID uuid.UUID
	// BufferID matches moves into or out of the buffer.
	BufferID uuid.UUID
	MoveType string
	Limit    int
	Offset   int
}

type StockMoveRepo interface {
	Create(dbc dbctx.Context, m *types.StockMove) (*types.StockMove, error)
	GetByIdempotencyKey(dbc dbctx.Context, key string) (*types.StockMove, error)
	ListByLot(dbc dbctx.Context, lotID uuid.UUID) ([]*types.StockMove, error)
	List(dbc dbctx.Context, f MoveFilter) ([]*types.StockMove, error)
}

type stockMoveRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStockMoveRepo(db *gorm.DB, baseLog *logger.Logger) StockMoveRepo {
	return &stockMoveRepo{db: db, log: baseLog.With("repo", "StockMoveRepo")}
}

func (r *stockMoveRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *stockMoveRepo) Create(dbc dbctx.Context, m *types.StockMove) (*types.StockMove, error) {
	if m == nil {
		return nil, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func (r *stockMoveRepo) GetByIdempotencyKey(dbc dbctx.Context, key string) (*types.StockMove, error) {
	if key == "" {
		return nil, nil
	}
	var row types.StockMove
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("idempotency_key = ?", key).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *stockMoveRepo) ListByLot(dbc dbctx.Context, lotID uuid.UUID) ([]*types.StockMove, error) {
	out := []*types.StockMove{}
	if lotID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("lot_id = ?", lotID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *stockMoveRepo) List(dbc dbctx.Context, f MoveFilter) ([]*types.StockMove, error) {
	out := []*types.StockMove{}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	q := r.dbx(dbc).WithContext(dbc.Ctx).Model(&types.StockMove{})
	if f.LotID != uuid.Nil {
		q = q.Where("lot_id = ?", f.LotID)
	}
	if f.BufferID != uuid.Nil {
		q = q.Where("from_buffer_id = ? OR to_buffer_id = ?", f.BufferID, f.BufferID)
	}
	if f.MoveType != "" {
		q = q.Where("move_type = ?", f.MoveType)
	}
	if err := q.Order("created_at DESC").
		Limit(f.Limit).
		Offset(max(f.Offset, 0)).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
