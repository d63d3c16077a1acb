package lots

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

type LotFilter struct {
	LotType string
	Status  string
	RunID   uuid.UUID
	Limit   int
	Offset  int
}

type LotRepo interface {
	Create(dbc dbctx.Context, lot *types.Lot) (*types.Lot, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Lot, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Lot, error)
	GetByCode(dbc dbctx.Context, code string) (*types.Lot, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Lot, error)
	LockByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Lot, error)
	List(dbc dbctx.Context, f LotFilter) ([]*types.Lot, error)
	CountAtStep(dbc dbctx.Context, runID uuid.UUID, stepIndex int, statuses []string) (int64, error)
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, fromStatuses []string, toStatus string) (bool, error)
}

type lotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLotRepo(db *gorm.DB, baseLog *logger.Logger) LotRepo {
	return &lotRepo{db: db, log: baseLog.With("repo", "LotRepo")}
}

func (r *lotRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *lotRepo) Create(dbc dbctx.Context, lot *types.Lot) (*types.Lot, error) {
	if lot == nil {
		return nil, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(lot).Error; err != nil {
		return nil, err
	}
	return lot, nil
}

func (r *lotRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Lot, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Lot
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *lotRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Lot, error) {
	out := []*types.Lot{}
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *lotRepo) GetByCode(dbc dbctx.Context, code string) (*types.Lot, error) {
	if code == "" {
		return nil, nil
	}
	var row types.Lot
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("lot_code = ?", code).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *lotRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Lot, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Lot
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

// LockByIDs locks rows in id order.
func (r *lotRepo) LockByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Lot, error) {
	out := []*types.Lot{}
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *lotRepo) List(dbc dbctx.Context, f LotFilter) ([]*types.Lot, error) {
	out := []*types.Lot{}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	q := r.dbx(dbc).WithContext(dbc.Ctx).Model(&types.Lot{})
	if f.LotType != "" {
		q = q.Where("lot_type = ?", f.LotType)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.RunID != uuid.Nil {
		q = q.Where("run_id = ?", f.RunID)
	}
	if err := q.Order("seq DESC").
		Limit(f.Limit).
		Offset(max(f.Offset, 0)).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *lotRepo) CountAtStep(dbc dbctx.Context, runID uuid.UUID, stepIndex int, statuses []string) (int64, error) {
	var n int64
	if runID == uuid.Nil {
		return 0, nil
	}
	q := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Lot{}).
		Where("run_id = ? AND step_index = ?", runID, stepIndex)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	err := q.Count(&n).Error
	return n, err
}

func (r *lotRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, fromStatuses []string, toStatus string) (bool, error) {
	if id == uuid.Nil || toStatus == "" {
		return false, nil
	}
	q := r.dbx(dbc).WithContext(dbc.Ctx).Model(&types.Lot{}).Where("id = ?", id)
	if len(fromStatuses) > 0 {
		q = q.Where("status IN ?", fromStatuses)
	}
	res := q.Updates(map[string]interface{}{
		"status":     toStatus,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
