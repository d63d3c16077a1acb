package lots

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

type InspectionFilter struct {
	LotID     uuid.UUID
	RunID     uuid.UUID
	StepIndex *int
	// PENDING matches inspections without a decision.
	Decision string
	Limit    int
	Offset   int
}

type QCInspectionRepo interface {
	Create(dbc dbctx.Context, in *types.QCInspection) (*types.QCInspection, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.QCInspection, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.QCInspection, error)
	GetByIdempotencyKey(dbc dbctx.Context, key string) (*types.QCInspection, error)
	ListByLot(dbc dbctx.Context, lotID uuid.UUID) ([]*types.QCInspection, error)
	List(dbc dbctx.Context, f InspectionFilter) ([]*types.QCInspection, error)
	CountUnresolvedAtStep(dbc dbctx.Context, runID uuid.UUID, stepIndex int) (int64, error)
	// Resolve sets the decision of a still-pending inspection.
	Resolve(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error)
}

type qcInspectionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQCInspectionRepo(db *gorm.DB, baseLog *logger.Logger) QCInspectionRepo {
	return &qcInspectionRepo{db: db, log: baseLog.With("repo", "QCInspectionRepo")}
}

func (r *qcInspectionRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *qcInspectionRepo) Create(dbc dbctx.Context, in *types.QCInspection) (*types.QCInspection, error) {
	if in == nil {
		return nil, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(in).Error; err != nil {
		return nil, err
	}
	return in, nil
}

func (r *qcInspectionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.QCInspection, error) {
	return r.findOne(dbc, false, "id = ?", id)
}

func (r *qcInspectionRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.QCInspection, error) {
	return r.findOne(dbc, true, "id = ?", id)
}

func (r *qcInspectionRepo) GetByIdempotencyKey(dbc dbctx.Context, key string) (*types.QCInspection, error) {
	if key == "" {
		return nil, nil
	}
	return r.findOne(dbc, false, "idempotency_key = ?", key)
}

func (r *qcInspectionRepo) findOne(dbc dbctx.Context, lock bool, where string, arg interface{}) (*types.QCInspection, error) {
	if id, ok := arg.(uuid.UUID); ok && id == uuid.Nil {
		return nil, nil
	}
	q := r.dbx(dbc).WithContext(dbc.Ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row types.QCInspection
	if err := q.Where(where, arg).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *qcInspectionRepo) ListByLot(dbc dbctx.Context, lotID uuid.UUID) ([]*types.QCInspection, error) {
	out := []*types.QCInspection{}
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

func (r *qcInspectionRepo) List(dbc dbctx.Context, f InspectionFilter) ([]*types.QCInspection, error) {
	out := []*types.QCInspection{}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	q := r.dbx(dbc).WithContext(dbc.Ctx).Model(&types.QCInspection{})
	if f.LotID != uuid.Nil {
		q = q.Where("lot_id = ?", f.LotID)
	}
	if f.RunID != uuid.Nil {
		q = q.Where("run_id = ?", f.RunID)
	}
	if f.StepIndex != nil {
		q = q.Where("step_index = ?", *f.StepIndex)
	}
	switch f.Decision {
	case "":
	case "PENDING":
		q = q.Where("decision IS NULL")
	default:
		q = q.Where("decision = ?", f.Decision)
	}
	if err := q.Order("created_at DESC").
		Limit(f.Limit).
		Offset(max(f.Offset, 0)).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *qcInspectionRepo) CountUnresolvedAtStep(dbc dbctx.Context, runID uuid.UUID, stepIndex int) (int64, error) {
	var n int64
	if runID == uuid.Nil {
		return 0, nil
	}
	err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.QCInspection{}).
		Where("run_id = ? AND step_index = ? AND decision IS NULL", runID, stepIndex).
		Count(&n).Error
	return n, err
}

func (r *qcInspectionRepo) Resolve(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil || len(updates) == 0 {
		return false, nil
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.QCInspection{}).
		Where("id = ? AND decision IS NULL", id).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
