package runs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

// ErrPinnedVersion is returned when an update set touches flow_version_id.
var ErrPinnedVersion = errors.New("run_version_pinned: flow_version_id cannot change")

type RunFilter struct {
	Status          string
	FlowVersionID   uuid.UUID
	IncludeArchived bool
	Limit           int
	Offset          int
}

type ProductionRunRepo interface {
	Create(dbc dbctx.Context, run *types.ProductionRun) (*types.ProductionRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProductionRun, error)
	GetByIdempotencyKey(dbc dbctx.Context, key string) (*types.ProductionRun, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.ProductionRun, error)
	List(dbc dbctx.Context, f RunFilter) ([]*types.ProductionRun, error)
	CountActiveByVersion(dbc dbctx.Context, flowVersionID uuid.UUID) (int64, error)
	// ListArchivable returns COMPLETED or ABORTED runs with ended_at <= cutoff.
	// ARCHIVED runs are never returned.
	ListArchivable(dbc dbctx.Context, cutoff time.Time, limit int) ([]*types.ProductionRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type productionRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProductionRunRepo(db *gorm.DB, baseLog *logger.Logger) ProductionRunRepo {
	return &productionRunRepo{db: db, log: baseLog.With("repo", "ProductionRunRepo")}
}

func (r *productionRunRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *productionRunRepo) Create(dbc dbctx.Context, run *types.ProductionRun) (*types.ProductionRun, error) {
	if run == nil {
		return nil, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *productionRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProductionRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.ProductionRun
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

func (r *productionRunRepo) GetByIdempotencyKey(dbc dbctx.Context, key string) (*types.ProductionRun, error) {
	if key == "" {
		return nil, nil
	}
	var row types.ProductionRun
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

func (r *productionRunRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.ProductionRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.ProductionRun
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

func (r *productionRunRepo) List(dbc dbctx.Context, f RunFilter) ([]*types.ProductionRun, error) {
	out := []*types.ProductionRun{}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	q := r.dbx(dbc).WithContext(dbc.Ctx).Model(&types.ProductionRun{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.FlowVersionID != uuid.Nil {
		q = q.Where("flow_version_id = ?", f.FlowVersionID)
	}
	if !f.IncludeArchived && f.Status != types.RunArchived {
		q = q.Where("archived_at IS NULL")
	}
	if err := q.Order("created_at DESC, id ASC").
		Limit(f.Limit).
		Offset(max(f.Offset, 0)).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *productionRunRepo) CountActiveByVersion(dbc dbctx.Context, flowVersionID uuid.UUID) (int64, error) {
	var n int64
	if flowVersionID == uuid.Nil {
		return 0, nil
	}
	err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.ProductionRun{}).
		Where("flow_version_id = ? AND status IN ?", flowVersionID, types.ActiveRunStatuses).
		Count(&n).Error
	return n, err
}

func (r *productionRunRepo) ListArchivable(dbc dbctx.Context, cutoff time.Time, limit int) ([]*types.ProductionRun, error) {
	out := []*types.ProductionRun{}
	if limit <= 0 {
		limit = 100
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("status IN ? AND archived_at IS NULL AND ended_at IS NOT NULL AND ended_at <= ?",
			[]string{types.RunCompleted, types.RunAborted}, cutoff.UTC()).
		Order("ended_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *productionRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["flow_version_id"]; ok {
		return ErrPinnedVersion
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.ProductionRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}
