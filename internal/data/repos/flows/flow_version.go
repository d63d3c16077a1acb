package flows

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

// FlowVersionRepo has no generic update: status transitions go through the
// aggregate CAS guard, and published rows are guarded by storage triggers.
type FlowVersionRepo interface {
	Create(dbc dbctx.Context, v *types.FlowVersion) (*types.FlowVersion, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.FlowVersion, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.FlowVersion, error)
	// LockByIDShared takes a share lock so concurrent run starts do not
	// serialize while deprecation still waits for them.
	LockByIDShared(dbc dbctx.Context, id uuid.UUID) (*types.FlowVersion, error)
	ListByDefinition(dbc dbctx.Context, definitionID uuid.UUID) ([]*types.FlowVersion, error)
	GetLatest(dbc dbctx.Context, definitionID uuid.UUID) (*types.FlowVersion, error)
	GetByStatus(dbc dbctx.Context, definitionID uuid.UUID, statuses []string) (*types.FlowVersion, error)
	CountByDefinition(dbc dbctx.Context, definitionID uuid.UUID) (int64, error)
	DeleteDraft(dbc dbctx.Context, id uuid.UUID) (bool, error)
}

type flowVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFlowVersionRepo(db *gorm.DB, baseLog *logger.Logger) FlowVersionRepo {
	return &flowVersionRepo{db: db, log: baseLog.With("repo", "FlowVersionRepo")}
}

func (r *flowVersionRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *flowVersionRepo) Create(dbc dbctx.Context, v *types.FlowVersion) (*types.FlowVersion, error) {
	if v == nil {
		return nil, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(v).Error; err != nil {
		return nil, err
	}
	return v, nil
}

func (r *flowVersionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.FlowVersion, error) {
	return r.findOne(dbc, nil, id)
}

func (r *flowVersionRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.FlowVersion, error) {
	return r.findOne(dbc, &clause.Locking{Strength: "UPDATE"}, id)
}

func (r *flowVersionRepo) LockByIDShared(dbc dbctx.Context, id uuid.UUID) (*types.FlowVersion, error) {
	return r.findOne(dbc, &clause.Locking{Strength: "SHARE"}, id)
}

func (r *flowVersionRepo) findOne(dbc dbctx.Context, lock *clause.Locking, id uuid.UUID) (*types.FlowVersion, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	q := r.dbx(dbc).WithContext(dbc.Ctx)
	if lock != nil {
		q = q.Clauses(*lock)
	}
	var row types.FlowVersion
	if err := q.Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *flowVersionRepo) ListByDefinition(dbc dbctx.Context, definitionID uuid.UUID) ([]*types.FlowVersion, error) {
	out := []*types.FlowVersion{}
	if definitionID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("flow_definition_id = ?", definitionID).
		Order("version_num ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *flowVersionRepo) GetLatest(dbc dbctx.Context, definitionID uuid.UUID) (*types.FlowVersion, error) {
	if definitionID == uuid.Nil {
		return nil, nil
	}
	var row types.FlowVersion
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("flow_definition_id = ?", definitionID).
		Order("version_num DESC").
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *flowVersionRepo) GetByStatus(dbc dbctx.Context, definitionID uuid.UUID, statuses []string) (*types.FlowVersion, error) {
	if definitionID == uuid.Nil || len(statuses) == 0 {
		return nil, nil
	}
	var row types.FlowVersion
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("flow_definition_id = ? AND status IN ?", definitionID, statuses).
		Order("version_num DESC").
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *flowVersionRepo) CountByDefinition(dbc dbctx.Context, definitionID uuid.UUID) (int64, error) {
	var n int64
	if definitionID == uuid.Nil {
		return 0, nil
	}
	err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.FlowVersion{}).
		Where("flow_definition_id = ?", definitionID).
		Count(&n).Error
	return n, err
}

func (r *flowVersionRepo) DeleteDraft(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("id = ? AND status = ?", id, types.VersionDraft).
		Delete(&types.FlowVersion{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
