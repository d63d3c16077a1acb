package flows

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

type FlowDefinitionRepo interface {
	Create(dbc dbctx.Context, def *types.FlowDefinition) (*types.FlowDefinition, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.FlowDefinition, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.FlowDefinition, error)
	List(dbc dbctx.Context, limit, offset int) ([]*types.FlowDefinition, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type flowDefinitionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFlowDefinitionRepo(db *gorm.DB, baseLog *logger.Logger) FlowDefinitionRepo {
	return &flowDefinitionRepo{db: db, log: baseLog.With("repo", "FlowDefinitionRepo")}
}

func (r *flowDefinitionRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *flowDefinitionRepo) Create(dbc dbctx.Context, def *types.FlowDefinition) (*types.FlowDefinition, error) {
	if def == nil {
		return nil, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(def).Error; err != nil {
		return nil, err
	}
	return def, nil
}

func (r *flowDefinitionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.FlowDefinition, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.FlowDefinition
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

func (r *flowDefinitionRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.FlowDefinition, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.FlowDefinition
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

func (r *flowDefinitionRepo) List(dbc dbctx.Context, limit, offset int) ([]*types.FlowDefinition, error) {
	out := []*types.FlowDefinition{}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *flowDefinitionRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.FlowDefinition{}).Error
}
