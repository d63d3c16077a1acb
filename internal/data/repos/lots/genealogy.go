package lots

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

type GenealogyLinkRepo interface {
	Create(dbc dbctx.Context, link *types.GenealogyLink) (*types.GenealogyLink, error)
	Get(dbc dbctx.Context, parentID, childID uuid.UUID) (*types.GenealogyLink, error)
	// ListByChildren returns the links whose child is in ids (one hop up).
	ListByChildren(dbc dbctx.Context, ids []uuid.UUID) ([]*types.GenealogyLink, error)
	// ListByParents returns the links whose parent is in ids (one hop down).
	ListByParents(dbc dbctx.Context, ids []uuid.UUID) ([]*types.GenealogyLink, error)
	SumQuantityFromParent(dbc dbctx.Context, parentID uuid.UUID) (float64, error)
}

type genealogyLinkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGenealogyLinkRepo(db *gorm.DB, baseLog *logger.Logger) GenealogyLinkRepo {
	return &genealogyLinkRepo{db: db, log: baseLog.With("repo", "GenealogyLinkRepo")}
}

func (r *genealogyLinkRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *genealogyLinkRepo) Create(dbc dbctx.Context, link *types.GenealogyLink) (*types.GenealogyLink, error) {
	if link == nil {
		return nil, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(link).Error; err != nil {
		return nil, err
	}
	return link, nil
}

func (r *genealogyLinkRepo) Get(dbc dbctx.Context, parentID, childID uuid.UUID) (*types.GenealogyLink, error) {
	if parentID == uuid.Nil || childID == uuid.Nil {
		return nil, nil
	}
	var row types.GenealogyLink
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("parent_lot_id = ? AND child_lot_id = ?", parentID, childID).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *genealogyLinkRepo) ListByChildren(dbc dbctx.Context, ids []uuid.UUID) ([]*types.GenealogyLink, error) {
	out := []*types.GenealogyLink{}
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("child_lot_id IN ?", ids).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *genealogyLinkRepo) ListByParents(dbc dbctx.Context, ids []uuid.UUID) ([]*types.GenealogyLink, error) {
	out := []*types.GenealogyLink{}
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("parent_lot_id IN ?", ids).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *genealogyLinkRepo) SumQuantityFromParent(dbc dbctx.Context, parentID uuid.UUID) (float64, error) {
	if parentID == uuid.Nil {
		return 0, nil
	}
	var sum struct{ Total *float64 }
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.GenealogyLink{}).
		Select("SUM(quantity_kg) AS total").
		Where("parent_lot_id = ?", parentID).
		Scan(&sum).Error; err != nil {
		return 0, err
	}
	if sum.Total == nil {
		return 0, nil
	}
	return *sum.Total, nil
}
