package inventory

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

type BufferFilter struct {
	BufferType string
	Active     *bool
}

type BufferRepo interface {
	Create(dbc dbctx.Context, b *types.Buffer) (*types.Buffer, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Buffer, error)
	GetByCode(dbc dbctx.Context, code string) (*types.Buffer, error)
	// LockByIDs locks rows in id order so concurrent moves touching the same
	// pair of buffers cannot deadlock.
	LockByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Buffer, error)
	List(dbc dbctx.Context, f BufferFilter) ([]*types.Buffer, error)
	Summaries(dbc dbctx.Context) ([]*types.BufferSummary, error)
	// UpdateFields rejects allowed_lot_types; the accepted set is fixed.
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type bufferRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBufferRepo(db *gorm.DB, baseLog *logger.Logger) BufferRepo {
	return &bufferRepo{db: db, log: baseLog.With("repo", "BufferRepo")}
}

func (r *bufferRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *bufferRepo) Create(dbc dbctx.Context, b *types.Buffer) (*types.Buffer, error) {
	if b == nil {
		return nil, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(b).Error; err != nil {
		return nil, err
	}
	return b, nil
}

func (r *bufferRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Buffer, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Buffer
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

func (r *bufferRepo) GetByCode(dbc dbctx.Context, code string) (*types.Buffer, error) {
	if code == "" {
		return nil, nil
	}
	var row types.Buffer
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("buffer_code = ?", code).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *bufferRepo) LockByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Buffer, error) {
	out := []*types.Buffer{}
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

func (r *bufferRepo) List(dbc dbctx.Context, f BufferFilter) ([]*types.Buffer, error) {
	out := []*types.Buffer{}
	q := r.dbx(dbc).WithContext(dbc.Ctx).Model(&types.Buffer{})
	if f.BufferType != "" {
		q = q.Where("buffer_type = ?", f.BufferType)
	}
	if f.Active != nil {
		q = q.Where("is_active = ?", *f.Active)
	}
	if err := q.Order("buffer_code ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *bufferRepo) Summaries(dbc dbctx.Context) ([]*types.BufferSummary, error) {
	type summaryRow struct {
		BufferID   uuid.UUID
		BufferCode string
		BufferType string
		CapacityKg float64
		IsActive   bool
		LoadKg     float64
		LotCount   int
	}
	rows := []summaryRow{}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Table("buffer AS b").
		Select(`b.id AS buffer_id, b.buffer_code, b.buffer_type, b.capacity_kg, b.is_active,
			COALESCE(SUM(i.quantity_kg), 0) AS load_kg, COUNT(i.id) AS lot_count`).
		Joins("LEFT JOIN inventory_item AS i ON i.buffer_id = b.id AND i.exited_at IS NULL").
		Group("b.id, b.buffer_code, b.buffer_type, b.capacity_kg, b.is_active").
		Order("b.buffer_code ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*types.BufferSummary, 0, len(rows))
	for _, sr := range rows {
		s := &types.BufferSummary{
			BufferID:   sr.BufferID,
			BufferCode: sr.BufferCode,
			BufferType: sr.BufferType,
			CapacityKg: sr.CapacityKg,
			LoadKg:     sr.LoadKg,
			LotCount:   sr.LotCount,
			IsActive:   sr.IsActive,
		}
		if sr.CapacityKg > 0 {
			s.Utilization = sr.LoadKg / sr.CapacityKg
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *bufferRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["allowed_lot_types"]; ok {
		return types.Errorf(types.ErrBufferPurity, "allowed_lot_types is fixed at creation")
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Buffer{}).
		Where("id = ?", id).
		Updates(updates).Error
}
