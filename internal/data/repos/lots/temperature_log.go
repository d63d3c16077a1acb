package lots

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

type TemperatureLogFilter struct {
	LotID         uuid.UUID
	BufferID      uuid.UUID
	InspectionID  uuid.UUID
	ViolationOnly bool
	Since         time.Time
	Limit         int
	Offset        int
}

type TemperatureLogRepo interface {
	Create(dbc dbctx.Context, log *types.TemperatureLog) (*types.TemperatureLog, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TemperatureLog, error)
	List(dbc dbctx.Context, f TemperatureLogFilter) ([]*types.TemperatureLog, error)
}

type temperatureLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTemperatureLogRepo(db *gorm.DB, baseLog *logger.Logger) TemperatureLogRepo {
	return &temperatureLogRepo{db: db, log: baseLog.With("repo", "TemperatureLogRepo")}
}

func (r *temperatureLogRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *temperatureLogRepo) Create(dbc dbctx.Context, row *types.TemperatureLog) (*types.TemperatureLog, error) {
	if row == nil {
		return nil, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *temperatureLogRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TemperatureLog, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.TemperatureLog
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

func (r *temperatureLogRepo) List(dbc dbctx.Context, f TemperatureLogFilter) ([]*types.TemperatureLog, error) {
	out := []*types.TemperatureLog{}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	q := r.dbx(dbc).WithContext(dbc.Ctx).Model(&types.TemperatureLog{})
	if f.LotID != uuid.Nil {
		q = q.Where("lot_id = ?", f.LotID)
	}
	if f.BufferID != uuid.Nil {
		q = q.Where("buffer_id = ?", f.BufferID)
	}
	if f.InspectionID != uuid.Nil {
		q = q.Where("inspection_id = ?", f.InspectionID)
	}
	if f.ViolationOnly {
		q = q.Where("is_violation = ?", true)
	}
	if !f.Since.IsZero() {
		q = q.Where("recorded_at >= ?", f.Since.UTC())
	}
	if err := q.Order("recorded_at DESC").
		Limit(f.Limit).
		Offset(max(f.Offset, 0)).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
