package runs

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

type RunStepExecutionRepo interface {
	CreateBatch(dbc dbctx.Context, steps []*types.RunStepExecution) error
	ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*types.RunStepExecution, error)
	GetByRunAndIndex(dbc dbctx.Context, runID uuid.UUID, stepIndex int) (*types.RunStepExecution, error)
	UpdateByRunAndIndex(dbc dbctx.Context, runID uuid.UUID, stepIndex int, updates map[string]interface{}) (bool, error)
}

type runStepExecutionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRunStepExecutionRepo(db *gorm.DB, baseLog *logger.Logger) RunStepExecutionRepo {
	return &runStepExecutionRepo{db: db, log: baseLog.With("repo", "RunStepExecutionRepo")}
}

func (r *runStepExecutionRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *runStepExecutionRepo) CreateBatch(dbc dbctx.Context, steps []*types.RunStepExecution) error {
	if len(steps) == 0 {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).Create(&steps).Error
}

func (r *runStepExecutionRepo) ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*types.RunStepExecution, error) {
	out := []*types.RunStepExecution{}
	if runID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("run_id = ?", runID).
		Order("step_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *runStepExecutionRepo) GetByRunAndIndex(dbc dbctx.Context, runID uuid.UUID, stepIndex int) (*types.RunStepExecution, error) {
	if runID == uuid.Nil || stepIndex < 0 {
		return nil, nil
	}
	var row types.RunStepExecution
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("run_id = ? AND step_index = ?", runID, stepIndex).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *runStepExecutionRepo) UpdateByRunAndIndex(dbc dbctx.Context, runID uuid.UUID, stepIndex int, updates map[string]interface{}) (bool, error) {
	if runID == uuid.Nil || len(updates) == 0 {
		return false, nil
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.RunStepExecution{}).
		Where("run_id = ? AND step_index = ?", runID, stepIndex).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
