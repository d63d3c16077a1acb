package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/lotline-backend/internal/data/repos"
	"github.com/yungbote/lotline-backend/internal/data/repos/runs"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

type RunListFilter struct {
	Status          string
	FlowVersionID   uuid.UUID
	IncludeArchived bool
	Limit           int
	Offset          int
}

type RunService interface {
	GetRun(ctx context.Context, id uuid.UUID) (*production.ProductionRun, error)
	ListRuns(ctx context.Context, f RunListFilter) ([]*production.ProductionRun, error)
	GetStepExecutions(ctx context.Context, runID uuid.UUID) ([]*production.RunStepExecution, error)
}

type runService struct {
	log   *logger.Logger
	runs  repos.ProductionRunRepo
	steps repos.RunStepExecutionRepo
}

func NewRunService(log *logger.Logger, runRepo repos.ProductionRunRepo, steps repos.RunStepExecutionRepo) RunService {
	return &runService{log: log.With("service", "RunService"), runs: runRepo, steps: steps}
}

func (s *runService) GetRun(ctx context.Context, id uuid.UUID) (*production.ProductionRun, error) {
	const op = "Production.Runs.GetRun"
	run, err := s.runs.GetByID(dbctx.With(ctx), id)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if run == nil {
		return nil, notFound(op, "run %s not found", id)
	}
	return run, nil
}

func (s *runService) ListRuns(ctx context.Context, f RunListFilter) ([]*production.ProductionRun, error) {
	const op = "Production.Runs.ListRuns"
	switch f.Status {
	case "", production.RunIdle, production.RunRunning, production.RunHold, production.RunCompleted, production.RunAborted, production.RunArchived:
	default:
		return nil, invalid(op, "unknown run status %q", f.Status)
	}
	out, err := s.runs.List(dbctx.With(ctx), runs.RunFilter{
		Status:          f.Status,
		FlowVersionID:   f.FlowVersionID,
		IncludeArchived: f.IncludeArchived,
		Limit:           f.Limit,
		Offset:          f.Offset,
	})
	if err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (s *runService) GetStepExecutions(ctx context.Context, runID uuid.UUID) ([]*production.RunStepExecution, error) {
	const op = "Production.Runs.GetStepExecutions"
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	out, err := s.steps.ListByRun(dbctx.With(ctx), runID)
	if err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}
