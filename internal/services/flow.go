package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/lotline-backend/internal/data/repos"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

// VersionView is a flow version with its canonical step sequence.
type VersionView struct {
	*production.FlowVersion
	Steps []production.Step `json:"steps"`
}

type FlowService interface {
	ListDefinitions(ctx context.Context, limit, offset int) ([]*production.FlowDefinition, error)
	GetDefinition(ctx context.Context, id uuid.UUID) (*production.FlowDefinition, error)
	ListVersions(ctx context.Context, definitionID uuid.UUID) ([]*production.FlowVersion, error)
	GetVersion(ctx context.Context, id uuid.UUID) (*VersionView, error)
}

type flowService struct {
	log         *logger.Logger
	definitions repos.FlowDefinitionRepo
	versions    repos.FlowVersionRepo
}

func NewFlowService(log *logger.Logger, definitions repos.FlowDefinitionRepo, versions repos.FlowVersionRepo) FlowService {
	return &flowService{
		log:         log.With("service", "FlowService"),
		definitions: definitions,
		versions:    versions,
	}
}

func (s *flowService) ListDefinitions(ctx context.Context, limit, offset int) ([]*production.FlowDefinition, error) {
	const op = "Production.Flows.ListDefinitions"
	defs, err := s.definitions.List(dbctx.With(ctx), limit, offset)
	if err != nil {
		return nil, storageErr(op, err)
	}
	return defs, nil
}

func (s *flowService) GetDefinition(ctx context.Context, id uuid.UUID) (*production.FlowDefinition, error) {
	const op = "Production.Flows.GetDefinition"
	def, err := s.definitions.GetByID(dbctx.With(ctx), id)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if def == nil {
		return nil, notFound(op, "flow definition %s not found", id)
	}
	return def, nil
}

func (s *flowService) ListVersions(ctx context.Context, definitionID uuid.UUID) ([]*production.FlowVersion, error) {
	const op = "Production.Flows.ListVersions"
	if _, err := s.GetDefinition(ctx, definitionID); err != nil {
		return nil, err
	}
	out, err := s.versions.ListByDefinition(dbctx.With(ctx), definitionID)
	if err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (s *flowService) GetVersion(ctx context.Context, id uuid.UUID) (*VersionView, error) {
	const op = "Production.Flows.GetVersion"
	v, err := s.versions.GetByID(dbctx.With(ctx), id)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if v == nil {
		return nil, notFound(op, "flow version %s not found", id)
	}
	view := &VersionView{FlowVersion: v, Steps: []production.Step{}}
	// Drafts may be incomplete; they simply have no sequence yet.
	if g, err := production.ParseGraph(v.Graph); err == nil {
		if steps, err := g.StepSequence(); err == nil {
			view.Steps = steps
		}
	}
	return view, nil
}
