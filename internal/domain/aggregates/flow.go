package aggregates

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/lotline-backend/internal/domain/production"
)

var FlowAggregateContract = Contract{
	Name:          "Production.FlowAggregate",
	AuditEntities: []string{production.EntityFlowDefinition, production.EntityFlowVersion},
	Locks:         []string{"flow_definition", "flow_version"},
	Notes: "Owns the flow version lifecycle: at most one PUBLISHED and one editable version per " +
		"definition, immutability once PUBLISHED, no deprecation under active runs.",
}

// FlowAggregate owns the flow version registry.
type FlowAggregate interface {
	Aggregate

	CreateDefinition(ctx context.Context, in CreateDefinitionInput) (*production.FlowDefinition, error)
	// DeleteDefinition is refused while any version exists.
	DeleteDefinition(ctx context.Context, definitionID uuid.UUID, actorID string) error

	// CreateDraft forks the latest version's graph into a new DRAFT.
	CreateDraft(ctx context.Context, definitionID uuid.UUID, actorID string) (*production.FlowVersion, error)
	UpdateDraft(ctx context.Context, in UpdateDraftInput) (*production.FlowVersion, error)
	DiscardDraft(ctx context.Context, versionID uuid.UUID, actorID string) error
	SubmitForReview(ctx context.Context, versionID uuid.UUID, actorID string) (*production.FlowVersion, error)
	// Approve publishes the version and deprecates the previous PUBLISHED one atomically.
	Approve(ctx context.Context, versionID uuid.UUID, reviewerID string) (*production.FlowVersion, error)
	Reject(ctx context.Context, versionID uuid.UUID, reviewerID, reason string) (*production.FlowVersion, error)
	Deprecate(ctx context.Context, versionID uuid.UUID, actorID string) (*production.FlowVersion, error)
}

type CreateDefinitionInput struct {
	// Language tag -> display name, e.g. {"hu": "Csirke", "en": "Chicken"}.
	Name        map[string]string
	Description string
	OwnerID     string
}

type UpdateDraftInput struct {
	VersionID uuid.UUID
	Graph     production.FlowGraph
	ActorID   string
}
