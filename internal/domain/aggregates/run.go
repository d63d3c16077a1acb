package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/lotline-backend/internal/domain/production"
)

var RunAggregateContract = Contract{
	Name:          "Production.RunAggregate",
	AuditEntities: []string{production.EntityRun},
	Locks:         []string{"flow_version (shared)", "production_run"},
	Idempotent:    []string{"StartRun"},
	Notes: "Owns production run transitions. The run row is locked and version-checked so " +
		"concurrent advances serialize; the pinned flow version never changes.",
}

// RunAggregate owns production run state transitions.
type RunAggregate interface {
	Aggregate

	// StartRun is idempotent on IdempotencyKey.
	StartRun(ctx context.Context, in StartRunInput) (StartRunResult, error)
	AdvanceStep(ctx context.Context, in StepInput) (*production.ProductionRun, error)
	RollbackStep(ctx context.Context, in StepInput) (*production.ProductionRun, error)
	HoldRun(ctx context.Context, runID uuid.UUID, reason, actorID string) (*production.ProductionRun, error)
	ResumeRun(ctx context.Context, runID uuid.UUID, note, actorID string) (*production.ProductionRun, error)
	CompleteRun(ctx context.Context, runID uuid.UUID, actorID string) (*production.ProductionRun, error)
	AbortRun(ctx context.Context, runID uuid.UUID, reason, actorID string) (*production.ProductionRun, error)
	ArchiveRun(ctx context.Context, runID uuid.UUID, actorID string) (*production.ProductionRun, error)
	// ArchiveExpired archives up to limit ended runs past the retention window.
	ArchiveExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

type StartRunInput struct {
	FlowVersionID  uuid.UUID
	IdempotencyKey string
	StartedBy      string
	// Optional; generated from the site sequence when empty.
	RunCode  string
	SiteCode string
}

type StartRunResult struct {
	Run *production.ProductionRun
	// Replayed is true when the key had already been used with the same request.
	Replayed bool
}

type StepInput struct {
	RunID uuid.UUID
	// When set, the call fails with a state conflict unless the run is
	// still at this index.
	ExpectedStepIndex *int
	Reason            string
	ActorID           string
}
