package aggregates

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/lotline-backend/internal/domain/production"
)

var LotAggregateContract = Contract{
	Name: "Production.LotAggregate",
	AuditEntities: []string{
		production.EntityLot,
		production.EntityQCInspection,
		production.EntityTemperatureLog,
		production.EntityGenealogyLink,
	},
	Locks:      []string{"lot (by id order)", "qc_inspection"},
	Idempotent: []string{"RegisterLot", "RequestInspection", "TransitionLotStatus", "RecordTemperature", "LinkGenealogy"},
	Notes: "Owns lot status, QC decisions, temperature escalation and the genealogy DAG " +
		"(creation-order acyclicity, SKU purity, unique links).",
}

// LotAggregate owns lot lifecycle and genealogy invariants.
type LotAggregate interface {
	Aggregate

	RegisterLot(ctx context.Context, in RegisterLotInput) (RegisterLotResult, error)
	RequestInspection(ctx context.Context, in RequestInspectionInput) (*production.QCInspection, error)
	// TransitionLotStatus records a QC decision and applies the resulting status.
	TransitionLotStatus(ctx context.Context, in QCDecisionInput) (QCDecisionResult, error)
	ConsumeLot(ctx context.Context, lotID uuid.UUID, actorID string) (*production.Lot, error)
	RecordTemperature(ctx context.Context, in RecordTemperatureInput) (RecordTemperatureResult, error)
	LinkGenealogy(ctx context.Context, in LinkGenealogyInput) (*production.GenealogyLink, error)
}

type RegisterLotInput struct {
	// Optional; generated when empty.
	LotCode      string
	LotType      string
	RunID        *uuid.UUID
	StepIndex    *int
	WeightKg     *float64
	TemperatureC *float64
	OperatorID   string
	SiteCode     string
	Metadata     map[string]any
	// Optional; makes registration safe to retry.
	IdempotencyKey string
}

type RegisterLotResult struct {
	Lot      *production.Lot
	Replayed bool
}

type RequestInspectionInput struct {
	LotID          uuid.UUID
	RunID          *uuid.UUID
	StepIndex      *int
	InspectionType string
	IsCCP          bool
	ActorID        string
	IdempotencyKey string
}

type QCDecisionInput struct {
	LotID uuid.UUID
	// Resolves a pending inspection when set; otherwise a new one is recorded.
	InspectionID   *uuid.UUID
	Decision       string
	Notes          string
	InspectorID    string
	InspectionType string
	IsCCP          bool
	RunID          *uuid.UUID
	StepIndex      *int
	// Optional reading taken during the inspection.
	Temperature    *TemperatureReading
	IdempotencyKey string
}

type TemperatureReading struct {
	TemperatureC    float64
	MeasurementType string
}

type QCDecisionResult struct {
	Lot        *production.Lot          `json:"lot"`
	Inspection *production.QCInspection `json:"inspection"`
	Changed    bool                     `json:"changed"`
	Replayed   bool                     `json:"replayed"`
}

type RecordTemperatureInput struct {
	LotID           *uuid.UUID
	BufferID        *uuid.UUID
	InspectionID    *uuid.UUID
	TemperatureC    float64
	MeasurementType string
	RecordedBy      string
	ForceViolation  bool
	IdempotencyKey  string
}

type RecordTemperatureResult struct {
	Log *production.TemperatureLog `json:"temperature_log"`
	// Lot is set when the reading targeted a lot.
	Lot      *production.Lot `json:"lot,omitempty"`
	Held     bool            `json:"held"`
	Replayed bool            `json:"replayed"`
}

type LinkGenealogyInput struct {
	ParentLotID    uuid.UUID
	ChildLotID     uuid.UUID
	QuantityKg     *float64
	ActorID        string
	IdempotencyKey string
}
