package aggregates

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/lotline-backend/internal/data/repos"
	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

const (
	maxLotWeightKg = 10000.0
	minTempC       = -50.0
	maxTempC       = 100.0
)

type LotAggregateDeps struct {
	Base BaseDeps

	Runs           repos.ProductionRunRepo
	Lots           repos.LotRepo
	Genealogy      repos.GenealogyLinkRepo
	Inspections    repos.QCInspectionRepo
	Temperatures   repos.TemperatureLogRepo
	Buffers        repos.BufferRepo
	InventoryItems repos.InventoryItemRepo
	Audit          repos.AuditEventRepo
	Idempotency    repos.IdempotencyRepo
	CodeSequences  repos.CodeSequenceRepo
}

type lotAggregate struct {
	deps   LotAggregateDeps
	audit  *auditLog
	ledger *idempotencyLedger
}

func NewLotAggregate(deps LotAggregateDeps) domainagg.LotAggregate {
	deps.Base = deps.Base.withDefaults()
	return &lotAggregate{
		deps:   deps,
		audit:  newAuditLog(deps.Audit, deps.Base.Effects),
		ledger: newIdempotencyLedger(deps.Idempotency),
	}
}

func (a *lotAggregate) Contract() domainagg.Contract {
	return domainagg.LotAggregateContract
}

func (a *lotAggregate) configured(op string) error {
	d := a.deps
	if d.Runs == nil || d.Lots == nil || d.Genealogy == nil || d.Inspections == nil || d.Temperatures == nil ||
		d.Buffers == nil || d.InventoryItems == nil || d.Audit == nil || d.Idempotency == nil || d.CodeSequences == nil {
		return domainagg.NewError(domainagg.CodeInternal, op, "lot aggregate repos not configured", nil)
	}
	return nil
}

func validateWeight(w *float64) error {
	if w == nil {
		return nil
	}
	if math.IsNaN(*w) || *w < 0 || *w > maxLotWeightKg {
		return ValidationError(fmt.Sprintf("weight_kg must be between 0 and %.0f", maxLotWeightKg))
	}
	return nil
}

func validateTemperature(t float64) error {
	if math.IsNaN(t) || t < minTempC || t > maxTempC {
		return ValidationError(fmt.Sprintf("temperature_c must be between %.0f and %.0f", minTempC, maxTempC))
	}
	return nil
}

type registerLotRequest struct {
	LotCode      string         `json:"lot_code"`
	LotType      string         `json:"lot_type"`
	RunID        *uuid.UUID     `json:"run_id,omitempty"`
	StepIndex    *int           `json:"step_index,omitempty"`
	WeightKg     *float64       `json:"weight_kg,omitempty"`
	TemperatureC *float64       `json:"temperature_c,omitempty"`
	OperatorID   string         `json:"operator_id"`
	SiteCode     string         `json:"site_code"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (a *lotAggregate) RegisterLot(ctx context.Context, in domainagg.RegisterLotInput) (domainagg.RegisterLotResult, error) {
	const op = "Production.Lot.RegisterLot"
	var out domainagg.RegisterLotResult
	if err := a.configured(op); err != nil {
		return out, err
	}
	req := registerLotRequest{
		LotCode:      strings.ToUpper(strings.TrimSpace(in.LotCode)),
		LotType:      strings.ToUpper(strings.TrimSpace(in.LotType)),
		RunID:        in.RunID,
		StepIndex:    in.StepIndex,
		WeightKg:     in.WeightKg,
		TemperatureC: in.TemperatureC,
		OperatorID:   strings.TrimSpace(in.OperatorID),
		SiteCode:     strings.ToUpper(strings.TrimSpace(in.SiteCode)),
		Metadata:     in.Metadata,
	}
	if !production.IsLotType(req.LotType) {
		return out, MapError(op, ValidationError(fmt.Sprintf("unknown lot type %q", in.LotType)))
	}
	if err := validateWeight(req.WeightKg); err != nil {
		return out, MapError(op, err)
	}
	if req.TemperatureC != nil {
		if err := validateTemperature(*req.TemperatureC); err != nil {
			return out, MapError(op, err)
		}
	}
	var meta datatypes.JSON
	if len(req.Metadata) > 0 {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return out, MapError(op, ValidationError("metadata is not valid JSON: "+err.Error()))
		}
		meta = datatypes.JSON(raw)
	}

	err := executeWriteFx(ctx, a.deps.Base, op, func(dbc dbctx.Context, fx *afterCommit) error {
		out = domainagg.RegisterLotResult{}
		c, err := a.ledger.check(dbc, scopeLotRegister, in.IdempotencyKey, req)
		if err != nil {
			return err
		}
		if c.Replay() {
			lot, err := a.lotByRef(dbc, c.replayRef)
			if err != nil {
				return err
			}
			out = domainagg.RegisterLotResult{Lot: lot, Replayed: true}
			return nil
		}

		stepIndex := req.StepIndex
		if req.RunID != nil {
			run, err := a.deps.Runs.GetByID(dbc, *req.RunID)
			if err != nil {
				return err
			}
			if run == nil {
				return NotFoundError("production run not found: " + req.RunID.String())
			}
			if err := RequireStatusAllowed("run "+run.RunCode, run.Status, production.RunRunning, production.RunHold); err != nil {
				return err
			}
			if stepIndex == nil {
				cur := run.CurrentStepIndex
				stepIndex = &cur
			}
			if *stepIndex < 0 || *stepIndex >= run.StepCount {
				return ValidationError(fmt.Sprintf("step_index %d is outside run %s (0..%d)", *stepIndex, run.RunCode, run.FinalStepIndex()))
			}
		} else if stepIndex != nil {
			return ValidationError("step_index requires run_id")
		}

		now := a.deps.Base.Now()
		code, err := a.lotCode(dbc, req, now)
		if err != nil {
			return err
		}
		seq, err := a.deps.CodeSequences.Next(dbc, lotSeqPrefix)
		if err != nil {
			return err
		}
		lot, err := a.deps.Lots.Create(dbc, &production.Lot{
			LotCode:      code,
			LotType:      req.LotType,
			Seq:          seq,
			RunID:        req.RunID,
			StepIndex:    stepIndex,
			Status:       production.LotCreated,
			WeightKg:     req.WeightKg,
			TemperatureC: req.TemperatureC,
			OperatorID:   req.OperatorID,
			Metadata:     meta,
		})
		if err != nil {
			return err
		}
		ok, err := a.deps.Lots.UpdateStatus(dbc, lot.ID, []string{production.LotCreated}, production.LotQuarantine)
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "lot "+code+" changed during registration"); err != nil {
			return err
		}
		lot.Status = production.LotQuarantine
		if _, err := a.audit.append(dbc, fx, auditEntry{
			EventType:  production.EventLotRegistered,
			EntityType: production.EntityLot,
			EntityID:   lot.ID.String(),
			ActorID:    req.OperatorID,
			New:        lotState(lot),
			Metadata:   map[string]any{"initial_status": production.LotCreated},
		}); err != nil {
			return err
		}
		if err := c.complete(dbc, lot.ID.String()); err != nil {
			return err
		}
		out.Lot = lot
		return nil
	})
	return out, err
}

func (a *lotAggregate) lotCode(dbc dbctx.Context, req registerLotRequest, now time.Time) (string, error) {
	if req.LotCode != "" {
		c, err := production.ValidateLotCode(req.LotCode, req.LotType)
		if err != nil {
			return "", err
		}
		if err := observeCode(dbc, a.deps.CodeSequences, c); err != nil {
			return "", err
		}
		return c.String(), nil
	}
	site, err := resolveSite(req.SiteCode, a.deps.Base.Enforcer.Policy().SiteCode)
	if err != nil {
		return "", err
	}
	return nextCode(dbc, a.deps.CodeSequences, req.LotType, site, now)
}

func (a *lotAggregate) lotByRef(dbc dbctx.Context, ref string) (*production.Lot, error) {
	id, err := uuid.Parse(ref)
	if err != nil {
		return nil, InvariantError("idempotency record has a malformed lot reference")
	}
	lot, err := a.deps.Lots.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if lot == nil {
		return nil, InvariantError("idempotency record references a missing lot")
	}
	return lot, nil
}

func (a *lotAggregate) lockLot(dbc dbctx.Context, id uuid.UUID) (*production.Lot, error) {
	lot, err := a.deps.Lots.LockByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if lot == nil {
		return nil, NotFoundError("lot not found: " + id.String())
	}
	return lot, nil
}

// inspectionKey is the stored key of an inspection; callers without a key
// get a unique one so the column stays unique.
func inspectionKey(key string) string {
	if k := strings.TrimSpace(key); k != "" {
		return k
	}
	return uuid.NewString()
}

type inspectionRequest struct {
	LotID          string     `json:"lot_id"`
	RunID          *uuid.UUID `json:"run_id,omitempty"`
	StepIndex      *int       `json:"step_index,omitempty"`
	InspectionType string     `json:"inspection_type"`
	IsCCP          bool       `json:"is_ccp"`
}

func (a *lotAggregate) RequestInspection(ctx context.Context, in domainagg.RequestInspectionInput) (*production.QCInspection, error) {
	const op = "Production.Lot.RequestInspection"
	if err := a.configured(op); err != nil {
		return nil, err
	}
	req := inspectionRequest{
		LotID:          in.LotID.String(),
		RunID:          in.RunID,
		StepIndex:      in.StepIndex,
		InspectionType: strings.ToUpper(strings.TrimSpace(in.InspectionType)),
		IsCCP:          in.IsCCP,
	}
	if req.InspectionType == "" {
		return nil, MapError(op, ValidationError("inspection_type is required"))
	}
	var out *production.QCInspection
	err := executeWriteFx(ctx, a.deps.Base, op, func(dbc dbctx.Context, fx *afterCommit) error {
		out = nil
		c, err := a.ledger.check(dbc, scopeLotInspection, in.IdempotencyKey, req)
		if err != nil {
			return err
		}
		if c.Replay() {
			out, err = a.inspectionByRef(dbc, c.replayRef)
			return err
		}
		lot, err := a.lockLot(dbc, in.LotID)
		if err != nil {
			return err
		}
		if err := RequireStatusAllowed("lot "+lot.LotCode, lot.Status,
			production.LotQuarantine, production.LotReleased, production.LotHold); err != nil {
			return err
		}
		runID, stepIndex := req.RunID, req.StepIndex
		if runID == nil {
			runID, stepIndex = lot.RunID, lot.StepIndex
		}
		insp, err := a.deps.Inspections.Create(dbc, &production.QCInspection{
			LotID:          lot.ID,
			RunID:          runID,
			StepIndex:      stepIndex,
			InspectionType: req.InspectionType,
			IsCCP:          req.IsCCP,
			IdempotencyKey: inspectionKey(in.IdempotencyKey),
		})
		if err != nil {
			return err
		}
		if _, err := a.audit.append(dbc, fx, auditEntry{
			EventType:  production.EventInspectionRequested,
			EntityType: production.EntityQCInspection,
			EntityID:   insp.ID.String(),
			ActorID:    in.ActorID,
			New:        insp,
			Metadata:   map[string]any{"lot_code": lot.LotCode},
		}); err != nil {
			return err
		}
		if err := c.complete(dbc, insp.ID.String()); err != nil {
			return err
		}
		out = insp
		return nil
	})
	return out, err
}

func (a *lotAggregate) inspectionByRef(dbc dbctx.Context, ref string) (*production.QCInspection, error) {
	id, err := uuid.Parse(ref)
	if err != nil {
		return nil, InvariantError("idempotency record has a malformed inspection reference")
	}
	insp, err := a.deps.Inspections.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if insp == nil {
		return nil, InvariantError("idempotency record references a missing inspection")
	}
	return insp, nil
}

type decisionRequest struct {
	LotID          string                        `json:"lot_id"`
	InspectionID   *uuid.UUID                    `json:"inspection_id,omitempty"`
	Decision       string                        `json:"decision"`
	Notes          string                        `json:"notes"`
	InspectorID    string                        `json:"inspector_id"`
	InspectionType string                        `json:"inspection_type"`
	IsCCP          bool                          `json:"is_ccp"`
	RunID          *uuid.UUID                    `json:"run_id,omitempty"`
	StepIndex      *int                          `json:"step_index,omitempty"`
	Temperature    *domainagg.TemperatureReading `json:"temperature,omitempty"`
}

func (a *lotAggregate) TransitionLotStatus(ctx context.Context, in domainagg.QCDecisionInput) (domainagg.QCDecisionResult, error) {
	const op = "Production.Lot.TransitionLotStatus"
	var out domainagg.QCDecisionResult
	if err := a.configured(op); err != nil {
		return out, err
	}
	req := decisionRequest{
		LotID:          in.LotID.String(),
		InspectionID:   in.InspectionID,
		Decision:       strings.ToUpper(strings.TrimSpace(in.Decision)),
		Notes:          strings.TrimSpace(in.Notes),
		InspectorID:    strings.TrimSpace(in.InspectorID),
		InspectionType: strings.ToUpper(strings.TrimSpace(in.InspectionType)),
		IsCCP:          in.IsCCP,
		RunID:          in.RunID,
		StepIndex:      in.StepIndex,
	}
	if in.Temperature != nil {
		t := *in.Temperature
		req.Temperature = &t
	}
	if !production.IsDecision(req.Decision) {
		return out, MapError(op, ValidationError(fmt.Sprintf("unknown QC decision %q", in.Decision)))
	}
	// Notes are checked before anything is written.
	if err := a.deps.Base.Enforcer.RequireNotes(req.Decision, req.Notes); err != nil {
		return out, MapError(op, err)
	}
	if req.Temperature != nil {
		req.Temperature.MeasurementType = strings.ToUpper(strings.TrimSpace(req.Temperature.MeasurementType))
		if !production.IsMeasurementType(req.Temperature.MeasurementType) {
			return out, MapError(op, ValidationError("unknown measurement type "+req.Temperature.MeasurementType))
		}
		if err := validateTemperature(req.Temperature.TemperatureC); err != nil {
			return out, MapError(op, err)
		}
	}
	if req.InspectionType == "" {
		req.InspectionType = "QC_DECISION"
	}

	err := executeWriteFx(ctx, a.deps.Base, op, func(dbc dbctx.Context, fx *afterCommit) error {
		out = domainagg.QCDecisionResult{}
		c, err := a.ledger.check(dbc, scopeLotTransition, in.IdempotencyKey, req)
		if err != nil {
			return err
		}
		if c.Replay() {
			insp, err := a.inspectionByRef(dbc, c.replayRef)
			if err != nil {
				return err
			}
			lot, err := a.deps.Lots.GetByID(dbc, insp.LotID)
			if err != nil {
				return err
			}
			out = domainagg.QCDecisionResult{Lot: lot, Inspection: insp, Replayed: true}
			return nil
		}

		lot, err := a.lockLot(dbc, in.LotID)
		if err != nil {
			return err
		}
		next, changed, err := production.DecisionOutcome(lot.Status, req.Decision)
		if err != nil {
			return err
		}
		now := a.deps.Base.Now()
		decision := req.Decision

		var insp *production.QCInspection
		if req.InspectionID != nil {
			insp, err = a.deps.Inspections.LockByID(dbc, *req.InspectionID)
			if err != nil {
				return err
			}
			if insp == nil {
				return NotFoundError("inspection not found: " + req.InspectionID.String())
			}
			if insp.LotID != lot.ID {
				return ValidationError("inspection " + insp.ID.String() + " belongs to a different lot")
			}
			if insp.Decision != nil {
				return ConflictError("inspection " + insp.ID.String() + " is already resolved as " + *insp.Decision)
			}
			ok, err := a.deps.Inspections.Resolve(dbc, insp.ID, map[string]any{
				"decision":     decision,
				"notes":        req.Notes,
				"inspector_id": req.InspectorID,
				"inspected_at": now,
			})
			if err != nil {
				return err
			}
			if err := RequireCASSuccess(ok, "inspection resolved concurrently"); err != nil {
				return err
			}
			insp.Decision, insp.Notes, insp.InspectorID, insp.InspectedAt = &decision, req.Notes, req.InspectorID, &now
		} else {
			runID, stepIndex := req.RunID, req.StepIndex
			if runID == nil {
				runID, stepIndex = lot.RunID, lot.StepIndex
			}
			insp, err = a.deps.Inspections.Create(dbc, &production.QCInspection{
				LotID:          lot.ID,
				RunID:          runID,
				StepIndex:      stepIndex,
				InspectionType: req.InspectionType,
				IsCCP:          req.IsCCP,
				Decision:       &decision,
				Notes:          req.Notes,
				InspectorID:    req.InspectorID,
				InspectedAt:    &now,
				IdempotencyKey: inspectionKey(in.IdempotencyKey),
			})
			if err != nil {
				return err
			}
		}

		if req.Temperature != nil {
			eval := a.deps.Base.Enforcer.EvaluateTemperature(req.Temperature.MeasurementType, req.Temperature.TemperatureC, nil, false)
			tl, err := a.deps.Temperatures.Create(dbc, &production.TemperatureLog{
				LotID:           &lot.ID,
				InspectionID:    &insp.ID,
				TemperatureC:    req.Temperature.TemperatureC,
				MeasurementType: req.Temperature.MeasurementType,
				IsViolation:     eval.Violation,
				ThresholdC:      eval.ThresholdC,
				RecordedBy:      req.InspectorID,
				RecordedAt:      now,
			})
			if err != nil {
				return err
			}
			if _, err := a.audit.append(dbc, fx, auditEntry{
				EventType:  production.EventTemperatureRecorded,
				EntityType: production.EntityTemperatureLog,
				EntityID:   tl.ID.String(),
				ActorID:    req.InspectorID,
				New:        tl,
				Metadata:   map[string]any{"lot_code": lot.LotCode, "inspection_id": insp.ID.String()},
			}); err != nil {
				return err
			}
		}

		if _, err := a.audit.append(dbc, fx, auditEntry{
			EventType:  production.EventInspectionRecorded,
			EntityType: production.EntityQCInspection,
			EntityID:   insp.ID.String(),
			ActorID:    req.InspectorID,
			New:        insp,
			Metadata:   map[string]any{"lot_code": lot.LotCode, "is_ccp": insp.IsCCP},
		}); err != nil {
			return err
		}

		if changed {
			if err := a.setLotStatus(dbc, fx, lot, next, req.InspectorID, map[string]any{
				"decision":      decision,
				"inspection_id": insp.ID.String(),
			}); err != nil {
				return err
			}
			if next == production.LotRejected {
				if err := a.settleParents(dbc, fx, lot.ID, req.InspectorID); err != nil {
					return err
				}
			}
		}
		if err := c.complete(dbc, insp.ID.String()); err != nil {
			return err
		}
		out = domainagg.QCDecisionResult{Lot: lot, Inspection: insp, Changed: changed}
		return nil
	})
	return out, err
}

func (a *lotAggregate) ConsumeLot(ctx context.Context, lotID uuid.UUID, actorID string) (*production.Lot, error) {
	const op = "Production.Lot.ConsumeLot"
	if err := a.configured(op); err != nil {
		return nil, err
	}
	var out *production.Lot
	err := executeWriteFx(ctx, a.deps.Base, op, func(dbc dbctx.Context, fx *afterCommit) error {
		lot, err := a.lockLot(dbc, lotID)
		if err != nil {
			return err
		}
		if err := RequireStatusAllowed("lot "+lot.LotCode, lot.Status, production.LotReleased); err != nil {
			return err
		}
		if err := a.setLotStatus(dbc, fx, lot, production.LotConsumed, actorID, map[string]any{"reason": "consumed"}); err != nil {
			return err
		}
		// Children may already be settled.
		if err := a.settle(dbc, fx, []uuid.UUID{lot.ID}, actorID); err != nil {
			return err
		}
		out, err = a.deps.Lots.GetByID(dbc, lot.ID)
		return err
	})
	return out, err
}

// setLotStatus applies a guarded status change to a locked lot and audits it.
func (a *lotAggregate) setLotStatus(dbc dbctx.Context, fx *afterCommit, lot *production.Lot, to, actorID string, meta map[string]any) error {
	return applyLotStatus(dbc, fx, a.deps.Lots, a.audit, a.deps.Base.Effects, lot, to, actorID, production.EventLotStatusChanged, meta)
}

// applyLotStatus is shared by the lot and inventory aggregates.
func applyLotStatus(dbc dbctx.Context, fx *afterCommit, lots repos.LotRepo, audit *auditLog, effects Effects,
	lot *production.Lot, to, actorID, event string, meta map[string]any,
) error {
	from := lot.Status
	ok, err := lots.UpdateStatus(dbc, lot.ID, []string{from}, to)
	if err != nil {
		return err
	}
	if err := RequireCASSuccess(ok, "lot "+lot.LotCode+" changed concurrently"); err != nil {
		return err
	}
	lot.Status = to
	if _, err := audit.append(dbc, fx, auditEntry{
		EventType:  event,
		EntityType: production.EntityLot,
		EntityID:   lot.ID.String(),
		ActorID:    actorID,
		Old:        map[string]any{"status": from},
		New:        map[string]any{"status": to},
		Metadata:   meta,
	}); err != nil {
		return err
	}
	changed := snapshot(lot)
	fx.add("lot.changed", func(ctx context.Context) error {
		return effects.LotChanged(ctx, changed)
	})
	return nil
}

func lotState(l *production.Lot) map[string]any {
	if l == nil {
		return nil
	}
	out := map[string]any{
		"lot_code": l.LotCode,
		"lot_type": l.LotType,
		"status":   l.Status,
		"seq":      l.Seq,
	}
	if l.RunID != nil {
		out["run_id"] = l.RunID.String()
	}
	if l.StepIndex != nil {
		out["step_index"] = *l.StepIndex
	}
	if l.WeightKg != nil {
		out["weight_kg"] = *l.WeightKg
	}
	if l.TemperatureC != nil {
		out["temperature_c"] = *l.TemperatureC
	}
	return out
}
