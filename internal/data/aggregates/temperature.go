package aggregates

import (
	"context"
	"strings"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/domain/compliance"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

type temperatureRequest struct {
	LotID           *uuid.UUID `json:"lot_id,omitempty"`
	BufferID        *uuid.UUID `json:"buffer_id,omitempty"`
	InspectionID    *uuid.UUID `json:"inspection_id,omitempty"`
	TemperatureC    float64    `json:"temperature_c"`
	MeasurementType string     `json:"measurement_type"`
	RecordedBy      string     `json:"recorded_by"`
	ForceViolation  bool       `json:"force_violation"`
}

// RecordTemperature logs a reading. A violation on a lot that is still in
// circulation puts it on HOLD in the same transaction.
func (a *lotAggregate) RecordTemperature(ctx context.Context, in domainagg.RecordTemperatureInput) (domainagg.RecordTemperatureResult, error) {
	const op = "Production.Lot.RecordTemperature"
	var out domainagg.RecordTemperatureResult
	if err := a.configured(op); err != nil {
		return out, err
	}
	if (in.LotID == nil) == (in.BufferID == nil) {
		return out, MapError(op, ValidationError("exactly one of lot_id or buffer_id is required"))
	}
	req := temperatureRequest{
		LotID:           in.LotID,
		BufferID:        in.BufferID,
		InspectionID:    in.InspectionID,
		TemperatureC:    in.TemperatureC,
		MeasurementType: strings.ToUpper(strings.TrimSpace(in.MeasurementType)),
		RecordedBy:      strings.TrimSpace(in.RecordedBy),
		ForceViolation:  in.ForceViolation,
	}
	if !production.IsMeasurementType(req.MeasurementType) {
		return out, MapError(op, ValidationError("unknown measurement type "+in.MeasurementType))
	}
	if err := validateTemperature(req.TemperatureC); err != nil {
		return out, MapError(op, err)
	}

	err := executeWriteFx(ctx, a.deps.Base, op, func(dbc dbctx.Context, fx *afterCommit) error {
		out = domainagg.RecordTemperatureResult{}
		c, err := a.ledger.check(dbc, scopeLotTemperature, in.IdempotencyKey, req)
		if err != nil {
			return err
		}
		if c.Replay() {
			return a.replayTemperature(dbc, c.replayRef, &out)
		}

		var lot *production.Lot
		var band *compliance.TemperatureBand
		var bufferCode string
		if req.LotID != nil {
			if lot, err = a.lockLot(dbc, *req.LotID); err != nil {
				return err
			}
			// A lot sitting in a buffer is also held to that buffer's band.
			item, err := a.deps.InventoryItems.GetOpenByLot(dbc, lot.ID)
			if err != nil {
				return err
			}
			if item != nil {
				buf, err := a.deps.Buffers.GetByID(dbc, item.BufferID)
				if err != nil {
					return err
				}
				if buf != nil {
					band, bufferCode = &compliance.TemperatureBand{MinC: buf.TempMinC, MaxC: buf.TempMaxC}, buf.BufferCode
				}
			}
		} else {
			buf, err := a.deps.Buffers.GetByID(dbc, *req.BufferID)
			if err != nil {
				return err
			}
			if buf == nil {
				return NotFoundError("buffer not found: " + req.BufferID.String())
			}
			band, bufferCode = &compliance.TemperatureBand{MinC: buf.TempMinC, MaxC: buf.TempMaxC}, buf.BufferCode
		}
		if req.InspectionID != nil {
			insp, err := a.deps.Inspections.GetByID(dbc, *req.InspectionID)
			if err != nil {
				return err
			}
			if insp == nil {
				return NotFoundError("inspection not found: " + req.InspectionID.String())
			}
			if lot != nil && insp.LotID != lot.ID {
				return ValidationError("inspection belongs to a different lot")
			}
		}

		eval := a.deps.Base.Enforcer.EvaluateTemperature(req.MeasurementType, req.TemperatureC, band, req.ForceViolation)
		now := a.deps.Base.Now()
		tl, err := a.deps.Temperatures.Create(dbc, &production.TemperatureLog{
			LotID:           req.LotID,
			BufferID:        req.BufferID,
			InspectionID:    req.InspectionID,
			TemperatureC:    req.TemperatureC,
			MeasurementType: req.MeasurementType,
			IsViolation:     eval.Violation,
			ThresholdC:      eval.ThresholdC,
			RecordedBy:      req.RecordedBy,
			RecordedAt:      now,
		})
		if err != nil {
			return err
		}
		logMeta := map[string]any{"violation": eval.Violation}
		if eval.Reason != "" {
			logMeta["reason"] = eval.Reason
		}
		if bufferCode != "" {
			logMeta["buffer_code"] = bufferCode
		}
		if _, err := a.audit.append(dbc, fx, auditEntry{
			EventType:  production.EventTemperatureRecorded,
			EntityType: production.EntityTemperatureLog,
			EntityID:   tl.ID.String(),
			ActorID:    req.RecordedBy,
			New:        tl,
			Metadata:   logMeta,
		}); err != nil {
			return err
		}

		held := false
		if lot != nil && eval.Violation && production.HoldOnTemperatureViolation(lot.Status) {
			meta := map[string]any{
				"temperature_c":      req.TemperatureC,
				"measurement_type":   req.MeasurementType,
				"temperature_log_id": tl.ID.String(),
				"previous_status":    lot.Status,
				"reason":             eval.Reason,
			}
			if eval.ThresholdC != nil {
				meta["threshold_c"] = *eval.ThresholdC
			}
			if err := applyLotStatus(dbc, fx, a.deps.Lots, a.audit, a.deps.Base.Effects, lot,
				production.LotHold, req.RecordedBy, production.EventTempViolationHold, meta); err != nil {
				return err
			}
			held = true
			measure := req.MeasurementType
			fx.add("temperature.hold.metric", func(context.Context) error {
				a.deps.Base.Hooks.IncCompliance("temperature_hold", measure)
				return nil
			})
			lotCode, reason := lot.LotCode, eval.Reason
			fx.add("temperature.hold.log", func(context.Context) error {
				a.deps.Base.Log.Warn("Temperature violation put lot on hold",
					"lot_code", lotCode,
					"temperature_c", req.TemperatureC,
					"measurement_type", req.MeasurementType,
					"reason", reason,
				)
				return nil
			})
		}
		if err := c.complete(dbc, tl.ID.String()); err != nil {
			return err
		}
		out = domainagg.RecordTemperatureResult{Log: tl, Lot: lot, Held: held}
		return nil
	})
	return out, err
}

func (a *lotAggregate) replayTemperature(dbc dbctx.Context, ref string, out *domainagg.RecordTemperatureResult) error {
	id, err := uuid.Parse(ref)
	if err != nil {
		return InvariantError("idempotency record has a malformed temperature log reference")
	}
	tl, err := a.deps.Temperatures.GetByID(dbc, id)
	if err != nil {
		return err
	}
	if tl == nil {
		return InvariantError("idempotency record references a missing temperature log")
	}
	out.Log, out.Replayed = tl, true
	if tl.LotID != nil {
		lot, err := a.deps.Lots.GetByID(dbc, *tl.LotID)
		if err != nil {
			return err
		}
		out.Lot = lot
		out.Held = tl.IsViolation && lot != nil && lot.Status == production.LotHold
	}
	return nil
}
