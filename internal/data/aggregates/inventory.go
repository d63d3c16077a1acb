package aggregates

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/lotline-backend/internal/data/repos"
	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

const maxBufferCodeLen = 20

type InventoryAggregateDeps struct {
	Base BaseDeps

	Buffers        repos.BufferRepo
	InventoryItems repos.InventoryItemRepo
	StockMoves     repos.StockMoveRepo
	Lots           repos.LotRepo
	Genealogy      repos.GenealogyLinkRepo
	Audit          repos.AuditEventRepo
	Idempotency    repos.IdempotencyRepo
}

type inventoryAggregate struct {
	deps   InventoryAggregateDeps
	audit  *auditLog
	ledger *idempotencyLedger
}

func NewInventoryAggregate(deps InventoryAggregateDeps) domainagg.InventoryAggregate {
	deps.Base = deps.Base.withDefaults()
	return &inventoryAggregate{
		deps:   deps,
		audit:  newAuditLog(deps.Audit, deps.Base.Effects),
		ledger: newIdempotencyLedger(deps.Idempotency),
	}
}

func (a *inventoryAggregate) Contract() domainagg.Contract {
	return domainagg.InventoryAggregateContract
}

func (a *inventoryAggregate) configured(op string) error {
	d := a.deps
	if d.Buffers == nil || d.InventoryItems == nil || d.StockMoves == nil || d.Lots == nil ||
		d.Genealogy == nil || d.Audit == nil || d.Idempotency == nil {
		return domainagg.NewError(domainagg.CodeInternal, op, "inventory aggregate repos not configured", nil)
	}
	return nil
}

func validateBand(minC, maxC float64) error {
	if math.IsNaN(minC) || math.IsNaN(maxC) || minC >= maxC {
		return ValidationError(fmt.Sprintf("temp_min_c (%.1f) must be below temp_max_c (%.1f)", minC, maxC))
	}
	return nil
}

func (a *inventoryAggregate) CreateBuffer(ctx context.Context, in domainagg.CreateBufferInput) (*production.Buffer, error) {
	const op = "Production.Inventory.CreateBuffer"
	if err := a.configured(op); err != nil {
		return nil, err
	}
	code := strings.ToUpper(strings.TrimSpace(in.BufferCode))
	if code == "" || len(code) > maxBufferCodeLen {
		return nil, MapError(op, ValidationError(fmt.Sprintf("buffer_code must be 1..%d characters", maxBufferCodeLen)))
	}
	bufType := strings.ToUpper(strings.TrimSpace(in.BufferType))
	if bufType == "" {
		return nil, MapError(op, ValidationError("buffer_type is required"))
	}
	allowed := make([]string, 0, len(in.AllowedLotTypes))
	seen := map[string]bool{}
	for _, t := range in.AllowedLotTypes {
		t = strings.ToUpper(strings.TrimSpace(t))
		if !production.IsLotType(t) {
			return nil, MapError(op, ValidationError(fmt.Sprintf("unknown lot type %q in allowed_lot_types", t)))
		}
		if !seen[t] {
			seen[t] = true
			allowed = append(allowed, t)
		}
	}
	if len(allowed) == 0 {
		return nil, MapError(op, ValidationError("allowed_lot_types must name at least one lot type"))
	}
	if in.CapacityKg < 0 || math.IsNaN(in.CapacityKg) {
		return nil, MapError(op, ValidationError("capacity_kg must be >= 0"))
	}
	if err := validateBand(in.TempMinC, in.TempMaxC); err != nil {
		return nil, MapError(op, err)
	}
	allowedJSON, _ := json.Marshal(allowed)

	var out *production.Buffer
	err := executeWriteFx(ctx, a.deps.Base, op, func(dbc dbctx.Context, fx *afterCommit) error {
		existing, err := a.deps.Buffers.GetByCode(dbc, code)
		if err != nil {
			return err
		}
		if existing != nil {
			return ConflictError("buffer " + code + " already exists")
		}
		b, err := a.deps.Buffers.Create(dbc, &production.Buffer{
			BufferCode:      code,
			BufferType:      bufType,
			AllowedLotTypes: datatypes.JSON(allowedJSON),
			CapacityKg:      in.CapacityKg,
			TempMinC:        in.TempMinC,
			TempMaxC:        in.TempMaxC,
			IsActive:        true,
		})
		if err != nil {
			return err
		}
		if _, err := a.audit.append(dbc, fx, auditEntry{
			EventType:  production.EventBufferCreated,
			EntityType: production.EntityBuffer,
			EntityID:   b.ID.String(),
			ActorID:    in.ActorID,
			New:        b,
		}); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

func (a *inventoryAggregate) UpdateBuffer(ctx context.Context, in domainagg.UpdateBufferInput) (*production.Buffer, error) {
	const op = "Production.Inventory.UpdateBuffer"
	if err := a.configured(op); err != nil {
		return nil, err
	}
	var out *production.Buffer
	err := executeWriteFx(ctx, a.deps.Base, op, func(dbc dbctx.Context, fx *afterCommit) error {
		locked, err := a.deps.Buffers.LockByIDs(dbc, []uuid.UUID{in.BufferID})
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return NotFoundError("buffer not found: " + in.BufferID.String())
		}
		b := locked[0]
		before := snapshot(b)
		updates := map[string]any{}
		minC, maxC := b.TempMinC, b.TempMaxC
		if in.CapacityKg != nil {
			if *in.CapacityKg < 0 || math.IsNaN(*in.CapacityKg) {
				return ValidationError("capacity_kg must be >= 0")
			}
			updates["capacity_kg"] = *in.CapacityKg
		}
		if in.TempMinC != nil {
			minC = *in.TempMinC
			updates["temp_min_c"] = minC
		}
		if in.TempMaxC != nil {
			maxC = *in.TempMaxC
			updates["temp_max_c"] = maxC
		}
		if err := validateBand(minC, maxC); err != nil {
			return err
		}
		if in.IsActive != nil {
			updates["is_active"] = *in.IsActive
		}
		if len(updates) == 0 {
			out = b
			return nil
		}
		if err := a.deps.Buffers.UpdateFields(dbc, b.ID, updates); err != nil {
			return err
		}
		after, err := a.deps.Buffers.GetByID(dbc, b.ID)
		if err != nil {
			return err
		}
		if _, err := a.audit.append(dbc, fx, auditEntry{
			EventType:  production.EventBufferUpdated,
			EntityType: production.EntityBuffer,
			EntityID:   b.ID.String(),
			ActorID:    in.ActorID,
			Old:        before,
			New:        after,
		}); err != nil {
			return err
		}
		out = after
		return nil
	})
	return out, err
}

type moveRequest struct {
	LotID        string     `json:"lot_id"`
	FromBufferID *uuid.UUID `json:"from_buffer_id,omitempty"`
	ToBufferID   *uuid.UUID `json:"to_buffer_id,omitempty"`
	QuantityKg   float64    `json:"quantity_kg"`
	MoveType     string     `json:"move_type"`
	OperatorID   string     `json:"operator_id"`
}

// moveType infers or checks the move type against which sides are set.
func moveType(requested string, from, to *uuid.UUID) (string, error) {
	requested = strings.ToUpper(strings.TrimSpace(requested))
	var shape string
	switch {
	case from == nil && to == nil:
		return "", ValidationError("a move needs a source or a destination buffer")
	case from == nil:
		shape = production.MoveReceive
	case to == nil:
		shape = production.MoveShip
		if requested == production.MoveConsume {
			shape = production.MoveConsume
		}
	default:
		if *from == *to {
			return "", ValidationError("source and destination buffer are the same")
		}
		shape = production.MoveTransfer
	}
	if requested != "" && requested != shape {
		if !production.IsMoveType(requested) {
			return "", ValidationError(fmt.Sprintf("unknown move type %q", requested))
		}
		return "", ValidationError(fmt.Sprintf("move type %s does not match the given buffers (%s)", requested, shape))
	}
	return shape, nil
}

func (a *inventoryAggregate) MoveStock(ctx context.Context, in domainagg.MoveStockInput) (domainagg.MoveStockResult, error) {
	const op = "Production.Inventory.MoveStock"
	var out domainagg.MoveStockResult
	if err := a.configured(op); err != nil {
		return out, err
	}
	if in.LotID == uuid.Nil {
		return out, MapError(op, ValidationError("lot_id is required"))
	}
	if math.IsNaN(in.QuantityKg) || in.QuantityKg <= 0 {
		return out, MapError(op, ValidationError("quantity_kg must be greater than 0"))
	}
	mt, err := moveType(in.MoveType, in.FromBufferID, in.ToBufferID)
	if err != nil {
		return out, MapError(op, err)
	}
	req := moveRequest{
		LotID:        in.LotID.String(),
		FromBufferID: in.FromBufferID,
		ToBufferID:   in.ToBufferID,
		QuantityKg:   in.QuantityKg,
		MoveType:     mt,
		OperatorID:   strings.TrimSpace(in.OperatorID),
	}
	key := strings.TrimSpace(in.IdempotencyKey)

	err = executeWriteFx(ctx, a.deps.Base, op, func(dbc dbctx.Context, fx *afterCommit) error {
		out = domainagg.MoveStockResult{}
		c, err := a.ledger.check(dbc, scopeInventoryMove, key, req)
		if err != nil {
			return err
		}
		if c.Replay() {
			return a.replayMove(dbc, key, &out)
		}

		// Lot first, then buffers in id order.
		lot, err := a.deps.Lots.LockByID(dbc, in.LotID)
		if err != nil {
			return err
		}
		if lot == nil {
			return NotFoundError("lot not found: " + in.LotID.String())
		}
		if production.IsTerminalLot(lot.Status) {
			return ConflictError(fmt.Sprintf("lot %s is %s and cannot move", lot.LotCode, lot.Status))
		}
		if (mt == production.MoveShip || mt == production.MoveConsume) && lot.Status != production.LotReleased {
			return ConflictError(fmt.Sprintf("lot %s is %s; only RELEASED lots can be %s", lot.LotCode, lot.Status, strings.ToLower(mt)))
		}
		var ids []uuid.UUID
		if req.FromBufferID != nil {
			ids = append(ids, *req.FromBufferID)
		}
		if req.ToBufferID != nil {
			ids = append(ids, *req.ToBufferID)
		}
		locked, err := a.deps.Buffers.LockByIDs(dbc, ids)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*production.Buffer, len(locked))
		for _, b := range locked {
			byID[b.ID] = b
		}
		var from, to *production.Buffer
		if req.FromBufferID != nil {
			if from = byID[*req.FromBufferID]; from == nil {
				return NotFoundError("source buffer not found: " + req.FromBufferID.String())
			}
		}
		if req.ToBufferID != nil {
			if to = byID[*req.ToBufferID]; to == nil {
				return NotFoundError("destination buffer not found: " + req.ToBufferID.String())
			}
		}

		open, err := a.deps.InventoryItems.GetOpenByLot(dbc, lot.ID)
		if err != nil {
			return err
		}
		if from == nil {
			if open != nil {
				return ConflictError(fmt.Sprintf("lot %s is already in a buffer; transfer it instead", lot.LotCode))
			}
		} else {
			if open == nil || open.BufferID != from.ID {
				return ConflictError(fmt.Sprintf("lot %s is not in buffer %s", lot.LotCode, from.BufferCode))
			}
			if req.QuantityKg > open.QuantityKg+weightEpsilonKg {
				return ValidationError(fmt.Sprintf("quantity %.3f kg exceeds the %.3f kg of lot %s in %s",
					req.QuantityKg, open.QuantityKg, lot.LotCode, from.BufferCode))
			}
			if mt == production.MoveTransfer && math.Abs(req.QuantityKg-open.QuantityKg) > weightEpsilonKg {
				return ValidationError(fmt.Sprintf("a transfer moves the whole %.3f kg of lot %s", open.QuantityKg, lot.LotCode))
			}
		}

		meta := map[string]any{"lot_code": lot.LotCode, "move_type": mt}
		if from != nil {
			meta["from_buffer_code"] = from.BufferCode
		}
		var override bool
		if to != nil {
			if !to.IsActive {
				return ConflictError("buffer " + to.BufferCode + " is inactive")
			}
			if err := a.deps.Base.Enforcer.CheckBufferPurity(to.BufferCode, to.AllowedTypes(), lot.LotType); err != nil {
				return err
			}
			load, err := a.deps.InventoryItems.LoadKg(dbc, to.ID)
			if err != nil {
				return err
			}
			capCheck := a.deps.Base.Enforcer.CheckCapacity(to.CapacityKg, load, req.QuantityKg)
			meta["to_buffer_code"] = to.BufferCode
			if capCheck.Override {
				override = true
				meta["capacity_override"] = map[string]any{
					"limit_kg":  capCheck.LimitKg,
					"load_kg":   capCheck.LoadKg,
					"excess_kg": capCheck.ExcessKg,
				}
			}
		}

		now := a.deps.Base.Now()
		if open != nil {
			ok, err := a.deps.InventoryItems.Close(dbc, open.ID, now)
			if err != nil {
				return err
			}
			if err := RequireCASSuccess(ok, "inventory item closed concurrently"); err != nil {
				return err
			}
		}
		remainder := 0.0
		switch mt {
		case production.MoveReceive, production.MoveTransfer:
			if _, err := a.deps.InventoryItems.Create(dbc, &production.InventoryItem{
				LotID:      lot.ID,
				BufferID:   to.ID,
				RunID:      lot.RunID,
				QuantityKg: req.QuantityKg,
				EnteredAt:  now,
			}); err != nil {
				return err
			}
		default:
			remainder = open.QuantityKg - req.QuantityKg
			if remainder > weightEpsilonKg {
				if _, err := a.deps.InventoryItems.Create(dbc, &production.InventoryItem{
					LotID:      lot.ID,
					BufferID:   from.ID,
					RunID:      open.RunID,
					QuantityKg: remainder,
					EnteredAt:  open.EnteredAt,
				}); err != nil {
					return err
				}
				meta["remaining_kg"] = remainder
			}
		}

		moveKey := key
		if moveKey == "" {
			moveKey = uuid.NewString()
		}
		move, err := a.deps.StockMoves.Create(dbc, &production.StockMove{
			LotID:          lot.ID,
			FromBufferID:   req.FromBufferID,
			ToBufferID:     req.ToBufferID,
			QuantityKg:     req.QuantityKg,
			MoveType:       mt,
			OperatorID:     req.OperatorID,
			IdempotencyKey: moveKey,
		})
		if err != nil {
			return err
		}
		if _, err := a.audit.append(dbc, fx, auditEntry{
			EventType:  production.EventStockMoved,
			EntityType: production.EntityStockMove,
			EntityID:   move.ID.String(),
			ActorID:    req.OperatorID,
			New:        move,
			Metadata:   meta,
		}); err != nil {
			return err
		}
		if override {
			if err := a.recordOverride(dbc, fx, to, lot, move, req.OperatorID, meta["capacity_override"]); err != nil {
				return err
			}
		}

		if (mt == production.MoveShip || mt == production.MoveConsume) && remainder <= weightEpsilonKg {
			if err := a.exhaust(dbc, fx, lot, mt, req.OperatorID, move.ID); err != nil {
				return err
			}
		}
		if err := c.complete(dbc, move.ID.String()); err != nil {
			return err
		}
		out = domainagg.MoveStockResult{Move: move, Lot: lot, CapacityOverride: override}
		return nil
	})
	return out, err
}

func (a *inventoryAggregate) recordOverride(dbc dbctx.Context, fx *afterCommit, to *production.Buffer, lot *production.Lot,
	move *production.StockMove, actorID string, detail any,
) error {
	if _, err := a.audit.append(dbc, fx, auditEntry{
		EventType:  production.EventCapacityOverride,
		EntityType: production.EntityBuffer,
		EntityID:   to.ID.String(),
		ActorID:    actorID,
		Metadata: map[string]any{
			"buffer_code":   to.BufferCode,
			"capacity_kg":   to.CapacityKg,
			"lot_code":      lot.LotCode,
			"stock_move_id": move.ID.String(),
			"detail":        detail,
		},
	}); err != nil {
		return err
	}
	code, capKg, qty := to.BufferCode, to.CapacityKg, move.QuantityKg
	fx.add("capacity.override", func(context.Context) error {
		a.deps.Base.Log.Warn("Buffer capacity override",
			"buffer_code", code,
			"capacity_kg", capKg,
			"incoming_kg", qty,
			"operator_id", actorID,
		)
		a.deps.Base.Hooks.IncCompliance("capacity_override", code)
		return nil
	})
	return nil
}

// exhaust applies the lot status change when its last quantity leaves:
// a shipped lot is CONSUMED then FINISHED, a consumed lot is CONSUMED.
func (a *inventoryAggregate) exhaust(dbc dbctx.Context, fx *afterCommit, lot *production.Lot, mt, actorID string, moveID uuid.UUID) error {
	meta := map[string]any{"move_type": mt, "stock_move_id": moveID.String()}
	if err := applyLotStatus(dbc, fx, a.deps.Lots, a.audit, a.deps.Base.Effects, lot,
		production.LotConsumed, actorID, production.EventLotStatusChanged, meta); err != nil {
		return err
	}
	prop := finishPropagation{
		lots:      a.deps.Lots,
		genealogy: a.deps.Genealogy,
		audit:     a.audit,
		effects:   a.deps.Base.Effects,
		depth:     a.deps.Base.Enforcer.Policy().Genealogy.PropagationDepth,
	}
	if mt == production.MoveConsume {
		return prop.run(dbc, fx, []uuid.UUID{lot.ID}, actorID)
	}
	if err := applyLotStatus(dbc, fx, a.deps.Lots, a.audit, a.deps.Base.Effects, lot,
		production.LotFinished, actorID, production.EventLotStatusChanged, meta); err != nil {
		return err
	}
	links, err := a.deps.Genealogy.ListByChildren(dbc, []uuid.UUID{lot.ID})
	if err != nil || len(links) == 0 {
		return err
	}
	parents := make([]uuid.UUID, 0, len(links))
	for _, l := range links {
		parents = append(parents, l.ParentLotID)
	}
	return prop.run(dbc, fx, parents, actorID)
}

func (a *inventoryAggregate) replayMove(dbc dbctx.Context, key string, out *domainagg.MoveStockResult) error {
	move, err := a.deps.StockMoves.GetByIdempotencyKey(dbc, key)
	if err != nil {
		return err
	}
	if move == nil {
		return InvariantError("idempotency record references a missing stock move")
	}
	lot, err := a.deps.Lots.GetByID(dbc, move.LotID)
	if err != nil {
		return err
	}
	out.Move, out.Lot, out.Replayed = move, lot, true
	return nil
}
