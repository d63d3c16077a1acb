package aggregates

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

// weightEpsilonKg absorbs float rounding when summing link quantities.
const weightEpsilonKg = 1e-9

type linkRequest struct {
	ParentLotID string   `json:"parent_lot_id"`
	ChildLotID  string   `json:"child_lot_id"`
	QuantityKg  *float64 `json:"quantity_kg,omitempty"`
}

func (a *lotAggregate) LinkGenealogy(ctx context.Context, in domainagg.LinkGenealogyInput) (*production.GenealogyLink, error) {
	const op = "Production.Lot.LinkGenealogy"
	if err := a.configured(op); err != nil {
		return nil, err
	}
	if in.ParentLotID == uuid.Nil || in.ChildLotID == uuid.Nil {
		return nil, MapError(op, ValidationError("parent_lot_id and child_lot_id are required"))
	}
	if in.ParentLotID == in.ChildLotID {
		return nil, MapError(op, production.Errorf(production.ErrCycleDetected, "a lot cannot be its own parent"))
	}
	if q := in.QuantityKg; q != nil && (math.IsNaN(*q) || *q <= 0) {
		return nil, MapError(op, ValidationError("quantity_kg must be greater than 0"))
	}
	req := linkRequest{
		ParentLotID: in.ParentLotID.String(),
		ChildLotID:  in.ChildLotID.String(),
		QuantityKg:  in.QuantityKg,
	}
	policy := a.deps.Base.Enforcer.Policy()

	var out *production.GenealogyLink
	err := executeWriteFx(ctx, a.deps.Base, op, func(dbc dbctx.Context, fx *afterCommit) error {
		out = nil
		c, err := a.ledger.check(dbc, scopeGenealogyLink, in.IdempotencyKey, req)
		if err != nil {
			return err
		}
		if c.Replay() {
			out, err = a.deps.Genealogy.Get(dbc, in.ParentLotID, in.ChildLotID)
			if err == nil && out == nil {
				err = InvariantError("idempotency record references a missing link")
			}
			return err
		}

		// Both rows are locked in id order. The child lock serializes links
		// into one child; the parent lock serializes its quantity budget.
		locked, err := a.deps.Lots.LockByIDs(dbc, []uuid.UUID{in.ParentLotID, in.ChildLotID})
		if err != nil {
			return err
		}
		var parent, child *production.Lot
		for _, l := range locked {
			switch l.ID {
			case in.ParentLotID:
				parent = l
			case in.ChildLotID:
				child = l
			}
		}
		if parent == nil {
			return NotFoundError("parent lot not found: " + in.ParentLotID.String())
		}
		if child == nil {
			return NotFoundError("child lot not found: " + in.ChildLotID.String())
		}

		if child.Seq <= parent.Seq {
			return production.Errorf(production.ErrCycleDetected,
				"child %s was registered before parent %s", child.LotCode, parent.LotCode)
		}
		reaches, err := a.reachesAncestor(dbc, parent.ID, child.ID, policy.Genealogy.CycleCheckDepth)
		if err != nil {
			return err
		}
		if reaches {
			return production.Errorf(production.ErrCycleDetected,
				"%s is already an ancestor of %s", child.LotCode, parent.LotCode)
		}
		existing, err := a.deps.Genealogy.Get(dbc, parent.ID, child.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return production.Errorf(production.ErrDuplicateLink,
				"%s is already linked to %s", parent.LotCode, child.LotCode)
		}
		if !production.CanLinkAsParent(parent.Status) {
			return ConflictError(fmt.Sprintf("parent %s is %s; only RELEASED or CONSUMED lots can feed a child",
				parent.LotCode, parent.Status))
		}
		if child.Status == production.LotFinished || child.Status == production.LotRejected {
			return ConflictError(fmt.Sprintf("child %s is %s and cannot take new parents", child.LotCode, child.Status))
		}

		parentTypes, err := a.parentTypes(dbc, child.ID)
		if err != nil {
			return err
		}
		if err := a.deps.Base.Enforcer.CheckSkuPurity(child.LotType, parent.LotType, parentTypes); err != nil {
			return err
		}

		if req.QuantityKg != nil && parent.WeightKg != nil {
			used, err := a.deps.Genealogy.SumQuantityFromParent(dbc, parent.ID)
			if err != nil {
				return err
			}
			if used+*req.QuantityKg > *parent.WeightKg+weightEpsilonKg {
				return InvariantError(fmt.Sprintf("linked quantity exceeds parent weight: %s has %.3f kg, %.3f kg already linked, %.3f kg requested",
					parent.LotCode, *parent.WeightKg, used, *req.QuantityKg))
			}
		}

		link, err := a.deps.Genealogy.Create(dbc, &production.GenealogyLink{
			ParentLotID: parent.ID,
			ChildLotID:  child.ID,
			QuantityKg:  req.QuantityKg,
			CreatedBy:   strings.TrimSpace(in.ActorID),
		})
		if err != nil {
			return err
		}
		meta := map[string]any{
			"parent_lot_code": parent.LotCode,
			"child_lot_code":  child.LotCode,
		}
		if req.QuantityKg != nil {
			meta["quantity_kg"] = *req.QuantityKg
		}
		if _, err := a.audit.append(dbc, fx, auditEntry{
			EventType:  production.EventGenealogyLinked,
			EntityType: production.EntityGenealogyLink,
			EntityID:   link.ID.String(),
			ActorID:    in.ActorID,
			New:        link,
			Metadata:   meta,
		}); err != nil {
			return err
		}
		if err := c.complete(dbc, link.ID.String()); err != nil {
			return err
		}
		p, ch, l := snapshot(parent), snapshot(child), snapshot(link)
		fx.add("genealogy.changed", func(ctx context.Context) error {
			return a.deps.Base.Effects.GenealogyChanged(ctx, p, ch, l)
		})
		out = link
		return nil
	})
	return out, err
}

// reachesAncestor walks parent links upward from start for at most depth
// levels and reports whether target is among the ancestors.
func (a *lotAggregate) reachesAncestor(dbc dbctx.Context, start, target uuid.UUID, depth int) (bool, error) {
	visited := map[uuid.UUID]bool{start: true}
	frontier := []uuid.UUID{start}
	for level := 0; level < depth && len(frontier) > 0; level++ {
		links, err := a.deps.Genealogy.ListByChildren(dbc, frontier)
		if err != nil {
			return false, err
		}
		frontier = frontier[:0:0]
		for _, l := range links {
			if l.ParentLotID == target {
				return true, nil
			}
			if !visited[l.ParentLotID] {
				visited[l.ParentLotID] = true
				frontier = append(frontier, l.ParentLotID)
			}
		}
	}
	return false, nil
}

func (a *lotAggregate) parentTypes(dbc dbctx.Context, childID uuid.UUID) ([]string, error) {
	links, err := a.deps.Genealogy.ListByChildren(dbc, []uuid.UUID{childID})
	if err != nil || len(links) == 0 {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.ParentLotID)
	}
	parents, err := a.deps.Lots.GetByIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(parents))
	for _, p := range parents {
		out = append(out, p.LotType)
	}
	return out, nil
}

// settleParents re-evaluates the parents of a lot that just reached a
// settled status (FINISHED or REJECTED).
func (a *lotAggregate) settleParents(dbc dbctx.Context, fx *afterCommit, lotID uuid.UUID, actorID string) error {
	links, err := a.deps.Genealogy.ListByChildren(dbc, []uuid.UUID{lotID})
	if err != nil || len(links) == 0 {
		return err
	}
	parents := make([]uuid.UUID, 0, len(links))
	for _, l := range links {
		parents = append(parents, l.ParentLotID)
	}
	return a.settle(dbc, fx, parents, actorID)
}

// settle finishes every CONSUMED candidate whose children are all settled,
// then continues with the parents of each finished lot, up to the policy's
// propagation depth.
func (a *lotAggregate) settle(dbc dbctx.Context, fx *afterCommit, candidates []uuid.UUID, actorID string) error {
	return finishPropagation{
		lots:      a.deps.Lots,
		genealogy: a.deps.Genealogy,
		audit:     a.audit,
		effects:   a.deps.Base.Effects,
		depth:     a.deps.Base.Enforcer.Policy().Genealogy.PropagationDepth,
	}.run(dbc, fx, candidates, actorID)
}
