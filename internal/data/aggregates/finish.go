package aggregates

import (
	"github.com/google/uuid"

	"github.com/yungbote/lotline-backend/internal/data/repos"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

// finishPropagation moves CONSUMED lots to FINISHED once every child is
// FINISHED or REJECTED, walking towards ancestors level by level.
type finishPropagation struct {
	lots      repos.LotRepo
	genealogy repos.GenealogyLinkRepo
	audit     *auditLog
	effects   Effects
	depth     int
}

func (p finishPropagation) run(dbc dbctx.Context, fx *afterCommit, candidates []uuid.UUID, actorID string) error {
	seen := map[uuid.UUID]bool{}
	frontier := candidates
	for level := 0; level < p.depth && len(frontier) > 0; level++ {
		var finished []uuid.UUID
		for _, id := range frontier {
			if seen[id] {
				continue
			}
			seen[id] = true
			ok, err := p.tryFinish(dbc, fx, id, actorID, level)
			if err != nil {
				return err
			}
			if ok {
				finished = append(finished, id)
			}
		}
		if len(finished) == 0 {
			return nil
		}
		links, err := p.genealogy.ListByChildren(dbc, finished)
		if err != nil {
			return err
		}
		frontier = frontier[:0:0]
		for _, l := range links {
			if !seen[l.ParentLotID] {
				frontier = append(frontier, l.ParentLotID)
			}
		}
	}
	return nil
}

func (p finishPropagation) tryFinish(dbc dbctx.Context, fx *afterCommit, id uuid.UUID, actorID string, level int) (bool, error) {
	lot, err := p.lots.LockByID(dbc, id)
	if err != nil || lot == nil || lot.Status != production.LotConsumed {
		return false, err
	}
	links, err := p.genealogy.ListByParents(dbc, []uuid.UUID{id})
	if err != nil {
		return false, err
	}
	childIDs := make([]uuid.UUID, 0, len(links))
	for _, l := range links {
		childIDs = append(childIDs, l.ChildLotID)
	}
	children, err := p.lots.GetByIDs(dbc, childIDs)
	if err != nil {
		return false, err
	}
	statuses := make([]string, 0, len(children))
	for _, c := range children {
		statuses = append(statuses, c.Status)
	}
	if !production.CanFinish(lot.Status, statuses) {
		return false, nil
	}
	err = applyLotStatus(dbc, fx, p.lots, p.audit, p.effects, lot, production.LotFinished, actorID,
		production.EventLotStatusChanged, map[string]any{
			"reason":            "children_settled",
			"children":          len(children),
			"propagation_level": level,
		})
	return err == nil, err
}
