package aggregates

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/yungbote/lotline-backend/internal/data/repos"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

type auditEntry struct {
	EventType  string
	EntityType string
	EntityID   string
	ActorID    string
	Old        any
	New        any
	Metadata   map[string]any
}

// auditLog appends events inside the mutation transaction and publishes
// them once the transaction has committed.
type auditLog struct {
	repo    repos.AuditEventRepo
	effects Effects
}

func newAuditLog(repo repos.AuditEventRepo, effects Effects) *auditLog {
	if effects == nil {
		effects = NoopEffects{}
	}
	return &auditLog{repo: repo, effects: effects}
}

func (a *auditLog) append(dbc dbctx.Context, fx *afterCommit, e auditEntry) (*production.AuditEvent, error) {
	ev := &production.AuditEvent{
		EventType:  e.EventType,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
	}
	var err error
	if ev.OldState, err = auditJSON(e.Old); err != nil {
		return nil, err
	}
	if ev.NewState, err = auditJSON(e.New); err != nil {
		return nil, err
	}
	if len(e.Metadata) > 0 {
		if ev.Metadata, err = auditJSON(e.Metadata); err != nil {
			return nil, err
		}
	}
	stored, err := a.repo.Append(dbc, ev)
	if err != nil {
		return nil, err
	}
	fx.add("audit.publish", func(ctx context.Context) error {
		return a.effects.AuditAppended(ctx, stored)
	})
	return stored, nil
}

func auditJSON(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, InvariantError("audit state is not encodable: " + err.Error())
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return datatypes.JSON(raw), nil
}

// snapshot copies a row so later in-place edits don't leak into the
// audit's old state.
func snapshot[T any](row *T) *T {
	if row == nil {
		return nil
	}
	cp := *row
	return &cp
}
