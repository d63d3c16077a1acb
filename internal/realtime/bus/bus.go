package bus

import (
	"context"
	"time"

	"github.com/yungbote/lotline-backend/internal/domain/production"
)

// AuditMessage is the wire form of a committed audit event.
type AuditMessage struct {
	Seq        int64     `json:"seq"`
	EventType  string    `json:"event_type"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	ActorID    string    `json:"actor_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Metadata   any       `json:"metadata,omitempty"`
}

func MessageFromEvent(ev *production.AuditEvent) AuditMessage {
	msg := AuditMessage{
		Seq:        ev.ID,
		EventType:  ev.EventType,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		ActorID:    ev.ActorID,
		CreatedAt:  ev.CreatedAt.UTC(),
	}
	if len(ev.Metadata) > 0 {
		msg.Metadata = ev.Metadata
	}
	return msg
}

type Bus interface {
	Publish(ctx context.Context, msg AuditMessage) error
	// Subscribe calls onMsg for every message until ctx is done.
	Subscribe(ctx context.Context, onMsg func(m AuditMessage)) error
	Close() error
}

// Effects publishes committed audit events; genealogy and lot changes are
// not broadcast separately since they always come with an audit event.
type Effects struct {
	Bus Bus
}

func (e Effects) AuditAppended(ctx context.Context, ev *production.AuditEvent) error {
	if e.Bus == nil || ev == nil {
		return nil
	}
	return e.Bus.Publish(ctx, MessageFromEvent(ev))
}

func (Effects) GenealogyChanged(context.Context, *production.Lot, *production.Lot, *production.GenealogyLink) error {
	return nil
}

func (Effects) LotChanged(context.Context, *production.Lot) error { return nil }
