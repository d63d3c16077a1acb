package services

import (
	"context"
	"strings"
	"time"

	"github.com/yungbote/lotline-backend/internal/data/repos"
	"github.com/yungbote/lotline-backend/internal/data/repos/audit"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

const maxAuditPage = 500

type AuditQuery struct {
	From       time.Time
	To         time.Time
	EventType  string
	EntityType string
	ActorID    string
	Limit      int
	Offset     int
}

// AuditService is the read side of the audit log. Writes only happen inside
// aggregate transactions.
type AuditService interface {
	Get(ctx context.Context, id int64) (*production.AuditEvent, error)
	EntityHistory(ctx context.Context, entityType, entityID string, limit int) ([]*production.AuditEvent, error)
	Query(ctx context.Context, q AuditQuery) ([]*production.AuditEvent, error)
	// After returns events with a sequence above afterSeq, oldest first.
	After(ctx context.Context, afterSeq int64, limit int) ([]*production.AuditEvent, error)
}

type auditService struct {
	log    *logger.Logger
	events repos.AuditEventRepo
}

func NewAuditService(log *logger.Logger, events repos.AuditEventRepo) AuditService {
	return &auditService{log: log.With("service", "AuditService"), events: events}
}

func checkLimit(op string, limit int) error {
	if limit < 0 || limit > maxAuditPage {
		return invalid(op, "limit must be between 1 and %d", maxAuditPage)
	}
	return nil
}

func (s *auditService) Get(ctx context.Context, id int64) (*production.AuditEvent, error) {
	const op = "Production.Audit.Get"
	ev, err := s.events.Get(dbctx.With(ctx), id)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if ev == nil {
		return nil, notFound(op, "audit event %d not found", id)
	}
	return ev, nil
}

func (s *auditService) EntityHistory(ctx context.Context, entityType, entityID string, limit int) ([]*production.AuditEvent, error) {
	const op = "Production.Audit.EntityHistory"
	entityType, entityID = strings.TrimSpace(entityType), strings.TrimSpace(entityID)
	if entityType == "" || entityID == "" {
		return nil, invalid(op, "entity type and id are required")
	}
	if err := checkLimit(op, limit); err != nil {
		return nil, err
	}
	out, err := s.events.Query(dbctx.With(ctx), entityType, entityID, limit)
	if err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (s *auditService) Query(ctx context.Context, q AuditQuery) ([]*production.AuditEvent, error) {
	const op = "Production.Audit.Query"
	if err := checkLimit(op, q.Limit); err != nil {
		return nil, err
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return nil, invalid(op, "range end is before its start")
	}
	out, err := s.events.QueryByTimeRange(dbctx.With(ctx), audit.TimeRangeFilter{
		From:       q.From,
		To:         q.To,
		EventType:  strings.TrimSpace(q.EventType),
		EntityType: strings.TrimSpace(q.EntityType),
		ActorID:    strings.TrimSpace(q.ActorID),
		Limit:      q.Limit,
		Offset:     q.Offset,
	})
	if err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (s *auditService) After(ctx context.Context, afterSeq int64, limit int) ([]*production.AuditEvent, error) {
	const op = "Production.Audit.After"
	if err := checkLimit(op, limit); err != nil {
		return nil, err
	}
	out, err := s.events.ListAfter(dbctx.With(ctx), afterSeq, limit)
	if err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}
