package audit

import (
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

const MaxQueryLimit = 500

type TimeRangeFilter struct {
	From       time.Time
	To         time.Time
	EventType  string
	EntityType string
	ActorID    string
	Limit      int
	Offset     int
}

// AuditEventRepo is append-only: there is no update or delete.
type AuditEventRepo interface {
	Append(dbc dbctx.Context, ev *types.AuditEvent) (*types.AuditEvent, error)
	Get(dbc dbctx.Context, id int64) (*types.AuditEvent, error)
	// Query returns an entity's history in ascending sequence order.
	Query(dbc dbctx.Context, entityType, entityID string, limit int) ([]*types.AuditEvent, error)
	// QueryByTimeRange returns matching events newest first.
	QueryByTimeRange(dbc dbctx.Context, f TimeRangeFilter) ([]*types.AuditEvent, error)
	// ListAfter returns events with id > afterID in ascending order.
	ListAfter(dbc dbctx.Context, afterID int64, limit int) ([]*types.AuditEvent, error)
}

type auditEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditEventRepo(db *gorm.DB, baseLog *logger.Logger) AuditEventRepo {
	return &auditEventRepo{db: db, log: baseLog.With("repo", "AuditEventRepo")}
}

func (r *auditEventRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

func (r *auditEventRepo) Append(dbc dbctx.Context, ev *types.AuditEvent) (*types.AuditEvent, error) {
	if ev == nil {
		return nil, nil
	}
	ev.ID = 0
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

func (r *auditEventRepo) Get(dbc dbctx.Context, id int64) (*types.AuditEvent, error) {
	if id <= 0 {
		return nil, nil
	}
	var row types.AuditEvent
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *auditEventRepo) Query(dbc dbctx.Context, entityType, entityID string, limit int) ([]*types.AuditEvent, error) {
	out := []*types.AuditEvent{}
	if entityType == "" || entityID == "" {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("id ASC").
		Limit(clampLimit(limit)).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *auditEventRepo) QueryByTimeRange(dbc dbctx.Context, f TimeRangeFilter) ([]*types.AuditEvent, error) {
	out := []*types.AuditEvent{}
	q := r.dbx(dbc).WithContext(dbc.Ctx).Model(&types.AuditEvent{})
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("created_at <= ?", f.To.UTC())
	}
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.ActorID != "" {
		q = q.Where("actor_id = ?", f.ActorID)
	}
	if err := q.Order("id DESC").
		Limit(clampLimit(f.Limit)).
		Offset(max(f.Offset, 0)).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *auditEventRepo) ListAfter(dbc dbctx.Context, afterID int64, limit int) ([]*types.AuditEvent, error) {
	out := []*types.AuditEvent{}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(clampLimit(limit)).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
