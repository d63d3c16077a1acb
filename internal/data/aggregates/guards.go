package aggregates

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

// CASGuard applies compare-and-set row updates inside the aggregate
// transaction. A false result means another writer got there first.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

func (g CASGuard) tx(dbc dbctx.Context) (*gorm.DB, error) {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx), nil
	}
	if g.db != nil {
		return g.db.WithContext(dbc.Ctx), nil
	}
	return nil, ValidationError("cas guard has no database handle")
}

// UpdateByVersion applies updates only while the row still carries
// expectedVersion, and bumps version by one in the same statement.
func (g CASGuard) UpdateByVersion(dbc dbctx.Context, table string, id uuid.UUID, expectedVersion int, updates map[string]any) (bool, error) {
	db, err := g.tx(dbc)
	if err != nil {
		return false, err
	}
	table = strings.TrimSpace(table)
	if table == "" || id == uuid.Nil {
		return false, ValidationError("UpdateByVersion needs a table and id")
	}
	if expectedVersion < 0 {
		return false, ValidationError("expected version must be >= 0")
	}
	set := withUpdatedAt(updates)
	set["version"] = expectedVersion + 1
	res := db.Table(table).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(set)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateByStatus applies updates only while the row's status is one of from.
func (g CASGuard) UpdateByStatus(dbc dbctx.Context, table string, id uuid.UUID, from []string, updates map[string]any) (bool, error) {
	db, err := g.tx(dbc)
	if err != nil {
		return false, err
	}
	table = strings.TrimSpace(table)
	if table == "" || id == uuid.Nil {
		return false, ValidationError("UpdateByStatus needs a table and id")
	}
	if len(from) == 0 {
		return false, ValidationError("UpdateByStatus needs at least one source status")
	}
	res := db.Table(table).
		Where("id = ? AND status IN ?", id, from).
		Updates(withUpdatedAt(updates))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ApplyVersionTransition writes a flow version lifecycle step.
func (g CASGuard) ApplyVersionTransition(dbc dbctx.Context, id uuid.UUID, t production.VersionTransition) (bool, error) {
	return g.UpdateByStatus(dbc, "flow_version", id, []string{t.From}, t.Updates)
}

func withUpdatedAt(updates map[string]any) map[string]any {
	out := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		out[k] = v
	}
	if _, ok := out["updated_at"]; !ok {
		out["updated_at"] = time.Now().UTC()
	}
	return out
}

// RequireCASSuccess turns a lost compare-and-set into a state conflict.
func RequireCASSuccess(ok bool, message string) error {
	if ok {
		return nil
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = "row changed concurrently"
	}
	return ConflictError(message)
}

// RequireStatusAllowed is the read-side precheck matching UpdateByStatus.
func RequireStatusAllowed(entity, current string, allowed ...string) error {
	if len(allowed) == 0 {
		return ValidationError("allowed statuses cannot be empty")
	}
	for _, s := range allowed {
		if current == s {
			return nil
		}
	}
	return ConflictError(entity + " is " + current + ", expected " + strings.Join(allowed, " or "))
}

func RequireVersionMatch(current, expected int) error {
	if expected < 0 {
		return ValidationError("expected version must be >= 0")
	}
	if current != expected {
		return ConflictError("version mismatch")
	}
	return nil
}
