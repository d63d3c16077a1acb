package ledger

import (
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

type CodeSequenceRepo interface {
	// Next atomically increments and returns the counter for prefix,
	// starting at 1.
	Next(dbc dbctx.Context, prefix string) (int64, error)
	// Observe raises the counter to at least seq so later generated codes
	// never collide with an explicitly supplied one.
	Observe(dbc dbctx.Context, prefix string, seq int64) error
}

type codeSequenceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCodeSequenceRepo(db *gorm.DB, baseLog *logger.Logger) CodeSequenceRepo {
	return &codeSequenceRepo{db: db, log: baseLog.With("repo", "CodeSequenceRepo")}
}

func (r *codeSequenceRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *codeSequenceRepo) Next(dbc dbctx.Context, prefix string) (int64, error) {
	var next int64
	err := r.dbx(dbc).WithContext(dbc.Ctx).Raw(`
		INSERT INTO code_sequence (prefix, last_seq, updated_at)
		VALUES (?, 1, ?)
		ON CONFLICT (prefix) DO UPDATE
		SET last_seq = code_sequence.last_seq + 1, updated_at = excluded.updated_at
		RETURNING last_seq
	`, prefix, time.Now().UTC()).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *codeSequenceRepo) Observe(dbc dbctx.Context, prefix string, seq int64) error {
	if prefix == "" || seq <= 0 {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).Exec(`
		INSERT INTO code_sequence (prefix, last_seq, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (prefix) DO UPDATE
		SET last_seq = CASE WHEN code_sequence.last_seq < excluded.last_seq
			THEN excluded.last_seq ELSE code_sequence.last_seq END,
			updated_at = excluded.updated_at
	`, prefix, seq, time.Now().UTC()).Error
}
