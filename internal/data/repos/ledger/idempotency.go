package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

type IdempotencyRepo interface {
	// Claim inserts the record unless (scope, key) exists. It returns the
	// stored record and whether this call created it. A concurrent claimer
	// blocks on the unique index until the first transaction finishes.
	Claim(dbc dbctx.Context, scope, key, requestHash string) (*types.IdempotencyRecord, bool, error)
	Complete(dbc dbctx.Context, id uuid.UUID, resultRef string) error
	Get(dbc dbctx.Context, scope, key string) (*types.IdempotencyRecord, error)
}

type idempotencyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIdempotencyRepo(db *gorm.DB, baseLog *logger.Logger) IdempotencyRepo {
	return &idempotencyRepo{db: db, log: baseLog.With("repo", "IdempotencyRepo")}
}

func (r *idempotencyRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *idempotencyRepo) Claim(dbc dbctx.Context, scope, key, requestHash string) (*types.IdempotencyRecord, bool, error) {
	if scope == "" || key == "" {
		return nil, false, nil
	}
	rec := &types.IdempotencyRecord{
		ID:          uuid.New(),
		Scope:       scope,
		Key:         key,
		RequestHash: requestHash,
		CreatedAt:   time.Now().UTC(),
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "scope"}, {Name: "key"}},
			DoNothing: true,
		}).
		Create(rec)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return rec, true, nil
	}
	existing, err := r.Get(dbc, scope, key)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *idempotencyRepo) Complete(dbc dbctx.Context, id uuid.UUID, resultRef string) error {
	if id == uuid.Nil {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.IdempotencyRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"result_ref":   resultRef,
			"completed_at": time.Now().UTC(),
		}).Error
}

func (r *idempotencyRepo) Get(dbc dbctx.Context, scope, key string) (*types.IdempotencyRecord, error) {
	if scope == "" || key == "" {
		return nil, nil
	}
	var row types.IdempotencyRecord
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("scope = ? AND key = ?", scope, key).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}
