package aggregates

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yungbote/lotline-backend/internal/data/db"
	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/domain/production"
)

var (
	// ErrInvariant indicates a storage-level invariant rejection without a
	// more specific rule kind.
	ErrInvariant = errors.New("aggregate invariant violation")
	// ErrRetryable indicates transient retryable failure.
	ErrRetryable = errors.New("aggregate retryable")
)

// ValidationError tags an error as validation failure.
func ValidationError(msg string) error {
	return production.Errorf(production.ErrValidation, "%s", strings.TrimSpace(msg))
}

// InvariantError tags an error as invariant violation.
func InvariantError(msg string) error {
	return errors.Join(ErrInvariant, errors.New(strings.TrimSpace(msg)))
}

// ConflictError tags an error as a state conflict.
func ConflictError(msg string) error {
	return production.Errorf(production.ErrStateConflict, "%s", strings.TrimSpace(msg))
}

// NotFoundError tags an error as a missing entity.
func NotFoundError(msg string) error {
	return production.Errorf(production.ErrNotFound, "%s", strings.TrimSpace(msg))
}

// RetryableError tags an error as retryable failure.
func RetryableError(msg string) error {
	return errors.Join(ErrRetryable, errors.New(strings.TrimSpace(msg)))
}

var sentinelKinds = []struct {
	err  error
	kind domainagg.ErrorKind
}{
	{production.ErrValidation, domainagg.KindValidation},
	{production.ErrNotFound, domainagg.KindNotFound},
	{production.ErrStateConflict, domainagg.KindStateConflict},
	{production.ErrImmutableVersion, domainagg.KindImmutableVersion},
	{production.ErrVersionNotPublished, domainagg.KindVersionNotPublished},
	{production.ErrActiveRunsExist, domainagg.KindActiveRunsExist},
	{production.ErrIncompleteGraph, domainagg.KindIncompleteGraph},
	{production.ErrStepNotReady, domainagg.KindStepNotReady},
	{production.ErrCycleDetected, domainagg.KindCycleDetected},
	{production.ErrDuplicateLink, domainagg.KindDuplicateLink},
	{production.ErrSkuMismatch, domainagg.KindSkuMismatch},
	{production.ErrBufferPurity, domainagg.KindBufferPurity},
	{production.ErrIdempotencyConflict, domainagg.KindIdempotencyConflict},
}

// Trigger tags in the order they are matched against error messages.
var tagKinds = []struct {
	tag  string
	kind domainagg.ErrorKind
	code domainagg.ErrorCode
}{
	{db.TagImmutableVersion, domainagg.KindImmutableVersion, ""},
	{db.TagBufferPurity, domainagg.KindBufferPurity, ""},
	{db.TagSelfLink, domainagg.KindCycleDetected, ""},
	{db.TagMoveEndpoints, domainagg.KindValidation, ""},
	{db.TagAppendOnly, "", domainagg.CodeInvariantViolation},
	{db.TagRunVersionPinned, "", domainagg.CodeInvariantViolation},
	{db.TagLotCoreImmutable, "", domainagg.CodeInvariantViolation},
}

// MapError maps infrastructure/domain failures into aggregate error codes
// and rule kinds.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var aggErr *domainagg.Error
	if errors.As(err, &aggErr) {
		return aggErr
	}
	for _, sk := range sentinelKinds {
		if errors.Is(err, sk.err) {
			return domainagg.WrapKind(sk.kind, op, err)
		}
	}
	switch {
	case errors.Is(err, ErrInvariant):
		return domainagg.Wrap(domainagg.CodeInvariantViolation, op, err)
	case errors.Is(err, ErrRetryable):
		return domainagg.Wrap(domainagg.CodeRetryable, op, err)
	case errors.Is(err, production.ErrAuditAppendOnly):
		return domainagg.Wrap(domainagg.CodeInvariantViolation, op, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domainagg.WrapKind(domainagg.KindNotFound, op, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domainagg.WrapKind(uniqueViolationKind(err.Error()), op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domainagg.WrapKind(domainagg.KindPersistenceUnavailable, op, err)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	for _, tk := range tagKinds {
		if strings.Contains(msg, tk.tag) {
			if tk.kind != "" {
				return domainagg.WrapKind(tk.kind, op, err)
			}
			return domainagg.Wrap(tk.code, op, err)
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := strings.TrimSpace(pgErr.Code)
		switch {
		case code == "23505": // unique_violation
			return domainagg.WrapKind(uniqueViolationKind(pgErr.ConstraintName+" "+pgErr.Message), op, err)
		case code == "23503": // foreign_key_violation
			return domainagg.Wrap(domainagg.CodePreconditionFailed, op, err)
		case code == "40001", code == "40P01", code == "55P03", strings.HasPrefix(code, "08"):
			// serialization, deadlock, lock_not_available, connection exceptions
			return domainagg.WrapKind(domainagg.KindPersistenceUnavailable, op, err)
		}
	}

	switch {
	case strings.Contains(msg, "unique constraint failed"),
		strings.Contains(msg, "duplicate key"),
		strings.Contains(msg, "already exists"):
		return domainagg.WrapKind(uniqueViolationKind(msg), op, err)
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "database table is locked"),
		strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "serialization"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "temporar"):
		return domainagg.WrapKind(domainagg.KindPersistenceUnavailable, op, err)
	default:
		return domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
}

// uniqueViolationKind picks the rule behind a unique index from the
// constraint name (postgres) or column list (sqlite).
func uniqueViolationKind(detail string) domainagg.ErrorKind {
	d := strings.ToLower(detail)
	switch {
	case strings.Contains(d, "idx_genealogy_parent_child"),
		strings.Contains(d, "genealogy_link.parent_lot_id"):
		return domainagg.KindDuplicateLink
	case strings.Contains(d, "idempotency"):
		return domainagg.KindIdempotencyConflict
	default:
		return domainagg.KindStateConflict
	}
}
