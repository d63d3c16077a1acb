package production

import (
	"errors"
	"fmt"
)

// Rule failures. Pure domain code returns these through Errorf so callers
// can match with errors.Is while the message carries the detail.
var (
	ErrValidation          = errors.New("validation")
	ErrNotFound            = errors.New("not found")
	ErrStateConflict       = errors.New("state conflict")
	ErrImmutableVersion    = errors.New("immutable version")
	ErrVersionNotPublished = errors.New("version not published")
	ErrActiveRunsExist     = errors.New("active runs exist")
	ErrIncompleteGraph     = errors.New("incomplete graph")
	ErrStepNotReady        = errors.New("step not ready")
	ErrCycleDetected       = errors.New("cycle detected")
	ErrDuplicateLink       = errors.New("duplicate link")
	ErrSkuMismatch         = errors.New("sku mismatch")
	ErrBufferPurity        = errors.New("buffer purity")
	ErrIdempotencyConflict = errors.New("idempotency conflict")
)

type ruleError struct {
	kind error
	msg  string
}

func (e *ruleError) Error() string { return e.msg }
func (e *ruleError) Unwrap() error { return e.kind }

// Errorf tags a formatted message with one of the rule sentinels.
func Errorf(kind error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if msg == "" {
		msg = kind.Error()
	}
	return &ruleError{kind: kind, msg: msg}
}
