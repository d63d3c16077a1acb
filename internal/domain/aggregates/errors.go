package aggregates

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode standardizes aggregate failure semantics across domains.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "validation"
	CodeNotFound           ErrorCode = "not_found"
	CodeConflict           ErrorCode = "conflict"
	CodeInvariantViolation ErrorCode = "invariant_violation"
	CodePreconditionFailed ErrorCode = "precondition_failed"
	CodeRetryable          ErrorCode = "retryable"
	CodeInternal           ErrorCode = "internal"
)

// ErrorKind names the specific rule that failed. Operator surfaces render
// the kind, never a generic failure.
type ErrorKind string

const (
	KindValidation             ErrorKind = "ValidationError"
	KindNotFound               ErrorKind = "NotFound"
	KindStateConflict          ErrorKind = "StateConflictError"
	KindImmutableVersion       ErrorKind = "ImmutableVersionError"
	KindVersionNotPublished    ErrorKind = "VersionNotPublishedError"
	KindActiveRunsExist        ErrorKind = "ActiveRunsExistError"
	KindIncompleteGraph        ErrorKind = "IncompleteGraphError"
	KindStepNotReady           ErrorKind = "StepNotReadyError"
	KindCycleDetected          ErrorKind = "CycleDetectedError"
	KindDuplicateLink          ErrorKind = "DuplicateLinkError"
	KindSkuMismatch            ErrorKind = "SkuMismatchError"
	KindBufferPurity           ErrorKind = "BufferPurityError"
	KindIdempotencyConflict    ErrorKind = "IdempotencyConflictError"
	KindPersistenceUnavailable ErrorKind = "PersistenceUnavailableError"
	KindInternal               ErrorKind = "InternalError"
)

var kindCodes = map[ErrorKind]ErrorCode{
	KindValidation:             CodeValidation,
	KindNotFound:               CodeNotFound,
	KindStateConflict:          CodeConflict,
	KindImmutableVersion:       CodeInvariantViolation,
	KindVersionNotPublished:    CodePreconditionFailed,
	KindActiveRunsExist:        CodePreconditionFailed,
	KindIncompleteGraph:        CodePreconditionFailed,
	KindStepNotReady:           CodePreconditionFailed,
	KindCycleDetected:          CodeInvariantViolation,
	KindDuplicateLink:          CodeConflict,
	KindSkuMismatch:            CodeInvariantViolation,
	KindBufferPurity:           CodeInvariantViolation,
	KindIdempotencyConflict:    CodeConflict,
	KindPersistenceUnavailable: CodeRetryable,
	KindInternal:               CodeInternal,
}

var codeKinds = map[ErrorCode]ErrorKind{
	CodeValidation:         KindValidation,
	CodeNotFound:           KindNotFound,
	CodeConflict:           KindStateConflict,
	CodeInvariantViolation: KindInternal,
	CodePreconditionFailed: KindInternal,
	CodeRetryable:          KindPersistenceUnavailable,
	CodeInternal:           KindInternal,
}

// CodeForKind returns the coarse class of a kind.
func CodeForKind(k ErrorKind) ErrorCode {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return CodeInternal
}

// Error is the canonical aggregate error wrapper.
type Error struct {
	Code    ErrorCode
	Kind    ErrorKind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Kind)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Kind)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an aggregate error with explicit code + operation. The
// kind defaults to the generic kind of the code.
func NewError(code ErrorCode, op, message string, cause error) error {
	kind, ok := codeKinds[code]
	if !ok {
		kind = KindInternal
	}
	return &Error{
		Code:    code,
		Kind:    kind,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// NewKindError builds an aggregate error for a specific rule kind.
func NewKindError(kind ErrorKind, op, message string, cause error) error {
	return &Error{
		Code:    CodeForKind(kind),
		Kind:    kind,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap annotates an existing error with aggregate error semantics.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

// WrapKind annotates an existing error with a specific kind.
func WrapKind(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewKindError(kind, op, err.Error(), err)
}

// IsCode checks whether err (or wrapped err) carries the given aggregate code.
func IsCode(err error, code ErrorCode) bool {
	var aggErr *Error
	if !errors.As(err, &aggErr) {
		return false
	}
	return aggErr.Code == code
}

// CodeOf extracts the aggregate error code when available.
func CodeOf(err error) ErrorCode {
	var aggErr *Error
	if !errors.As(err, &aggErr) {
		return ""
	}
	return aggErr.Code
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

func KindOf(err error) ErrorKind {
	var aggErr *Error
	if !errors.As(err, &aggErr) {
		return ""
	}
	return aggErr.Kind
}
