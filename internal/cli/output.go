package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
)

const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns ExitFailure for errors that are not ExitErrors.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// domainFailure reports business-rule rejections as ExitFailure and
// everything else (bad input, storage) as ExitCommandError.
func domainFailure(message string, err error) error {
	switch domainagg.CodeOf(err) {
	case "", domainagg.CodeValidation, domainagg.CodeInternal, domainagg.CodeRetryable:
		return WrapExitError(ExitCommandError, message, err)
	default:
		return WrapExitError(ExitFailure, message, err)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printError(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", color.RedString("error:"), message)
}

func printInfo(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", color.CyanString("lotline:"), message)
}

func printSuccess(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", color.GreenString("ok:"), message)
}
