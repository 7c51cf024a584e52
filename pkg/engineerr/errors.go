// Package engineerr implements the five-tier error taxonomy described in
// spec §7: validation, load/link, execution, structural-update and
// internal-invariant errors. Validation-tier errors carry a structured
// "problem details" body in the same shape the teacher's web layer uses,
// minus any HTTP framing — there is no transport in this engine's scope.
package engineerr

import (
	"errors"
	"fmt"

	"github.com/moogar0880/problems"
)

// Kind tags which of the five tiers an error belongs to.
type Kind string

const (
	KindValidation       Kind = "validation_error"
	KindLoadLink         Kind = "load_link_error"
	KindExecution        Kind = "execution_error"
	KindStructuralUpdate Kind = "structural_update_error"
	KindInternal         Kind = "internal_error"
)

// EngineError wraps an underlying cause with its tier and a problem-details
// body for synchronous surfacing to a caller.
type EngineError struct {
	Kind    Kind
	Problem *problems.Problem
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}

	return string(e.Kind)
}

func (e *EngineError) Unwrap() error { return e.Cause }

func newProblem(status int, kind Kind, detail string) *problems.Problem {
	return problems.NewStatusProblem(status).WithType(string(kind)).WithDetail(detail)
}

// Validation builds a validation-tier error: malformed UMRF, unknown node
// referenced, duplicate graph name, unsupported diff operation. Surfaced
// synchronously; no engine state changes as a result.
func Validation(format string, args ...any) *EngineError {
	detail := fmt.Sprintf(format, args...)

	return &EngineError{
		Kind:    KindValidation,
		Problem: newProblem(400, KindValidation, detail),
		Cause:   errors.New(detail),
	}
}

// LoadLink builds a load/link-tier error: the loader could not produce an
// action for a node. The caller is responsible for marking the node ERROR
// and rolling back the enclosing activation batch.
func LoadLink(cause error, nodeFullName string) *EngineError {
	detail := fmt.Sprintf("loading action for node %q: %v", nodeFullName, cause)

	return &EngineError{
		Kind:    KindLoadLink,
		Problem: newProblem(502, KindLoadLink, detail),
		Cause:   cause,
	}
}

// Execution builds an execution-tier error: raised by the action body
// itself and captured by the handle.
func Execution(cause error, nodeFullName string) *EngineError {
	detail := fmt.Sprintf("action %q failed: %v", nodeFullName, cause)

	return &EngineError{
		Kind:    KindExecution,
		Problem: newProblem(500, KindExecution, detail),
		Cause:   cause,
	}
}

// StructuralUpdate builds a structural-update-tier error: size or shape
// mismatch between an existing graph and an incoming update.
func StructuralUpdate(format string, args ...any) *EngineError {
	detail := fmt.Sprintf(format, args...)

	return &EngineError{
		Kind:    KindStructuralUpdate,
		Problem: newProblem(409, KindStructuralUpdate, detail),
		Cause:   errors.New(detail),
	}
}

// Internal builds an internal-invariant-violation error. The caller
// attempts to continue other graphs rather than treating this as globally
// fatal.
func Internal(cause error) *EngineError {
	return &EngineError{
		Kind:    KindInternal,
		Problem: newProblem(500, KindInternal, cause.Error()),
		Cause:   cause,
	}
}

// Wrap prepends a frame to an existing error the way the original engine's
// TemotoErrorStack prepends a stack frame on each re-raise, without
// discarding the underlying EngineError kind for errors.As callers.
func Wrap(layer string, err error) error {
	return fmt.Errorf("%s: %w", layer, err)
}
