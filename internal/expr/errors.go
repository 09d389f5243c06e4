package expr

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// The expression layer's failure taxonomy. All failures are non-recoverable
// at this level: no retries, no fallback kernels, no silent truncation. Every
// error carries a stack via pkg/errors and a typed cause matchable with
// errors.As.

// ShapeError is a construction-time shape-invariant violation: mismatched
// extents, a slice whose retained dimensions disagree with its declared
// rank, or a destination whose shape disagrees with a node's output shape.
type ShapeError struct {
	msg string
}

func (e *ShapeError) Error() string { return e.msg }

// CapabilityError reports an operation invoked against an executor whose
// kernel table does not implement it, or a read of a node that produces no
// readable value.
type CapabilityError struct {
	msg string
}

func (e *CapabilityError) Error() string { return e.msg }

// UsageError reports a violation of an operator's usage discipline, such as
// nesting a multi-output transform inside a larger expression or assigning
// it to a destination tuple of the wrong arity. The message names the
// required usage pattern.
type UsageError struct {
	msg string
}

func (e *UsageError) Error() string { return e.msg }

func shapeErrorf(format string, args ...any) error {
	return errors.WithStack(&ShapeError{msg: fmt.Sprintf(format, args...)})
}

func capabilityErrorf(format string, args ...any) error {
	return errors.WithStack(&CapabilityError{msg: fmt.Sprintf(format, args...)})
}

func usageErrorf(format string, args ...any) error {
	return errors.WithStack(&UsageError{msg: fmt.Sprintf(format, args...)})
}

// Capabilityf builds a CapabilityError. Exported for kernel tables that
// report unimplemented operations.
func Capabilityf(format string, args ...any) error {
	return capabilityErrorf(format, args...)
}

// IsShapeError reports whether err's chain contains a ShapeError.
func IsShapeError(err error) bool {
	var e *ShapeError
	return stderrors.As(err, &e)
}

// IsCapabilityError reports whether err's chain contains a CapabilityError.
func IsCapabilityError(err error) bool {
	var e *CapabilityError
	return stderrors.As(err, &e)
}

// IsUsageError reports whether err's chain contains a UsageError.
func IsUsageError(err error) bool {
	var e *UsageError
	return stderrors.As(err, &e)
}
