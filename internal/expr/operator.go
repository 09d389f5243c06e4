// Package expr implements the deft expression layer: composable operator
// nodes that describe a tensor computation without performing it. Leaf views
// wrap storage, slice and permute views remap indices, and transform nodes
// carry a deferred prepare-then-execute contract that dispatches to a
// backend's numeric kernels when the expression is attached to a destination.
package expr

import (
	"github.com/deft-ml/deft/internal/tensor"
)

// Operator is the capability contract every expression node satisfies:
// report rank and per-dimension extents, read an element by multi-index,
// and produce a diagnostic description. Descriptions compose the operand
// descriptions and are never used for identity or caching.
type Operator interface {
	// Rank returns the number of dimensions. Fixed at construction.
	Rank() int

	// Size returns the extent of the given dimension. Rank-0 nodes report
	// size 1 for any dimension. Panics for an out-of-range dimension on
	// ranked nodes.
	Size(dim int) int

	// DType returns the element type of the node's values.
	DType() tensor.DataType

	// At reads the element at the given multi-index (exactly Rank()
	// indices) as a float64. Panics on arity or bounds violations, and
	// for transform nodes that have not been prepared.
	At(index ...int) float64

	// String returns a diagnostic description of the node.
	String() string
}

// Mutable is an Operator that additionally supports multi-index writes.
// Destinations of kernel execution must be Mutable.
type Mutable interface {
	Operator

	// Set stores a value at the given multi-index, converting to the
	// node's element type. Panics on arity or bounds violations.
	Set(v float64, index ...int)
}

// Transform is an operator node whose value requires invoking an external
// numeric kernel to materialize. A transform computes its output shape
// eagerly at construction and performs no allocation or numeric work until
// executed.
type Transform interface {
	Operator

	// OpKind identifies the numeric operation the node performs.
	OpKind() OpKind

	// Exec runs the node's kernel once, writing the given destination(s).
	// Single-output transforms require exactly one destination;
	// multi-output transforms require their fixed arity. Exec performs no
	// allocation. On a device executor the work is enqueued and Exec
	// returns without waiting.
	Exec(ex Executor, dst ...Mutable) error

	// PreRun prepares the node for use as a sub-expression: operands that
	// are themselves transforms are prepared first (bottom-up), then the
	// node allocates its owned temporary through the executor and executes
	// into it. Preparing an already-prepared node is a no-op. After PreRun
	// the node's element access reads the temporary.
	PreRun(ex Executor) error

	// Release frees the node's owned temporary, if any, and cascades to
	// transform operands.
	Release() error
}

// OpKind identifies a transform node's numeric operation.
type OpKind int

// Supported transform operations.
const (
	OpMatMul OpKind = iota
	OpCovariance
	OpCumSum
	OpTrace
	OpQR
)

// String returns the operation name.
func (k OpKind) String() string {
	switch k {
	case OpMatMul:
		return "matmul"
	case OpCovariance:
		return "cov"
	case OpCumSum:
		return "cumsum"
	case OpTrace:
		return "trace"
	case OpQR:
		return "qr"
	default:
		return "unknown"
	}
}

// Kind discriminates execution-context flavors.
type Kind int

// Execution-context kinds.
const (
	// KindHost is a synchronous executor: kernels complete before
	// returning.
	KindHost Kind = iota
	// KindDevice is an asynchronous executor: kernels are enqueued on a
	// device queue and Exec returns without waiting.
	KindDevice
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindHost:
		return "host"
	case KindDevice:
		return "device"
	default:
		return "unknown"
	}
}

// MemSpace is the memory-kind token passed to an executor's allocation
// facility when a transform materializes its owned temporary.
type MemSpace int

// Memory spaces for temporary allocation.
const (
	// MemHost allocates host-resident memory.
	MemHost MemSpace = iota
	// MemDeviceAsync allocates device-resident memory on the executor's
	// queue; host bytes are filled lazily on first host read.
	MemDeviceAsync
)

// String returns the memory-space name.
func (s MemSpace) String() string {
	switch s {
	case MemHost:
		return "host"
	case MemDeviceAsync:
		return "device-async"
	default:
		return "unknown"
	}
}

// Executor is the execution-context collaborator: it says where kernels run,
// allocates temporaries, and owns the kernel implementations.
type Executor interface {
	// Kind reports whether the executor is host-synchronous or
	// device-asynchronous.
	Kind() Kind

	// Alloc allocates a zero-initialized tensor for use as a transform's
	// owned temporary.
	Alloc(shape tensor.Shape, dtype tensor.DataType, space MemSpace) (*tensor.RawTensor, error)

	// Kernels returns the executor's kernel table.
	Kernels() Kernels
}

// Kernels is the numeric-kernel collaborator: one entry point per operation,
// each a pure function of destination view(s), operand view(s), and scalar
// parameters. Implementations are owned by their executor; any queue or
// stream handle a kernel needs is carried by its receiver.
type Kernels interface {
	// Supports reports whether the kernel table implements the operation.
	// Transforms check this before allocating or dispatching so an
	// unsupported operation fails without side effects.
	Supports(op OpKind) bool

	// MatMul writes dst = alpha*(a @ b) + beta*dst over leading batch
	// dimensions.
	MatMul(dst Mutable, a, b Operator, alpha, beta float64) error

	// Covariance writes the sample covariance of the columns of a.
	Covariance(dst Mutable, a Operator) error

	// CumSum writes the inclusive prefix sum of a along its last
	// dimension.
	CumSum(dst Mutable, a Operator) error

	// Trace writes the sum of a's main diagonal into a rank-0 destination.
	Trace(dst Mutable, a Operator) error

	// QR writes the thin QR factorization of a: q is m-by-n with
	// orthonormal columns, r is n-by-n upper triangular.
	QR(q, r Mutable, a Operator) error
}

// preparer is satisfied by nodes that participate in the bottom-up deferred
// preparation walk. Views forward preparation to their operand so a
// transform nested under a slice or permute still resolves.
type preparer interface {
	PreRun(ex Executor) error
}

// releaser is satisfied by nodes that own resources to cascade on Release.
type releaser interface {
	Release() error
}
