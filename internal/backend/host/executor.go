// Package host implements the synchronous host executor: pure-Go kernels
// that read operands and write destinations through the expression layer's
// view contract, so sliced and permuted operands compose without copies.
// All five operations are supported, making the full deferred-execution
// protocol usable without any device.
package host

import (
	"github.com/pkg/errors"

	"github.com/deft-ml/deft/internal/expr"
	"github.com/deft-ml/deft/internal/parallel"
	"github.com/deft-ml/deft/internal/tensor"
)

// Executor is the host-synchronous execution context. It owns its kernel
// table: kernel methods are defined on the executor itself, so the
// "execution-context handle" a kernel needs is its receiver.
type Executor struct {
	par parallel.Config
}

// New creates a host executor with default parallelism.
func New() *Executor {
	return &Executor{par: parallel.DefaultConfig()}
}

// NewSequential creates a host executor that runs kernels on the calling
// goroutine only. Useful for deterministic profiling and tests.
func NewSequential() *Executor {
	cfg := parallel.DefaultConfig()
	cfg.Enabled = false
	return &Executor{par: cfg}
}

// Kind reports the host-synchronous context kind.
func (e *Executor) Kind() expr.Kind {
	return expr.KindHost
}

// Alloc allocates a zero-initialized host tensor. The host executor cannot
// allocate device-asynchronous memory.
func (e *Executor) Alloc(shape tensor.Shape, dtype tensor.DataType, space expr.MemSpace) (*tensor.RawTensor, error) {
	if space != expr.MemHost {
		return nil, errors.Errorf("host: cannot allocate %s memory", space)
	}
	return tensor.NewRaw(shape, dtype, tensor.CPU)
}

// Kernels returns the executor's kernel table.
func (e *Executor) Kernels() expr.Kernels {
	return e
}

// Supports reports kernel availability. The host executor implements every
// operation.
func (e *Executor) Supports(op expr.OpKind) bool {
	switch op {
	case expr.OpMatMul, expr.OpCovariance, expr.OpCumSum, expr.OpTrace, expr.OpQR:
		return true
	default:
		return false
	}
}
