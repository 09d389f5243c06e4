// Copyright 2025 The Deft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package expr

import (
	"github.com/deft-ml/deft/internal/expr"
	"github.com/deft-ml/deft/internal/tensor"
)

// Operator is a readable node of an expression tree.
type Operator = expr.Operator

// Mutable is an Operator that also accepts element writes.
type Mutable = expr.Mutable

// Transform is an Operator whose value must be computed by a kernel.
type Transform = expr.Transform

// Executor is an execution context: an allocator plus a kernel table.
type Executor = expr.Executor

// Kernels is the per-executor kernel table.
type Kernels = expr.Kernels

// Kind distinguishes host-synchronous from device-asynchronous executors.
type Kind = expr.Kind

// Executor kinds.
const (
	KindHost   Kind = expr.KindHost
	KindDevice Kind = expr.KindDevice
)

// MemSpace is the memory space of an allocation request.
type MemSpace = expr.MemSpace

// Memory spaces.
const (
	MemHost        MemSpace = expr.MemHost
	MemDeviceAsync MemSpace = expr.MemDeviceAsync
)

// OpKind identifies a transform operation for capability queries and plan
// keys.
type OpKind = expr.OpKind

// Transform operations.
const (
	OpMatMul     OpKind = expr.OpMatMul
	OpCovariance OpKind = expr.OpCovariance
	OpCumSum     OpKind = expr.OpCumSum
	OpTrace      OpKind = expr.OpTrace
	OpQR         OpKind = expr.OpQR
)

// Sentinel end markers for Slice.
const (
	// End extends a sliced dimension to the end of the operand dimension.
	End = expr.End
	// Drop removes the dimension from the slice's output entirely.
	Drop = expr.Drop
)

// TensorView is the leaf node wrapping a *tensor.RawTensor.
type TensorView = expr.TensorView

// SliceView narrows, strides, and drops dimensions without copying.
type SliceView = expr.SliceView

// PermuteView reorders dimensions without copying.
type PermuteView = expr.PermuteView

// MatMulNode is the matrix-multiply transform.
type MatMulNode = expr.MatMulNode

// CovNode is the covariance transform.
type CovNode = expr.CovNode

// CumSumNode is the cumulative-sum transform.
type CumSumNode = expr.CumSumNode

// TraceNode is the trace transform.
type TraceNode = expr.TraceNode

// QRNode is the multi-output QR transform.
type QRNode = expr.QRNode

// TieDest is a fixed-arity tuple of destinations for a multi-output
// assignment.
type TieDest = expr.TieDest

// ShapeError reports operands whose extents cannot satisfy an operation.
type ShapeError = expr.ShapeError

// CapabilityError reports an operation the executor has no kernel for.
type CapabilityError = expr.CapabilityError

// UsageError reports an operator used outside its protocol.
type UsageError = expr.UsageError

// View wraps a tensor as a leaf node. Reads and writes pass through.
func View(t *tensor.RawTensor) *TensorView {
	return expr.View(t)
}

// Slice builds a slice view over op. starts, ends, and strides each carry
// one entry per operand dimension; an end may be an exclusive bound, End,
// or Drop. The extent of a retained dimension is
// ceil((end-start)/stride).
//
//	s, _ := expr.Slice(op, []int{1, 0}, []int{expr.End, expr.Drop}, []int{2, 1})
func Slice(op Operator, starts, ends, strides []int) (*SliceView, error) {
	return expr.Slice(op, starts, ends, strides)
}

// SliceAll is Slice with a stride of 1 in every dimension.
func SliceAll(op Operator, starts, ends []int) (*SliceView, error) {
	return expr.SliceAll(op, starts, ends)
}

// Permute builds a view with dimensions reordered by perm, which must be
// a permutation of [0, rank).
func Permute(op Operator, perm []int) (*PermuteView, error) {
	return expr.Permute(op, perm)
}

// MatMul builds the matrix-multiply transform
// dst = alpha*(a @ b) + beta*dst over leading batch dimensions.
func MatMul(a, b Operator, alpha, beta float64) (*MatMulNode, error) {
	return expr.MatMul(a, b, alpha, beta)
}

// MatMulAxes builds a matrix-multiply transform contracting over an
// explicit axis pair instead of the trailing two dimensions.
func MatMulAxes(a, b Operator, alpha, beta float64, axes [2]int) (*MatMulNode, error) {
	return expr.MatMulAxes(a, b, alpha, beta, axes)
}

// Covariance builds the column-covariance transform over a square rank-2
// operand.
func Covariance(a Operator) (*CovNode, error) {
	return expr.Covariance(a)
}

// CumSum builds the inclusive prefix-sum transform along the operand's
// last dimension.
func CumSum(a Operator) (*CumSumNode, error) {
	return expr.CumSum(a)
}

// Trace builds the transform summing a square matrix's main diagonal into
// a rank-0 output.
func Trace(a Operator) (*TraceNode, error) {
	return expr.Trace(a)
}

// QR builds the multi-output QR transform over an m-by-n operand with
// m >= n. Evaluate it with Tie(q, r).Assign.
func QR(a Operator) (*QRNode, error) {
	return expr.QR(a)
}

// Assign evaluates src into dst on the given executor.
func Assign(dst Mutable, src Operator, ex Executor) error {
	return expr.Assign(dst, src, ex)
}

// Tie bundles destinations for a multi-output assignment.
func Tie(dsts ...Mutable) TieDest {
	return expr.Tie(dsts...)
}

// Eval materializes any operator into a freshly allocated tensor in the
// executor's memory space. The caller owns the result.
func Eval(src Operator, ex Executor) (*tensor.RawTensor, error) {
	return expr.Eval(src, ex)
}

// IsShapeError reports whether err wraps a ShapeError.
func IsShapeError(err error) bool { return expr.IsShapeError(err) }

// IsCapabilityError reports whether err wraps a CapabilityError.
func IsCapabilityError(err error) bool { return expr.IsCapabilityError(err) }

// IsUsageError reports whether err wraps a UsageError.
func IsUsageError(err error) bool { return expr.IsUsageError(err) }
