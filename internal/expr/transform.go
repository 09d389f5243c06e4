package expr

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/deft-ml/deft/internal/tensor"
)

// transformNode carries the state shared by every transform operator: the
// output shape computed once at construction, and the two-phase preparation
// state machine {Unprepared -> Prepared(owned temporary)}. Preparation is
// idempotent-guarded so preparing twice never double-allocates. Nodes are
// not internally synchronized; preparing one node concurrently against the
// same executor is a caller error.
type transformNode struct {
	kind  OpKind
	shape tensor.Shape
	dtype tensor.DataType

	prepared bool
	tmp      *TensorView // owned temporary, nil until prepared
}

func newTransformNode(kind OpKind, shape tensor.Shape, dtype tensor.DataType) transformNode {
	return transformNode{kind: kind, shape: shape.Clone(), dtype: dtype}
}

// OpKind returns the node's operation.
func (n *transformNode) OpKind() OpKind {
	return n.kind
}

// Rank returns the output rank. Fixed at construction.
func (n *transformNode) Rank() int {
	return len(n.shape)
}

// Size returns the output extent of the given dimension. Rank-0 nodes
// report size 1 for any dimension.
func (n *transformNode) Size(dim int) int {
	if len(n.shape) == 0 {
		return 1
	}
	return n.shape[dim]
}

// DType returns the output element type.
func (n *transformNode) DType() tensor.DataType {
	return n.dtype
}

// Shape returns the output shape computed at construction.
func (n *transformNode) Shape() tensor.Shape {
	return n.shape
}

// Buffered returns the view over the owned temporary, or nil while the
// node is unprepared. Device executors use it to chain kernels on a
// prepared operand's live buffer instead of reading it back.
func (n *transformNode) Buffered() *TensorView {
	return n.tmp
}

// At reads an element of the owned temporary. Panics if the node has not
// been prepared: a transform has no value until it executes.
func (n *transformNode) At(index ...int) float64 {
	if !n.prepared {
		panic(fmt.Sprintf("%s: node is not prepared; evaluate the expression before reading it", n.kind))
	}
	return n.tmp.At(index...)
}

// prepare runs the deferred-preparation protocol for a single-output
// transform: prepare transform operands bottom-up, gate on kernel
// capability before any allocation, allocate the owned temporary in the
// memory space matching the executor kind, and execute into it. self is the
// concrete node whose Exec dispatches the kernel.
func (n *transformNode) prepare(ex Executor, self Transform, operands ...Operator) error {
	if n.prepared {
		return nil
	}
	if err := prepareOperands(ex, operands...); err != nil {
		return err
	}
	if !ex.Kernels().Supports(n.kind) {
		return capabilityErrorf("%s: not supported by %s executor", n.kind, ex.Kind())
	}
	space := MemHost
	if ex.Kind() == KindDevice {
		space = MemDeviceAsync
	}
	tmp, err := ex.Alloc(n.shape, n.dtype, space)
	if err != nil {
		return err
	}
	view := View(tmp)
	n.prepared = true
	n.tmp = view
	if err := self.Exec(ex, view); err != nil {
		n.prepared = false
		n.tmp = nil
		tmp.Release()
		return err
	}
	return nil
}

// checkDst validates the single-destination contract shared by every
// single-output transform: exactly one destination whose shape matches the
// node's output shape, against an executor whose kernel table supports the
// operation.
func (n *transformNode) checkDst(ex Executor, dst []Mutable) error {
	if len(dst) != 1 {
		return usageErrorf("%s: requires exactly 1 destination, got %d", n.kind, len(dst))
	}
	if !ex.Kernels().Supports(n.kind) {
		return capabilityErrorf("%s: not supported by %s executor", n.kind, ex.Kind())
	}
	if err := checkSameShape(n.kind.String(), "destination", dst[0], n.shape); err != nil {
		return err
	}
	return nil
}

// release drops the owned temporary and resets the node to Unprepared.
func (n *transformNode) release() error {
	if n.tmp != nil {
		n.tmp.Raw().Release()
		n.tmp = nil
		n.prepared = false
	}
	return nil
}

// prepareOperands runs PreRun on every operand that defers preparation.
// Preparation is idempotent, so operands already prepared are untouched.
func prepareOperands(ex Executor, operands ...Operator) error {
	for _, op := range operands {
		if p, ok := op.(preparer); ok {
			if err := p.PreRun(ex); err != nil {
				return err
			}
		}
	}
	return nil
}

// releaseOperands cascades Release through transform operands, combining
// failures.
func releaseOperands(operands ...Operator) error {
	var err error
	for _, op := range operands {
		if r, ok := op.(releaser); ok {
			err = multierr.Append(err, r.Release())
		}
	}
	return err
}

// shapeOf collects an operator's extents into a Shape.
func shapeOf(op Operator) tensor.Shape {
	shape := make(tensor.Shape, op.Rank())
	for i := range shape {
		shape[i] = op.Size(i)
	}
	return shape
}

// checkSameShape verifies that op's extents equal want.
func checkSameShape(kind, role string, op Operator, want tensor.Shape) error {
	if !shapeOf(op).Equal(want) {
		return shapeErrorf("%s: %s shape %v does not match %v", kind, role, shapeOf(op), want)
	}
	return nil
}
