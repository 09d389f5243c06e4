package expr

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/deft-ml/deft/internal/tensor"
)

// TraceNode is the trace transform: the sum of a square matrix's main
// diagonal into a rank-0 (scalar) output.
type TraceNode struct {
	transformNode
	a Operator
}

// Trace builds a trace node over a square rank-2 operand.
func Trace(a Operator) (*TraceNode, error) {
	if a.Rank() != 2 {
		return nil, shapeErrorf("trace: operand must have rank 2, got %d", a.Rank())
	}
	if a.Size(0) != a.Size(1) {
		return nil, shapeErrorf("trace: operand must be square, got [%d,%d]", a.Size(0), a.Size(1))
	}
	return &TraceNode{
		transformNode: newTransformNode(OpTrace, tensor.Shape{}, a.DType()),
		a:             a,
	}, nil
}

// Exec runs the trace kernel once into the single rank-0 destination.
func (n *TraceNode) Exec(ex Executor, dst ...Mutable) error {
	if err := n.checkDst(ex, dst); err != nil {
		return err
	}
	if err := prepareOperands(ex, n.a); err != nil {
		return err
	}
	return ex.Kernels().Trace(dst[0], n.a)
}

// PreRun prepares the operand, then materializes this node's owned rank-0
// temporary and executes into it.
func (n *TraceNode) PreRun(ex Executor) error {
	return n.prepare(ex, n, n.a)
}

// Release frees the owned temporary and cascades to the operand.
func (n *TraceNode) Release() error {
	return multierr.Append(releaseOperands(n.a), n.release())
}

// String returns a diagnostic description.
func (n *TraceNode) String() string {
	return fmt.Sprintf("trace(%s)", n.a)
}
