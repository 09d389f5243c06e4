package expr

import (
	"fmt"

	"go.uber.org/multierr"
)

// CumSumNode is the cumulative-sum transform: the inclusive prefix sum of
// the operand along its last dimension, so [1, 2, 3, 4] produces
// [1, 3, 6, 10]. The inclusive convention is the contract; see the kernel
// tests. Output extents match the input.
type CumSumNode struct {
	transformNode
	a Operator
}

// CumSum builds a cumulative-sum node. The operand rank must be at least 1.
func CumSum(a Operator) (*CumSumNode, error) {
	if a.Rank() < 1 {
		return nil, shapeErrorf("cumsum: operand must have rank >= 1, got %d", a.Rank())
	}
	return &CumSumNode{
		transformNode: newTransformNode(OpCumSum, shapeOf(a), a.DType()),
		a:             a,
	}, nil
}

// Exec runs the cumsum kernel once into the single destination.
func (n *CumSumNode) Exec(ex Executor, dst ...Mutable) error {
	if err := n.checkDst(ex, dst); err != nil {
		return err
	}
	if err := prepareOperands(ex, n.a); err != nil {
		return err
	}
	return ex.Kernels().CumSum(dst[0], n.a)
}

// PreRun prepares the operand, then materializes this node's owned
// temporary and executes into it.
func (n *CumSumNode) PreRun(ex Executor) error {
	return n.prepare(ex, n, n.a)
}

// Release frees the owned temporary and cascades to the operand.
func (n *CumSumNode) Release() error {
	return multierr.Append(releaseOperands(n.a), n.release())
}

// String returns a diagnostic description.
func (n *CumSumNode) String() string {
	return fmt.Sprintf("cumsum(%s)", n.a)
}
