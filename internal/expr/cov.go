package expr

import (
	"fmt"

	"go.uber.org/multierr"
)

// CovNode is the covariance transform: the sample covariance of the columns
// of a rank-2 operand. The output extents are the identity rule (they match
// the input), so the operand must be square for the extents to agree with
// the n-by-n covariance the kernel writes.
type CovNode struct {
	transformNode
	a Operator
}

// Covariance builds a covariance node over a square rank-2 operand.
func Covariance(a Operator) (*CovNode, error) {
	if a.Rank() != 2 {
		return nil, shapeErrorf("cov: operand must have rank 2, got %d", a.Rank())
	}
	if a.Size(0) != a.Size(1) {
		return nil, shapeErrorf("cov: operand must be square so the identity output extents match the covariance matrix, got [%d,%d]", a.Size(0), a.Size(1))
	}
	if !a.DType().IsFloat() {
		return nil, shapeErrorf("cov: operand must be floating point, got %s", a.DType())
	}
	return &CovNode{
		transformNode: newTransformNode(OpCovariance, shapeOf(a), a.DType()),
		a:             a,
	}, nil
}

// Exec runs the covariance kernel once into the single destination.
func (n *CovNode) Exec(ex Executor, dst ...Mutable) error {
	if err := n.checkDst(ex, dst); err != nil {
		return err
	}
	if err := prepareOperands(ex, n.a); err != nil {
		return err
	}
	return ex.Kernels().Covariance(dst[0], n.a)
}

// PreRun prepares the operand, then materializes this node's owned
// temporary and executes into it.
func (n *CovNode) PreRun(ex Executor) error {
	return n.prepare(ex, n, n.a)
}

// Release frees the owned temporary and cascades to the operand.
func (n *CovNode) Release() error {
	return multierr.Append(releaseOperands(n.a), n.release())
}

// String returns a diagnostic description.
func (n *CovNode) String() string {
	return fmt.Sprintf("cov(%s)", n.a)
}
