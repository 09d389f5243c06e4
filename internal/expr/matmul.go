package expr

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/deft-ml/deft/internal/tensor"
)

// MatMulNode is the matrix-multiply transform: dst = alpha*(a @ b) +
// beta*dst over leading batch dimensions. With an axis pair the operands
// are logically permuted to move the pair to the trailing positions, the
// plain rule is applied, and the destination is written through a permuted
// view restoring the original dimension order.
type MatMulNode struct {
	transformNode
	a, b        Operator
	alpha, beta float64
	perm        []int // nil for the no-permutation rule
}

// MatMul builds a matrix-multiply node. Both operands must have the same
// rank (at least 2); the inner extents must agree and the leading batch
// extents must match. The output takes the batch dimensions and
// second-to-last dimension from a and the last dimension from b. No buffer
// is allocated and no numeric work happens until the node is executed.
func MatMul(a, b Operator, alpha, beta float64) (*MatMulNode, error) {
	shape, err := matmulShape(a, b)
	if err != nil {
		return nil, err
	}
	if a.DType() != b.DType() {
		return nil, shapeErrorf("matmul: operand dtypes %s and %s differ", a.DType(), b.DType())
	}
	return &MatMulNode{
		transformNode: newTransformNode(OpMatMul, shape, a.DType()),
		a:             a,
		b:             b,
		alpha:         alpha,
		beta:          beta,
	}, nil
}

// MatMulAxes builds a matrix-multiply node contracting over an explicit
// axis pair instead of the trailing two dimensions. Both operands are
// viewed through the permutation that moves axes to the trailing positions;
// the node's exposed extents are the permuted-then-restored rule, not the
// naive trailing-pair rule.
func MatMulAxes(a, b Operator, alpha, beta float64, axes [2]int) (*MatMulNode, error) {
	if a.Rank() != b.Rank() {
		return nil, shapeErrorf("matmul: operands must have the same rank to use an axis pair, got %d and %d", a.Rank(), b.Rank())
	}
	perm, err := trailingPerm(a.Rank(), axes)
	if err != nil {
		return nil, err
	}
	pa, err := Permute(a, perm)
	if err != nil {
		return nil, err
	}
	pb, err := Permute(b, perm)
	if err != nil {
		return nil, err
	}
	permShape, err := matmulShape(pa, pb)
	if err != nil {
		return nil, err
	}
	if a.DType() != b.DType() {
		return nil, shapeErrorf("matmul: operand dtypes %s and %s differ", a.DType(), b.DType())
	}
	// Restore original dimension order: exposed[perm[i]] = permShape[i].
	shape := make(tensor.Shape, len(permShape))
	for i, p := range perm {
		shape[p] = permShape[i]
	}
	return &MatMulNode{
		transformNode: newTransformNode(OpMatMul, shape, a.DType()),
		a:             pa,
		b:             pb,
		alpha:         alpha,
		beta:          beta,
		perm:          perm,
	}, nil
}

// matmulShape applies the no-permutation output rule: batch dimensions from
// a, second-to-last from a, last from b.
func matmulShape(a, b Operator) (tensor.Shape, error) {
	ra, rb := a.Rank(), b.Rank()
	if ra < 2 || rb < 2 {
		return nil, shapeErrorf("matmul: operands must have rank >= 2, got %d and %d", ra, rb)
	}
	if ra != rb {
		return nil, shapeErrorf("matmul: operand ranks %d and %d differ", ra, rb)
	}
	if a.Size(ra-1) != b.Size(rb-2) {
		return nil, shapeErrorf("matmul: inner extents do not agree: a has %d columns, b has %d rows", a.Size(ra-1), b.Size(rb-2))
	}
	shape := make(tensor.Shape, ra)
	for r := 0; r < ra-2; r++ {
		if a.Size(r) != b.Size(r) {
			return nil, shapeErrorf("matmul: batch extent mismatch at dimension %d: %d vs %d", r, a.Size(r), b.Size(r))
		}
		shape[r] = a.Size(r)
	}
	shape[ra-2] = a.Size(ra - 2)
	shape[ra-1] = b.Size(rb - 1)
	return shape, nil
}

// trailingPerm builds the permutation that moves the axis pair to the last
// two positions, keeping all other dimensions in order.
func trailingPerm(rank int, axes [2]int) ([]int, error) {
	if axes[0] == axes[1] {
		return nil, shapeErrorf("matmul: axis pair %v names the same dimension twice", axes)
	}
	for _, ax := range axes {
		if ax < 0 || ax >= rank {
			return nil, shapeErrorf("matmul: axis %d out of range for rank %d", ax, rank)
		}
	}
	perm := make([]int, 0, rank)
	for r := 0; r < rank; r++ {
		if r != axes[0] && r != axes[1] {
			perm = append(perm, r)
		}
	}
	return append(perm, axes[0], axes[1]), nil
}

// Exec runs the matmul kernel once into the single destination. When the
// node carries an axis permutation the kernel writes through a permuted
// destination view so the caller sees original dimension order.
func (n *MatMulNode) Exec(ex Executor, dst ...Mutable) error {
	if err := n.checkDst(ex, dst); err != nil {
		return err
	}
	if err := prepareOperands(ex, n.a, n.b); err != nil {
		return err
	}
	out := dst[0]
	if n.perm != nil {
		pd, err := Permute(out, n.perm)
		if err != nil {
			return err
		}
		out = pd
	}
	return ex.Kernels().MatMul(out, n.a, n.b, n.alpha, n.beta)
}

// PreRun prepares operands bottom-up, then materializes this node's owned
// temporary and executes into it.
func (n *MatMulNode) PreRun(ex Executor) error {
	return n.prepare(ex, n, n.a, n.b)
}

// Release frees the owned temporary and cascades to the operands.
func (n *MatMulNode) Release() error {
	return multierr.Append(releaseOperands(n.a, n.b), n.release())
}

// String returns a diagnostic description.
func (n *MatMulNode) String() string {
	return fmt.Sprintf("matmul(%s, %s)", n.a, n.b)
}
