package expr

import (
	"fmt"

	"github.com/deft-ml/deft/internal/tensor"
)

// QRNode is the multi-output QR transform. It produces no single readable
// value: element access always fails, and deferred preparation always
// fails, because the node may only be the sole right-hand side of a
// multi-output assignment with exactly two destinations:
//
//	expr.Tie(q, r).Assign(expr.QR(a), ex)
//
// For an m-by-n operand the destinations are Q (m-by-n, orthonormal
// columns) and R (n-by-n, upper triangular).
type QRNode struct {
	a Operator
}

// QR builds a QR node over an m-by-n rank-2 operand with m >= n.
func QR(a Operator) (*QRNode, error) {
	if a.Rank() != 2 {
		return nil, shapeErrorf("qr: operand must have rank 2, got %d", a.Rank())
	}
	if a.Size(0) < a.Size(1) {
		return nil, shapeErrorf("qr: operand must have at least as many rows as columns, got [%d,%d]", a.Size(0), a.Size(1))
	}
	if !a.DType().IsFloat() {
		return nil, shapeErrorf("qr: operand must be floating point, got %s", a.DType())
	}
	return &QRNode{a: a}, nil
}

// OpKind returns OpQR.
func (n *QRNode) OpKind() OpKind {
	return OpQR
}

// Rank returns the operand rank. The extents reported by a QR node describe
// the operand, not a single output; there is no single output to describe.
func (n *QRNode) Rank() int {
	return n.a.Rank()
}

// Size returns the operand extent of the given dimension.
func (n *QRNode) Size(dim int) int {
	return n.a.Size(dim)
}

// DType returns the operand's element type.
func (n *QRNode) DType() tensor.DataType {
	return n.a.DType()
}

// At always panics: a QR node has no independently readable value.
func (n *QRNode) At(index ...int) float64 {
	panic("qr: node has no readable value; assign it to a {Q, R} destination pair with Tie(q, r).Assign(...)")
}

// Exec runs the QR kernel once. The destination must be exactly the {Q, R}
// pair: Q m-by-n, R n-by-n for an m-by-n operand.
func (n *QRNode) Exec(ex Executor, dst ...Mutable) error {
	if len(dst) != 2 {
		return usageErrorf("qr: requires exactly 2 destinations {Q, R}, got %d; use Tie(q, r).Assign(...)", len(dst))
	}
	if !ex.Kernels().Supports(OpQR) {
		return capabilityErrorf("qr: not supported by %s executor", ex.Kind())
	}
	m, cols := n.a.Size(0), n.a.Size(1)
	if err := checkSameShape("qr", "Q destination", dst[0], tensor.Shape{m, cols}); err != nil {
		return err
	}
	if err := checkSameShape("qr", "R destination", dst[1], tensor.Shape{cols, cols}); err != nil {
		return err
	}
	if err := prepareOperands(ex, n.a); err != nil {
		return err
	}
	return ex.Kernels().QR(dst[0], dst[1], n.a)
}

// PreRun always fails: reaching the deferred-preparation path means the
// node was nested inside a larger expression, which its multi-output
// contract forbids.
func (n *QRNode) PreRun(ex Executor) error {
	return usageErrorf("qr: must be the sole right-hand side of a multi-output assignment; use Tie(q, r).Assign(...) instead of nesting it in an expression")
}

// Release cascades to the operand. A QR node owns no temporary.
func (n *QRNode) Release() error {
	return releaseOperands(n.a)
}

// String returns a diagnostic description.
func (n *QRNode) String() string {
	return fmt.Sprintf("qr(%s)", n.a)
}
