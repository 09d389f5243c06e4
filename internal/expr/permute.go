package expr

import (
	"fmt"

	"github.com/deft-ml/deft/internal/tensor"
)

// PermuteView reorders the dimensions of another operator node: output
// dimension i maps to operand dimension perm[i]. Like SliceView it is pure
// index arithmetic with no storage, and it forwards both reads and writes,
// which lets a kernel write through a permuted destination to restore the
// caller's dimension order.
type PermuteView struct {
	op   Operator
	perm []int
}

// Permute builds a permute view over op. perm must be a permutation of
// [0, op.Rank()).
func Permute(op Operator, perm []int) (*PermuteView, error) {
	rank := op.Rank()
	if len(perm) != rank {
		return nil, shapeErrorf("permute: permutation length %d does not match operand rank %d", len(perm), rank)
	}
	seen := make([]bool, rank)
	for _, p := range perm {
		if p < 0 || p >= rank || seen[p] {
			return nil, shapeErrorf("permute: %v is not a permutation of [0,%d)", perm, rank)
		}
		seen[p] = true
	}
	return &PermuteView{op: op, perm: append([]int(nil), perm...)}, nil
}

// Rank returns the operand's rank.
func (p *PermuteView) Rank() int {
	return p.op.Rank()
}

// Size returns the extent of the given output dimension.
func (p *PermuteView) Size(dim int) int {
	return p.op.Size(p.perm[dim])
}

// DType returns the operand's element type.
func (p *PermuteView) DType() tensor.DataType {
	return p.op.DType()
}

// operandIndex scatters output indices back into operand dimension order.
func (p *PermuteView) operandIndex(index []int) []int {
	if len(index) != p.Rank() {
		panic(fmt.Sprintf("permute: expected %d indices, got %d", p.Rank(), len(index)))
	}
	ind := make([]int, len(index))
	for i, idx := range index {
		ind[p.perm[i]] = idx
	}
	return ind
}

// At reads the operand element addressed by the permuted index.
func (p *PermuteView) At(index ...int) float64 {
	return p.op.At(p.operandIndex(index)...)
}

// Set writes the operand element addressed by the permuted index. Panics if
// the operand does not support writes.
func (p *PermuteView) Set(value float64, index ...int) {
	m, ok := p.op.(Mutable)
	if !ok {
		panic(fmt.Sprintf("permute: operand %s is not writable", p.op))
	}
	m.Set(value, p.operandIndex(index)...)
}

// PreRun forwards deferred preparation to the operand.
func (p *PermuteView) PreRun(ex Executor) error {
	if pr, ok := p.op.(preparer); ok {
		return pr.PreRun(ex)
	}
	return nil
}

// Release cascades to the operand.
func (p *PermuteView) Release() error {
	if r, ok := p.op.(releaser); ok {
		return r.Release()
	}
	return nil
}

// String returns a diagnostic description.
func (p *PermuteView) String() string {
	return fmt.Sprintf("permute(%s, %v)", p.op, p.perm)
}
