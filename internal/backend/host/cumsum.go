package host

import (
	"github.com/pkg/errors"

	"github.com/deft-ml/deft/internal/expr"
	"github.com/deft-ml/deft/internal/parallel"
)

// CumSum writes the inclusive prefix sum of a along its last dimension:
// an input row [1, 2, 3, 4] produces [1, 3, 6, 10]. The inclusive
// convention is the contract.
func (e *Executor) CumSum(dst expr.Mutable, a expr.Operator) error {
	rank := a.Rank()
	if rank < 1 || dst.Rank() != rank {
		return errors.Errorf("host: cumsum requires matching ranks >= 1, got operand %d, destination %d", a.Rank(), dst.Rank())
	}
	rows := 1
	rowDims := make([]int, rank-1)
	for r := 0; r < rank-1; r++ {
		if dst.Size(r) != a.Size(r) {
			return errors.Errorf("host: cumsum extent mismatch at dimension %d: %d vs %d", r, a.Size(r), dst.Size(r))
		}
		rowDims[r] = a.Size(r)
		rows *= a.Size(r)
	}
	length := a.Size(rank - 1)
	if dst.Size(rank-1) != length {
		return errors.Errorf("host: cumsum extent mismatch at last dimension: %d vs %d", length, dst.Size(rank-1))
	}

	parallel.For(rows, func(row int) {
		idx := make([]int, rank)
		decompose(row, rowDims, idx)
		sum := 0.0
		for i := 0; i < length; i++ {
			idx[rank-1] = i
			sum += a.At(idx...)
			dst.Set(sum, idx...)
		}
	}, e.par)
	return nil
}
