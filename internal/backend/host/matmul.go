package host

import (
	"github.com/pkg/errors"

	"github.com/deft-ml/deft/internal/expr"
	"github.com/deft-ml/deft/internal/parallel"
)

// MatMul writes dst = alpha*(a @ b) + beta*dst. Leading dimensions are
// treated as batch dimensions; the trailing two are the matrix dimensions.
// Work is parallelized over batch*rows.
func (e *Executor) MatMul(dst expr.Mutable, a, b expr.Operator, alpha, beta float64) error {
	rank := a.Rank()
	if rank < 2 || b.Rank() != rank || dst.Rank() != rank {
		return errors.Errorf("host: matmul ranks must agree and be >= 2, got dst %d, a %d, b %d", dst.Rank(), a.Rank(), b.Rank())
	}
	if !a.DType().IsFloat() {
		return errors.Errorf("host: matmul requires a floating-point dtype, got %s", a.DType())
	}
	m, k, n := a.Size(rank-2), a.Size(rank-1), b.Size(rank-1)
	if b.Size(rank-2) != k || dst.Size(rank-2) != m || dst.Size(rank-1) != n {
		return errors.Errorf("host: matmul extent mismatch: a [..,%d,%d], b [..,%d,%d], dst [..,%d,%d]",
			m, k, b.Size(rank-2), n, dst.Size(rank-2), dst.Size(rank-1))
	}

	batch := 1
	batchDims := make([]int, rank-2)
	for r := 0; r < rank-2; r++ {
		batchDims[r] = a.Size(r)
		batch *= a.Size(r)
	}

	parallel.For2(batch, m, func(bat, i int) {
		idx := make([]int, rank)
		decompose(bat, batchDims, idx)
		idx[rank-2] = i

		ai := append([]int(nil), idx...)
		bi := append([]int(nil), idx...)
		for j := 0; j < n; j++ {
			sum := 0.0
			for kk := 0; kk < k; kk++ {
				ai[rank-1] = kk
				bi[rank-2], bi[rank-1] = kk, j
				sum += a.At(ai...) * b.At(bi...)
			}
			idx[rank-1] = j
			out := alpha * sum
			if beta != 0 {
				out += beta * dst.At(idx...)
			}
			dst.Set(out, idx...)
		}
	}, e.par)
	return nil
}

// decompose expands a flat batch index into per-dimension coordinates,
// writing into the leading entries of idx.
func decompose(flat int, dims []int, idx []int) {
	for r := len(dims) - 1; r >= 0; r-- {
		idx[r] = flat % dims[r]
		flat /= dims[r]
	}
}
