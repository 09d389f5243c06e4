package expr

import (
	"github.com/deft-ml/deft/internal/tensor"
)

// stubExecutor is a host-kind executor with naive kernels and a
// configurable capability table, so the protocol paths are covered
// deterministically without a real backend.
type stubExecutor struct {
	kind        Kind
	unsupported map[OpKind]bool
	allocs      int
}

func newStubExecutor() *stubExecutor {
	return &stubExecutor{kind: KindHost, unsupported: map[OpKind]bool{}}
}

func (s *stubExecutor) Kind() Kind { return s.kind }

func (s *stubExecutor) Alloc(shape tensor.Shape, dtype tensor.DataType, space MemSpace) (*tensor.RawTensor, error) {
	s.allocs++
	return tensor.NewRaw(shape, dtype, tensor.CPU)
}

func (s *stubExecutor) Kernels() Kernels { return s }

func (s *stubExecutor) Supports(op OpKind) bool { return !s.unsupported[op] }

func (s *stubExecutor) MatMul(dst Mutable, a, b Operator, alpha, beta float64) error {
	rank := a.Rank()
	m, k, n := a.Size(rank-2), a.Size(rank-1), b.Size(rank-1)
	batch := 1
	for r := 0; r < rank-2; r++ {
		batch *= a.Size(r)
	}
	batchDims := make([]int, rank-2)
	for r := range batchDims {
		batchDims[r] = a.Size(r)
	}
	for bi := 0; bi < batch; bi++ {
		idx := make([]int, rank)
		rem := bi
		for r := len(batchDims) - 1; r >= 0; r-- {
			idx[r] = rem % batchDims[r]
			rem /= batchDims[r]
		}
		ai := append([]int(nil), idx...)
		bv := append([]int(nil), idx...)
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				sum := 0.0
				for kk := 0; kk < k; kk++ {
					ai[rank-2], ai[rank-1] = i, kk
					bv[rank-2], bv[rank-1] = kk, j
					sum += a.At(ai...) * b.At(bv...)
				}
				idx[rank-2], idx[rank-1] = i, j
				out := alpha * sum
				if beta != 0 {
					out += beta * dst.At(idx...)
				}
				dst.Set(out, idx...)
			}
		}
	}
	return nil
}

func (s *stubExecutor) Covariance(dst Mutable, a Operator) error {
	m, n := a.Size(0), a.Size(1)
	means := make([]float64, n)
	for j := 0; j < n; j++ {
		for i := 0; i < m; i++ {
			means[j] += a.At(i, j)
		}
		means[j] /= float64(m)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sum := 0.0
			for kk := 0; kk < m; kk++ {
				sum += (a.At(kk, i) - means[i]) * (a.At(kk, j) - means[j])
			}
			dst.Set(sum/float64(m-1), i, j)
		}
	}
	return nil
}

func (s *stubExecutor) CumSum(dst Mutable, a Operator) error {
	rank := a.Rank()
	rows := 1
	rowDims := make([]int, rank-1)
	for r := 0; r < rank-1; r++ {
		rowDims[r] = a.Size(r)
		rows *= a.Size(r)
	}
	length := a.Size(rank - 1)
	for row := 0; row < rows; row++ {
		idx := make([]int, rank)
		rem := row
		for r := len(rowDims) - 1; r >= 0; r-- {
			idx[r] = rem % rowDims[r]
			rem /= rowDims[r]
		}
		sum := 0.0
		for i := 0; i < length; i++ {
			idx[rank-1] = i
			sum += a.At(idx...)
			dst.Set(sum, idx...)
		}
	}
	return nil
}

func (s *stubExecutor) Trace(dst Mutable, a Operator) error {
	sum := 0.0
	for i := 0; i < a.Size(0); i++ {
		sum += a.At(i, i)
	}
	dst.Set(sum)
	return nil
}

// QR stub marks both outputs so multi-output plumbing is observable; the
// numeric factorization is the host backend's concern.
func (s *stubExecutor) QR(q, r Mutable, a Operator) error {
	m, n := a.Size(0), a.Size(1)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				q.Set(1, i, j)
			} else {
				q.Set(0, i, j)
			}
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if j >= i {
				r.Set(a.At(i, j), i, j)
			} else {
				r.Set(0, i, j)
			}
		}
	}
	return nil
}

// mustTensor builds a float64 host tensor or fails the calling test via
// panic; construction failures here are test bugs.
func mustTensor(data []float64, shape tensor.Shape) *tensor.RawTensor {
	t, err := tensor.FromSlice(data, shape)
	if err != nil {
		panic(err)
	}
	return t
}

// iota64 returns [0, 1, ..., n-1] as float64s.
func iota64(n int) []float64 {
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
	}
	return data
}
