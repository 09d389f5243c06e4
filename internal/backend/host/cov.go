package host

import (
	"github.com/pkg/errors"

	"github.com/deft-ml/deft/internal/expr"
	"github.com/deft-ml/deft/internal/parallel"
)

// Covariance writes the sample covariance of the columns of a:
// dst[i,j] = sum_k (a[k,i]-mean_i)*(a[k,j]-mean_j) / (m-1) for an m-by-n
// operand. The destination must be n-by-n.
func (e *Executor) Covariance(dst expr.Mutable, a expr.Operator) error {
	if a.Rank() != 2 || dst.Rank() != 2 {
		return errors.Errorf("host: cov requires rank-2 operand and destination, got %d and %d", a.Rank(), dst.Rank())
	}
	m, n := a.Size(0), a.Size(1)
	if m < 2 {
		return errors.Errorf("host: cov requires at least 2 observations, got %d", m)
	}
	if dst.Size(0) != n || dst.Size(1) != n {
		return errors.Errorf("host: cov destination must be [%d,%d], got [%d,%d]", n, n, dst.Size(0), dst.Size(1))
	}

	means := make([]float64, n)
	for j := 0; j < n; j++ {
		sum := 0.0
		for i := 0; i < m; i++ {
			sum += a.At(i, j)
		}
		means[j] = sum / float64(m)
	}

	parallel.For(n, func(i int) {
		for j := i; j < n; j++ {
			sum := 0.0
			for k := 0; k < m; k++ {
				sum += (a.At(k, i) - means[i]) * (a.At(k, j) - means[j])
			}
			c := sum / float64(m-1)
			dst.Set(c, i, j)
			if i != j {
				dst.Set(c, j, i)
			}
		}
	}, e.par)
	return nil
}
