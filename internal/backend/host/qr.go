package host

import (
	"math"

	"github.com/pkg/errors"

	"github.com/deft-ml/deft/internal/expr"
)

// QR writes the thin QR factorization of an m-by-n operand (m >= n) using
// Householder reflections: q gets m-by-n with orthonormal columns, r gets
// n-by-n upper triangular, and q @ r reconstructs the operand.
func (e *Executor) QR(q, r expr.Mutable, a expr.Operator) error {
	if a.Rank() != 2 {
		return errors.Errorf("host: qr requires a rank-2 operand, got rank %d", a.Rank())
	}
	m, n := a.Size(0), a.Size(1)
	if m < n {
		return errors.Errorf("host: qr requires rows >= columns, got [%d,%d]", m, n)
	}
	if q.Rank() != 2 || q.Size(0) != m || q.Size(1) != n {
		return errors.Errorf("host: qr Q destination must be [%d,%d]", m, n)
	}
	if r.Rank() != 2 || r.Size(0) != n || r.Size(1) != n {
		return errors.Errorf("host: qr R destination must be [%d,%d]", n, n)
	}

	// Working copy of the operand, reduced in place to R.
	work := make([]float64, m*n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			work[i*n+j] = a.At(i, j)
		}
	}

	// Householder vectors and their 2/(v.v) coefficients, one per column.
	vs := make([][]float64, n)
	betas := make([]float64, n)

	for k := 0; k < n; k++ {
		v := make([]float64, m-k)
		normx := 0.0
		for i := range v {
			v[i] = work[(k+i)*n+k]
			normx += v[i] * v[i]
		}
		normx = math.Sqrt(normx)

		// v = x + sign(x0)*||x||*e1 avoids cancellation.
		if v[0] >= 0 {
			v[0] += normx
		} else {
			v[0] -= normx
		}
		vv := 0.0
		for _, vi := range v {
			vv += vi * vi
		}
		beta := 0.0
		if vv > 0 {
			beta = 2 / vv
		}
		vs[k] = v
		betas[k] = beta

		// Apply the reflector to the trailing columns.
		for j := k; j < n; j++ {
			s := 0.0
			for i := range v {
				s += v[i] * work[(k+i)*n+j]
			}
			s *= beta
			for i := range v {
				work[(k+i)*n+j] -= s * v[i]
			}
		}
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if j >= i {
				r.Set(work[i*n+j], i, j)
			} else {
				r.Set(0, i, j)
			}
		}
	}

	// Accumulate Q = H_0 ... H_{n-1} applied to the leading identity
	// columns, reflectors applied in reverse order.
	qw := make([]float64, m*n)
	for j := 0; j < n; j++ {
		qw[j*n+j] = 1
	}
	for k := n - 1; k >= 0; k-- {
		v, beta := vs[k], betas[k]
		for j := 0; j < n; j++ {
			s := 0.0
			for i := range v {
				s += v[i] * qw[(k+i)*n+j]
			}
			s *= beta
			for i := range v {
				qw[(k+i)*n+j] -= s * v[i]
			}
		}
	}
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			q.Set(qw[i*n+j], i, j)
		}
	}
	return nil
}
