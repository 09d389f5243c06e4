package host

import (
	"github.com/pkg/errors"

	"github.com/deft-ml/deft/internal/expr"
)

// Trace sums the main diagonal of a square matrix into a rank-0
// destination.
func (e *Executor) Trace(dst expr.Mutable, a expr.Operator) error {
	if a.Rank() != 2 {
		return errors.Errorf("host: trace requires a rank-2 operand, got %d", a.Rank())
	}
	n := a.Size(0)
	if a.Size(1) != n {
		return errors.Errorf("host: trace requires a square operand, got [%d,%d]", n, a.Size(1))
	}
	if dst.Rank() != 0 {
		return errors.Errorf("host: trace destination must be rank 0, got %d", dst.Rank())
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a.At(i, i)
	}
	dst.Set(sum)
	return nil
}
