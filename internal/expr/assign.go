package expr

import (
	"github.com/deft-ml/deft/internal/tensor"
)

// Assign evaluates src into dst. A transform right-hand side is executed
// directly into dst with no temporary allocation; any other node has its
// nested transforms prepared bottom-up and is then copied element-wise.
func Assign(dst Mutable, src Operator, ex Executor) error {
	if t, ok := src.(Transform); ok {
		return t.Exec(ex, dst)
	}
	if p, ok := src.(preparer); ok {
		if err := p.PreRun(ex); err != nil {
			return err
		}
	}
	if err := checkSameShape("assign", "destination", dst, shapeOf(src)); err != nil {
		return err
	}
	eachIndex(shapeOf(src), func(idx []int) {
		dst.Set(src.At(idx...), idx...)
	})
	return nil
}

// TieDest is a fixed-arity tuple of destinations for a multi-output
// assignment.
type TieDest struct {
	dsts []Mutable
}

// Tie bundles destinations for a multi-output assignment, mirroring the
// destructuring assignment a multi-output transform requires:
//
//	expr.Tie(q, r).Assign(qrNode, ex)
func Tie(dsts ...Mutable) TieDest {
	return TieDest{dsts: dsts}
}

// Assign executes src directly into the tied destinations. The transform
// checks the destination arity; a mismatch is a usage error naming the
// required pattern.
func (t TieDest) Assign(src Transform, ex Executor) error {
	return src.Exec(ex, t.dsts...)
}

// Eval materializes any operator into a freshly allocated tensor: a
// temporary in the executor's memory space is allocated, src is assigned
// into it, and the tensor is returned. The caller owns the result.
func Eval(src Operator, ex Executor) (*tensor.RawTensor, error) {
	space := MemHost
	if ex.Kind() == KindDevice {
		space = MemDeviceAsync
	}
	out, err := ex.Alloc(shapeOf(src), src.DType(), space)
	if err != nil {
		return nil, err
	}
	if err := Assign(View(out), src, ex); err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}

// eachIndex invokes f for every multi-index of shape in row-major order.
// A rank-0 shape yields a single empty index.
func eachIndex(shape tensor.Shape, f func(idx []int)) {
	idx := make([]int, len(shape))
	for {
		f(idx)
		d := len(shape) - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			return
		}
	}
}
