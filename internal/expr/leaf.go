package expr

import (
	"github.com/deft-ml/deft/internal/tensor"
)

// TensorView is the leaf operator node: a read/write view over a RawTensor.
// It holds no data of its own; element access goes straight through the
// tensor's strides, so mutating the underlying storage between composing an
// expression and evaluating it is visible at evaluation time.
type TensorView struct {
	t *tensor.RawTensor
}

// View wraps a RawTensor as a leaf operator node.
func View(t *tensor.RawTensor) *TensorView {
	return &TensorView{t: t}
}

// Rank returns the number of dimensions.
func (v *TensorView) Rank() int {
	return len(v.t.Shape())
}

// Size returns the extent of the given dimension. Rank-0 tensors report
// size 1.
func (v *TensorView) Size(dim int) int {
	shape := v.t.Shape()
	if len(shape) == 0 {
		return 1
	}
	return shape[dim]
}

// DType returns the tensor's element type.
func (v *TensorView) DType() tensor.DataType {
	return v.t.DType()
}

// At reads the element at the given multi-index.
func (v *TensorView) At(index ...int) float64 {
	return v.t.At(index...)
}

// Set stores a value at the given multi-index.
func (v *TensorView) Set(value float64, index ...int) {
	v.t.SetAt(value, index...)
}

// Raw returns the underlying tensor.
func (v *TensorView) Raw() *tensor.RawTensor {
	return v.t
}

// String returns a diagnostic description.
func (v *TensorView) String() string {
	return v.t.String()
}
