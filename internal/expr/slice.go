package expr

import (
	"fmt"

	"github.com/deft-ml/deft/internal/tensor"
)

// Sentinel end markers for Slice. Valid coordinates are non-negative, so
// negative values are reserved.
const (
	// End extends a sliced dimension to the end of the operand dimension.
	End = -1
	// Drop removes the dimension from the slice's output entirely; the
	// dimension's start offset is used as a fixed coordinate.
	Drop = -2
)

// SliceView is a pure index-remapping adapter over another operator node:
// it narrows, strides, and drops dimensions without copying data. Reads and
// writes are forwarded to the operand through recomputed indices, so slices
// over slices compose, each layer translating only into its immediate
// operand's coordinate space.
type SliceView struct {
	op      Operator
	starts  []int // per operand dimension
	strides []int // per operand dimension
	dims    []int // operand dimension retained by each output dimension
	sizes   []int // per output dimension
}

// Slice builds a slice view over op. starts, ends, and strides each carry
// one entry per operand dimension: starts[i] is the first element
// (inclusive), ends[i] is the last element (exclusive), End, or Drop, and
// strides[i] is the step between consecutive elements. The output extent of
// a retained dimension is ceil((end-start)/stride), computed once here.
// Dropped dimensions are skipped in operand order, never reordered.
func Slice(op Operator, starts, ends, strides []int) (*SliceView, error) {
	rank := op.Rank()
	if rank == 0 {
		return nil, shapeErrorf("slice: operand rank must be greater than 0")
	}
	if len(starts) != rank || len(ends) != rank || len(strides) != rank {
		return nil, shapeErrorf("slice: starts/ends/strides must have one entry per operand dimension (rank %d), got %d/%d/%d",
			rank, len(starts), len(ends), len(strides))
	}

	s := &SliceView{
		op:      op,
		starts:  append([]int(nil), starts...),
		strides: append([]int(nil), strides...),
	}
	for i := 0; i < rank; i++ {
		start, end, stride := starts[i], ends[i], strides[i]
		if stride <= 0 {
			return nil, shapeErrorf("slice: stride for dimension %d must be positive, got %d", i, stride)
		}
		if start < 0 || start >= op.Size(i) {
			return nil, shapeErrorf("slice: start %d out of range for dimension %d (size %d)", start, i, op.Size(i))
		}
		if end == Drop {
			continue
		}
		if end == End {
			end = op.Size(i)
		}
		if end < start || end > op.Size(i) {
			return nil, shapeErrorf("slice: end %d out of range for dimension %d (start %d, size %d)", ends[i], i, start, op.Size(i))
		}
		size := (end - start + stride - 1) / stride
		if size <= 0 {
			return nil, shapeErrorf("slice: empty range for dimension %d (start %d, end %d, stride %d)", i, start, end, stride)
		}
		s.dims = append(s.dims, i)
		s.sizes = append(s.sizes, size)
	}
	if len(s.dims) != s.Rank() {
		// Unreachable with the derived rank, kept as the construction
		// invariant: retained dimensions must equal the output rank.
		return nil, shapeErrorf("slice: number of retained dimensions %d does not equal output rank %d", len(s.dims), s.Rank())
	}
	return s, nil
}

// SliceAll is Slice with a stride of 1 in every dimension.
func SliceAll(op Operator, starts, ends []int) (*SliceView, error) {
	strides := make([]int, op.Rank())
	for i := range strides {
		strides[i] = 1
	}
	return Slice(op, starts, ends, strides)
}

// Rank returns the number of retained dimensions.
func (s *SliceView) Rank() int {
	return len(s.sizes)
}

// Size returns the extent of the given output dimension.
func (s *SliceView) Size(dim int) int {
	return s.sizes[dim]
}

// DType returns the operand's element type.
func (s *SliceView) DType() tensor.DataType {
	return s.op.DType()
}

// operandIndex reconstructs a full operand-rank index vector from output
// indices: every coordinate starts at its dimension's start offset, then
// each output index advances its retained dimension by index*stride.
func (s *SliceView) operandIndex(index []int) []int {
	if len(index) != s.Rank() {
		panic(fmt.Sprintf("slice: expected %d indices, got %d", s.Rank(), len(index)))
	}
	ind := make([]int, s.op.Rank())
	copy(ind, s.starts)
	for i, idx := range index {
		d := s.dims[i]
		ind[d] += idx * s.strides[d]
	}
	return ind
}

// At reads the operand element addressed by the remapped index.
func (s *SliceView) At(index ...int) float64 {
	return s.op.At(s.operandIndex(index)...)
}

// Set writes the operand element addressed by the remapped index. Panics if
// the operand does not support writes.
func (s *SliceView) Set(value float64, index ...int) {
	m, ok := s.op.(Mutable)
	if !ok {
		panic(fmt.Sprintf("slice: operand %s is not writable", s.op))
	}
	m.Set(value, s.operandIndex(index)...)
}

// PreRun forwards deferred preparation to the operand so a transform nested
// under a slice still resolves bottom-up. A slice over a leaf is a no-op.
func (s *SliceView) PreRun(ex Executor) error {
	if p, ok := s.op.(preparer); ok {
		return p.PreRun(ex)
	}
	return nil
}

// Release cascades to the operand.
func (s *SliceView) Release() error {
	if r, ok := s.op.(releaser); ok {
		return r.Release()
	}
	return nil
}

// String returns a diagnostic description.
func (s *SliceView) String() string {
	return "slice(" + s.op.String() + ")"
}
