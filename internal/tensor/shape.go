package tensor

import "fmt"

// Shape represents the dimensions of a tensor. A zero-length shape is a
// rank-0 scalar.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// CheckIndex validates a multi-index against the shape: it must supply
// exactly one coordinate per dimension and every coordinate must be in range.
func (s Shape) CheckIndex(index []int) error {
	if len(index) != len(s) {
		return fmt.Errorf("expected %d indices, got %d", len(s), len(index))
	}
	for i, idx := range index {
		if idx < 0 || idx >= s[i] {
			return fmt.Errorf("index %d out of bounds for dimension %d (size %d)", idx, i, s[i])
		}
	}
	return nil
}
