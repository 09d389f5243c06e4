// Copyright 2025 The Deft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/deft-ml/deft/internal/tensor"
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
// The empty Shape{} is a rank-0 (scalar) tensor with one element.
type Shape = tensor.Shape

// DataType represents the underlying data type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
)

// Element is the constraint for tensor element types.
type Element = tensor.Element

// Device represents the device where tensor data resides.
type Device = tensor.Device

// Device constants.
const (
	CPU    Device = tensor.CPU
	WebGPU Device = tensor.WebGPU
)

// RawTensor is the dense tensor representation: a reference-counted
// buffer plus shape, stride, and dtype metadata. Elements are read and
// written as float64 through At and SetAt regardless of the stored dtype.
type RawTensor = tensor.RawTensor

// NewRaw creates a zero-initialized tensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// FromSlice creates a host tensor from a Go slice. The slice is copied.
//
//	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
func FromSlice[T Element](data []T, shape Shape) (*RawTensor, error) {
	return tensor.FromSlice(data, shape)
}

// Scalar creates a rank-0 host tensor holding a single value.
func Scalar[T Element](value T) *RawTensor {
	return tensor.Scalar(value)
}

// DataOf returns a typed slice view of the tensor's data (zero-copy).
// Panics if T does not match the tensor's dtype.
func DataOf[T Element](r *RawTensor) []T {
	return tensor.DataOf[T](r)
}
