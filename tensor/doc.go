// Copyright 2025 The Deft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the storage layer for deft: reference-counted
// dense tensors with shape, stride, and dtype metadata.
//
// # Overview
//
// A RawTensor owns (or shares, via reference counting) a contiguous
// row-major buffer. Element access goes through a float64 currency pair,
// At and SetAt, regardless of the stored dtype, which is what lets the
// expression layer compose views and kernels over any element type.
//
// Tensors may also be backed by device memory. A device-backed tensor
// keeps its authoritative bytes on the device until the first host read,
// at which point they are transferred (lazy realization) and the device
// buffer is released.
//
// # Basic Usage
//
//	x, _ := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
//	v := x.At(1, 2)   // 6
//	x.SetAt(-1, 0, 0)
//	y := x.Clone()    // shares the buffer
//	y.Release()
//	x.Release()
package tensor
