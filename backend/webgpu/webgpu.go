// Copyright 2025 The Deft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the device-asynchronous executor on WebGPU.
// Kernels are enqueued rather than run: Exec returns as soon as the
// compute pass is recorded, and reading a device-resident result is the
// synchronization point. Only float32 tensors have a device
// representation, and only matmul, cumsum, and trace have device kernels;
// expressions needing more fail capability gating and belong on the host
// executor.
package webgpu

import (
	"github.com/deft-ml/deft/expr"
	internalwebgpu "github.com/deft-ml/deft/internal/backend/webgpu"
	"github.com/deft-ml/deft/internal/plancache"
)

// Backend is the device-asynchronous execution context.
type Backend = internalwebgpu.Backend

// Compile-time check that Backend implements expr.Executor.
var _ expr.Executor = (*Backend)(nil)

// TuneStore persists kernel workgroup-size tuning between processes.
type TuneStore = plancache.TuneStore

// New creates a WebGPU backend. Returns an error if WebGPU is unavailable
// or bring-up fails. Release the backend when done.
//
//	if webgpu.IsAvailable() {
//	    b, err := webgpu.New()
//	    ...
//	    defer b.Release()
//	}
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable reports whether WebGPU can be brought up on this system.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}

// NewTuneStore opens (creating if needed) a tune store rooted at dir.
// Attach it with (*Backend).SetTuneStore.
func NewTuneStore(dir string) (*TuneStore, error) {
	return plancache.NewTuneStore(dir)
}
