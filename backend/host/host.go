// Copyright 2025 The Deft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package host provides the host-synchronous executor: pure-Go kernels
// for every expression operation, run on the calling goroutine or a
// worker pool. Kernel calls complete before returning.
package host

import (
	"github.com/deft-ml/deft/expr"
	internalhost "github.com/deft-ml/deft/internal/backend/host"
)

// Executor is the host-synchronous execution context.
type Executor = internalhost.Executor

// Compile-time check that Executor implements expr.Executor.
var _ expr.Executor = (*Executor)(nil)

// New creates a host executor with default parallelism.
//
//	ex := host.New()
//	out, err := expr.Eval(node, ex)
func New() *Executor {
	return internalhost.New()
}

// NewSequential creates a host executor that runs kernels on the calling
// goroutine only.
func NewSequential() *Executor {
	return internalhost.NewSequential()
}
