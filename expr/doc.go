// Copyright 2025 The Deft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package expr provides deft's deferred tensor-expression layer:
// operators compose into an expression tree that performs no numeric work
// and allocates no buffers until the tree is evaluated against an
// executor.
//
// # Nodes
//
// Three node families compose:
//
//   - Leaves: View wraps a *tensor.RawTensor.
//   - Views: Slice and Permute remap indices without copying; reads and
//     writes pass through to the operand.
//   - Transforms: MatMul, Covariance, CumSum, Trace, and QR require a
//     kernel to run. Nested transforms are resolved bottom-up at
//     evaluation, each into a temporary it owns until Release.
//
// # Evaluation
//
// Assign evaluates an expression into an existing destination; a
// transform root writes it directly with no temporary. Eval allocates the
// destination in the executor's memory space. QR produces two outputs and
// is evaluated only through a tied destination pair:
//
//	q, _ := tensor.NewRaw(tensor.Shape{m, n}, tensor.Float64, tensor.CPU)
//	r, _ := tensor.NewRaw(tensor.Shape{n, n}, tensor.Float64, tensor.CPU)
//	qr, _ := expr.QR(expr.View(a))
//	err := expr.Tie(expr.View(q), expr.View(r)).Assign(qr, ex)
//
// # Executors
//
// An Executor is either host-synchronous (kernels complete before
// returning) or device-asynchronous (kernels are enqueued; reading the
// result synchronizes). Executors advertise per-operation capability, and
// evaluation fails with a CapabilityError before allocating anything when
// an expression needs an operation the executor lacks.
package expr
