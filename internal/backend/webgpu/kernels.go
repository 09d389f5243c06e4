package webgpu

import (
	"encoding/binary"
	"math"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"

	"github.com/deft-ml/deft/internal/expr"
	"github.com/deft-ml/deft/internal/plancache"
	"github.com/deft-ml/deft/internal/tensor"
)

// Supports reports kernel availability: matmul, cumsum, and trace run on
// device. Covariance and QR have no device kernel; transforms gated on this
// fail fast before allocating.
func (b *Backend) Supports(op expr.OpKind) bool {
	switch op {
	case expr.OpMatMul, expr.OpCumSum, expr.OpTrace:
		return true
	default:
		return false
	}
}

// MatMul encodes dst = alpha*(a @ b) + beta*dst and enqueues it. A
// device-resident destination is written in place without waiting; any
// other destination is read back after a flush, which synchronizes.
func (b *Backend) MatMul(dst expr.Mutable, a, a2 expr.Operator, alpha, beta float64) error {
	rank := a.Rank()
	if rank < 2 || a2.Rank() != rank || dst.Rank() != rank {
		return errors.Errorf("webgpu: matmul ranks must agree and be >= 2, got dst %d, a %d, b %d", dst.Rank(), a.Rank(), a2.Rank())
	}
	m, k, n := a.Size(rank-2), a.Size(rank-1), a2.Size(rank-1)
	if a2.Size(rank-2) != k || dst.Size(rank-2) != m || dst.Size(rank-1) != n {
		return errors.Errorf("webgpu: matmul extent mismatch: a [..,%d,%d], b [..,%d,%d], dst [..,%d,%d]",
			m, k, a2.Size(rank-2), n, dst.Size(rank-2), dst.Size(rank-1))
	}
	batch := 1
	for r := 0; r < rank-2; r++ {
		batch *= a.Size(r)
	}

	bufA, releaseA, err := b.operandBuffer(a)
	if err != nil {
		return err
	}
	defer releaseA()
	bufB, releaseB, err := b.operandBuffer(a2)
	if err != nil {
		return err
	}
	defer releaseB()

	dstShape := operandShape(dst)
	bufC, readback, err := b.destinationBuffer(dst, dstShape, beta != 0)
	if err != nil {
		return err
	}

	tile := b.matmulTile(m, n)
	pipeline, err := b.getPipeline(plancache.NewKey("webgpu/matmul", nil, float64(tile)), matmulShader(tile))
	if err != nil {
		return err
	}

	params := make([]byte, 24)
	binary.LittleEndian.PutUint32(params[0:4], uint32(batch))  //nolint:gosec // Non-negative extents.
	binary.LittleEndian.PutUint32(params[4:8], uint32(m))      //nolint:gosec // Non-negative extents.
	binary.LittleEndian.PutUint32(params[8:12], uint32(k))     //nolint:gosec // Non-negative extents.
	binary.LittleEndian.PutUint32(params[12:16], uint32(n))    //nolint:gosec // Non-negative extents.
	binary.LittleEndian.PutUint32(params[16:20], math.Float32bits(float32(alpha)))
	binary.LittleEndian.PutUint32(params[20:24], math.Float32bits(float32(beta)))
	bufParams := b.createUniformBuffer(params)
	defer bufParams.Release()

	b.dispatch(pipeline, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufA, 0, alignedSize(uint64(batch*m*k*4))),
		wgpu.BufferBindingEntry(1, bufB, 0, alignedSize(uint64(batch*k*n*4))),
		wgpu.BufferBindingEntry(2, bufC, 0, alignedSize(uint64(batch*m*n*4))),
		wgpu.BufferBindingEntry(3, bufParams, 0, 32),
	}, groups(n, tile), groups(m, tile), uint32(batch)) //nolint:gosec // Non-negative extents.

	if readback != nil {
		return readback()
	}
	return nil
}

// CumSum encodes the inclusive prefix sum along the last dimension.
func (b *Backend) CumSum(dst expr.Mutable, a expr.Operator) error {
	rank := a.Rank()
	if rank < 1 || dst.Rank() != rank {
		return errors.Errorf("webgpu: cumsum requires matching ranks >= 1, got operand %d, destination %d", a.Rank(), dst.Rank())
	}
	rows := 1
	for r := 0; r < rank-1; r++ {
		rows *= a.Size(r)
	}
	length := a.Size(rank - 1)

	bufA, releaseA, err := b.operandBuffer(a)
	if err != nil {
		return err
	}
	defer releaseA()

	dstShape := operandShape(dst)
	bufOut, readback, err := b.destinationBuffer(dst, dstShape, false)
	if err != nil {
		return err
	}

	pipeline, err := b.getPipeline(plancache.NewKey("webgpu/cumsum", nil), cumsumShader)
	if err != nil {
		return err
	}

	params := make([]byte, 8)
	binary.LittleEndian.PutUint32(params[0:4], uint32(rows))   //nolint:gosec // Non-negative extents.
	binary.LittleEndian.PutUint32(params[4:8], uint32(length)) //nolint:gosec // Non-negative extents.
	bufParams := b.createUniformBuffer(params)
	defer bufParams.Release()

	size := alignedSize(uint64(rows * length * 4))
	b.dispatch(pipeline, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufA, 0, size),
		wgpu.BufferBindingEntry(1, bufOut, 0, size),
		wgpu.BufferBindingEntry(2, bufParams, 0, 16),
	}, groups(rows, workgroupSize), 1, 1)

	if readback != nil {
		return readback()
	}
	return nil
}

// Trace encodes the diagonal sum of a square matrix into a rank-0
// destination.
func (b *Backend) Trace(dst expr.Mutable, a expr.Operator) error {
	if a.Rank() != 2 || a.Size(0) != a.Size(1) {
		return errors.Errorf("webgpu: trace requires a square rank-2 operand")
	}
	if dst.Rank() != 0 {
		return errors.Errorf("webgpu: trace destination must be rank 0, got %d", dst.Rank())
	}
	n := a.Size(0)

	bufA, releaseA, err := b.operandBuffer(a)
	if err != nil {
		return err
	}
	defer releaseA()

	bufOut, readback, err := b.destinationBuffer(dst, tensor.Shape{}, false)
	if err != nil {
		return err
	}

	pipeline, err := b.getPipeline(plancache.NewKey("webgpu/trace", nil), traceShader)
	if err != nil {
		return err
	}

	params := make([]byte, 4)
	binary.LittleEndian.PutUint32(params[0:4], uint32(n)) //nolint:gosec // Non-negative extents.
	bufParams := b.createUniformBuffer(params)
	defer bufParams.Release()

	b.dispatch(pipeline, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufA, 0, alignedSize(uint64(n*n*4))),
		wgpu.BufferBindingEntry(1, bufOut, 0, 4),
		wgpu.BufferBindingEntry(2, bufParams, 0, 16),
	}, 1, 1, 1)

	if readback != nil {
		return readback()
	}
	return nil
}

// Covariance has no device kernel.
func (b *Backend) Covariance(dst expr.Mutable, a expr.Operator) error {
	return expr.Capabilityf("cov: not supported by device executor")
}

// QR has no device kernel.
func (b *Backend) QR(q, r expr.Mutable, a expr.Operator) error {
	return expr.Capabilityf("qr: not supported by device executor")
}

// matmulTile picks the matmul workgroup edge, consulting the tune store
// when one is attached. Lookup failures fall back to the default.
func (b *Backend) matmulTile(m, n int) int {
	if b.tunes == nil {
		return defaultMatmulTile
	}
	class := "small"
	if m*n >= 256*256 {
		class = "large"
	}
	rec, ok, err := b.tunes.Lookup("matmul", class)
	if err != nil || !ok {
		return defaultMatmulTile
	}
	switch rec.WorkgroupSize {
	case 8, 16, 32:
		return rec.WorkgroupSize
	default:
		return defaultMatmulTile
	}
}

// operandShape collects an operator's extents.
func operandShape(op expr.Operator) tensor.Shape {
	shape := make(tensor.Shape, op.Rank())
	for i := range shape {
		shape[i] = op.Size(i)
	}
	return shape
}

// groups computes the workgroup count covering n items at the given group
// size.
func groups(n, size int) uint32 {
	return uint32((n + size - 1) / size) //nolint:gosec // Non-negative extents.
}
