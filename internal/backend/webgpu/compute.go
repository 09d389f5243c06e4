package webgpu

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"

	"github.com/deft-ml/deft/internal/expr"
	"github.com/deft-ml/deft/internal/plancache"
	"github.com/deft-ml/deft/internal/tensor"
)

// pipelinePlan is the cached artifact for one compiled compute pipeline.
type pipelinePlan struct {
	shader   *wgpu.ShaderModule
	pipeline *wgpu.ComputePipeline
}

func (p *pipelinePlan) release() {
	if p.pipeline != nil {
		p.pipeline.Release()
	}
	if p.shader != nil {
		p.shader.Release()
	}
}

// getPipeline compiles WGSL into a compute pipeline, caching the result in
// the plan cache keyed by the shader's structural signature.
func (b *Backend) getPipeline(key plancache.Key, code string) (*wgpu.ComputePipeline, error) {
	plan, err := b.plans.GetOrCreate(key, func() (any, error) {
		shader := b.device.CreateShaderModuleWGSL(code)
		pipeline := b.device.CreateComputePipelineSimple(nil, shader, "main")
		return &pipelinePlan{shader: shader, pipeline: pipeline}, nil
	})
	if err != nil {
		return nil, err
	}
	return plan.(*pipelinePlan).pipeline, nil
}

// createBuffer creates a GPU buffer initialized with data.
func (b *Backend) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := alignedSize(uint64(len(data)))
	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()
	return buffer
}

// createUniformBuffer creates a uniform buffer with 16-byte alignment.
func (b *Backend) createUniformBuffer(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	alignedUniform := (size + 15) &^ 15
	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             alignedUniform,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buffer.GetMappedRange(0, alignedUniform)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), alignedUniform)
	copy(mappedSlice, data)
	buffer.Unmap()
	return buffer
}

// readBuffer copies a device buffer back to host memory through a pooled
// staging buffer. The copy is the synchronization point with the queue.
func (b *Backend) readBuffer(srcBuffer *wgpu.Buffer, size uint64) ([]byte, error) {
	stagingUsage := wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
	staging := b.bufferPool.Acquire(size, stagingUsage)
	defer b.bufferPool.Release(staging, size, stagingUsage)

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(srcBuffer, 0, staging, 0, size)
	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, errors.Wrap(err, "webgpu: mapping staging buffer")
	}
	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)
	staging.Unmap()

	return result, nil
}

// operandBuffer makes an operand's elements available in a device buffer.
// An operand with still-device-resident storage (a leaf view or a prepared
// transform's temporary) reuses its live buffer, chaining dependent kernels
// on the queue without a host round trip; any other operand (slices,
// permutes, host tensors) is materialized to contiguous float32 bytes and
// uploaded. The returned release func is a no-op for reused buffers.
func (b *Backend) operandBuffer(op expr.Operator) (buf *wgpu.Buffer, release func(), err error) {
	if op.DType() != tensor.Float32 {
		return nil, nil, errors.Errorf("webgpu: only float32 operands are supported, got %s", op.DType())
	}
	if tv := deviceView(op); tv != nil {
		if ptr := tv.Raw().DeviceData().BufferPtr(); ptr != nil {
			return (*wgpu.Buffer)(ptr), func() {}, nil
		}
	}
	data := materializeF32(op)
	buffer := b.createBuffer(data, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	return buffer, func() { buffer.Release() }, nil
}

// destinationBuffer resolves where a kernel writes. A destination backed by
// a live device buffer is written in place and the kernel stays
// asynchronous; any other destination gets a fresh buffer and the caller
// must read it back after dispatch (the readback func flushes and copies
// element-wise through the view, handling permuted destinations).
func (b *Backend) destinationBuffer(dst expr.Mutable, shape tensor.Shape, initFrom bool) (buf *wgpu.Buffer, readback func() error, err error) {
	if dst.DType() != tensor.Float32 {
		return nil, nil, errors.Errorf("webgpu: only float32 destinations are supported, got %s", dst.DType())
	}
	if tv, ok := dst.(*expr.TensorView); ok && tv.Raw().OnDevice() {
		if ptr := tv.Raw().DeviceData().BufferPtr(); ptr != nil {
			return (*wgpu.Buffer)(ptr), nil, nil
		}
	}

	var data []byte
	if initFrom {
		data = materializeF32(dst)
	} else {
		data = make([]byte, shape.NumElements()*4)
	}
	buffer := b.createBuffer(data, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc|wgpu.BufferUsageCopyDst)

	readback = func() error {
		defer buffer.Release()
		b.Flush()
		raw, err := b.readBuffer(buffer, alignedSize(uint64(shape.NumElements()*4)))
		if err != nil {
			return err
		}
		i := 0
		eachIndex(shape, func(idx []int) {
			bits := binary.LittleEndian.Uint32(raw[i*4:])
			dst.Set(float64(math.Float32frombits(bits)), idx...)
			i++
		})
		return nil
	}
	return buffer, readback, nil
}

// deviceView resolves an operand to a view over still-device-resident
// storage: a leaf tensor view, or a prepared transform's owned temporary.
// Returns nil when the operand has no live device buffer.
func deviceView(op expr.Operator) *expr.TensorView {
	tv, ok := op.(*expr.TensorView)
	if !ok {
		if bo, isBuffered := op.(interface{ Buffered() *expr.TensorView }); isBuffered {
			tv = bo.Buffered()
		}
	}
	if tv != nil && tv.Raw().OnDevice() {
		return tv
	}
	return nil
}

// materializeF32 reads an operator element-wise into contiguous row-major
// float32 bytes.
func materializeF32(op expr.Operator) []byte {
	shape := make(tensor.Shape, op.Rank())
	for i := range shape {
		shape[i] = op.Size(i)
	}
	data := make([]byte, shape.NumElements()*4)
	i := 0
	eachIndex(shape, func(idx []int) {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(float32(op.At(idx...))))
		i++
	})
	return data
}

// eachIndex invokes f for every multi-index of shape in row-major order.
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

// dispatch encodes one compute pass and queues it for batched submission.
func (b *Backend) dispatch(pipeline *wgpu.ComputePipeline, entries []wgpu.BindGroupEntry, x, y, z uint32) {
	bindGroupLayout := pipeline.GetBindGroupLayout(0)
	bindGroup := b.device.CreateBindGroupSimple(bindGroupLayout, entries)
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(x, y, z)
	pass.End()
	b.queueCommand(encoder.Finish(nil))
}
