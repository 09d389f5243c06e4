// Package webgpu implements the asynchronous device executor on WebGPU,
// using go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO bindings.
// Kernels encode compute passes and enqueue them; Exec returns without
// waiting, and dependent operations in one expression are serialized by
// being enqueued in dependency order on the same queue. Host reads of a
// device-resident result are the synchronization point.
package webgpu

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"

	"github.com/deft-ml/deft/internal/expr"
	"github.com/deft-ml/deft/internal/plancache"
	"github.com/deft-ml/deft/internal/tensor"
)

// Backend is the device-asynchronous execution context. It owns the WebGPU
// device and queue, the compiled-pipeline cache, and the staging buffer
// pool; kernel methods are defined on the backend itself, so the queue a
// kernel needs is carried by its receiver.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	adapterInfo *wgpu.AdapterInfoGo

	// Compiled pipelines keyed by structural signature.
	plans *plancache.Memory

	// Persisted workgroup-size tuning, optional.
	tunes *plancache.TuneStore

	// Staging buffers for readback are the hottest recurring allocation;
	// they cycle through the pool.
	bufferPool *BufferPool

	// Command batching: kernels queue command buffers here and they are
	// submitted together before any readback.
	pendingCommands []*wgpu.CommandBuffer
	pendingMu       sync.Mutex
}

// New creates a WebGPU backend. Returns an error if WebGPU is unavailable
// or bring-up fails.
func New() (backend *Backend, err error) {
	// Recover from panic if the wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = errors.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, errors.Wrap(instanceErr, "webgpu: creating instance")
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, errors.Wrap(adapterErr, "webgpu: requesting adapter")
	}

	adapterInfo, _ := adapter.GetInfo()

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(deviceErr, "webgpu: requesting device")
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, errors.New("webgpu: failed to get queue")
	}

	return &Backend{
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		adapterInfo: adapterInfo,
		plans:       plancache.NewMemory(),
		bufferPool:  NewBufferPool(device),
	}, nil
}

// SetTuneStore attaches a persisted tuning store consulted for kernel
// workgroup sizes.
func (b *Backend) SetTuneStore(store *plancache.TuneStore) {
	b.tunes = store
}

// Kind reports the device-asynchronous context kind.
func (b *Backend) Kind() expr.Kind {
	return expr.KindDevice
}

// Alloc allocates a zero-initialized tensor. Device-asynchronous requests
// return a tensor backed by a device buffer whose host bytes are filled
// lazily on first host read; host requests fall back to host memory.
func (b *Backend) Alloc(shape tensor.Shape, dtype tensor.DataType, space expr.MemSpace) (*tensor.RawTensor, error) {
	if space != expr.MemDeviceAsync {
		return tensor.NewRaw(shape, dtype, tensor.CPU)
	}
	if dtype != tensor.Float32 {
		return nil, errors.Errorf("webgpu: only float32 device tensors are supported, got %s", dtype)
	}
	size := alignedSize(uint64(shape.NumElements() * dtype.Size()))
	// Freshly created buffers are zero-initialized per the WebGPU spec.
	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	dev := tensor.NewDeviceData(unsafe.Pointer(buffer), size, b) //nolint:gosec // Device buffer handle tracking.
	raw, err := tensor.NewDeviceRaw(shape, dtype, dev)
	if err != nil {
		buffer.Release()
		return nil, err
	}
	return raw, nil
}

// Kernels returns the backend's kernel table.
func (b *Backend) Kernels() expr.Kernels {
	return b
}

// queueCommand adds a command buffer to the pending batch.
func (b *Backend) queueCommand(cmd *wgpu.CommandBuffer) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	b.pendingCommands = append(b.pendingCommands, cmd)
}

// Flush submits all pending command buffers to the queue. Called
// automatically before any readback.
func (b *Backend) Flush() {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	if len(b.pendingCommands) == 0 {
		return
	}
	b.queue.Submit(b.pendingCommands...)
	b.pendingCommands = b.pendingCommands[:0]
}

// ReadBuffer implements tensor.DeviceBackend: it flushes pending work and
// copies a device buffer back to host memory.
func (b *Backend) ReadBuffer(bufferPtr unsafe.Pointer, size uint64) ([]byte, error) {
	b.Flush()
	return b.readBuffer((*wgpu.Buffer)(bufferPtr), size)
}

// ReleaseBuffer implements tensor.DeviceBackend.
func (b *Backend) ReleaseBuffer(bufferPtr unsafe.Pointer) {
	buffer := (*wgpu.Buffer)(bufferPtr)
	if buffer != nil {
		buffer.Release()
	}
}

// Release frees all backend resources. The backend must not be used
// afterwards.
func (b *Backend) Release() {
	b.Flush()

	if b.bufferPool != nil {
		b.bufferPool.Clear()
		b.bufferPool = nil
	}
	if b.plans != nil {
		b.plans.Each(func(_ plancache.Key, plan any) {
			if p, ok := plan.(*pipelinePlan); ok {
				p.release()
			}
		})
		b.plans.Clear()
		b.plans = nil
	}
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// Name returns a human-readable backend name.
func (b *Backend) Name() string {
	if b.adapterInfo != nil {
		return fmt.Sprintf("WebGPU (%s %s)", b.adapterInfo.Device, b.adapterInfo.Vendor)
	}
	return "WebGPU"
}

// PoolStats returns staging-pool usage counters.
func (b *Backend) PoolStats() (allocated, released, hits, misses uint64, pooled int) {
	return b.bufferPool.Stats()
}

// PlanStats returns pipeline-cache hit/miss counters.
func (b *Backend) PlanStats() (hits, misses uint64, entries int) {
	return b.plans.Stats()
}

// IsAvailable reports whether WebGPU can be brought up on this system.
func IsAvailable() (available bool) {
	// Recover from panic if the wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return false
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// alignedSize rounds a byte size up to WebGPU's 4-byte buffer alignment.
func alignedSize(size uint64) uint64 {
	return (size + 3) &^ 3
}
