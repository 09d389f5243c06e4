package tensor

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"
)

// DeviceBackend is the narrow interface a device executor implements so
// device-resident tensors can be realized on the host and released.
type DeviceBackend interface {
	// ReadBuffer reads a device buffer back to host memory.
	// bufferPtr is an unsafe.Pointer to the backend's buffer type.
	ReadBuffer(bufferPtr unsafe.Pointer, size uint64) ([]byte, error)

	// ReleaseBuffer releases the device buffer when no longer needed.
	ReleaseBuffer(bufferPtr unsafe.Pointer)
}

// DeviceData holds a reference to device-resident storage. Host access to
// the owning RawTensor transfers the data from the device only at that
// point (lazy realization).
type DeviceData struct {
	bufferPtr unsafe.Pointer // Pointer to the device buffer
	size      uint64         // Buffer size in bytes
	backend   DeviceBackend  // Backend for reading/releasing the buffer
	realized  bool           // Whether data has been transferred to the host
	mu        sync.Mutex     // Protects realized flag and transfer
}

// NewDeviceData creates a DeviceData referencing a device buffer.
// The buffer is released when the handle is garbage collected.
func NewDeviceData(bufferPtr unsafe.Pointer, size uint64, backend DeviceBackend) *DeviceData {
	d := &DeviceData{
		bufferPtr: bufferPtr,
		size:      size,
		backend:   backend,
	}

	// Release the device buffer on GC so dropped temporaries do not leak
	runtime.SetFinalizer(d, func(dd *DeviceData) {
		dd.Release()
	})

	return d
}

// IsRealized returns whether the data has been transferred to the host.
func (d *DeviceData) IsRealized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.realized
}

// Realize transfers data from the device and returns it. Returns (nil, nil)
// if already realized. After realization the device buffer is released.
func (d *DeviceData) Realize() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.realized {
		return nil, nil
	}

	data, err := d.backend.ReadBuffer(d.bufferPtr, d.size)
	if err != nil {
		return nil, err
	}
	d.realized = true

	if d.bufferPtr != nil && d.backend != nil {
		d.backend.ReleaseBuffer(d.bufferPtr)
		d.bufferPtr = nil
	}

	return data, nil
}

// Release releases the device buffer without realizing it.
func (d *DeviceData) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bufferPtr != nil && d.backend != nil {
		d.backend.ReleaseBuffer(d.bufferPtr)
		d.bufferPtr = nil
	}
}

// BufferPtr returns the underlying device buffer pointer. Used by device
// kernels to chain operations without a host round trip. Returns nil once
// the data has been realized or released.
func (d *DeviceData) BufferPtr() unsafe.Pointer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bufferPtr
}

// Size returns the buffer size in bytes.
func (d *DeviceData) Size() uint64 {
	return d.size
}

// NewDeviceRaw creates a RawTensor backed by device-resident storage.
// Host bytes are not filled until the tensor is first read on the host.
func NewDeviceRaw(shape Shape, dtype DataType, dev *DeviceData) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	byteSize := shape.NumElements() * dtype.Size()
	return &RawTensor{
		buffer: newTensorBuffer(byteSize),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: WebGPU,
		offset: 0,
		dev:    dev,
	}, nil
}

// DeviceData returns the device storage handle, or nil for host tensors.
func (r *RawTensor) DeviceData() *DeviceData {
	return r.dev
}

// OnDevice reports whether the tensor's authoritative bytes still live on
// a device (not yet realized on the host).
func (r *RawTensor) OnDevice() bool {
	return r.dev != nil && !r.dev.IsRealized()
}

// Realize forces a device-backed tensor's bytes onto the host. It is a
// no-op for host tensors and idempotent for device tensors.
func (r *RawTensor) Realize() error {
	if r.dev == nil {
		return nil
	}
	data, err := r.dev.Realize()
	if err != nil {
		return fmt.Errorf("realizing device tensor: %w", err)
	}
	if data != nil {
		copy(r.buffer.data, data)
	}
	return nil
}

// ensureHost makes host bytes valid before direct memory access, realizing
// device-backed tensors on first use. Transfer failures panic; callers that
// need the error call Realize explicitly.
func (r *RawTensor) ensureHost() {
	if r.dev == nil {
		return
	}
	if err := r.Realize(); err != nil {
		panic(err.Error())
	}
}
