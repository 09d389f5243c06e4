package tensor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Device represents the compute device a tensor's storage lives on.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// tensorBuffer is a reference-counted shared buffer.
// This enables cheap cloning and safe release of shared storage.
type tensorBuffer struct {
	data     []byte
	refCount atomic.Int32
	mu       sync.Mutex // For safe deallocation
}

// newTensorBuffer creates a new reference-counted buffer with refCount = 1.
func newTensorBuffer(size int) *tensorBuffer {
	buf := &tensorBuffer{
		data: make([]byte, size),
	}
	buf.refCount.Store(1)
	return buf
}

// addRef increments the reference count (for Clone operations).
func (tb *tensorBuffer) addRef() {
	tb.refCount.Add(1)
}

// release decrements the reference count and deallocates if it reaches 0.
func (tb *tensorBuffer) release() {
	if tb.refCount.Add(-1) == 0 {
		tb.mu.Lock()
		defer tb.mu.Unlock()
		tb.data = nil
	}
}

// isUnique returns true if this buffer has only one reference.
func (tb *tensorBuffer) isUnique() bool {
	return tb.refCount.Load() == 1
}

// RawTensor is the low-level tensor representation: a reference-counted
// byte buffer plus the shape, strides, and type information needed to
// address elements. A RawTensor may be backed by device memory, in which
// case host bytes are filled in lazily on first host access.
type RawTensor struct {
	buffer *tensorBuffer // Shared reference-counted buffer
	shape  Shape         // Tensor dimensions
	stride []int         // Memory strides (row-major)
	dtype  DataType      // Runtime type information
	device Device        // Compute device
	offset int           // Element offset into the buffer
	dev    *DeviceData   // Device-resident storage, nil for host tensors
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is allocated and zero-initialized.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	numElements := shape.NumElements()
	byteSize := numElements * dtype.Size()

	return &RawTensor{
		buffer: newTensorBuffer(byteSize),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
		offset: 0,
	}, nil
}

// FromSlice creates a host RawTensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice[T Element](data []T, shape Shape) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}

	raw, err := NewRaw(shape, dataTypeOf[T](), CPU)
	if err != nil {
		return nil, err
	}
	copy(DataOf[T](raw), data)
	return raw, nil
}

// Scalar creates a rank-0 host RawTensor holding a single value.
func Scalar[T Element](value T) *RawTensor {
	raw, err := NewRaw(Shape{}, dataTypeOf[T](), CPU)
	if err != nil {
		panic(err) // Empty shape always validates
	}
	DataOf[T](raw)[0] = value
	return raw
}

// DataOf returns a typed slice view of the tensor's data (zero-copy).
// Panics if T does not match the tensor's dtype.
func DataOf[T Element](r *RawTensor) []T {
	if dataTypeOf[T]() != r.dtype {
		panic(fmt.Sprintf("tensor dtype is %s, not %s", r.dtype, dataTypeOf[T]()))
	}
	r.ensureHost()
	data := r.buffer.data[r.offset*r.dtype.Size():]
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), r.NumElements())
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data returns the raw byte slice. Device-backed tensors are realized first.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	r.ensureHost()
	return r.buffer.data[r.offset*r.dtype.Size():]
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	return DataOf[float32](r)
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	return DataOf[float64](r)
}

// AsInt32 interprets the data as []int32.
// Panics if the tensor's dtype is not Int32.
func (r *RawTensor) AsInt32() []int32 {
	return DataOf[int32](r)
}

// AsInt64 interprets the data as []int64.
// Panics if the tensor's dtype is not Int64.
func (r *RawTensor) AsInt64() []int64 {
	return DataOf[int64](r)
}

// flatIndex converts a multi-index to a flat element offset using strides.
// Panics on arity or bounds violations.
func (r *RawTensor) flatIndex(index []int) int {
	if err := r.shape.CheckIndex(index); err != nil {
		panic(err.Error())
	}
	flat := r.offset
	for i, idx := range index {
		flat += idx * r.stride[i]
	}
	return flat
}

// At returns the element at the given multi-index as a float64.
// A rank-0 tensor is read with no indices. Panics if the index arity does
// not match the rank or a coordinate is out of bounds.
func (r *RawTensor) At(index ...int) float64 {
	r.ensureHost()
	flat := r.flatIndex(index)
	data := r.buffer.data
	switch r.dtype {
	case Float32:
		return float64(*(*float32)(unsafe.Pointer(&data[flat*4])))
	case Float64:
		return *(*float64)(unsafe.Pointer(&data[flat*8]))
	case Int32:
		return float64(*(*int32)(unsafe.Pointer(&data[flat*4])))
	case Int64:
		return float64(*(*int64)(unsafe.Pointer(&data[flat*8])))
	default:
		panic("unknown data type")
	}
}

// SetAt stores a float64 value at the given multi-index, converting to the
// tensor's dtype. Panics on arity or bounds violations.
func (r *RawTensor) SetAt(value float64, index ...int) {
	r.ensureHost()
	flat := r.flatIndex(index)
	data := r.buffer.data
	switch r.dtype {
	case Float32:
		*(*float32)(unsafe.Pointer(&data[flat*4])) = float32(value)
	case Float64:
		*(*float64)(unsafe.Pointer(&data[flat*8])) = value
	case Int32:
		*(*int32)(unsafe.Pointer(&data[flat*4])) = int32(value)
	case Int64:
		*(*int64)(unsafe.Pointer(&data[flat*8])) = int64(value)
	default:
		panic("unknown data type")
	}
}

// Clone creates a shallow copy of the RawTensor (shares buffer with
// reference counting).
func (r *RawTensor) Clone() *RawTensor {
	r.buffer.addRef()
	return &RawTensor{
		buffer: r.buffer,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		device: r.device,
		offset: r.offset,
		dev:    r.dev,
	}
}

// Release decrements the reference count and deallocates if it reaches 0.
// Device-backed tensors release their device buffer as well.
func (r *RawTensor) Release() {
	r.buffer.release()
	if r.dev != nil {
		r.dev.Release()
	}
}

// IsUnique returns true if this tensor is the only reference to the buffer.
func (r *RawTensor) IsUnique() bool {
	return r.buffer.isUnique()
}

// String returns a human-readable description of the tensor.
func (r *RawTensor) String() string {
	return fmt.Sprintf("tensor[%s]%v on %s", r.dtype, r.shape, r.device)
}
