package webgpu

import (
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

// BufferSize represents buffer size categories for pooling.
type BufferSize int

const (
	// SmallBuffer for buffers < 4KB.
	SmallBuffer BufferSize = iota
	// MediumBuffer for buffers 4KB-1MB.
	MediumBuffer
	// LargeBuffer for buffers > 1MB.
	LargeBuffer
)

const (
	smallThreshold  = 4 * 1024    // 4KB
	mediumThreshold = 1024 * 1024 // 1MB
	maxPoolSize     = 100         // Max buffers per category
)

// pooledBuffer wraps a GPU buffer with the metadata needed to match it
// against later requests.
type pooledBuffer struct {
	buffer *wgpu.Buffer
	size   uint64
	usage  wgpu.BufferUsage
}

// BufferPool reuses GPU buffers to cut allocation overhead for recurring
// requests, chiefly the staging buffers every readback needs. Buffers are
// categorized by size and matched by usage flags.
type BufferPool struct {
	device *wgpu.Device

	small  []*pooledBuffer
	medium []*pooledBuffer
	large  []*pooledBuffer

	mu sync.Mutex

	totalAllocated uint64
	totalReleased  uint64
	poolHits       uint64
	poolMisses     uint64
}

// NewBufferPool creates a buffer pool for the given device.
func NewBufferPool(device *wgpu.Device) *BufferPool {
	return &BufferPool{
		device: device,
		small:  make([]*pooledBuffer, 0, maxPoolSize),
		medium: make([]*pooledBuffer, 0, maxPoolSize),
		large:  make([]*pooledBuffer, 0, maxPoolSize),
	}
}

// Acquire returns a pooled buffer that matches or exceeds the requested
// size and usage, or creates a new one.
func (p *BufferPool) Acquire(size uint64, usage wgpu.BufferUsage) *wgpu.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	category := p.categorize(size)
	pool := p.getPool(category)

	for i, pb := range pool {
		if pb.size >= size && pb.usage&usage == usage {
			buffer := pb.buffer
			p.removeFromPool(category, i)
			p.poolHits++
			return buffer
		}
	}

	p.poolMisses++
	p.totalAllocated++

	return p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: usage,
		Size:  size,
	})
}

// Release returns a buffer to the pool for reuse. If the pool is full the
// buffer is released immediately.
func (p *BufferPool) Release(buffer *wgpu.Buffer, size uint64, usage wgpu.BufferUsage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalReleased++

	category := p.categorize(size)
	if len(p.getPool(category)) >= maxPoolSize {
		buffer.Release()
		return
	}
	p.addToPool(category, &pooledBuffer{buffer: buffer, size: size, usage: usage})
}

// Clear releases every pooled buffer. Called when the backend shuts down.
func (p *BufferPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pb := range p.small {
		pb.buffer.Release()
	}
	p.small = p.small[:0]
	for _, pb := range p.medium {
		pb.buffer.Release()
	}
	p.medium = p.medium[:0]
	for _, pb := range p.large {
		pb.buffer.Release()
	}
	p.large = p.large[:0]
}

// Stats returns pool usage counters.
func (p *BufferPool) Stats() (allocated, released, hits, misses uint64, pooledCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.totalAllocated, p.totalReleased, p.poolHits, p.poolMisses,
		len(p.small) + len(p.medium) + len(p.large)
}

// categorize determines the size category for a buffer.
func (p *BufferPool) categorize(size uint64) BufferSize {
	if size < smallThreshold {
		return SmallBuffer
	}
	if size < mediumThreshold {
		return MediumBuffer
	}
	return LargeBuffer
}

func (p *BufferPool) getPool(category BufferSize) []*pooledBuffer {
	switch category {
	case SmallBuffer:
		return p.small
	case MediumBuffer:
		return p.medium
	case LargeBuffer:
		return p.large
	default:
		return nil
	}
}

func (p *BufferPool) addToPool(category BufferSize, pb *pooledBuffer) {
	switch category {
	case SmallBuffer:
		p.small = append(p.small, pb)
	case MediumBuffer:
		p.medium = append(p.medium, pb)
	case LargeBuffer:
		p.large = append(p.large, pb)
	}
}

func (p *BufferPool) removeFromPool(category BufferSize, i int) {
	switch category {
	case SmallBuffer:
		p.small = append(p.small[:i], p.small[i+1:]...)
	case MediumBuffer:
		p.medium = append(p.medium[:i], p.medium[i+1:]...)
	case LargeBuffer:
		p.large = append(p.large[:i], p.large[i+1:]...)
	}
}
