package gokern

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

// MemorySpace names the storage domain a Buffer lives in.
type MemorySpace int

const (
	Host        MemorySpace = iota // Host memory
	Accelerator                    // Device-global memory of the accelerator
)

func (s MemorySpace) String() string {
	switch s {
	case Host:
		return "Host"
	case Accelerator:
		return "Accelerator"
	default:
		return fmt.Sprintf("MemorySpace(%d)", int(s))
	}
}

// MemcpyKind specifies the direction of memory transfer. It is inferred
// from the operands of Memcpy.
type MemcpyKind int

const (
	MemcpyHostToHost               MemcpyKind = iota // Host to host transfer
	MemcpyHostToAccelerator                          // Host to accelerator transfer
	MemcpyAcceleratorToHost                          // Accelerator to host transfer
	MemcpyAcceleratorToAccelerator                   // Accelerator to accelerator transfer
)

func (k MemcpyKind) String() string {
	switch k {
	case MemcpyHostToHost:
		return "HostToHost"
	case MemcpyHostToAccelerator:
		return "HostToAccelerator"
	case MemcpyAcceleratorToHost:
		return "AcceleratorToHost"
	case MemcpyAcceleratorToAccelerator:
		return "AcceleratorToAccelerator"
	default:
		return fmt.Sprintf("MemcpyKind(%d)", int(k))
	}
}

func memcpyKind(dst, src MemorySpace) MemcpyKind {
	switch {
	case src == Host && dst == Host:
		return MemcpyHostToHost
	case src == Host:
		return MemcpyHostToAccelerator
	case dst == Host:
		return MemcpyAcceleratorToHost
	default:
		return MemcpyAcceleratorToAccelerator
	}
}

// Buffer is a region of memory in one memory space. Buffers are owned by
// the caller that allocated them until freed; a freed Buffer must not be
// used again. Copies between buffers are value copies.
type Buffer struct {
	space MemorySpace
	data  []byte
}

// Space returns the memory space of the buffer.
func (b Buffer) Space() MemorySpace {
	return b.space
}

// Size returns the size in bytes of the memory region
func (b Buffer) Size() int {
	return len(b.data)
}

// Bytes returns a byte slice view of the buffer.
func (b Buffer) Bytes() []byte {
	return b.data
}

// Uint32 returns a uint32 slice view of the buffer.
func (b Buffer) Uint32() []uint32 {
	return viewOf[uint32](b.data)
}

// Int32 returns an int32 slice view of the buffer.
func (b Buffer) Int32() []int32 {
	return viewOf[int32](b.data)
}

// Uint64 returns a uint64 slice view of the buffer.
func (b Buffer) Uint64() []uint64 {
	return viewOf[uint64](b.data)
}

// Int64 returns an int64 slice view of the buffer.
func (b Buffer) Int64() []int64 {
	return viewOf[int64](b.data)
}

// Float32 returns a float32 slice view of the buffer.
//
// Example:
//
//	buf, _ := ctx.Malloc(gokern.Accelerator, 1024*4)
//	data := buf.Float32()
//	data[0] = 3.14
func (b Buffer) Float32() []float32 {
	return viewOf[float32](b.data)
}

// Float64 returns a float64 slice view of the buffer.
func (b Buffer) Float64() []float64 {
	return viewOf[float64](b.data)
}

// Offset returns a Buffer starting the given number of bytes into b. The
// result shares memory with b and must not be freed.
func (b Buffer) Offset(bytes int) Buffer {
	return Buffer{space: b.space, data: b.data[bytes:]}
}

func (b Buffer) key() uintptr {
	if cap(b.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b.data)))
}

// MemoryPool manages the memory of one space with free-list reuse. The
// bytes in use never exceed its capacity.
type MemoryPool struct {
	space    MemorySpace
	capacity int64

	mu         sync.Mutex
	allocated  map[uintptr]*allocation
	freeList   []*allocation
	totalAlloc int64
	peakAlloc  int64
}

type allocation struct {
	buf  []byte
	used bool
}

// NewMemoryPool creates a pool for space holding at most capacity bytes.
func NewMemoryPool(space MemorySpace, capacity int64) *MemoryPool {
	return &MemoryPool{
		space:     space,
		capacity:  capacity,
		allocated: make(map[uintptr]*allocation),
	}
}

// Allocate allocates size bytes, rounded up internally to MemoryAlignment.
// The content of the returned buffer is undefined.
func (mp *MemoryPool) Allocate(size int) (Buffer, error) {
	if size <= 0 {
		return Buffer{}, errors.Wrapf(ErrInvalidSize, "%s: %d bytes", mp.space, size)
	}
	alignedSize := (size + MemoryAlignment - 1) &^ (MemoryAlignment - 1)

	mp.mu.Lock()
	defer mp.mu.Unlock()

	// Try to reuse from free list
	for i, alloc := range mp.freeList {
		if len(alloc.buf) >= alignedSize {
			if mp.totalAlloc+int64(len(alloc.buf)) > mp.capacity {
				break
			}
			mp.freeList = append(mp.freeList[:i], mp.freeList[i+1:]...)
			alloc.used = true
			mp.track(len(alloc.buf))
			return Buffer{space: mp.space, data: alloc.buf[:size]}, nil
		}
	}

	if mp.totalAlloc+int64(alignedSize) > mp.capacity {
		return Buffer{}, errors.Wrapf(ErrOutOfMemory, "%s: %d bytes requested, %d of %d in use",
			mp.space, size, mp.totalAlloc, mp.capacity)
	}

	buf := alignedBytes(alignedSize)
	alloc := &allocation{buf: buf, used: true}
	mp.allocated[uintptr(unsafe.Pointer(&buf[0]))] = alloc
	mp.track(alignedSize)

	return Buffer{space: mp.space, data: buf[:size]}, nil
}

func (mp *MemoryPool) track(n int) {
	mp.totalAlloc += int64(n)
	if mp.totalAlloc > mp.peakAlloc {
		mp.peakAlloc = mp.totalAlloc
	}
}

// Free returns memory to the pool
func (mp *MemoryPool) Free(b Buffer) error {
	if b.space != mp.space {
		return NewInvalidArgError("Free", fmt.Sprintf("%s buffer freed to %s pool", b.space, mp.space))
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()

	alloc, ok := mp.allocated[b.key()]
	if !ok {
		return NewMemoryError("Free", "pointer not found in allocation pool", nil)
	}

	if !alloc.used {
		return ErrDoubleFree
	}

	alloc.used = false
	mp.freeList = append(mp.freeList, alloc)
	mp.totalAlloc -= int64(len(alloc.buf))

	return nil
}

// Stats returns the bytes in use and the peak in bytes.
func (mp *MemoryPool) Stats() (allocated, peak int64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.totalAlloc, mp.peakAlloc
}

// Capacity returns the most bytes the pool hands out at once.
func (mp *MemoryPool) Capacity() int64 {
	return mp.capacity
}

// hostBytes returns the byte view and memory space of a Memcpy operand.
func hostBytes(v interface{}) ([]byte, MemorySpace, bool) {
	switch d := v.(type) {
	case Buffer:
		return d.data, d.space, true
	case []byte:
		return d, Host, true
	case []uint32:
		return sliceBytes(d), Host, true
	case []int32:
		return sliceBytes(d), Host, true
	case []uint64:
		return sliceBytes(d), Host, true
	case []int64:
		return sliceBytes(d), Host, true
	case []float32:
		return sliceBytes(d), Host, true
	case []float64:
		return sliceBytes(d), Host, true
	}
	return nil, Host, false
}

func sliceBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}

// memcpy copies size bytes from src to dst. Both operands are a Buffer or
// a host slice.
func memcpy(dst, src interface{}, size int) (MemcpyKind, error) {
	d, dspace, ok := hostBytes(dst)
	if !ok {
		return 0, NewInvalidArgError("Memcpy", fmt.Sprintf("unsupported dst type: %T", dst))
	}
	s, sspace, ok := hostBytes(src)
	if !ok {
		return 0, NewInvalidArgError("Memcpy", fmt.Sprintf("unsupported src type: %T", src))
	}
	if size < 0 {
		return 0, NewInvalidArgError("Memcpy", fmt.Sprintf("negative size %d", size))
	}
	if size > len(d) || size > len(s) {
		return 0, errors.Wrapf(ErrSizeMismatch, "%d bytes from %d-byte source to %d-byte destination", size, len(s), len(d))
	}
	copy(d[:size], s[:size])
	return memcpyKind(dspace, sspace), nil
}
