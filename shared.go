package gokern

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// SharedRegion is block-scoped memory visible to every unit of one block.
// Its content is undefined before the first write. Writes become visible
// to other units after the next SyncBlockUnits. A region must not be used
// after its block retired.
type SharedRegion struct {
	buf []byte
}

// Len returns the region size in bytes.
func (r SharedRegion) Len() int {
	return len(r.buf)
}

// Bytes returns the raw byte view of the region.
func (r SharedRegion) Bytes() []byte {
	return r.buf
}

// Uint32 returns a uint32 view of the region.
func (r SharedRegion) Uint32() []uint32 {
	return viewOf[uint32](r.buf)
}

// Int32 returns an int32 view of the region.
func (r SharedRegion) Int32() []int32 {
	return viewOf[int32](r.buf)
}

// Uint64 returns a uint64 view of the region.
func (r SharedRegion) Uint64() []uint64 {
	return viewOf[uint64](r.buf)
}

// Int64 returns an int64 view of the region.
func (r SharedRegion) Int64() []int64 {
	return viewOf[int64](r.buf)
}

// Float32 returns a float32 view of the region.
func (r SharedRegion) Float32() []float32 {
	return viewOf[float32](r.buf)
}

// Float64 returns a float64 view of the region.
func (r SharedRegion) Float64() []float64 {
	return viewOf[float64](r.buf)
}

// viewOf reinterprets buf as a slice of T. Trailing bytes that do not
// fill a whole element are not part of the view.
func viewOf[T any](buf []byte) []T {
	var zero T
	n := len(buf) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&buf[0])), n)
}

// alignedBytes returns n bytes backed by 8-byte aligned storage so that
// every typed view is naturally aligned for sync/atomic.
func alignedBytes(n int) []byte {
	if n <= 0 {
		return nil
	}
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), n)
}

// arena is a bump allocator over a fixed scratch buffer. The SIMT backend
// keeps one per multiprocessor and resets it between blocks.
type arena struct {
	scratch []byte
	off     int
}

func newArena(size int) *arena {
	return &arena{scratch: alignedBytes(size)}
}

func (a *arena) alloc(n int) ([]byte, bool) {
	start := (a.off + 7) &^ 7
	if n < 0 || start+n > len(a.scratch) {
		return nil, false
	}
	a.off = start + n
	return a.scratch[start : start+n : start+n], true
}

func (a *arena) reset() {
	a.off = 0
}

// block holds the state of one block for the duration of its execution.
type block struct {
	idx    Dim3
	linear int

	dynamic SharedRegion
	arena   *arena
	limit   int // bytes of shared memory available to the block

	mu     sync.Mutex
	static []SharedRegion
	used   int

	failed atomic.Bool // a unit faulted
	broken atomic.Bool // a barrier could not complete
}

func newBlock(idx Dim3, linear, dynSize, limit int, ar *arena) *block {
	b := &block{idx: idx, linear: linear, arena: ar, limit: limit}
	if ar != nil {
		ar.reset()
	}
	buf, ok := b.carve(dynSize)
	if !ok {
		// Executor validated dynSize against the limit already.
		panic(fmt.Sprintf("gokern: dynamic shared memory of %d bytes does not fit %d", dynSize, limit))
	}
	b.dynamic = SharedRegion{buf: buf}
	return b
}

func (b *block) carve(n int) ([]byte, bool) {
	if b.used+n > b.limit {
		return nil, false
	}
	b.used += n
	if b.arena != nil {
		return b.arena.alloc(n)
	}
	return alignedBytes(n), true
}

// staticRegion returns the k-th static allocation of the block, creating
// it on first request. Every unit must request the same sizes in the same
// order.
func (b *block) staticRegion(k, size int) SharedRegion {
	b.mu.Lock()
	defer b.mu.Unlock()
	if k < len(b.static) {
		if r := b.static[k]; r.Len() != size {
			panic(NewInvalidArgError("AllocShared",
				fmt.Sprintf("allocation #%d requested %d bytes, block-mates requested %d", k, size, r.Len())))
		}
		return b.static[k]
	}
	if size < 0 {
		panic(NewInvalidArgError("AllocShared", fmt.Sprintf("negative size %d", size)))
	}
	buf, ok := b.carve(size)
	if !ok {
		panic(NewInvalidArgError("AllocShared",
			fmt.Sprintf("%d bytes exceed block shared memory (%d of %d in use)", size, b.used, b.limit)))
	}
	r := SharedRegion{buf: buf}
	b.static = append(b.static, r)
	return r
}

// release drops the block's shared memory.
func (b *block) release() {
	b.mu.Lock()
	b.dynamic = SharedRegion{}
	b.static = nil
	b.mu.Unlock()
	if b.arena != nil {
		b.arena.reset()
	}
}
