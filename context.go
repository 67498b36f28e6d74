package gokern

import (
	"math"
	"sync"
	"sync/atomic"
)

// Context represents an execution context on one device. It owns the
// device's executor, one memory pool per memory space and the streams
// used for asynchronous launches. A Context should be destroyed when no
// longer needed.
type Context struct {
	device *Device
	exec   *Executor
	memory map[MemorySpace]*MemoryPool

	mu            sync.Mutex
	streams       map[int]*Stream
	streamID      int32
	defaultStream *Stream
	destroyed     bool
}

// Stream represents an ordered sequence of launches. Launches within a
// stream run in order; launches in different streams may overlap.
type Stream struct {
	id    int
	tasks chan func() error
	done  chan struct{}

	mu      sync.Mutex
	cond    *sync.Cond
	pending int
	closed  bool
	err     error
}

// NewContext creates a context on dev.
func NewContext(dev *Device) *Context {
	props := dev.Props()
	hostCap := systemMemory()
	ctx := &Context{
		device: dev,
		exec:   NewExecutor(dev),
		memory: map[MemorySpace]*MemoryPool{
			Host:        NewMemoryPool(Host, clampInt64(hostCap)),
			Accelerator: NewMemoryPool(Accelerator, clampInt64(props.GlobalMemBytes)),
		},
		streams: make(map[int]*Stream),
	}
	ctx.defaultStream = ctx.CreateStream()
	return ctx
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// Device returns the context's device.
func (ctx *Context) Device() *Device {
	return ctx.device
}

// Malloc allocates size bytes in the given memory space.
//
// Example:
//
//	buf, err := ctx.Malloc(gokern.Accelerator, 1024*4) // 1024 float32s
//	if err != nil {
//		return err
//	}
//	defer ctx.Free(buf)
func (ctx *Context) Malloc(space MemorySpace, size int) (Buffer, error) {
	pool, ok := ctx.memory[space]
	if !ok {
		return Buffer{}, NewInvalidArgError("Malloc", "unknown memory space "+space.String())
	}
	return pool.Allocate(size)
}

// Free releases a buffer allocated by Malloc.
func (ctx *Context) Free(buf Buffer) error {
	pool, ok := ctx.memory[buf.space]
	if !ok {
		return NewInvalidArgError("Free", "unknown memory space "+buf.space.String())
	}
	return pool.Free(buf)
}

// MemoryStats returns the bytes in use and the peak for a memory space.
func (ctx *Context) MemoryStats(space MemorySpace) (allocated, peak int64) {
	if pool, ok := ctx.memory[space]; ok {
		return pool.Stats()
	}
	return 0, 0
}

// Memcpy copies size bytes from src to dst. Each operand is a Buffer of
// either memory space or a host slice ([]byte, []uint32, []int32,
// []uint64, []int64, []float32, []float64).
//
// Memcpy first waits for every launch issued on the device before the
// call, from this or any other context, so kernels writing the source have
// finished before the copy is observed. Errors of those launches stay with
// their streams. Memcpy must not be called from inside a kernel.
//
// Example:
//
//	h := make([]float32, 1024)
//	d, _ := ctx.Malloc(gokern.Accelerator, 1024*4)
//	ctx.Memcpy(d, h, 1024*4)
func (ctx *Context) Memcpy(dst, src interface{}, size int) error {
	ctx.device.waitLaunches()
	kind, err := memcpy(dst, src, size)
	if err != nil {
		return err
	}
	Logger().Debug("gokern: memcpy", "kind", kind.String(), "bytes", size)
	return nil
}

// Execute runs a kernel synchronously. It waits for launches issued on
// the device earlier first.
func (ctx *Context) Execute(kernel Kernel, wd WorkDiv, args ...interface{}) error {
	if ctx.isDestroyed() {
		return ErrContextDestroyed
	}
	ctx.device.waitLaunches()
	return ctx.exec.Execute(kernel, wd, args...)
}

// ExecuteFunc runs a kernel function synchronously.
func (ctx *Context) ExecuteFunc(fn KernelFunc, wd WorkDiv, args ...interface{}) error {
	return ctx.Execute(fn, wd, args...)
}

// Launch queues a kernel on the default stream. Invalid launches are
// reported immediately; execution errors are reported by Synchronize.
func (ctx *Context) Launch(kernel Kernel, wd WorkDiv, args ...interface{}) error {
	return ctx.LaunchStream(ctx.defaultStream, kernel, wd, args...)
}

// LaunchStream queues a kernel on a specific stream. It fails with
// ErrContextDestroyed once the context or the stream was destroyed.
func (ctx *Context) LaunchStream(stream *Stream, kernel Kernel, wd WorkDiv, args ...interface{}) error {
	if kernel == nil {
		return NewInvalidArgError("Launch", "nil kernel")
	}
	if ctx.isDestroyed() {
		return ErrContextDestroyed
	}
	if stream == nil {
		stream = ctx.defaultStream
	}
	l, err := ctx.exec.prepare(kernel, wd, args)
	if err != nil {
		return err
	}
	dev := ctx.device
	t := dev.beginLaunch()
	err = stream.Submit(func() error {
		defer dev.endLaunch(t)
		return ctx.exec.run(l)
	})
	if err != nil {
		dev.endLaunch(t)
	}
	return err
}

func (ctx *Context) isDestroyed() bool {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.destroyed
}

// CreateStream creates a new execution stream. Streams created on a
// destroyed context reject every launch.
func (ctx *Context) CreateStream() *Stream {
	id := int(atomic.AddInt32(&ctx.streamID, 1))
	stream := &Stream{
		id:    id,
		tasks: make(chan func() error, 1000),
		done:  make(chan struct{}),
	}
	stream.cond = sync.NewCond(&stream.mu)

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.destroyed {
		stream.closed = true
		close(stream.done)
		return stream
	}
	go stream.worker()
	ctx.streams[id] = stream
	return stream
}

// Synchronize waits for all streams and returns the first error any of
// them recorded.
func (ctx *Context) Synchronize() error {
	var first error
	for _, stream := range ctx.snapshot() {
		if err := stream.Synchronize(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (ctx *Context) snapshot() []*Stream {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	streams := make([]*Stream, 0, len(ctx.streams))
	for _, s := range ctx.streams {
		streams = append(streams, s)
	}
	return streams
}

// Destroy waits for queued work and stops the streams. Later launches
// fail with ErrContextDestroyed. The device stays usable by other
// contexts. Calling Destroy more than once is safe.
func (ctx *Context) Destroy() {
	ctx.mu.Lock()
	streams := ctx.streams
	ctx.streams = make(map[int]*Stream)
	ctx.destroyed = true
	ctx.mu.Unlock()
	for _, s := range streams {
		s.close()
	}
}

// Stream methods

// ID returns the stream identifier.
func (s *Stream) ID() int {
	return s.id
}

// worker processes tasks for a stream
func (s *Stream) worker() {
	defer close(s.done)
	for task := range s.tasks {
		err := task()
		s.mu.Lock()
		if err != nil && s.err == nil {
			s.err = err
		}
		s.pending--
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// Synchronize waits for all tasks in the stream to complete and returns
// the first error recorded since the previous Synchronize.
func (s *Stream) Synchronize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.cond.Wait()
	}
	err := s.err
	s.err = nil
	return err
}

// Submit adds a task to the stream. It fails with ErrContextDestroyed
// once the stream was closed.
func (s *Stream) Submit(task func() error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrContextDestroyed
	}
	s.pending++
	s.mu.Unlock()
	// close waits for pending to drop to zero before closing tasks.
	s.tasks <- task
	return nil
}

func (s *Stream) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for s.pending > 0 {
		s.cond.Wait()
	}
	s.mu.Unlock()
	close(s.tasks)
	<-s.done
}

// Package-level helpers operate on a context over the default registry's
// configured backend.

var (
	defaultOnce sync.Once
	defaultCtx  *Context
	defaultErr  error
)

// Default returns the process-wide context on DefaultRegistry's configured
// backend, creating it on first use.
func Default() (*Context, error) {
	defaultOnce.Do(func() {
		reg := DefaultRegistry()
		dev, err := reg.DeviceFor(reg.Config().Backend)
		if err != nil {
			defaultErr = err
			return
		}
		defaultCtx = NewContext(dev)
	})
	return defaultCtx, defaultErr
}

// Malloc allocates memory through the default context.
func Malloc(space MemorySpace, size int) (Buffer, error) {
	ctx, err := Default()
	if err != nil {
		return Buffer{}, err
	}
	return ctx.Malloc(space, size)
}

// Free releases memory through the default context.
func Free(buf Buffer) error {
	ctx, err := Default()
	if err != nil {
		return err
	}
	return ctx.Free(buf)
}

// Memcpy copies memory through the default context.
func Memcpy(dst, src interface{}, size int) error {
	ctx, err := Default()
	if err != nil {
		return err
	}
	return ctx.Memcpy(dst, src, size)
}

// Execute runs a kernel synchronously on the default context.
func Execute(kernel Kernel, wd WorkDiv, args ...interface{}) error {
	ctx, err := Default()
	if err != nil {
		return err
	}
	return ctx.Execute(kernel, wd, args...)
}

// Synchronize waits for every stream of the default context.
func Synchronize() error {
	ctx, err := Default()
	if err != nil {
		return err
	}
	return ctx.Synchronize()
}
