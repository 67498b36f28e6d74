package gokern

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Executor runs kernels on one device.
type Executor struct {
	dev *Device
}

// NewExecutor returns an executor for dev.
func NewExecutor(dev *Device) *Executor {
	return &Executor{dev: dev}
}

// Device returns the device the executor runs on.
func (e *Executor) Device() *Device {
	return e.dev
}

// Execute runs kernel once for every unit of wd and returns after every
// block retired. Blocks are mutually independent and may run in any order
// or concurrently, depending on the backend.
//
// The first unit fault is returned as a *KernelError; no block is started
// after it, and effects of blocks that already retired are kept. A barrier
// that cannot complete is reported as a deadlock error.
func (e *Executor) Execute(kernel Kernel, wd WorkDiv, args ...interface{}) error {
	if kernel == nil {
		return NewInvalidArgError("Execute", "nil kernel")
	}
	l, err := e.prepare(kernel, wd, args)
	if err != nil {
		return err
	}
	t := e.dev.beginLaunch()
	defer e.dev.endLaunch(t)
	return e.run(l)
}

// prepare validates a launch and sizes its dynamic shared memory.
func (e *Executor) prepare(kernel Kernel, wd WorkDiv, args []interface{}) (*launch, error) {
	props := e.dev.Props()
	if err := wd.Validate(props); err != nil {
		return nil, err
	}
	dyn := 0
	if s, ok := kernel.(SharedMemSizer); ok {
		dyn = s.BlockSharedMemSize(wd, args...)
		if dyn < 0 || dyn > props.SharedMemPerBlock {
			return nil, NewInvalidArgError("Execute",
				fmt.Sprintf("dynamic shared memory of %d bytes outside [0, %d]", dyn, props.SharedMemPerBlock))
		}
	}
	l := &launch{
		kernel:      kernel,
		wd:          wd,
		args:        args,
		dynShared:   dyn,
		sharedLimit: props.SharedMemPerBlock,
		backend:     props.Backend,
		warpSize:    props.WarpSize,
	}
	if props.Backend == Sequential {
		l.atomics = atomicPlain
	}
	return l, nil
}

func (e *Executor) run(l *launch) error {
	if !e.dev.acquire() {
		return ErrDeviceClosed
	}
	defer e.dev.release()

	log := Logger()
	start := time.Now()
	log.Debug("gokern: execute",
		"backend", l.backend.String(),
		"grid", l.wd.Grid.String(),
		"block", l.wd.Block.String(),
		"dynShared", l.dynShared)

	e.dev.engine.run(l)

	if err := l.result(); err != nil {
		log.Warn("gokern: execute failed",
			"backend", l.backend.String(),
			"retired", l.retired.Load(),
			"err", err)
		return err
	}
	log.Debug("gokern: execute done",
		"backend", l.backend.String(),
		"retired", l.retired.Load(),
		"elapsed", time.Since(start))
	return nil
}

// errUnitExited is the fault of a unit whose body ended its goroutine,
// e.g. through runtime.Goexit, instead of returning.
var errUnitExited = errors.New("gokern: kernel body exited without returning")

// launch is the state of one Execute call shared by all of its blocks.
type launch struct {
	kernel      Kernel
	wd          WorkDiv
	args        []interface{}
	dynShared   int
	sharedLimit int
	backend     Backend
	atomics     atomicMode
	warpSize    int

	retired atomic.Int64 // blocks completed
	aborted atomic.Bool

	mu  sync.Mutex
	err error
}

// unitRunner executes body once per unit of an n-unit block.
type unitRunner func(n int, body func(unit int, bs blockSync))

// runBlock executes the block with the given linear index. ar is the
// scratch arena to carve shared memory from, or nil for heap memory.
func (l *launch) runBlock(linear int, ar *arena, units unitRunner) {
	blk := newBlock(l.wd.Grid.Delinear(linear), linear, l.dynShared, l.sharedLimit, ar)
	units(l.wd.BlockSize(), func(unit int, bs blockSync) {
		l.runUnit(blk, unit, bs)
	})
	if blk.broken.Load() && !blk.failed.Load() {
		l.fail(NewDeadlockError("SyncBlockUnits", blk.idx))
	}
	blk.release()
	l.retired.Add(1)
}

func (l *launch) runUnit(blk *block, unit int, bs blockSync) {
	acc := &Acc{
		wd:         l.wd,
		block:      blk,
		unit:       l.wd.Block.Delinear(unit),
		unitLinear: unit,
		barrier:    bs,
		backend:    l.backend,
		atomics:    l.atomics,
		warpSize:   l.warpSize,
	}
	// A body that leaves through runtime.Goexit keeps errUnitExited.
	err := errUnitExited
	defer func() {
		acc.retired = true
		switch {
		case err == nil:
		case err == errBarrierBroken:
			blk.broken.Store(true)
		default:
			blk.failed.Store(true)
			l.fail(&KernelError{
				Backend:     l.backend,
				Block:       blk.idx,
				Unit:        acc.unit,
				BlockLinear: blk.linear,
				UnitLinear:  unit,
				Err:         err,
			})
		}
	}()
	err = l.invoke(acc)
}

// invoke calls the kernel body, turning panics into errors.
func (l *launch) invoke(acc *Acc) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(error); ok {
			if e == errBarrierBroken {
				err = errBarrierBroken
				return
			}
			err = errors.WithStack(e)
			return
		}
		err = errors.Errorf("panic: %v", r)
	}()
	return l.kernel.Execute(acc, l.args...)
}

// fail records the first fault and stops further blocks from starting.
func (l *launch) fail(err error) {
	l.mu.Lock()
	if l.err == nil {
		l.err = err
	}
	l.mu.Unlock()
	l.aborted.Store(true)
}

func (l *launch) result() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *launch) stopped() bool {
	return l.aborted.Load()
}

// runParallel runs every unit on its own goroutine with a counting
// barrier. lockThread pins each unit to an OS thread.
func runParallel(lockThread bool) unitRunner {
	return func(n int, body func(unit int, bs blockSync)) {
		r := newRendezvous(n)
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func(unit int) {
				defer wg.Done()
				defer r.retire()
				if lockThread {
					runtime.LockOSThread()
					defer runtime.UnlockOSThread()
				}
				body(unit, r)
			}(i)
		}
		wg.Wait()
	}
}

// cooperative runs the units of a block one at a time.
func cooperative(n int, body func(unit int, bs blockSync)) {
	runCooperative(n, body)
}
