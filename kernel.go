package gokern

// Kernel represents a compute kernel. Execute runs once per unit of the
// work division; acc identifies the unit and gives access to barriers,
// shared memory and atomics. Implementations must be safe for concurrent
// use as most backends call Execute from many goroutines at once.
//
// A non-nil error, or a panic, is a fault of that unit and fails the
// whole launch with a *KernelError.
type Kernel interface {
	Execute(acc *Acc, args ...interface{}) error
}

// KernelFunc is a function that can be launched as a kernel.
type KernelFunc func(acc *Acc, args ...interface{}) error

// Execute implements Kernel.
func (fn KernelFunc) Execute(acc *Acc, args ...interface{}) error {
	return fn(acc, args...)
}

// SharedMemSizer is implemented by kernels that need dynamic block shared
// memory. BlockSharedMemSize is consulted once per launch, before any
// block starts, and must be a pure function of its arguments.
type SharedMemSizer interface {
	BlockSharedMemSize(wd WorkDiv, args ...interface{}) int
}

// WithSharedMem attaches a dynamic shared memory size function to a
// kernel that does not implement SharedMemSizer itself.
func WithSharedMem(k Kernel, size func(wd WorkDiv, args ...interface{}) int) Kernel {
	return sizedKernel{Kernel: k, size: size}
}

type sizedKernel struct {
	Kernel
	size func(wd WorkDiv, args ...interface{}) int
}

func (k sizedKernel) BlockSharedMemSize(wd WorkDiv, args ...interface{}) int {
	return k.size(wd, args...)
}
