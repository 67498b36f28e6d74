package gokern

import (
	"fmt"
	"math"
	"sync/atomic"
	"unsafe"
)

// AtomicKind names the read-modify-write operation of AtomicOp.
type AtomicKind int

const (
	AtomicAdd  AtomicKind = iota // old + v
	AtomicSub                    // old - v
	AtomicMin                    // min(old, v)
	AtomicMax                    // max(old, v)
	AtomicExch                   // v
	AtomicInc                    // old >= v ? 0 : old+1 (integers only)
	AtomicDec                    // old == 0 || old > v ? v : old-1 (integers only)
	AtomicAnd                    // old & v (integers only)
	AtomicOr                     // old | v (integers only)
	AtomicXor                    // old ^ v (integers only)
)

func (k AtomicKind) String() string {
	names := [...]string{"Add", "Sub", "Min", "Max", "Exch", "Inc", "Dec", "And", "Or", "Xor"}
	if k >= 0 && int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("AtomicKind(%d)", int(k))
}

// Atomic is the set of element types AtomicOp accepts.
type Atomic interface {
	int32 | uint32 | int64 | uint64 | float32 | float64
}

type integer interface {
	int32 | uint32 | int64 | uint64
}

// AtomicOp performs the read-modify-write kind on *addr with operand v and
// returns the previous value. addr may point into a SharedRegion or an
// accelerator Buffer. The update is indivisible with respect to other
// atomics from units of the same block; on every backend except Sequential
// it is also indivisible across blocks. AtomicOp implies no ordering for
// other memory locations.
//
// Bitwise, Inc and Dec kinds on floating point operands panic.
func AtomicOp[T Atomic](acc *Acc, kind AtomicKind, addr *T, v T) T {
	if acc.atomics == atomicPlain {
		old := *addr
		*addr = apply(kind, old, v)
		return old
	}
	switch p := any(addr).(type) {
	case *int32:
		if kind == AtomicAdd {
			return T(atomic.AddInt32(p, int32(v)) - int32(v))
		}
	case *uint32:
		if kind == AtomicAdd {
			return T(atomic.AddUint32(p, uint32(v)) - uint32(v))
		}
	case *int64:
		if kind == AtomicAdd {
			return T(atomic.AddInt64(p, int64(v)) - int64(v))
		}
	case *uint64:
		if kind == AtomicAdd {
			return T(atomic.AddUint64(p, uint64(v)) - uint64(v))
		}
	}
	if kind == AtomicExch {
		return swap(addr, v)
	}
	for {
		old := load(addr)
		if compareAndSwap(addr, old, apply(kind, old, v)) {
			return old
		}
	}
}

// AtomicCas stores v in *addr if it currently holds cmp and returns the
// previous value.
func AtomicCas[T Atomic](acc *Acc, addr *T, cmp, v T) T {
	if acc.atomics == atomicPlain {
		old := *addr
		if old == cmp {
			*addr = v
		}
		return old
	}
	for {
		old := load(addr)
		if old != cmp {
			return old
		}
		if compareAndSwap(addr, old, v) {
			return old
		}
	}
}

func apply[T Atomic](kind AtomicKind, old, v T) T {
	switch kind {
	case AtomicAdd:
		return old + v
	case AtomicSub:
		return old - v
	case AtomicMin:
		if v < old {
			return v
		}
		return old
	case AtomicMax:
		if v > old {
			return v
		}
		return old
	case AtomicExch:
		return v
	}
	switch p := any(&old).(type) {
	case *int32:
		return T(applyInt(kind, *p, int32(v)))
	case *uint32:
		return T(applyInt(kind, *p, uint32(v)))
	case *int64:
		return T(applyInt(kind, *p, int64(v)))
	case *uint64:
		return T(applyInt(kind, *p, uint64(v)))
	}
	panic(fmt.Sprintf("gokern: atomic %s is not defined for %T", kind, old))
}

func applyInt[T integer](kind AtomicKind, old, v T) T {
	switch kind {
	case AtomicInc:
		if old >= v {
			return 0
		}
		return old + 1
	case AtomicDec:
		if old == 0 || old > v {
			return v
		}
		return old - 1
	case AtomicAnd:
		return old & v
	case AtomicOr:
		return old | v
	case AtomicXor:
		return old ^ v
	}
	panic(fmt.Sprintf("gokern: unknown atomic kind %d", int(kind)))
}

func load[T Atomic](addr *T) T {
	switch p := any(addr).(type) {
	case *int32:
		return T(atomic.LoadInt32(p))
	case *uint32:
		return T(atomic.LoadUint32(p))
	case *int64:
		return T(atomic.LoadInt64(p))
	case *uint64:
		return T(atomic.LoadUint64(p))
	case *float32:
		return T(math.Float32frombits(atomic.LoadUint32((*uint32)(unsafe.Pointer(p)))))
	case *float64:
		return T(math.Float64frombits(atomic.LoadUint64((*uint64)(unsafe.Pointer(p)))))
	}
	panic("unreachable")
}

func compareAndSwap[T Atomic](addr *T, old, v T) bool {
	switch p := any(addr).(type) {
	case *int32:
		return atomic.CompareAndSwapInt32(p, int32(old), int32(v))
	case *uint32:
		return atomic.CompareAndSwapUint32(p, uint32(old), uint32(v))
	case *int64:
		return atomic.CompareAndSwapInt64(p, int64(old), int64(v))
	case *uint64:
		return atomic.CompareAndSwapUint64(p, uint64(old), uint64(v))
	case *float32:
		return atomic.CompareAndSwapUint32((*uint32)(unsafe.Pointer(p)),
			math.Float32bits(float32(old)), math.Float32bits(float32(v)))
	case *float64:
		return atomic.CompareAndSwapUint64((*uint64)(unsafe.Pointer(p)),
			math.Float64bits(float64(old)), math.Float64bits(float64(v)))
	}
	panic("unreachable")
}

func swap[T Atomic](addr *T, v T) T {
	switch p := any(addr).(type) {
	case *int32:
		return T(atomic.SwapInt32(p, int32(v)))
	case *uint32:
		return T(atomic.SwapUint32(p, uint32(v)))
	case *int64:
		return T(atomic.SwapInt64(p, int64(v)))
	case *uint64:
		return T(atomic.SwapUint64(p, uint64(v)))
	case *float32:
		return T(math.Float32frombits(atomic.SwapUint32((*uint32)(unsafe.Pointer(p)), math.Float32bits(float32(v)))))
	case *float64:
		return T(math.Float64frombits(atomic.SwapUint64((*uint64)(unsafe.Pointer(p)), math.Float64bits(float64(v)))))
	}
	panic("unreachable")
}
