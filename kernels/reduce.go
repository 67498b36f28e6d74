package kernels

import (
	"github.com/LynnColeArt/gokern"
)

// SumFloat32 is a tree reduction: each block sums its slice of x in
// shared memory, then unit 0 adds the partial sum to result[0]
// atomically. result[0] must be zeroed before the launch.
//
// Arguments: x gokern.Buffer (float32), n int, result gokern.Buffer (float32).
type SumFloat32 struct{}

// BlockSharedMemSize reserves one float32 per unit.
func (SumFloat32) BlockSharedMemSize(wd gokern.WorkDiv, args ...interface{}) int {
	return wd.BlockSize() * 4
}

// Execute implements gokern.Kernel.
func (SumFloat32) Execute(acc *gokern.Acc, args ...interface{}) error {
	x := args[0].(gokern.Buffer).Float32()
	n := args[1].(int)
	result := args[2].(gokern.Buffer).Float32()

	tid := acc.LinearIdx(gokern.Block)
	size := acc.Size(gokern.Block)
	shared := acc.SharedMem().Float32()

	v := float32(0)
	if gid := acc.LinearIdx(gokern.Global); gid < n {
		v = x[gid]
	}
	shared[tid] = v
	acc.SyncBlockUnits()

	for stride := ceilPow2(size) / 2; stride > 0; stride /= 2 {
		if tid < stride && tid+stride < size {
			shared[tid] += shared[tid+stride]
		}
		acc.SyncBlockUnits()
	}

	if tid == 0 {
		gokern.AtomicOp(acc, gokern.AtomicAdd, &result[0], shared[0])
	}
	return nil
}

func ceilPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Sum reduces the first n float32 values of x on ctx's device.
func Sum(ctx *gokern.Context, x gokern.Buffer, n int) (float32, error) {
	result, err := ctx.Malloc(gokern.Accelerator, 4)
	if err != nil {
		return 0, err
	}
	defer ctx.Free(result)

	zero := []float32{0}
	if err := ctx.Memcpy(result, zero, 4); err != nil {
		return 0, err
	}
	if err := ctx.Execute(SumFloat32{}, Launch1D(n, gokern.DefaultBlockSize), x, n, result); err != nil {
		return 0, err
	}
	out := make([]float32, 1)
	if err := ctx.Memcpy(out, result, 4); err != nil {
		return 0, err
	}
	return out[0], nil
}
