package gokern

import "fmt"

// Acc is the execution context of one unit: its position in the grid and
// block, and the block-level primitives of the backend running it.
//
// An Acc is created fresh for every unit, is owned by that unit, and is
// only valid during the kernel call it was passed to. Using it after the
// call returned, or from another goroutine, is a programmer error.
type Acc struct {
	wd          WorkDiv
	block       *block
	unit        Dim3
	unitLinear  int
	barrier     blockSync
	backend     Backend
	atomics     atomicMode
	warpSize    int
	staticCount int
	retired     bool
}

// Idx returns the per-dimension position of the unit at the given level:
// the block within the grid (Grid), the unit within its block (Block) or
// the unit within the grid (Global).
func (a *Acc) Idx(l Level) Dim3 {
	switch l {
	case Grid:
		return a.block.idx
	case Block:
		return a.unit
	case Global:
		return Dim3{
			X: a.block.idx.X*a.wd.Block.X + a.unit.X,
			Y: a.block.idx.Y*a.wd.Block.Y + a.unit.Y,
			Z: a.block.idx.Z*a.wd.Block.Z + a.unit.Z,
		}
	}
	panic(fmt.Sprintf("gokern: invalid level %d", int(l)))
}

// LinearIdx returns the linearized position at the given level.
func (a *Acc) LinearIdx(l Level) int {
	switch l {
	case Grid:
		return a.block.linear
	case Block:
		return a.unitLinear
	}
	return a.wd.Extent(l).Linear(a.Idx(l))
}

// Extent returns the per-dimension extent of the given level.
func (a *Acc) Extent(l Level) Dim3 {
	return a.wd.Extent(l)
}

// Size returns the linearized extent of the given level.
func (a *Acc) Size(l Level) int {
	return a.wd.Size(l)
}

// WorkDiv returns the work division of the launch.
func (a *Acc) WorkDiv() WorkDiv {
	return a.wd
}

// GlobalX returns the global X index
func (a *Acc) GlobalX() int {
	return a.block.idx.X*a.wd.Block.X + a.unit.X
}

// GlobalY returns the global Y index
func (a *Acc) GlobalY() int {
	return a.block.idx.Y*a.wd.Block.Y + a.unit.Y
}

// GlobalZ returns the global Z index
func (a *Acc) GlobalZ() int {
	return a.block.idx.Z*a.wd.Block.Z + a.unit.Z
}

// Backend returns the backend running the unit.
func (a *Acc) Backend() Backend {
	return a.backend
}

// WarpSize returns the number of lanes per warp; 1 outside SIMT.
func (a *Acc) WarpSize() int {
	return a.warpSize
}

// WarpIdx returns the warp of the unit within its block.
func (a *Acc) WarpIdx() int {
	return a.unitLinear / a.warpSize
}

// LaneIdx returns the lane of the unit within its warp.
func (a *Acc) LaneIdx() int {
	return a.unitLinear % a.warpSize
}

// SyncBlockUnits is the block barrier: no unit of the block proceeds past
// it before every unit of the block reached it. Shared memory writes made
// before the barrier are visible to every unit after it.
//
// Every unit must reach the same sequence of barriers. A unit that
// retires while block-mates wait fails the launch with a deadlock error
// where the backend can observe it.
func (a *Acc) SyncBlockUnits() {
	a.live("SyncBlockUnits")
	a.barrier.wait(a.unitLinear)
}

// SharedMem returns the block's dynamic shared region, sized by the
// kernel's SharedMemSizer. It is empty for kernels without one.
func (a *Acc) SharedMem() SharedRegion {
	a.live("SharedMem")
	return a.block.dynamic
}

// AllocShared returns a static block shared allocation of size bytes. The
// k-th call in every unit of a block returns the same region, so all
// units must allocate the same sizes in the same order. As with the
// dynamic region, writes are visible to block-mates after a barrier.
func (a *Acc) AllocShared(size int) SharedRegion {
	a.live("AllocShared")
	k := a.staticCount
	a.staticCount++
	return a.block.staticRegion(k, size)
}

func (a *Acc) live(op string) {
	if a.retired {
		panic(NewInvalidArgError(op, "accelerator context used after its unit retired"))
	}
}
