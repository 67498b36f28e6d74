package kernels

import (
	"fmt"

	"github.com/LynnColeArt/gokern"
)

// BlockSum fills the block's shared memory with the unit indices, adds
// the mirrored indices after a barrier so every cell holds the block
// size, sums the cells atomically into cell 0 and lets unit 0 store
// cell0 * Mult * mult2 at the block's linear index of the output.
//
// Every block therefore produces blockSize² * Mult * mult2.
//
// Arguments: out gokern.Buffer (uint32 per block), mult2 uint32.
type BlockSum struct {
	Work int    // busy iterations per unit between barriers
	Mult uint32 // factor applied by unit 0
}

// Expected returns the value every block writes for the given launch.
func (k BlockSum) Expected(wd gokern.WorkDiv, mult2 uint32) uint32 {
	n := uint32(wd.BlockSize())
	return n * n * k.Mult * mult2
}

// BlockSharedMemSize reserves one uint32 per unit.
func (k BlockSum) BlockSharedMemSize(wd gokern.WorkDiv, args ...interface{}) int {
	return wd.BlockSize() * 4
}

// Execute implements gokern.Kernel.
func (k BlockSum) Execute(acc *gokern.Acc, args ...interface{}) error {
	if len(args) != 2 {
		return fmt.Errorf("BlockSum: want 2 arguments, got %d", len(args))
	}
	out, ok := args[0].(gokern.Buffer)
	if !ok {
		return fmt.Errorf("BlockSum: output must be a gokern.Buffer, got %T", args[0])
	}
	mult2, ok := args[1].(uint32)
	if !ok {
		return fmt.Errorf("BlockSum: mult2 must be uint32, got %T", args[1])
	}

	n := uint32(acc.Size(gokern.Block))
	idx := uint32(acc.LinearIdx(gokern.Block))
	shared := acc.SharedMem().Uint32()

	sum1 := idx + 1
	for i := 0; i < k.Work; i++ {
		sum1 += uint32(i)
	}
	shared[idx] = sum1

	acc.SyncBlockUnits()

	sum2 := idx
	for i := 0; i < k.Work; i++ {
		sum2 -= uint32(i)
	}
	shared[n-1-idx] += sum2

	acc.SyncBlockUnits()

	if idx > 0 {
		gokern.AtomicOp(acc, gokern.AtomicAdd, &shared[0], shared[idx])
	}

	acc.SyncBlockUnits()

	if idx == 0 {
		out.Uint32()[acc.LinearIdx(gokern.Grid)] = shared[0] * k.Mult * mult2
	}
	return nil
}
