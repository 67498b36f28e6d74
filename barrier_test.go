package gokern

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mirrorKernel has every unit write its index into shared memory, and
// after a barrier read the mirrored cell. It runs two rounds to exercise
// barrier reuse.
func mirrorKernel(acc *Acc, args ...interface{}) error {
	out := args[0].(Buffer).Uint32()
	n := acc.Size(Block)
	u := acc.LinearIdx(Block)
	shared := acc.AllocShared(n * 4).Uint32()

	shared[u] = uint32(u + 1)
	acc.SyncBlockUnits()
	mirrored := shared[n-1-u]
	acc.SyncBlockUnits()

	shared[u] = mirrored * 2
	acc.SyncBlockUnits()
	out[acc.LinearIdx(Grid)*n+u] = shared[n-1-u]
	return nil
}

func TestBarrierMirror(t *testing.T) {
	sizes := []int{1, 2, 3, 17, 64, 256, 1024}
	forEachBackend(t, func(t *testing.T, ctx *Context) {
		for _, n := range sizes {
			if testing.Short() && n > 256 {
				continue
			}
			t.Run(fmt.Sprint(n), func(t *testing.T) {
				const blocks = 2
				out := zeroed(t, ctx, blocks*n)
				require.NoError(t, ctx.ExecuteFunc(mirrorKernel, NewWorkDiv(Dim1(blocks), Dim1(n)), out))

				got := make([]uint32, blocks*n)
				require.NoError(t, ctx.Memcpy(got, out, blocks*n*4))
				for b := 0; b < blocks; b++ {
					for u := 0; u < n; u++ {
						// two mirrored reads cancel out, leaving the doubled first write
						require.Equal(t, uint32(2*(u+1)), got[b*n+u], "block %d unit %d", b, u)
					}
				}
			})
		}
	})
}

func TestStaticSharedAllocations(t *testing.T) {
	const n = 16
	forEachBackend(t, func(t *testing.T, ctx *Context) {
		out := mallocOrFail(t, ctx, Accelerator, 2*8)
		err := ctx.ExecuteFunc(func(acc *Acc, args ...interface{}) error {
			u := acc.LinearIdx(Block)
			ints := acc.AllocShared(n * 4)
			floats := acc.AllocShared(n * 8)
			if ints.Len() != n*4 || floats.Len() != n*8 {
				return fmt.Errorf("region sizes %d and %d", ints.Len(), floats.Len())
			}
			if &ints.Bytes()[0] == &floats.Bytes()[0] {
				return fmt.Errorf("static allocations alias")
			}
			ints.Int32()[u] = int32(u)
			floats.Float64()[u] = float64(u) / 2
			acc.SyncBlockUnits()
			if u == 0 {
				var si int32
				var sf float64
				for i := 0; i < n; i++ {
					si += ints.Int32()[i]
					sf += floats.Float64()[i]
				}
				o := args[0].(Buffer).Float64()
				o[acc.LinearIdx(Grid)] = float64(si) + sf
			}
			return nil
		}, NewWorkDiv(Dim1(2), Dim1(n)), out)
		require.NoError(t, err)

		got := make([]float64, 2)
		require.NoError(t, ctx.Memcpy(got, out, 16))
		// 120 + 60
		assert.Equal(t, []float64{180, 180}, got)
	})
}

func TestDynamicSharedMem(t *testing.T) {
	k := WithSharedMem(KernelFunc(func(acc *Acc, args ...interface{}) error {
		shared := acc.SharedMem()
		if shared.Len() != acc.Size(Block)*8 {
			return fmt.Errorf("dynamic region of %d bytes", shared.Len())
		}
		shared.Uint64()[acc.LinearIdx(Block)] = 1
		return nil
	}), func(wd WorkDiv, args ...interface{}) int { return wd.BlockSize() * 8 })

	forEachBackend(t, func(t *testing.T, ctx *Context) {
		assert.NoError(t, ctx.Execute(k, NewWorkDiv(Dim1(3), Dim2(4, 4))))

		err := ctx.ExecuteFunc(func(acc *Acc, args ...interface{}) error {
			if acc.SharedMem().Len() != 0 {
				return fmt.Errorf("unexpected dynamic region")
			}
			return nil
		}, NewWorkDiv(Dim1(1), Dim1(2)))
		assert.NoError(t, err)
	})
}

func TestSharedMemOverflowFaults(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ctx *Context) {
		limit := ctx.Device().Props().SharedMemPerBlock
		k := WithSharedMem(KernelFunc(func(acc *Acc, args ...interface{}) error {
			acc.AllocShared(8)
			return nil
		}), func(WorkDiv, ...interface{}) int { return limit })

		err := ctx.Execute(k, NewWorkDiv(Dim1(2), Dim1(2)))
		require.Error(t, err)
		var ke *KernelError
		assert.ErrorAs(t, err, &ke)
		assert.True(t, IsInvalidArgError(err), "got %v", err)
	})
}

func TestStaticSharedSizeMismatchFaults(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ctx *Context) {
		err := ctx.ExecuteFunc(func(acc *Acc, args ...interface{}) error {
			acc.AllocShared(8 * (acc.LinearIdx(Block) + 1))
			return nil
		}, NewWorkDiv(Dim1(1), Dim1(2)))
		assert.True(t, IsExecutionError(err), "got %v", err)
	})
}

func TestSIMTArenaReuse(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 2
	cfg.SIMTSharedMem = 1024
	reg := newTestRegistry(t, cfg, SIMT)
	dev, err := reg.DeviceFor(SIMT)
	require.NoError(t, err)
	assert.Equal(t, 1024, dev.Props().SharedMemPerBlock)

	ctx := NewContext(dev)
	defer ctx.Destroy()

	// Many more blocks than multiprocessors, each using the whole arena.
	out := zeroed(t, ctx, 64)
	err = ctx.ExecuteFunc(func(acc *Acc, args ...interface{}) error {
		shared := acc.AllocShared(1024).Uint32()
		shared[acc.LinearIdx(Block)] = uint32(acc.LinearIdx(Grid))
		acc.SyncBlockUnits()
		if acc.LinearIdx(Block) == 0 {
			var sum uint32
			for i := 0; i < acc.Size(Block); i++ {
				sum += shared[i]
			}
			args[0].(Buffer).Uint32()[acc.LinearIdx(Grid)] = sum
		}
		return nil
	}, NewWorkDiv(Dim1(64), Dim1(4)), out)
	require.NoError(t, err)

	got := make([]uint32, 64)
	require.NoError(t, ctx.Memcpy(got, out, 64*4))
	for b, v := range got {
		assert.Equal(t, uint32(4*b), v, "block %d", b)
	}

	err = ctx.ExecuteFunc(func(acc *Acc, args ...interface{}) error {
		acc.AllocShared(1025)
		return nil
	}, NewWorkDiv(Dim1(1), Dim1(1)))
	assert.True(t, IsInvalidArgError(err))
}

func TestRendezvous(t *testing.T) {
	const n, rounds = 5, 3
	r := newRendezvous(n)
	var mu sync.Mutex
	phase := make([]int, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(u int) {
			defer wg.Done()
			for k := 0; k < rounds; k++ {
				mu.Lock()
				phase[u] = k
				mu.Unlock()
				r.wait(u)
				mu.Lock()
				for _, p := range phase {
					assert.GreaterOrEqual(t, p, k)
				}
				mu.Unlock()
				r.wait(u)
			}
			r.retire()
		}(i)
	}
	wg.Wait()
	assert.False(t, r.broken)
}

func TestRendezvousBrokenByRetire(t *testing.T) {
	r := newRendezvous(2)
	done := make(chan interface{})
	go func() {
		defer func() { done <- recover() }()
		r.wait(0)
	}()
	r.retire()
	assert.Equal(t, errBarrierBroken, <-done)
	assert.PanicsWithValue(t, errBarrierBroken, func() { r.wait(1) })
}

func TestRunCooperative(t *testing.T) {
	var trace []string
	runCooperative(3, func(unit int, bs blockSync) {
		trace = append(trace, fmt.Sprintf("a%d", unit))
		bs.wait(unit)
		trace = append(trace, fmt.Sprintf("b%d", unit))
	})
	assert.Equal(t, []string{"a0", "a1", "a2", "b0", "b1", "b2"}, trace)

	broken := make([]bool, 3)
	runCooperative(3, func(unit int, bs blockSync) {
		if unit == 1 {
			return
		}
		defer func() {
			if r := recover(); r == errBarrierBroken {
				broken[unit] = true
			}
		}()
		bs.wait(unit)
	})
	assert.Equal(t, []bool{true, false, true}, broken)
}
