package gokern

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemcpyRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ctx *Context) {
		src := []float32{1, 2, 3, 4, 5}
		dev := mallocOrFail(t, ctx, Accelerator, len(src)*4)
		require.NoError(t, ctx.Memcpy(dev, src, len(src)*4))

		dev2 := mallocOrFail(t, ctx, Accelerator, len(src)*4)
		require.NoError(t, ctx.Memcpy(dev2, dev, len(src)*4))

		host := mallocOrFail(t, ctx, Host, len(src)*4)
		require.NoError(t, ctx.Memcpy(host, dev2, len(src)*4))

		dst := make([]float32, len(src))
		require.NoError(t, ctx.Memcpy(dst, host, len(src)*4))
		assert.Equal(t, src, dst)
	})
}

func TestMemcpyKinds(t *testing.T) {
	pool := NewMemoryPool(Accelerator, 1<<20)
	dev, err := pool.Allocate(16)
	require.NoError(t, err)
	host := NewMemoryPool(Host, 1<<20)
	h, err := host.Allocate(16)
	require.NoError(t, err)

	tests := []struct {
		dst, src interface{}
		want     MemcpyKind
	}{
		{make([]byte, 16), make([]int64, 2), MemcpyHostToHost},
		{h, make([]uint64, 2), MemcpyHostToHost},
		{dev, make([]int32, 4), MemcpyHostToAccelerator},
		{make([]float64, 2), dev, MemcpyAcceleratorToHost},
		{dev, dev, MemcpyAcceleratorToAccelerator},
	}
	for _, tt := range tests {
		kind, err := memcpy(tt.dst, tt.src, 16)
		require.NoError(t, err)
		assert.Equal(t, tt.want, kind, "%s", tt.want)
	}
}

func TestMemcpyErrors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ctx *Context) {
		buf := mallocOrFail(t, ctx, Accelerator, 8)

		err := ctx.Memcpy(buf, make([]uint32, 4), 16)
		assert.True(t, errors.Is(err, ErrSizeMismatch), "got %v", err)
		assert.True(t, IsInvalidArgError(err))

		err = ctx.Memcpy(make([]uint32, 1), buf, 8)
		assert.True(t, errors.Is(err, ErrSizeMismatch), "got %v", err)

		err = ctx.Memcpy(buf, "not memory", 4)
		assert.True(t, IsInvalidArgError(err))

		err = ctx.Memcpy(buf, make([]byte, 8), -1)
		assert.True(t, IsInvalidArgError(err))
	})
}

func TestMallocOutOfMemory(t *testing.T) {
	cfg := testConfig()
	cfg.AcceleratorMemLimit = 4096
	reg := newTestRegistry(t, cfg, AllBackends()...)
	for _, b := range AllBackends() {
		t.Run(b.String(), func(t *testing.T) {
			dev, err := reg.DeviceFor(b)
			require.NoError(t, err)
			assert.Equal(t, uint64(4096), dev.Props().GlobalMemBytes)

			ctx := NewContext(dev)
			defer ctx.Destroy()

			_, err = ctx.Malloc(Accelerator, 8192)
			assert.True(t, errors.Is(err, ErrOutOfMemory), "got %v", err)
			assert.True(t, IsMemoryError(err))

			a, err := ctx.Malloc(Accelerator, 3000)
			require.NoError(t, err)
			_, err = ctx.Malloc(Accelerator, 2000)
			assert.True(t, errors.Is(err, ErrOutOfMemory))

			require.NoError(t, ctx.Free(a))
			c, err := ctx.Malloc(Accelerator, 2000)
			require.NoError(t, err)
			require.NoError(t, ctx.Free(c))
		})
	}
}

func TestMemoryPool(t *testing.T) {
	pool := NewMemoryPool(Accelerator, 1<<20)

	_, err := pool.Allocate(0)
	assert.True(t, errors.Is(err, ErrInvalidSize))

	a, err := pool.Allocate(100)
	require.NoError(t, err)
	assert.Equal(t, 100, a.Size())
	assert.Equal(t, Accelerator, a.Space())
	assert.Len(t, a.Uint32(), 25)

	used, peak := pool.Stats()
	assert.Equal(t, int64(128), used)
	assert.Equal(t, int64(128), peak)

	require.NoError(t, pool.Free(a))
	assert.True(t, errors.Is(pool.Free(a), ErrDoubleFree))

	// Freed memory is reused.
	b, err := pool.Allocate(64)
	require.NoError(t, err)
	assert.Equal(t, a.key(), b.key())

	used, peak = pool.Stats()
	assert.Equal(t, int64(128), used)
	assert.Equal(t, int64(128), peak)

	assert.True(t, IsMemoryError(pool.Free(Buffer{space: Accelerator, data: make([]byte, 8)})))
	assert.True(t, IsInvalidArgError(pool.Free(Buffer{space: Host, data: b.data})))
	assert.Equal(t, int64(1<<20), pool.Capacity())
}

func TestBufferViews(t *testing.T) {
	pool := NewMemoryPool(Host, 1<<10)
	buf, err := pool.Allocate(32)
	require.NoError(t, err)

	buf.Float64()[1] = 2.5
	assert.Equal(t, 2.5, buf.Offset(8).Float64()[0])
	assert.Len(t, buf.Int64(), 4)
	assert.Len(t, buf.Int32(), 8)
	assert.Len(t, buf.Bytes(), 32)
	assert.Equal(t, 24, buf.Offset(8).Size())
}

func TestMemcpyWaitsForLaunches(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ctx *Context) {
		out := zeroed(t, ctx, 256)
		k := KernelFunc(func(acc *Acc, args ...interface{}) error {
			o := args[0].(Buffer).Uint32()
			i := acc.LinearIdx(Global)
			o[i] += uint32(i)
			return nil
		})
		wd := NewWorkDiv(Dim1(4), Dim1(64))
		for i := 0; i < 3; i++ {
			require.NoError(t, ctx.Launch(k, wd, out))
		}

		got := make([]uint32, 256)
		require.NoError(t, ctx.Memcpy(got, out, 256*4))
		for i, v := range got {
			assert.Equal(t, uint32(3*i), v)
		}
		assert.NoError(t, ctx.Synchronize())
	})
}
