package gokern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Workers = 4
	return cfg
}

// newTestRegistry returns an initialized registry that is shut down when
// the test ends.
func newTestRegistry(t testing.TB, cfg Config, backends ...Backend) *Registry {
	t.Helper()
	reg := NewRegistry(cfg, backends...)
	require.NoError(t, reg.Init())
	t.Cleanup(reg.Shutdown)
	return reg
}

// forEachBackend runs fn as a subtest with a fresh context on every
// backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, ctx *Context)) {
	t.Helper()
	reg := newTestRegistry(t, testConfig(), AllBackends()...)
	for _, b := range AllBackends() {
		dev, err := reg.DeviceFor(b)
		require.NoError(t, err)
		t.Run(b.String(), func(t *testing.T) {
			ctx := NewContext(dev)
			defer ctx.Destroy()
			fn(t, ctx)
		})
	}
}

// mallocOrFail allocates memory and fails the test if unsuccessful
func mallocOrFail(t testing.TB, ctx *Context, space MemorySpace, size int) Buffer {
	t.Helper()
	buf, err := ctx.Malloc(space, size)
	require.NoError(t, err, "allocating %d bytes", size)
	t.Cleanup(func() { _ = ctx.Free(buf) })
	return buf
}

// zeroed allocates n accelerator uint32 values set to zero.
func zeroed(t testing.TB, ctx *Context, n int) Buffer {
	t.Helper()
	buf := mallocOrFail(t, ctx, Accelerator, n*4)
	require.NoError(t, ctx.Memcpy(buf, make([]uint32, n), n*4))
	return buf
}

// returnsWithin runs fn and fails the test if it has not returned after d.
func returnsWithin(t testing.TB, d time.Duration, fn func() error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(d):
		t.Fatalf("call did not return within %v", d)
		return nil
	}
}
