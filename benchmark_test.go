package gokern

import (
	"fmt"
	"testing"
)

// benchContexts returns a context per backend for benchmarks.
func benchContexts(b *testing.B) map[Backend]*Context {
	reg := newTestRegistry(b, DefaultConfig(), AllBackends()...)
	ctxs := make(map[Backend]*Context)
	for _, be := range AllBackends() {
		dev, err := reg.DeviceFor(be)
		if err != nil {
			b.Fatal(err)
		}
		ctx := NewContext(dev)
		b.Cleanup(ctx.Destroy)
		ctxs[be] = ctx
	}
	return ctxs
}

// Benchmark memory bandwidth
func BenchmarkMemoryBandwidth(b *testing.B) {
	sizes := []int{
		1 << 10,     // 1KB
		L1CacheSize, // 32KB (L1 cache)
		L2CacheSize, // 256KB (L2 cache)
		1 << 26,     // 64MB (RAM)
	}
	ctx := benchContexts(b)[Sequential]

	for _, size := range sizes {
		b.Run(fmt.Sprintf("Copy_%s", formatBytes(size)), func(b *testing.B) {
			src := mallocOrFail(b, ctx, Accelerator, size)
			dst := mallocOrFail(b, ctx, Accelerator, size)

			b.SetBytes(int64(size * 2)) // Read + Write
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				if err := ctx.Memcpy(dst, src, size); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// Benchmark launch overhead of an empty kernel
func BenchmarkLaunch(b *testing.B) {
	ctxs := benchContexts(b)
	empty := KernelFunc(func(*Acc, ...interface{}) error { return nil })
	shapes := []WorkDiv{
		NewWorkDiv(Dim1(1), Dim1(1)),
		NewWorkDiv(Dim1(64), Dim1(1)),
		NewWorkDiv(Dim1(16), Dim1(64)),
	}

	for _, be := range AllBackends() {
		for _, wd := range shapes {
			b.Run(fmt.Sprintf("%s/%s", be, wd), func(b *testing.B) {
				ctx := ctxs[be]
				for i := 0; i < b.N; i++ {
					if err := ctx.Execute(empty, wd); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

// Benchmark a barrier-heavy block reduction
func BenchmarkBlockReduce(b *testing.B) {
	ctxs := benchContexts(b)
	const blockSize = 128
	k := WithSharedMem(KernelFunc(func(acc *Acc, args ...interface{}) error {
		shared := acc.SharedMem().Uint32()
		tid := acc.LinearIdx(Block)
		shared[tid] = uint32(tid)
		acc.SyncBlockUnits()
		for stride := blockSize / 2; stride > 0; stride /= 2 {
			if tid < stride {
				shared[tid] += shared[tid+stride]
			}
			acc.SyncBlockUnits()
		}
		return nil
	}), func(wd WorkDiv, args ...interface{}) int { return wd.BlockSize() * 4 })
	wd := NewWorkDiv(Dim1(32), Dim1(blockSize))

	for _, be := range AllBackends() {
		b.Run(be.String(), func(b *testing.B) {
			ctx := ctxs[be]
			for i := 0; i < b.N; i++ {
				if err := ctx.Execute(k, wd); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// formatBytes formats byte count as human readable string
func formatBytes(bytes int) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%dB", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%d%cB", bytes/int(div), "KMGTPE"[exp])
}
