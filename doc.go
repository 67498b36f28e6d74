// Copyright ©2019 The Gonum Authors. All rights reserved.
// Copyright ©2024 The gokern Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gokern runs one kernel body unmodified on several concurrency
// substrates with CUDA-style semantics.
//
// A launch is described by a WorkDiv: a grid of blocks, each block made of
// units. Every unit calls the kernel once with its own *Acc, which reports
// the unit's position (Idx, LinearIdx, Extent, Size) and provides the
// block-level primitives:
//   - SyncBlockUnits, the block barrier
//   - SharedMem and AllocShared, block-scoped shared memory
//   - AtomicOp and AtomicCas, atomic read-modify-write
//
// The backends differ only in how units are mapped onto goroutines:
//   - Sequential: one unit at a time on the calling goroutine
//   - NativeThreads: one OS thread per unit, blocks in order
//   - Fibers: cooperative units, blocks spread over a worker pool
//   - DataParallelTeams: grid chunks per worker, a goroutine team per block
//   - SIMT: an emulated accelerator with multiprocessors, warps and
//     per-multiprocessor scratch memory
//
// Example usage:
//
//	reg := gokern.NewRegistry(gokern.DefaultConfig(), gokern.AllBackends()...)
//	defer reg.Shutdown()
//	dev, _ := reg.DeviceFor(gokern.Fibers)
//	ctx := gokern.NewContext(dev)
//	defer ctx.Destroy()
//
//	out, _ := ctx.Malloc(gokern.Accelerator, 2*4)
//	wd := gokern.NewWorkDiv(gokern.Dim1(2), gokern.Dim1(4))
//	err := ctx.ExecuteFunc(func(acc *gokern.Acc, args ...interface{}) error {
//		o := args[0].(gokern.Buffer).Uint32()
//		gokern.AtomicOp(acc, gokern.AtomicAdd, &o[acc.LinearIdx(gokern.Grid)], uint32(acc.LinearIdx(gokern.Block)))
//		return nil
//	}, wd, out)
package gokern
