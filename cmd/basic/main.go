// Copyright ©2024 The gokern Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command basic runs the block-sum kernel on every enabled backend, checks
// the result and reports the execution time.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/LynnColeArt/gokern"
	"github.com/LynnColeArt/gokern/kernels"
)

func main() {
	var (
		backends = flag.String("backends", "all", "Comma separated backends to run, or all")
		gridFlag = flag.String("grid", "16,8,4", "Grid extent X,Y,Z")
		block    = flag.String("block", "", "Block extent X,Y,Z (default: 1,1,1 for Sequential, 16,16,2 otherwise)")
		work     = flag.Int("work", 100, "Busy iterations per unit")
		mult2    = flag.Uint("mult2", 5, "Second result multiplier")
		list     = flag.Bool("list", false, "List devices and exit")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	gokern.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	version, _ := gokern.Version()
	fmt.Println("=== gokern basic test ===")
	if version != "" {
		fmt.Printf("Version: %s\n", version)
	}

	cfg, err := gokern.LoadConfig()
	if err != nil {
		fail(err)
	}
	selected, err := parseBackends(*backends)
	if err != nil {
		fail(err)
	}
	reg := gokern.NewRegistry(cfg, selected...)
	if err := reg.Init(); err != nil {
		fail(err)
	}
	defer reg.Shutdown()

	f := gokern.DetectedCPUFeatures()
	fmt.Printf("Host CPU: AVX2=%t FMA=%t AVX512F=%t NEON=%t SVE=%t\n",
		f.HasAVX2, f.HasFMA, f.HasAVX512F, f.HasNEON, f.HasSVE)

	props, err := reg.EnumerateDevices()
	if err != nil {
		fail(err)
	}
	for i, p := range props {
		fmt.Printf("Device %d: %s\n", i, p.Name)
		fmt.Printf("  multiprocessors=%d maxUnitsPerBlock=%d maxBlock=%v maxGrid=%v globalMem=%dMiB shared=%dKiB warp=%d\n",
			p.MultiProcessorCount, p.MaxUnitsPerBlock, p.MaxBlockExtent, p.MaxGridExtent,
			p.GlobalMemBytes>>20, p.SharedMemPerBlock>>10, p.WarpSize)
	}
	if *list {
		return
	}

	grid, err := parseDim(*gridFlag)
	if err != nil {
		fail(err)
	}

	ok := true
	for id := range props {
		dev, err := reg.SelectDevice(id)
		if err != nil {
			fail(err)
		}
		blockExtent := gokern.NewDim3(16, 16, 2)
		if dev.Backend() == gokern.Sequential {
			blockExtent = gokern.Dim1(1)
		}
		if *block != "" {
			if blockExtent, err = parseDim(*block); err != nil {
				fail(err)
			}
		}
		wd := gokern.NewWorkDiv(grid, blockExtent)
		if !run(dev, wd, *work, uint32(*mult2)) {
			ok = false
		}
	}
	if !ok {
		os.Exit(1)
	}
}

func run(dev *gokern.Device, wd gokern.WorkDiv, work int, mult2 uint32) bool {
	fmt.Println()
	fmt.Printf("--- %s, %v ---\n", dev.Backend(), wd)

	ctx := gokern.NewContext(dev)
	defer ctx.Destroy()

	kernel := kernels.BlockSum{Work: work, Mult: 42}
	n := wd.GridSize()
	host := make([]uint32, n)

	out, err := ctx.Malloc(gokern.Accelerator, n*4)
	if err != nil {
		fmt.Printf("Malloc failed: %v\n", err)
		return false
	}
	defer ctx.Free(out)
	if err := ctx.Memcpy(out, host, n*4); err != nil {
		fmt.Printf("Memcpy failed: %v\n", err)
		return false
	}

	start := time.Now()
	if err := ctx.Execute(kernel, wd, out, mult2); err != nil {
		fmt.Printf("Execute failed: %v\n", err)
		return false
	}
	fmt.Printf("Execution time: %v\n", time.Since(start))

	if err := ctx.Memcpy(host, out, n*4); err != nil {
		fmt.Printf("Memcpy failed: %v\n", err)
		return false
	}

	want := kernel.Expected(wd, mult2)
	correct := true
	for i, v := range host {
		if v != want {
			fmt.Printf("blockRetVals[%d] == %d != %d\n", i, v, want)
			correct = false
		}
	}
	if correct {
		fmt.Println("Execution results correct!")
	}
	return correct
}

func parseBackends(s string) ([]gokern.Backend, error) {
	if s == "" || s == "all" {
		return gokern.AllBackends(), nil
	}
	var out []gokern.Backend
	for _, name := range strings.Split(s, ",") {
		b, err := gokern.ParseBackend(name)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func parseDim(s string) (gokern.Dim3, error) {
	d := gokern.NewDim3(1, 1, 1)
	parts := strings.Split(s, ",")
	if len(parts) > 3 {
		return d, fmt.Errorf("extent %q has more than 3 dimensions", s)
	}
	dst := []*int{&d.X, &d.Y, &d.Z}
	for i, p := range parts {
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%d", dst[i]); err != nil {
			return d, fmt.Errorf("extent %q: %w", s, err)
		}
	}
	return d, nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
