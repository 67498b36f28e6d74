package gokern

import (
	"fmt"
	"runtime"
	"strings"
)

// Backend identifies the concurrency substrate a device maps units onto.
type Backend int

const (
	// Sequential runs one unit at a time on the calling goroutine.
	Sequential Backend = iota
	// NativeThreads runs every unit of a block on its own OS thread.
	NativeThreads
	// Fibers runs units as cooperative tasks multiplexed over a worker pool.
	Fibers
	// DataParallelTeams splits the grid across a worker pool; each block
	// runs as a team of goroutines.
	DataParallelTeams
	// SIMT emulates a massively parallel accelerator: multiprocessors pull
	// blocks, units are lanes grouped in warps.
	SIMT
)

var backendNames = [...]string{
	Sequential:        "Sequential",
	NativeThreads:     "NativeThreads",
	Fibers:            "Fibers",
	DataParallelTeams: "DataParallelTeams",
	SIMT:              "SIMT",
}

func (b Backend) String() string {
	if b >= 0 && int(b) < len(backendNames) {
		return backendNames[b]
	}
	return fmt.Sprintf("Backend(%d)", int(b))
}

// AllBackends returns every backend variant.
func AllBackends() []Backend {
	return []Backend{Sequential, NativeThreads, Fibers, DataParallelTeams, SIMT}
}

// ParseBackend resolves a backend by name, case-insensitively. Short
// aliases "seq", "threads", "teams" and "omp" are accepted.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sequential", "seq", "serial":
		return Sequential, nil
	case "nativethreads", "threads":
		return NativeThreads, nil
	case "fibers":
		return Fibers, nil
	case "dataparallelteams", "teams", "omp":
		return DataParallelTeams, nil
	case "simt", "gpu":
		return SIMT, nil
	}
	return 0, NewInvalidArgError("ParseBackend", fmt.Sprintf("unknown backend %q", name))
}

// atomicMode selects how Acc atomics are carried out.
type atomicMode int

const (
	atomicHardware atomicMode = iota // sync/atomic
	atomicPlain                      // ordinary read-modify-write
)

// engine is the backend adapter contract. run dispatches every block of
// the launch and returns once all dispatched blocks retired.
type engine interface {
	backend() Backend
	props() DeviceProps
	run(l *launch)
	close()
}

func newEngine(b Backend, cfg Config) engine {
	p := backendProps(b, cfg)
	switch b {
	case Sequential:
		return &sequentialEngine{p: p}
	case NativeThreads:
		return &threadsEngine{p: p}
	case Fibers:
		return &fibersEngine{p: p, pool: NewWorkerPool(cfg.Workers)}
	case DataParallelTeams:
		return &teamsEngine{p: p, pool: NewWorkerPool(cfg.Workers)}
	case SIMT:
		return newSIMTEngine(p, cfg)
	}
	panic(fmt.Sprintf("gokern: unknown backend %d", int(b)))
}

// backendProps computes the properties of backend b on this host. It is
// re-evaluated on every enumeration.
func backendProps(b Backend, cfg Config) DeviceProps {
	mem := systemMemory()
	if cfg.AcceleratorMemLimit > 0 && uint64(cfg.AcceleratorMemLimit) < mem {
		mem = uint64(cfg.AcceleratorMemLimit)
	}
	p := DeviceProps{
		Name:                fmt.Sprintf("%s (%s)", b, cpuDescription()),
		Backend:             b,
		MultiProcessorCount: runtime.NumCPU(),
		MaxUnitsPerBlock:    MaxUnitsPerBlock,
		MaxBlockExtent:      Dim3{X: MaxUnitsPerBlock, Y: MaxUnitsPerBlock, Z: MaxBlockDimZ},
		MaxGridExtent:       Dim3{X: MaxGridDimX, Y: MaxGridDimYZ, Z: MaxGridDimYZ},
		GlobalMemBytes:      mem,
		SharedMemPerBlock:   CPUSharedMemPerBlock,
		WarpSize:            1,
		Features:            cpuFeatureList(),
	}
	switch b {
	case Sequential:
		p.MultiProcessorCount = 1
	case Fibers, DataParallelTeams:
		p.MultiProcessorCount = cfg.Workers
	case SIMT:
		p.Name = fmt.Sprintf("SIMT emulator (%d multiprocessors, warp %d, %s)",
			cfg.Workers, cfg.WarpSize, cpuDescription())
		p.MultiProcessorCount = cfg.Workers
		p.SharedMemPerBlock = cfg.SIMTSharedMem
		p.WarpSize = cfg.WarpSize
	}
	return p
}
