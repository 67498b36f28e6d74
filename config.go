// Package gokern configuration constants
package gokern

import (
	"os"
	"runtime"
	"strconv"

	"github.com/pkg/errors"
)

// Cache sizes for different levels (in bytes)
const (
	// L1 cache size per core (typical for modern CPUs)
	L1CacheSize = 32 * 1024 // 32KB

	// L2 cache size per core (typical for modern CPUs)
	L2CacheSize = 256 * 1024 // 256KB
)

// Thread and block dimensions
const (
	// Default block size for kernels
	DefaultBlockSize = 256

	// Maximum units per block (CUDA compatibility)
	MaxUnitsPerBlock = 1024

	// Maximum block extent in the Z dimension
	MaxBlockDimZ = 64

	// Maximum grid extent in X, and in Y and Z
	MaxGridDimX  = 1<<31 - 1
	MaxGridDimYZ = 65535

	// Lanes per warp on the SIMT backend
	DefaultWarpSize = 32
)

// Memory parameters
const (
	// Memory alignment for allocations
	MemoryAlignment = 64

	// Block shared memory on the CPU backends; sized to stay in L2
	CPUSharedMemPerBlock = L2CacheSize

	// Block shared memory on the SIMT backend (per multiprocessor scratch)
	SIMTSharedMemPerBlock = 48 * 1024

	// Used when the platform cannot report physical memory
	fallbackSystemMemory = 16 * 1024 * 1024 * 1024
)

// Environment variables read by LoadConfig.
const (
	EnvBackend   = "GOKERN_BACKEND"
	EnvWorkers   = "GOKERN_WORKERS"
	EnvAccelMem  = "GOKERN_ACCEL_MEM"
	EnvWarpSize  = "GOKERN_WARP_SIZE"
	EnvSharedMem = "GOKERN_SIMT_SHARED_MEM"
)

// Config holds the runtime settings of a Registry.
type Config struct {
	// Backend is the device used by the package-level helpers.
	Backend Backend
	// Workers sizes the pools of the Fibers, DataParallelTeams and SIMT
	// backends. It is also the SIMT multiprocessor count.
	Workers int
	// AcceleratorMemLimit caps the accelerator memory space in bytes.
	// Zero means physical memory.
	AcceleratorMemLimit int64
	// WarpSize is the number of lanes per SIMT warp.
	WarpSize int
	// SIMTSharedMem is the scratch size per SIMT multiprocessor.
	SIMTSharedMem int
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Backend:       NativeThreads,
		Workers:       runtime.NumCPU(),
		WarpSize:      DefaultWarpSize,
		SIMTSharedMem: SIMTSharedMemPerBlock,
	}
}

// LoadConfig returns DefaultConfig overridden by the GOKERN_* environment
// variables.
func LoadConfig() (Config, error) {
	return loadConfig(os.LookupEnv)
}

func loadConfig(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	if v, ok := lookup(EnvBackend); ok && v != "" {
		b, err := ParseBackend(v)
		if err != nil {
			return cfg, errors.Wrapf(err, "%s", EnvBackend)
		}
		cfg.Backend = b
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{EnvWorkers, &cfg.Workers},
		{EnvWarpSize, &cfg.WarpSize},
		{EnvSharedMem, &cfg.SIMTSharedMem},
	}
	for _, e := range ints {
		v, ok := lookup(e.name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, NewInvalidArgError("LoadConfig", e.name+" must be a positive integer, got "+strconv.Quote(v))
		}
		*e.dst = n
	}
	if v, ok := lookup(EnvAccelMem); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return cfg, NewInvalidArgError("LoadConfig", EnvAccelMem+" must be a byte count, got "+strconv.Quote(v))
		}
		cfg.AcceleratorMemLimit = n
	}
	return cfg, nil
}

// normalize fills unset fields with defaults.
func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.WarpSize <= 0 {
		c.WarpSize = d.WarpSize
	}
	if c.SIMTSharedMem <= 0 {
		c.SIMTSharedMem = d.SIMTSharedMem
	}
	return c
}
