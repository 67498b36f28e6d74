// Package kernels provides ready-made gokern kernels that exercise the
// block primitives: shared memory, barriers and atomics.
package kernels
