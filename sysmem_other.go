//go:build !linux

package gokern

// systemMemory returns a conservative default where physical memory cannot
// be queried.
func systemMemory() uint64 {
	return fallbackSystemMemory
}
