package gokern

import (
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/cpu"
)

// CPUFeatures tracks the instruction set extensions reported in device
// properties.
type CPUFeatures struct {
	HasSSE4     bool
	HasAVX      bool
	HasAVX2     bool
	HasFMA      bool
	HasAVX512F  bool
	HasAVX512BW bool
	HasNEON     bool // ARM64 Advanced SIMD
	HasAtomics  bool // ARM64 LSE atomics
	HasSVE      bool
}

// Global CPU feature detection
var cpuFeatures CPUFeatures

func init() {
	detectCPUFeatures()
}

// detectCPUFeatures populates the global cpuFeatures struct
func detectCPUFeatures() {
	cpuFeatures = CPUFeatures{
		HasSSE4:     cpu.X86.HasSSE41 || cpu.X86.HasSSE42,
		HasAVX:      cpu.X86.HasAVX,
		HasAVX2:     cpu.X86.HasAVX2,
		HasFMA:      cpu.X86.HasFMA,
		HasAVX512F:  cpu.X86.HasAVX512F,
		HasAVX512BW: cpu.X86.HasAVX512BW,
		HasNEON:     cpu.ARM64.HasASIMD,
		HasAtomics:  cpu.ARM64.HasATOMICS,
		HasSVE:      cpu.ARM64.HasSVE,
	}
}

// DetectedCPUFeatures returns the features found at start-up.
func DetectedCPUFeatures() CPUFeatures {
	return cpuFeatures
}

// cpuFeatureList returns a fresh slice of feature names.
func cpuFeatureList() []string {
	f := cpuFeatures
	features := []string{}
	add := func(ok bool, name string) {
		if ok {
			features = append(features, name)
		}
	}
	add(f.HasSSE4, "SSE4")
	add(f.HasAVX, "AVX")
	add(f.HasAVX2, "AVX2")
	add(f.HasFMA, "FMA")
	add(f.HasAVX512F, "AVX512F")
	add(f.HasAVX512BW, "AVX512BW")
	add(f.HasNEON, "NEON")
	add(f.HasAtomics, "LSE")
	add(f.HasSVE, "SVE")
	return features
}

// cpuDescription names the host CPU for device names, e.g.
// "amd64 AVX2+FMA, 16 cores".
func cpuDescription() string {
	var b strings.Builder
	b.WriteString(runtime.GOARCH)
	if fs := cpuFeatureList(); len(fs) > 0 {
		b.WriteByte(' ')
		b.WriteString(bestSIMD(fs))
	}
	b.WriteString(", ")
	b.WriteString(strconv.Itoa(runtime.NumCPU()))
	b.WriteString(" cores")
	return b.String()
}

// bestSIMD picks the widest vector extension.
func bestSIMD(fs []string) string {
	has := func(name string) bool {
		for _, f := range fs {
			if f == name {
				return true
			}
		}
		return false
	}
	switch {
	case has("AVX512F"):
		return "AVX512"
	case has("AVX2") && has("FMA"):
		return "AVX2+FMA"
	case has("SVE"):
		return "SVE"
	case has("NEON"):
		return "NEON"
	case has("SSE4"):
		return "SSE4"
	}
	return "scalar"
}
