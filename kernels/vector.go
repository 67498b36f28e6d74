package kernels

import (
	"fmt"

	"github.com/LynnColeArt/gokern"
)

// VectorAdd computes c[i] = a[i] + b[i] for i < n, one element per unit.
//
// Arguments: a, b, c gokern.Buffer (float32), n int.
var VectorAdd = gokern.KernelFunc(func(acc *gokern.Acc, args ...interface{}) error {
	if len(args) != 4 {
		return fmt.Errorf("VectorAdd: want 4 arguments, got %d", len(args))
	}
	a, b, c := args[0].(gokern.Buffer).Float32(), args[1].(gokern.Buffer).Float32(), args[2].(gokern.Buffer).Float32()
	n := args[3].(int)
	if i := acc.LinearIdx(gokern.Global); i < n {
		c[i] = a[i] + b[i]
	}
	return nil
})

// Map returns a kernel computing out[i] = fn(in[i]) for i < n.
//
// Arguments: in, out gokern.Buffer (float32), n int.
func Map(fn func(float32) float32) gokern.Kernel {
	return gokern.KernelFunc(func(acc *gokern.Acc, args ...interface{}) error {
		in, out := args[0].(gokern.Buffer).Float32(), args[1].(gokern.Buffer).Float32()
		n := args[2].(int)
		if i := acc.LinearIdx(gokern.Global); i < n {
			out[i] = fn(in[i])
		}
		return nil
	})
}

// Launch1D returns a one dimensional work division covering n elements
// with blocks of blockSize units.
func Launch1D(n, blockSize int) gokern.WorkDiv {
	if n < 1 {
		n = 1
	}
	return gokern.NewWorkDiv(gokern.Dim1((n+blockSize-1)/blockSize), gokern.Dim1(blockSize))
}
