package gokern

import (
	"sync"

	"github.com/pkg/errors"
)

// errBarrierBroken is raised inside a unit whose barrier can never
// complete because a block-mate retired or faulted.
var errBarrierBroken = errors.New("gokern: block barrier broken")

// blockSync is the barrier a backend hands to the units of one block.
type blockSync interface {
	// wait blocks the unit until every unit of the block arrived. It
	// panics with errBarrierBroken if that cannot happen.
	wait(unit int)
}

// noBarrier serves single-unit blocks.
type noBarrier struct{}

func (noBarrier) wait(int) {}

// rendezvous is a reusable counting barrier for units running in
// parallel. A unit that retires while others wait, or before others
// arrive, breaks it.
type rendezvous struct {
	mu      sync.Mutex
	cond    *sync.Cond
	n       int
	arrived int
	retired int
	gen     uint64
	broken  bool
}

func newRendezvous(n int) *rendezvous {
	r := &rendezvous{n: n}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *rendezvous) wait(int) {
	r.mu.Lock()
	if r.broken || r.retired > 0 {
		r.broken = true
		r.cond.Broadcast()
		r.mu.Unlock()
		panic(errBarrierBroken)
	}
	gen := r.gen
	r.arrived++
	if r.arrived == r.n {
		r.arrived = 0
		r.gen++
		r.cond.Broadcast()
		r.mu.Unlock()
		return
	}
	for gen == r.gen && !r.broken {
		r.cond.Wait()
	}
	broken := gen == r.gen
	r.mu.Unlock()
	if broken {
		panic(errBarrierBroken)
	}
}

// retire records that a unit finished its body.
func (r *rendezvous) retire() {
	r.mu.Lock()
	r.retired++
	if r.arrived > 0 {
		r.broken = true
		r.cond.Broadcast()
	}
	r.mu.Unlock()
}
