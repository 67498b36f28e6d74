package gokern

import (
	"sync"
)

// fibersEngine submits each block to a bounded worker pool. Inside a
// block, units are cooperative tasks that only yield at barriers and at
// retirement, so at most one unit per worker runs at any time. Blocks on
// different workers interleave freely, hence hardware atomics.
type fibersEngine struct {
	p    DeviceProps
	pool *WorkerPool
}

func (e *fibersEngine) backend() Backend   { return Fibers }
func (e *fibersEngine) props() DeviceProps { return e.p }
func (e *fibersEngine) close()             { e.pool.Close() }

func (e *fibersEngine) run(l *launch) {
	var wg sync.WaitGroup
	for b := 0; b < l.wd.GridSize() && !l.stopped(); b++ {
		wg.Add(1)
		blockID := b
		e.pool.Submit(func(int) {
			defer wg.Done()
			if l.stopped() {
				return
			}
			l.runBlock(blockID, nil, cooperative)
		})
	}
	wg.Wait()
}
