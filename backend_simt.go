package gokern

import (
	"sync"
)

// simtEngine emulates a SIMT accelerator. Each pool worker plays one
// multiprocessor: it pulls whole blocks and owns a fixed scratch arena
// that backs the block's shared memory. Units are lanes, each on its own
// goroutine, grouped into warps of WarpSize lanes.
type simtEngine struct {
	p      DeviceProps
	pool   *WorkerPool
	arenas []*arena // one per multiprocessor
}

func newSIMTEngine(p DeviceProps, cfg Config) *simtEngine {
	e := &simtEngine{
		p:      p,
		pool:   NewWorkerPool(cfg.Workers),
		arenas: make([]*arena, cfg.Workers),
	}
	for i := range e.arenas {
		e.arenas[i] = newArena(cfg.SIMTSharedMem)
	}
	return e
}

func (e *simtEngine) backend() Backend   { return SIMT }
func (e *simtEngine) props() DeviceProps { return e.p }
func (e *simtEngine) close()             { e.pool.Close() }

func (e *simtEngine) run(l *launch) {
	units := runParallel(false)
	var wg sync.WaitGroup
	for b := 0; b < l.wd.GridSize() && !l.stopped(); b++ {
		wg.Add(1)
		blockID := b
		e.pool.Submit(func(sm int) {
			defer wg.Done()
			if l.stopped() {
				return
			}
			l.runBlock(blockID, e.arenas[sm], units)
		})
	}
	wg.Wait()
}
