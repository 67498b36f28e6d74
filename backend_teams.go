package gokern

import (
	"sync"
)

// teamsEngine splits the grid into contiguous chunks, one per pool
// worker, so neighbouring blocks share a worker's caches. Each block runs
// as a team of goroutines meeting at a counting barrier.
type teamsEngine struct {
	p    DeviceProps
	pool *WorkerPool
}

func (e *teamsEngine) backend() Backend   { return DataParallelTeams }
func (e *teamsEngine) props() DeviceProps { return e.p }
func (e *teamsEngine) close()             { e.pool.Close() }

func (e *teamsEngine) run(l *launch) {
	gridSize := l.wd.GridSize()
	numWorkers := e.pool.Workers()
	if gridSize < numWorkers {
		numWorkers = gridSize
	}
	blocksPerWorker := (gridSize + numWorkers - 1) / numWorkers
	units := runParallel(false)

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		startBlock := w * blocksPerWorker
		endBlock := startBlock + blocksPerWorker
		if endBlock > gridSize {
			endBlock = gridSize
		}
		e.pool.Submit(func(int) {
			defer wg.Done()
			for b := startBlock; b < endBlock && !l.stopped(); b++ {
				l.runBlock(b, nil, units)
			}
		})
	}
	wg.Wait()
}
