package gokern

import (
	"runtime"
	"sync"
)

// WorkerPool manages a fixed set of worker goroutines. Each worker has a
// stable ID in [0, Workers()) passed to the tasks it runs, so callers can
// keep per-worker state such as scratch memory.
type WorkerPool struct {
	workers int
	tasks   chan func(worker int)
	wg      sync.WaitGroup
	once    sync.Once
}

// NewWorkerPool creates a new worker pool. workers <= 0 means one worker
// per CPU.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	pool := &WorkerPool{
		workers: workers,
		tasks:   make(chan func(int), workers*2),
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	return pool
}

// worker processes tasks from the queue
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	for task := range wp.tasks {
		task(id)
	}
}

// Workers returns the number of workers.
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// Submit adds a task to the pool. It blocks while the queue is full.
func (wp *WorkerPool) Submit(task func(worker int)) {
	wp.tasks <- task
}

// Close shuts down the worker pool after queued tasks ran. It is safe to
// call more than once.
func (wp *WorkerPool) Close() {
	wp.once.Do(func() {
		close(wp.tasks)
	})
	wp.wg.Wait()
}
