package gokern

// threadsEngine runs blocks in order; every unit of a block gets its own
// goroutine locked to an OS thread, synchronized by a counting barrier.
type threadsEngine struct {
	p DeviceProps
}

func (e *threadsEngine) backend() Backend   { return NativeThreads }
func (e *threadsEngine) props() DeviceProps { return e.p }
func (e *threadsEngine) close()             {}

func (e *threadsEngine) run(l *launch) {
	units := runParallel(true)
	for b := 0; b < l.wd.GridSize() && !l.stopped(); b++ {
		l.runBlock(b, nil, units)
	}
}
