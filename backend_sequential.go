package gokern

// sequentialEngine runs blocks in order on the calling goroutine and the
// units of a block one at a time. Atomics are plain read-modify-write.
type sequentialEngine struct {
	p DeviceProps
}

func (e *sequentialEngine) backend() Backend   { return Sequential }
func (e *sequentialEngine) props() DeviceProps { return e.p }
func (e *sequentialEngine) close()             {}

func (e *sequentialEngine) run(l *launch) {
	for b := 0; b < l.wd.GridSize() && !l.stopped(); b++ {
		l.runBlock(b, nil, cooperative)
	}
}
