package gokern

// fiberSched runs the units of one block as cooperative tasks: exactly
// one unit executes at a time, in linear order, and control changes hands
// only when a unit reaches a barrier or retires.
type fiberSched struct {
	resume []chan bool // true: continue, false: barrier broken
	events chan fiberEvent
}

type fiberEvent struct {
	unit    int
	retired bool
}

type fiberState uint8

const (
	fiberReady fiberState = iota
	fiberWaiting
	fiberRetired
)

func (s *fiberSched) wait(unit int) {
	s.events <- fiberEvent{unit: unit}
	if !<-s.resume[unit] {
		panic(errBarrierBroken)
	}
}

// runCooperative executes body once per unit of a block of n units, each
// on its own goroutine. body must not panic.
func runCooperative(n int, body func(unit int, bs blockSync)) {
	if n == 1 {
		done := make(chan struct{})
		go func() {
			defer close(done)
			body(0, noBarrier{})
		}()
		<-done
		return
	}
	s := &fiberSched{
		resume: make([]chan bool, n),
		events: make(chan fiberEvent),
	}
	for i := range s.resume {
		s.resume[i] = make(chan bool)
	}
	for i := 0; i < n; i++ {
		go func(unit int) {
			defer func() { s.events <- fiberEvent{unit: unit, retired: true} }()
			<-s.resume[unit]
			body(unit, s)
		}(i)
	}

	state := make([]fiberState, n)
	for {
		waiting, retired := 0, 0
		for i := range state {
			if state[i] == fiberReady {
				s.resume[i] <- true
				ev := <-s.events
				if ev.retired {
					state[i] = fiberRetired
				} else {
					state[i] = fiberWaiting
				}
			}
			switch state[i] {
			case fiberWaiting:
				waiting++
			case fiberRetired:
				retired++
			}
		}
		if waiting == 0 {
			return
		}
		if retired > 0 {
			// Some unit will never reach this barrier: release the
			// waiters as broken and let them retire.
			for i := range state {
				if state[i] == fiberWaiting {
					s.resume[i] <- false
					<-s.events
					state[i] = fiberRetired
				}
			}
			return
		}
		for i := range state {
			state[i] = fiberReady
		}
	}
}
