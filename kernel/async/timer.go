package async

import "hadron/kernel/cap"

// TimerFuture resolves once the monotonic tick counter reaches a deadline.
// Unlike IrqLine it has nothing to install a waker into — there is no timer
// IRQ bridge here, just a tick counter — so it re-polls on every executor
// round via its own waker rather than being woken by an event.
type TimerFuture struct {
	ticks    *cap.TimerToken
	deadline uint64
}

// After returns a Future that resolves once at least delta ticks have
// elapsed from the moment After is called.
func After(ticks *cap.TimerToken, delta uint64) *TimerFuture {
	return &TimerFuture{ticks: ticks, deadline: ticks.Ticks() + delta}
}

func (f *TimerFuture) Poll(w *Waker) PollResult {
	if f.ticks.Ticks() >= f.deadline {
		return Ready
	}
	// No event to wait on; re-enqueue immediately so the executor checks
	// again next round instead of stalling forever on Pending.
	w.Wake()
	return Pending
}

// Select resolves as soon as any one of futures resolves, cancelling the
// rest. This is how a timeout is composed with an IrqLine wait (spec.md
// §4.G: "timeouts are composed by racing an IrqLine wait against a timer
// future").
type Select struct {
	futures []Future
	winner  int
}

// NewSelect races futures against each other.
func NewSelect(futures ...Future) *Select {
	return &Select{futures: futures, winner: -1}
}

func (s *Select) Poll(w *Waker) PollResult {
	for i, f := range s.futures {
		if f.Poll(w) == Ready {
			s.winner = i
			s.cancelExcept(i)
			return Ready
		}
	}
	return Pending
}

// Winner returns the index into the futures passed to NewSelect that
// resolved, or -1 if none have yet.
func (s *Select) Winner() int {
	return s.winner
}

func (s *Select) cancelExcept(winner int) {
	for i, f := range s.futures {
		if i == winner {
			continue
		}
		if c, ok := f.(Canceler); ok {
			c.Cancel()
		}
	}
}
