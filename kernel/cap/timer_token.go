package cap

import "sync/atomic"

var timerToken TimerToken

// TimerToken authorizes reading the monotonic tick counter.
type TimerToken struct{}

// Ticks returns the current monotonic tick count.
func (TimerToken) Ticks() uint64 {
	return atomic.LoadUint64(&ticks)
}

// ticks is advanced by the timer interrupt handler (kernel/async's IrqLine
// wiring, or the HAL timer driver directly) via AdvanceTicks.
var ticks uint64

// AdvanceTicks increments the monotonic tick counter by one. Called from the
// timer interrupt handler; never from driver code, which only reads through
// TimerToken.Ticks.
func AdvanceTicks() {
	atomic.AddUint64(&ticks, 1)
}
