package sched

import "github.com/Redstone-OS/forge/hal"

// installTimer registers the timer IRQ handler that drives involuntary
// preemption. Arming the LAPIC's timer hardware itself is boot's job (it
// owns the calibration against the PIT that picks an initial count); this
// only wires the vector this package already expects ticks to arrive on.
func installTimer() {
	hal.RegisterIRQ(hal.VecTimer, timerIRQ)
}

// timerIRQ runs on whichever core the timer interrupt landed on, once per
// tick, and is the only caller of TimerTick — without this registration
// the scheduler's quantum accounting never advances and every task runs
// until it yields voluntarily.
func timerIRQ(frame *hal.TrapFrame, vector uint32) {
	TimerTick()
}
