package boot

import (
	"reflect"

	"github.com/Redstone-OS/forge/hal"
	"github.com/Redstone-OS/forge/klog"
	"github.com/Redstone-OS/forge/sched"
)

// idlePriority is 0, the lowest level the run queue keeps; any ready task
// above it is picked first, while a task at priority 0 shares that level
// with the idle task in FIFO order.
const idlePriority = 0

// SpawnIdleTask creates and installs the idle task for one core: a thread
// in the kernel address space that halts until the next interrupt,
// forever. Boot calls this once per logical core before enabling
// interrupts on it.
func (k *Kernel) SpawnIdleTask(core hal.CoreID) {
	stack := make([]byte, 4096)
	entry := reflect.ValueOf(idleLoop).Pointer()
	t := sched.Spawn(0, k.KernelAS, "idle", idlePriority, entry, 0, stack)
	sched.Global().SetIdleTask(core, t)
}

// idleLoop never returns: it is the body every core falls into once its
// ready queue is empty. hal.Halt() suspends the core until the next
// interrupt (including the timer tick that drives preemption), so this
// burns no measurable CPU beyond the interrupt's own handling cost.
func idleLoop() {
	for {
		hal.Halt()
	}
}

// Idle is called by the bootstrap path once every subsystem is up and the
// boot thread itself has nothing left to do: it enables interrupts (they
// are kept masked throughout Init so a stray early timer tick can't
// reschedule into a half-constructed scheduler) and falls into the same
// loop idleLoop runs, relying on TimerTick's preemption to ever leave it
// once a real task becomes ready.
func Idle() {
	klog.Info("boot: entering idle")
	hal.RestoreInterrupts(true)
	for {
		hal.Halt()
	}
}
