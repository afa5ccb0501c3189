package sched

import (
	"sync/atomic"
	"unsafe"

	"github.com/Redstone-OS/forge/hal"
	"github.com/Redstone-OS/forge/ksync"
	"github.com/Redstone-OS/forge/vm"
)

const (
	kernelStackPages = 4
	kernelStackSize  = kernelStackPages * 4096
)

// perCPU holds the state the scheduler needs per logical core. current is
// accessed from the timer ISR and from ordinary kernel context, so every
// field here is either atomic or touched only with interrupts disabled.
type perCPU struct {
	current  *Task
	idleTask *Task
	rq       runQueue
}

// Scheduler owns every core's runqueue and the global task table used by
// wait/exit/reap. There is exactly one, reachable through the package-level
// Current/Yield/etc. helpers so callers never need to carry a *Scheduler
// through every function signature the way the address space or capability
// tables are threaded explicitly.
type Scheduler struct {
	cpus []perCPU

	tasksLock ksync.SpinLock
	nextTid   uint64
	tasks     map[Tid]*Task

	zombieLock ksync.SpinLock
	zombies    []*Task
}

var globalSched *Scheduler

// Init allocates per-core state for ncores logical CPUs and installs the
// scheduler's wait-queue factory into ksync. Must run once, after the HAL
// has enumerated cores and before any ksync.Mutex/RwLock is used.
func Init(ncores int) *Scheduler {
	s := &Scheduler{
		cpus:  make([]perCPU, ncores),
		tasks: make(map[Tid]*Task),
	}
	globalSched = s
	InstallWaitQueueFactory()
	installShootdowner(s)
	installTimer()
	return s
}

func (s *Scheduler) allocTid() Tid {
	return Tid(atomic.AddUint64(&s.nextTid, 1))
}

// Spawn creates a new task with entry as its first instruction pointer and
// arg passed through to it (per forgeInitialStack's R12 convention), and
// makes it ready on core 0's runqueue (a new task's core field is zero;
// no load balancing is done). The module supervisor and the
// process-creation syscalls are the two callers.
func (s *Scheduler) Spawn(pid int, as *vm.AddressSpace, name string, priority int, entry uintptr, arg uintptr, stack []byte) *Task {
	t := NewTask(s.allocTid(), pid, as, name, priority)

	stackTop := uintptr(0)
	if len(stack) > 0 {
		stackTop = uintptr(unsafe.Pointer(&stack[len(stack)-1])) + 1
	}
	t.KernelStackTop = stackTop
	t.ctxRSP = forgeInitialStack(stackTop, entry, arg)
	t.state = StateReady

	s.tasksLock.Lock()
	s.tasks[t.Tid] = t
	s.tasksLock.Unlock()

	s.enqueue(t)
	return t
}

func (s *Scheduler) enqueue(t *Task) {
	target := t.core
	if int(target) >= len(s.cpus) {
		target = 0
	}
	t.state = StateReady
	s.cpus[target].rq.pushBack(t)
}

// Current returns the task running on the calling core, or nil if the core
// is idling on its bootstrap stack and has never switched into a real task.
func Current() *Task {
	return globalSched.cpus[hal.CurrentCore()].current
}

// markReady moves a blocked/created task back onto its core's runqueue.
// Called by wait-queue wakeups and by Spawn.
func (s *Scheduler) markReady(t *Task) {
	t.state = StateReady
	s.enqueue(t)
}

// markBlocked transitions the calling task to Blocked. Called by
// schedWaitQueue.Wait after the task has already been enqueued on the wait
// queue's own list, just before giving up the CPU.
func (s *Scheduler) markBlocked(t *Task) {
	t.state = StateBlocked
}

// reschedule picks the next ready task for the calling core (falling back
// to that core's idle task) and switches into it. Interrupts must already
// be disabled, and reschedule leaves the interrupt flag alone:
// contextSwitchAsm saves no RFLAGS, so each caller restores its own saved
// interrupt state after reschedule returns to it.
func (s *Scheduler) reschedule() {
	core := hal.CurrentCore()
	cpu := &s.cpus[core]

	next := cpu.rq.popFront()
	if next == nil {
		next = cpu.idleTask
	}

	prev := cpu.current
	if prev == next {
		return
	}
	if prev != nil && prev.state == StateRunning {
		prev.state = StateReady
		s.enqueue(prev)
	}

	next.state = StateRunning
	next.core = core
	cpu.current = next

	switchTo(prev, next)

	// Execution resumes here only once some future reschedule() switches
	// back into prev (the task that called this reschedule in the first
	// place) — at that point prev is once again "the calling task", and
	// any caller-side cleanup (e.g. Wait() returning) continues normally.
	s.reapZombies()
}

// Yield voluntarily gives up the remainder of the current quantum.
func Yield() {
	wasEnabled := hal.DisableInterrupts()
	cur := Current()
	if cur != nil {
		cur.quantumLeft = DefaultQuantum
	}
	globalSched.reschedule()
	hal.RestoreInterrupts(wasEnabled)
}

// ticks counts timer interrupts since boot; the only clock this kernel
// has, short of reading the TSC directly, which needs a calibrated
// frequency this package does not own.
var ticks uint64

// Ticks returns the number of timer interrupts delivered since boot.
func Ticks() uint64 { return atomic.LoadUint64(&ticks) }

// TimerTick is called from the timer IRQ handler once per tick. It
// decrements the current task's quantum and, once exhausted, forces a
// reschedule — this is the only source of involuntary preemption.
func TimerTick() {
	atomic.AddUint64(&ticks, 1)
	cur := Current()
	if cur == nil {
		return
	}
	cur.quantumLeft--
	if cur.quantumLeft <= 0 {
		cur.quantumLeft = DefaultQuantum
		globalSched.reschedule()
	}
}

// Exit marks the calling task Zombie and never returns: the next
// reschedule switches away from it permanently and its TCB is later
// reclaimed by reapZombies once every reference to it (wait queues,
// parent's wait(2)) has been dropped.
func Exit(code int) {
	wasEnabled := hal.DisableInterrupts()
	cur := Current()
	cur.state = StateZombie
	cur.exitCode = code
	globalSched.zombieLock.Lock()
	globalSched.zombies = append(globalSched.zombies, cur)
	globalSched.zombieLock.Unlock()
	globalSched.reschedule()
	hal.RestoreInterrupts(wasEnabled)
	panic("sched: Exit: rescheduled back into a zombie task")
}

// reapZombies runs opportunistically at the tail of reschedule, on
// whichever core happens to be idle-ish, and frees Dead tasks' TCBs from
// the global table once their exit status has been collected. A task
// lingers in StateZombie (not yet Dead) until some Wait-style syscall
// collects its code; that transition is the module/process layer's
// responsibility, not the scheduler's.
func (s *Scheduler) reapZombies() {
	s.zombieLock.Lock()
	kept := s.zombies[:0]
	var dead []*Task
	for _, z := range s.zombies {
		if z.state == StateDead {
			dead = append(dead, z)
			continue
		}
		kept = append(kept, z)
	}
	s.zombies = kept
	s.zombieLock.Unlock()

	if len(dead) == 0 {
		return
	}
	s.tasksLock.Lock()
	for _, z := range dead {
		delete(s.tasks, z.Tid)
	}
	s.tasksLock.Unlock()
}

// CollectExit returns the exit code of a zombie task and marks it Dead so
// reapZombies frees its TCB, or reports ok=false if tid is unknown or has
// not exited yet. A process-level Wait syscall calls this once, the same
// way a parent collecting a child's status consumes it exactly once.
func (s *Scheduler) CollectExit(tid Tid) (code int, ok bool) {
	t, found := s.Lookup(tid)
	if !found || t.state != StateZombie {
		return 0, false
	}
	t.state = StateDead
	return t.exitCode, true
}

// CollectExit is the package-level forwarder, mirroring Kill/Lookup.
func CollectExit(tid Tid) (int, bool) { return globalSched.CollectExit(tid) }

// Lookup returns the task with the given tid, if it still exists.
func (s *Scheduler) Lookup(tid Tid) (*Task, bool) {
	s.tasksLock.Lock()
	defer s.tasksLock.Unlock()
	t, ok := s.tasks[tid]
	return t, ok
}

// Kill sets tid's killed flag, which Killed reports. Nothing else acts on
// the flag: the target is not woken, not removed from any wait queue, and
// not made to exit; the scheduler never forcibly unwinds a task's stack.
func (s *Scheduler) Kill(tid Tid) bool {
	t, ok := s.Lookup(tid)
	if !ok {
		return false
	}
	t.killed = true
	return true
}

// SetIdleTask installs the per-core idle loop task, spawned once by boot
// for each core before interrupts are enabled on it.
func (s *Scheduler) SetIdleTask(core hal.CoreID, t *Task) {
	s.cpus[core].idleTask = t
	t.core = core
}

// Spawn is the package-level convenience every syscall handler and the
// module loader actually call; it forwards to the one Scheduler installed
// by Init, mirroring how Current/Yield/Exit reach globalSched without
// making every caller carry a *Scheduler around.
func Spawn(pid int, as *vm.AddressSpace, name string, priority int, entry uintptr, arg uintptr, stack []byte) *Task {
	return globalSched.Spawn(pid, as, name, priority, entry, arg, stack)
}

// Kill sets tid's killed flag; see Scheduler.Kill.
func Kill(tid Tid) bool { return globalSched.Kill(tid) }

// Lookup returns the task with the given tid, if it still exists.
func Lookup(tid Tid) (*Task, bool) { return globalSched.Lookup(tid) }

// Global returns the scheduler Init installed, for the rare caller (boot's
// idle-task setup) that needs the receiver itself rather than a
// package-level forwarder.
func Global() *Scheduler { return globalSched }
