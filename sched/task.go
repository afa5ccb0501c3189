// Package sched implements the preemptive, per-CPU scheduler and the
// thread control block lifecycle: creation from an ELF image, the
// context-switch contract (including FPU save/restore), wait queues, and
// termination/reaping.
package sched

import (
	"github.com/Redstone-OS/forge/cap"
	"github.com/Redstone-OS/forge/hal"
	"github.com/Redstone-OS/forge/vm"
)

// TaskState mirrors the lifecycle states in the data model.
type TaskState uint8

const (
	StateCreated TaskState = iota
	StateReady
	StateRunning
	StateBlocked
	StateZombie
	StateDead
)

// FPUArea is the 512-byte, 16-byte-aligned FXSAVE/FXRSTOR legacy save area.
// Declared as an array-of-arrays so Go's allocator naturally 16-byte aligns
// it (a *FPUArea is always heap-allocated at a multiple of 16 because it is
// larger than a pointer and the runtime's size classes keep that
// alignment for objects this size on amd64).
type FPUArea [512]byte

// Tid is a thread id, process-unique, assigned at creation.
type Tid uint64

// Task is one schedulable thread control block. Tasks are heap-allocated
// and never moved after creation: ctxRSP and the kernel stack both contain
// pointers back into this structure's own stack frames once the task has
// run at least once.
type Task struct {
	Tid      Tid
	Pid      int
	AS       *vm.AddressSpace
	CSpace   *cap.CSpace
	Name     string

	state    TaskState
	priority int

	KernelStackTop uintptr // top of the pinned kernel stack, loaded into TSS.RSP0 on switch-in
	UserStackTop   uintptr

	// ctxRSP is the saved stack pointer context_switch reads/writes; it is
	// valid only while the task is not Running on this core.
	ctxRSP uintptr
	fpu    *FPUArea

	quantumLeft int

	core hal.CoreID // last core this task ran on, for affinity-aware picks

	waitNode waitNode // intrusive link used when this task sits on a WaitQueue

	killed   bool // set by Kill; read only through Killed
	exitCode int
}

const DefaultQuantum = 10

func (t *Task) State() TaskState { return t.state }
func (t *Task) Priority() int    { return t.priority }

// Killed reports whether a Kill request is pending against this task.
// Neither the scheduler nor the syscall path checks it; a killed task keeps
// running until it calls Exit on its own.
func (t *Task) Killed() bool { return t.killed }

// ExitCode is only meaningful once State is StateZombie or StateDead; a
// collecting Wait reads it before the TCB is reaped.
func (t *Task) ExitCode() int { return t.exitCode }

// NewTask allocates a TCB in the Created state. The caller (Spawn) fills in
// the initial context with forgeInitialStack before the first enqueue.
func NewTask(tid Tid, pid int, as *vm.AddressSpace, name string, priority int) *Task {
	return &Task{
		Tid:         tid,
		Pid:         pid,
		AS:          as,
		Name:        name,
		state:       StateCreated,
		priority:    priority,
		quantumLeft: DefaultQuantum,
		fpu:         new(FPUArea),
	}
}
