package sched

import "unsafe"

//go:noescape
func contextSwitchAsm(oldp *uintptr, newsp uintptr)

//go:noescape
func fxsaveAsm(area *FPUArea)

//go:noescape
func fxrstorAsm(area *FPUArea)

// switchTo performs the low-level context switch from the current task
// (which may be nil, e.g. switching off the boot stack for the first time)
// to next. The caller must hold no spinlocks and must already have updated
// both tasks' state fields; switchTo itself only moves registers and stacks.
//
// Per the context save order, FPU state is saved and restored around the
// GPR switch rather than inside it: fxsaveAsm(from) happens before the
// call, contextSwitchAsm swaps the general-purpose/stack context, and the
// fxrstorAsm happens after control returns here. That return can land in a
// different call frame than this one: contextSwitchAsm resumes whichever
// task's stack is being switched onto, and when that task is to, it returns
// right here as expected, but when the scheduler later switches back into
// from, execution resumes inside from's own earlier switchTo call, at its
// own contextSwitchAsm line, not this one. So the to local captured by this
// frame is only correct for the first resume; it does not name whichever
// task is actually running by the time any given switchTo call returns.
// Reading Current() instead of the to parameter gets the right FPU area in
// both cases, since the caller (reschedule) always updates the per-core
// current-task slot before calling switchTo.
func switchTo(from, to *Task) {
	if from != nil {
		fxsaveAsm(from.fpu)
	}

	var oldp *uintptr
	if from != nil {
		oldp = &from.ctxRSP
	}
	contextSwitchAsm(oldp, to.ctxRSP)

	fxrstorAsm(Current().fpu)
}

// forgeInitialStack lays down a synthetic saved context on a brand-new
// kernel stack so the first switchTo into this task returns into entry
// instead of into some real caller's return address. It mimics exactly the
// register layout contextSwitchAsm's own epilogue expects to pop: BP, R15,
// R14, R13, R12, BX, CX from top to bottom, followed by the return address
// RET will consume.
//
// arg is passed in R12 on first entry by convention here (entry reads it
// out of its own argument register before doing anything else); the
// forged frame below arranges that by placing arg where the epilogue will
// pop it into R12.
func forgeInitialStack(stackTop uintptr, entry uintptr, arg uintptr) uintptr {
	sp := stackTop &^ 0xF // 16-byte align the top

	push := func(sp uintptr, val uintptr) uintptr {
		sp -= 8
		*(*uintptr)(unsafe.Pointer(sp)) = val
		return sp
	}

	sp = push(sp, entry) // return address popped by RET
	sp = push(sp, 0)     // BP
	sp = push(sp, 0)     // R15
	sp = push(sp, 0)     // R14
	sp = push(sp, 0)     // R13
	sp = push(sp, arg)   // R12 — entry trampoline's argument
	sp = push(sp, 0)     // BX
	sp = push(sp, 0)     // CX

	return sp
}
