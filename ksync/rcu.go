package ksync

import (
	"sync/atomic"
	"unsafe"
)

// RCUPointer holds a pointer readers observe without any lock and writers
// replace via copy-modify-swap. Used for the kernel's genuinely global
// read-mostly tables: the module trust root, the stable-ABI symbol table,
// the syscall dispatch table.
type RCUPointer struct {
	p unsafe.Pointer
}

// Read returns the currently published value. Safe to call from any
// context, including interrupt handlers, since it never blocks.
func (r *RCUPointer) Read() unsafe.Pointer {
	return atomic.LoadPointer(&r.p)
}

// GracePeriod is a hook for reclaiming the old value after every reader
// that could have observed it has left its read-side section. A real
// multiprocessor kernel tracks per-CPU quiescent-state counters; the
// kernel core here only specifies the write-path discipline (copy, swap,
// wait, free) and leaves the concrete quiescence detector to the
// scheduler, which is the only subsystem that knows when every core has
// passed through at least one preemption point.
type GracePeriod func()

var DefaultGracePeriod GracePeriod

// Update publishes newVal and, once a grace period elapses, invokes
// reclaimOld with the pointer that was previously published so the writer
// can free it. Readers that loaded the old pointer before the swap keep a
// perfectly valid snapshot; they are simply never handed the new one.
func (r *RCUPointer) Update(newVal unsafe.Pointer, reclaimOld func(old unsafe.Pointer)) {
	old := atomic.SwapPointer(&r.p, newVal)
	gp := DefaultGracePeriod
	if gp == nil {
		if reclaimOld != nil {
			reclaimOld(old)
		}
		return
	}
	gp()
	if reclaimOld != nil {
		reclaimOld(old)
	}
}
