// Package ksync implements the kernel's own lock and lock-free primitives:
// IRQ-safe spinlocks, blocking mutexes and rwlocks built on a scheduler-
// supplied wait queue, and an RCU discipline for read-mostly global tables.
// Nothing here is the Go standard library's sync package — a freestanding
// kernel with its own preemptive scheduler cannot rely on a host runtime's
// goroutine scheduler to implement blocking.
package ksync

import (
	"sync/atomic"

	"github.com/Redstone-OS/forge/hal"
)

// SpinLock is IRQ-safe: Lock disables interrupts and saves the prior IF
// state so Unlock can restore it exactly, and busy-waits with the PAUSE
// hint. It is mandatory for any data an interrupt handler touches, and no
// blocking primitive may be called while one is held — Lock/Unlock do not
// themselves check this, callers must honor it structurally.
type SpinLock struct {
	state        int32 // atomic: 0 = free, 1 = held
	savedIF      bool
}

func (s *SpinLock) Lock() {
	wasEnabled := hal.DisableInterrupts()
	for !atomic.CompareAndSwapInt32(&s.state, 0, 1) {
		hal.RestoreInterrupts(wasEnabled)
		for atomic.LoadInt32(&s.state) != 0 {
			hal.Pause()
		}
		wasEnabled = hal.DisableInterrupts()
	}
	s.savedIF = wasEnabled
}

func (s *SpinLock) Unlock() {
	wasEnabled := s.savedIF
	atomic.StoreInt32(&s.state, 0)
	hal.RestoreInterrupts(wasEnabled)
}

// TryLock attempts to acquire without blocking, returning false instead of
// spinning. Interrupts are left disabled only on success.
func (s *SpinLock) TryLock() bool {
	wasEnabled := hal.DisableInterrupts()
	if atomic.CompareAndSwapInt32(&s.state, 0, 1) {
		s.savedIF = wasEnabled
		return true
	}
	hal.RestoreInterrupts(wasEnabled)
	return false
}
