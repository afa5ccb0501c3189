package ipc

import (
	"sync/atomic"

	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/ksync"
)

// futexKey identifies a futex word by the address space it lives in
// (distinguishing two unrelated processes that both happen to mmap
// something at the same virtual address) and its virtual address.
type futexKey struct {
	asID uint32
	addr uint64
}

type futexEntry struct {
	wq       ksync.WaitQueue
	waiters  int32 // atomic, for FutexTable.cleanup's empty-entry check
}

// FutexTable is the global table keyed by (address-space, virtual
// address) the spec requires: futex_wait/futex_wake never need a
// dedicated kernel object, just this lazily-populated map plus the
// expected-value check that avoids the lost-wakeup race.
type FutexTable struct {
	lock    ksync.SpinLock
	entries map[futexKey]*futexEntry
}

func NewFutexTable() *FutexTable {
	return &FutexTable{entries: make(map[futexKey]*futexEntry)}
}

func (f *FutexTable) entryFor(key futexKey, create bool) *futexEntry {
	f.lock.Lock()
	defer f.lock.Unlock()
	e, ok := f.entries[key]
	if !ok {
		if !create {
			return nil
		}
		e = &futexEntry{wq: ksync.WaitQueueFactory()}
		f.entries[key] = e
	}
	return e
}

func (f *FutexTable) cleanup(key futexKey, e *futexEntry) {
	if atomic.LoadInt32(&e.waiters) != 0 {
		return
	}
	f.lock.Lock()
	if cur, ok := f.entries[key]; ok && cur == e && atomic.LoadInt32(&e.waiters) == 0 {
		delete(f.entries, key)
	}
	f.lock.Unlock()
}

// Wait blocks the calling task until some Wake on the same key occurs,
// unless *addr no longer equals expected by the time the wait is actually
// registered — exactly the futex_wait(addr, expected) semantics: a store
// of a new value before the waiter's recheck runs must produce an
// immediate Again rather than a missed wakeup, matching the "timing of
// B's store before A's wait must produce WouldBlock immediately" case.
func (f *FutexTable) Wait(asID uint32, addr uint64, addrPtr *uint32, expected uint32) errno.Err_t {
	key := futexKey{asID: asID, addr: addr}
	e := f.entryFor(key, true)
	atomic.AddInt32(&e.waiters, 1)
	defer func() {
		atomic.AddInt32(&e.waiters, -1)
		f.cleanup(key, e)
	}()

	observedMismatch := false
	e.wq.Wait(func() bool {
		if atomic.LoadUint32(addrPtr) != expected {
			observedMismatch = true
			return false
		}
		return true
	})
	if observedMismatch {
		return errno.Again
	}
	return errno.OK
}

// Wake wakes up to n waiters on addr's futex, returning the number
// actually woken. n == 1 is the common "wake a single blocked acquirer"
// case; larger n (or a dedicated WakeAll) services broadcast-style futex
// use (condition variables built in userspace on top of futexes).
func (f *FutexTable) Wake(asID uint32, addr uint64, n int) int {
	key := futexKey{asID: asID, addr: addr}
	e := f.entryFor(key, false)
	if e == nil {
		return 0
	}
	if n <= 0 {
		return 0
	}
	return e.wq.WakeN(n)
}
