package ksync

// Mutex is a blocking lock: contention suspends the caller on a wait queue
// instead of spinning. Forbidden inside interrupt handlers, which may never
// suspend.
type Mutex struct {
	guard SpinLock // protects held + the wait queue's enqueue/dequeue
	held  bool
	wq    WaitQueue
}

func (m *Mutex) ensureWQ() {
	if m.wq == nil {
		m.wq = newWaitQueue()
	}
}

func (m *Mutex) Lock() {
	m.guard.Lock()
	m.ensureWQ()
	for m.held {
		m.guard.Unlock()
		m.wq.Wait(func() bool { return m.held })
		m.guard.Lock()
	}
	m.held = true
	m.guard.Unlock()
}

func (m *Mutex) Unlock() {
	m.guard.Lock()
	m.held = false
	m.guard.Unlock()
	m.wq.WakeOne()
}

func (m *Mutex) TryLock() bool {
	m.guard.Lock()
	defer m.guard.Unlock()
	m.ensureWQ()
	if m.held {
		return false
	}
	m.held = true
	return true
}
