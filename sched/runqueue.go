package sched

import "github.com/Redstone-OS/forge/ksync"

// numPriorities bounds the priority-aware ready deque to a handful of
// levels; scheduling policy beyond this is explicitly left open.
const numPriorities = 8

// runQueue is a per-core ready list: one FIFO per priority level, popped
// highest-priority-first. Pinned to a single core's scheduler loop, so its
// lock only ever contends with IPI-driven cross-core enqueues (migration,
// wake-balancing) and the owning core's own tick handler.
type runQueue struct {
	lock  ksync.SpinLock
	heads [numPriorities]*Task
	tails [numPriorities]*Task
	count int
}

func clampPriority(p int) int {
	if p < 0 {
		return 0
	}
	if p >= numPriorities {
		return numPriorities - 1
	}
	return p
}

func (q *runQueue) pushBack(t *Task) {
	p := clampPriority(t.priority)
	q.lock.Lock()
	t.waitNode.next = nil
	t.waitNode.prev = q.tails[p]
	if q.tails[p] != nil {
		q.tails[p].waitNode.next = t
	} else {
		q.heads[p] = t
	}
	q.tails[p] = t
	q.count++
	q.lock.Unlock()
}

// popFront removes and returns the highest-priority, oldest-enqueued task,
// or nil if the runqueue is empty.
func (q *runQueue) popFront() *Task {
	q.lock.Lock()
	defer q.lock.Unlock()
	for p := numPriorities - 1; p >= 0; p-- {
		t := q.heads[p]
		if t == nil {
			continue
		}
		q.heads[p] = t.waitNode.next
		if q.heads[p] != nil {
			q.heads[p].waitNode.prev = nil
		} else {
			q.tails[p] = nil
		}
		t.waitNode.next = nil
		t.waitNode.prev = nil
		q.count--
		return t
	}
	return nil
}

func (q *runQueue) len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.count
}
