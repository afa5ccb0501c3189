package ipc

import (
	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/ksync"
)

// PortStatus mirrors the two-state lifecycle from the data model.
type PortStatus uint8

const (
	PortOpen PortStatus = iota
	PortClosed
)

// Port is a bounded FIFO message queue plus the two wait queues blocked
// senders (queue full) and blocked receivers (queue empty) suspend on.
// Every mutation of status/queue happens under lock, matching the "wait
// and wake must not race" discipline: the state flip and queue operation
// occur under the same lock a concurrent Wait's recheck re-reads.
type Port struct {
	lock     ksync.SpinLock
	status   PortStatus
	capacity int
	queue    []Message

	recvWQ ksync.WaitQueue
	sendWQ ksync.WaitQueue
}

// NewPort creates an open port with room for at most capacity undelivered
// messages.
func NewPort(capacity int) *Port {
	return &Port{capacity: capacity, status: PortOpen}
}

func (p *Port) ensureWQs() {
	if p.recvWQ == nil {
		p.recvWQ = ksync.WaitQueueFactory()
	}
	if p.sendWQ == nil {
		p.sendWQ = ksync.WaitQueueFactory()
	}
}

// TrySend appends msg without blocking; returns Busy if the port is at
// capacity (errno has no separate queue-full code) and PortClosed if it
// has been closed.
func (p *Port) TrySend(msg Message) errno.Err_t {
	p.lock.Lock()
	p.ensureWQs()
	if p.status == PortClosed {
		p.lock.Unlock()
		return errno.PortClosed
	}
	if len(p.queue) >= p.capacity {
		p.lock.Unlock()
		return errno.Busy
	}
	p.queue = append(p.queue, msg)
	p.lock.Unlock()
	p.recvWQ.WakeOne()
	return errno.OK
}

// Send delivers msg, blocking while the queue is full. Returns PortClosed
// if the port closes while waiting.
func (p *Port) Send(msg Message) errno.Err_t {
	p.lock.Lock()
	p.ensureWQs()
	for p.status == PortOpen && len(p.queue) >= p.capacity {
		p.lock.Unlock()
		p.sendWQ.Wait(func() bool { return p.status == PortOpen && len(p.queue) >= p.capacity })
		p.lock.Lock()
	}
	if p.status == PortClosed {
		p.lock.Unlock()
		return errno.PortClosed
	}
	p.queue = append(p.queue, msg)
	p.lock.Unlock()
	p.recvWQ.WakeOne()
	return errno.OK
}

// TryRecv pops the oldest queued message without blocking.
func (p *Port) TryRecv() (Message, errno.Err_t) {
	p.lock.Lock()
	p.ensureWQs()
	if len(p.queue) > 0 {
		m := p.queue[0]
		p.queue = p.queue[1:]
		p.lock.Unlock()
		p.sendWQ.WakeOne()
		return m, errno.OK
	}
	closed := p.status == PortClosed
	p.lock.Unlock()
	if closed {
		return Message{}, errno.PortClosed
	}
	return Message{}, errno.Again
}

// Recv blocks until a message arrives or the port closes.
func (p *Port) Recv() (Message, errno.Err_t) {
	p.lock.Lock()
	p.ensureWQs()
	for len(p.queue) == 0 && p.status == PortOpen {
		p.lock.Unlock()
		p.recvWQ.Wait(func() bool { return len(p.queue) == 0 && p.status == PortOpen })
		p.lock.Lock()
	}
	if len(p.queue) == 0 {
		p.lock.Unlock()
		return Message{}, errno.PortClosed
	}
	m := p.queue[0]
	p.queue = p.queue[1:]
	p.lock.Unlock()
	p.sendWQ.WakeOne()
	return m, errno.OK
}

// Close transitions the port to Closed and wakes every blocked sender and
// receiver, who then observe PortClosed on their next check.
func (p *Port) Close() {
	p.lock.Lock()
	p.ensureWQs()
	p.status = PortClosed
	p.lock.Unlock()
	p.recvWQ.WakeAll()
	p.sendWQ.WakeAll()
}

// OnDestroy satisfies cap.Destroyable: a port's last capability going away
// closes it, same as an explicit close syscall.
func (p *Port) OnDestroy() { p.Close() }

func (p *Port) Status() PortStatus {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.status
}

// Len reports the number of messages currently queued, mostly for tests
// and introspection syscalls.
func (p *Port) Len() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.queue)
}
