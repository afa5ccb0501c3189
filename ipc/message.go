// Package ipc implements the kernel's inter-process communication
// primitives: bounded-FIFO ports, the linked-port channel abstraction,
// shared-memory VMO handles, and the futex table the rest of the
// concurrency model (including ksync's blocking primitives outside the
// kernel proper) rests on.
package ipc

import "github.com/Redstone-OS/forge/cap"

// Message is one IPC datagram: an opaque payload plus a set of capability
// handles to transfer. Port itself only queues the message; the send
// syscall takes every handle out of the sender's CSpace (restoring all of
// them if any one cannot be taken), and the receive syscall inserts them
// into the receiver's CSpace.
type Message struct {
	Payload []byte
	Handles []cap.Capability
}

// MaxMessageHandles bounds how many capabilities a single message may
// carry; the send syscall rejects a larger handle count before copying in
// the handle array.
const MaxMessageHandles = 16
