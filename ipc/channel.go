package ipc

// Channel is a pair of linked ports: each endpoint's send side feeds the
// peer's receive side. Closing one endpoint marks the peer's receive side
// with an end-of-stream signal — implemented here by simply closing the
// peer's underlying Port, whose Recv already reports PortClosed once its
// queue drains.
type Channel struct {
	Send *Port
	Recv *Port
}

// NewChannelPair builds two Channel endpoints sharing a pair of ports: end
// A's Send is end B's Recv and vice versa, the standard crossed-pipe
// wiring a bidirectional channel needs.
func NewChannelPair(capacity int) (a, b *Channel) {
	p0 := NewPort(capacity)
	p1 := NewPort(capacity)
	a = &Channel{Send: p0, Recv: p1}
	b = &Channel{Send: p1, Recv: p0}
	return a, b
}

// Close closes both of this endpoint's underlying ports, signaling
// end-of-stream to whatever is still reading from the peer and refusing
// any further send from this side.
func (c *Channel) Close() {
	c.Send.Close()
	c.Recv.Close()
}

// OnDestroy satisfies cap.Destroyable.
func (c *Channel) OnDestroy() { c.Close() }
