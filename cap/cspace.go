package cap

import (
	"sync"

	"github.com/Redstone-OS/forge/errno"
)

// Handle is an opaque index into a CSpace. Handle 0 is permanently the
// null handle and can never be inserted into or returned as a live slot.
type Handle uint32

const NullHandle Handle = 0

// CSpace is one process's capability table. Handles are indices; slot 0 is
// reserved so a zeroed Handle value never resolves to a real capability.
type CSpace struct {
	mu       sync.Mutex
	slots    []Capability
	occupied []bool
	free     []Handle // free-list of closed, non-zero slot indices
	limit    int
}

// NewCSpace creates a table with room for at most limit live capabilities
// (plus the reserved null slot).
func NewCSpace(limit int) *CSpace {
	cs := &CSpace{
		slots:    make([]Capability, 1, limit+1),
		occupied: make([]bool, 1, limit+1),
		limit:    limit,
	}
	return cs
}

// Insert adds cap to the table and returns its handle. Fails with
// CSpaceFull, leaving the table unchanged, once limit live slots are in
// use.
func (cs *CSpace) Insert(c Capability) (Handle, errno.Err_t) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if n := len(cs.free); n > 0 {
		h := cs.free[n-1]
		cs.free = cs.free[:n-1]
		cs.slots[h] = c
		cs.occupied[h] = true
		return h, errno.OK
	}
	if len(cs.slots)-1 >= cs.limit {
		return NullHandle, errno.CSpaceFull
	}
	cs.slots = append(cs.slots, c)
	cs.occupied = append(cs.occupied, true)
	return Handle(len(cs.slots) - 1), errno.OK
}

// Lookup resolves h to its capability, checking both table occupancy and
// the capability's own generation against its object (so a revoked-but-
// not-yet-closed slot is reported as invalid rather than returned live).
func (cs *CSpace) Lookup(h Handle) (Capability, errno.Err_t) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if h == NullHandle || int(h) >= len(cs.slots) || !cs.occupied[h] {
		return Capability{}, errno.InvalidHandle
	}
	c := cs.slots[h]
	if !c.Valid() {
		return Capability{}, errno.InvalidHandle
	}
	return c, errno.OK
}

// LookupRights resolves h and additionally requires every bit in want.
func (cs *CSpace) LookupRights(h Handle, want Rights) (Capability, errno.Err_t) {
	c, err := cs.Lookup(h)
	if err != errno.OK {
		return c, err
	}
	if !c.Rights.Has(want) {
		return Capability{}, errno.InsufficientRights
	}
	return c, errno.OK
}

// Duplicate inserts a copy of h's capability (requires DUPLICATE) and
// returns the new handle.
func (cs *CSpace) Duplicate(h Handle) (Handle, errno.Err_t) {
	c, err := cs.Lookup(h)
	if err != errno.OK {
		return NullHandle, err
	}
	dup, ok := c.Duplicate()
	if !ok {
		return NullHandle, errno.InsufficientRights
	}
	c.Object.Ref()
	nh, ierr := cs.Insert(dup)
	if ierr != errno.OK {
		c.Object.Unref()
		return NullHandle, ierr
	}
	return nh, errno.OK
}

// Derive inserts a rights-restricted child of h's capability (requires
// GRANT) and returns the new handle.
func (cs *CSpace) Derive(h Handle, requested Rights, keepGrant bool) (Handle, errno.Err_t) {
	c, err := cs.Lookup(h)
	if err != errno.OK {
		return NullHandle, err
	}
	child, ok := c.Derive(requested, keepGrant)
	if !ok {
		return NullHandle, errno.InsufficientRights
	}
	c.Object.Ref()
	nh, ierr := cs.Insert(child)
	if ierr != errno.OK {
		c.Object.Unref()
		return NullHandle, ierr
	}
	return nh, errno.OK
}

// Close drops h's capability and releases the underlying object reference.
func (cs *CSpace) Close(h Handle) errno.Err_t {
	cs.mu.Lock()
	if h == NullHandle || int(h) >= len(cs.slots) || !cs.occupied[h] {
		cs.mu.Unlock()
		return errno.InvalidHandle
	}
	c := cs.slots[h]
	cs.occupied[h] = false
	cs.slots[h] = Capability{}
	cs.free = append(cs.free, h)
	cs.mu.Unlock()

	c.Object.Unref()
	return errno.OK
}

// Revoke requires REVOKE on h, then bumps the underlying object's
// generation counter. Every capability anywhere in the kernel derived from
// this object — in this CSpace or any other — is invalidated on its next
// Lookup, since its stored generation no longer matches.
func (cs *CSpace) Revoke(h Handle) errno.Err_t {
	c, err := cs.LookupRights(h, RightRevoke)
	if err != errno.OK {
		return err
	}
	c.Object.Revoke()
	return errno.OK
}

// TakeForTransfer atomically removes h from cs for handoff to another
// CSpace via IPC, requiring TRANSFER. It does not drop the object
// reference (the caller installs an equivalent capability in the
// receiver's CSpace, which assumes that reference).
func (cs *CSpace) TakeForTransfer(h Handle) (Capability, errno.Err_t) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if h == NullHandle || int(h) >= len(cs.slots) || !cs.occupied[h] {
		return Capability{}, errno.InvalidHandle
	}
	c := cs.slots[h]
	if !c.Valid() {
		return Capability{}, errno.InvalidHandle
	}
	if !c.Rights.Has(RightTransfer) {
		return Capability{}, errno.InsufficientRights
	}
	cs.occupied[h] = false
	cs.slots[h] = Capability{}
	cs.free = append(cs.free, h)
	return c, errno.OK
}

// InsertTransferred installs a capability received over IPC.
func (cs *CSpace) InsertTransferred(c Capability) (Handle, errno.Err_t) {
	return cs.Insert(c)
}

// Len reports the number of live (occupied) slots, excluding the reserved
// null slot.
func (cs *CSpace) Len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	n := 0
	for _, o := range cs.occupied {
		if o {
			n++
		}
	}
	return n
}

// Occupied returns a snapshot of every currently live handle. Closing
// handles off this slice is safe even though Close shrinks the table's
// occupancy as it goes: the slice is a copy taken once, not a view that
// tracks cs.occupied, so it still names every handle that was live at the
// instant of the call.
func (cs *CSpace) Occupied() []Handle {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]Handle, 0, len(cs.occupied))
	for h, o := range cs.occupied {
		if o {
			out = append(out, Handle(h))
		}
	}
	return out
}
