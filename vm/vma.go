// Package vm builds virtual memory areas, virtual memory objects, and
// per-process address spaces on top of the mem package's frame allocator
// and page-table mapper, and resolves page faults against them.
package vm

import (
	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/mem"
)

// VMAFlags are the bits a VMA carries beyond its protection.
type VMAFlags uint16

const (
	FlagGrowable VMAFlags = 1 << iota
	FlagGrowsDown
	FlagCOW
	FlagShared
	FlagLocked
	FlagDiscardable
	FlagNoCOW
)

// Intent records why a VMA exists, independent of its backing. It is
// descriptive only: no policy reads it (guard-page growth, for one, keys
// off FlagGrowsDown and FlagGrowable, not IntentStack).
type Intent uint8

const (
	IntentCode Intent = iota
	IntentData
	IntentBss
	IntentHeap
	IntentStack
	IntentFileReadOnly
	IntentFilePrivate
	IntentSharedMemory
	IntentDeviceBuffer
	IntentGuard
)

// BackingKind tags which union member Backing holds.
type BackingKind uint8

const (
	BackingAnonymous BackingKind = iota
	BackingFile
	BackingVMO
)

// VNode is the minimal file-backing contract vm needs; the real type lives
// in the (out-of-scope) filesystem layer and is injected here.
type VNode interface {
	ReadPage(offset int64, dst []byte) errno.Err_t
}

// Backing is the tagged union of what a VMA maps pages from.
type Backing struct {
	Kind   BackingKind
	VNode  VNode
	VMO    *VMO
	Offset int64
}

// VMA is a half-open virtual range with uniform protection and backing
// within one AddressSpace.
type VMA struct {
	Start, End mem.VirtAddr
	Prot       mem.Protection
	Flags      VMAFlags
	Intent     Intent
	Backing    Backing
}

func (v *VMA) Len() uint64 { return uint64(v.End) - uint64(v.Start) }

func (v *VMA) Contains(addr mem.VirtAddr) bool {
	return addr >= v.Start && addr < v.End
}

func (v *VMA) Overlaps(start, end mem.VirtAddr) bool {
	return start < v.End && v.Start < end
}

// VMATree is the ordered, disjoint collection of VMAs for one address
// space. It is backed by a sorted slice rather than a literal balanced
// tree (see DESIGN.md): lookups binary-search on Start, and inserts/removes
// keep the slice sorted, which is sufficient for the handful of VMAs a
// typical process holds and keeps the disjointness invariant trivial to
// check.
type VMATree struct {
	items []*VMA
}

func (t *VMATree) Len() int { return len(t.items) }

// upperBound returns the index of the first VMA whose Start is > addr, i.e. the
// insertion point / the VMA that would follow addr.
func (t *VMATree) upperBound(addr mem.VirtAddr) int {
	lo, hi := 0, len(t.items)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.items[mid].Start <= addr {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Lookup returns the VMA containing addr, if any.
func (t *VMATree) Lookup(addr mem.VirtAddr) (*VMA, bool) {
	i := t.upperBound(addr)
	if i == 0 {
		return nil, false
	}
	v := t.items[i-1]
	if v.Contains(addr) {
		return v, true
	}
	return nil, false
}

// NextAfter returns the VMA immediately following addr (the candidate
// "adjacent growable stack VMA" check in the page-fault resolver uses
// this to find the VMA that owns a guard page below it).
func (t *VMATree) NextAfter(addr mem.VirtAddr) (*VMA, bool) {
	i := t.upperBound(addr)
	if i >= len(t.items) {
		return nil, false
	}
	return t.items[i], true
}

// Insert adds v, failing with AlreadyMapped if it overlaps an existing VMA.
func (t *VMATree) Insert(v *VMA) errno.Err_t {
	i := t.upperBound(v.Start)
	if i > 0 && t.items[i-1].Overlaps(v.Start, v.End) {
		return errno.AlreadyMapped
	}
	if i < len(t.items) && t.items[i].Overlaps(v.Start, v.End) {
		return errno.AlreadyMapped
	}
	t.items = append(t.items, nil)
	copy(t.items[i+1:], t.items[i:])
	t.items[i] = v
	return errno.OK
}

// Remove deletes the VMA that starts exactly at start.
func (t *VMATree) Remove(start mem.VirtAddr) (*VMA, bool) {
	i := t.upperBound(start)
	if i == 0 || t.items[i-1].Start != start {
		return nil, false
	}
	v := t.items[i-1]
	t.items = append(t.items[:i-1], t.items[i:]...)
	return v, true
}

// FindHole finds the lowest gap of at least length bytes at or above the
// given hint, used to pick an address for a hint-free mmap.
func (t *VMATree) FindHole(hint mem.VirtAddr, length uint64, limit mem.VirtAddr) (mem.VirtAddr, bool) {
	cursor := hint.AlignUp()
	for i := 0; i <= len(t.items); i++ {
		var gapEnd mem.VirtAddr
		if i < len(t.items) {
			gapEnd = t.items[i].Start
		} else {
			gapEnd = limit
		}
		if cursor < gapEnd && uint64(gapEnd)-uint64(cursor) >= length {
			return cursor, true
		}
		if i < len(t.items) && t.items[i].End > cursor {
			cursor = t.items[i].End
		}
	}
	return 0, false
}

// Each calls f for every VMA in ascending Start order; f must not mutate
// the tree.
func (t *VMATree) Each(f func(*VMA)) {
	for _, v := range t.items {
		f(v)
	}
}
