package vm

import (
	"sync"
	"sync/atomic"

	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/mem"
)

var nextPCID uint32 = 1

func allocPCID() uint32 {
	return atomic.AddUint32(&nextPCID, 1)
}

// AddressSpace is one process's virtual memory: the top-level page table,
// the VMA tree, and the bookkeeping the TLB-shootdown fast path and
// page-fault resolver both need.
//
// Lock order (see the kernel-wide discipline): vmaMu -> (a VMA's own lock,
// currently none are taken individually) -> the Mapper's internal
// page-table lock -> any per-frame lock. Callers must never acquire vmaMu
// while holding a frame lock.
type AddressSpace struct {
	vmaMu sync.RWMutex
	vmas  VMATree

	mapper *mem.Mapper
	hhdm   *mem.HHDM
	pmm    *mem.PMM

	OwnerPID int
	pcid     uint32
	tlbGen   uint64 // atomic

	mmapHint mem.VirtAddr
}

const userMmapBase mem.VirtAddr = 0x0000_1000_0000
const userSpaceLimit mem.VirtAddr = 1 << 47

// NewAddressSpace creates a fresh address space: a new top-level table
// whose lower half is zero and whose upper half mirrors kernelHalf, an
// empty VMA tree, and a freshly assigned PCID.
func NewAddressSpace(pid int, hhdm *mem.HHDM, pmm *mem.PMM, kernelHalf *mem.Mapper) (*AddressSpace, errno.Err_t) {
	pcid := allocPCID()
	m, err := mem.NewMapper(hhdm, pmm, pcid, kernelHalf)
	if err != errno.OK {
		return nil, err
	}
	return &AddressSpace{
		mapper:   m,
		hhdm:     hhdm,
		pmm:      pmm,
		OwnerPID: pid,
		pcid:     pcid,
		mmapHint: userMmapBase,
	}, errno.OK
}

func (as *AddressSpace) PCID() uint32       { return as.pcid }
func (as *AddressSpace) TLBGeneration() uint64 { return atomic.LoadUint64(&as.tlbGen) }
func (as *AddressSpace) bumpTLBGen()        { atomic.AddUint64(&as.tlbGen, 1) }
func (as *AddressSpace) PML4Phys() mem.PhysAddr { return as.mapper.PML4Phys() }

// Mapper exposes the underlying page-table mapper to callers (the
// scheduler's context switch needs PML4Phys, not the mapper itself; the
// module loader and ELF loader need full Map access).
func (as *AddressSpace) Mapper() *mem.Mapper { return as.mapper }

// HHDM exposes the direct map so callers that already have physical
// addresses in hand (the module loader writing a relocated image, for
// instance) can reach their bytes without threading a second HHDM
// reference through every call.
func (as *AddressSpace) HHDM() *mem.HHDM { return as.hhdm }

// MapVMA registers v in the VMA tree. It does not install any page-table
// entries: those come from the page-fault resolver (anonymous/file) or are
// installed eagerly here for SHARED shared-memory mappings.
func (as *AddressSpace) MapVMA(v *VMA) errno.Err_t {
	as.vmaMu.Lock()
	defer as.vmaMu.Unlock()
	if err := as.vmas.Insert(v); err != errno.OK {
		return err
	}
	if v.Flags&FlagShared != 0 && v.Backing.Kind == BackingVMO && v.Backing.VMO.Kind() == VMOSharedPinned {
		return as.installSharedEager(v)
	}
	return errno.OK
}

func (as *AddressSpace) installSharedEager(v *VMA) errno.Err_t {
	npages := v.Len() / mem.PageSize
	for i := uint64(0); i < npages; i++ {
		pa, err := v.Backing.VMO.PageAt(uint64(v.Backing.Offset)/mem.PageSize+i, as.hhdm)
		if err != errno.OK {
			return err
		}
		va := v.Start.Add(i * mem.PageSize)
		flags := mem.MapFlags{Write: v.Prot.CanWrite(), Exec: v.Prot.CanExec(), User: true}
		if merr := as.mapper.Map(va, pa, flags); merr != errno.OK {
			return merr
		}
		as.pmm.AddBackref(pa, as.pcid, va)
	}
	as.bumpTLBGen()
	return errno.OK
}

// MmapAnon picks an address (if hint is zero, via FindHole) and installs a
// new anonymous VMA of length bytes with the given protection/flags.
func (as *AddressSpace) MmapAnon(hint mem.VirtAddr, length uint64, prot mem.Protection, flags VMAFlags, intent Intent) (mem.VirtAddr, errno.Err_t) {
	length = (length + mem.PageSize - 1) &^ (mem.PageSize - 1)
	as.vmaMu.Lock()
	defer as.vmaMu.Unlock()

	start := hint
	if start == 0 {
		h, ok := as.vmas.FindHole(as.mmapHint, length, userSpaceLimit)
		if !ok {
			return 0, errno.OutOfMemory
		}
		start = h
	}
	if !mem.IsUserRange(start, length) {
		return 0, errno.InvalidArgument
	}
	end := start.Add(length)
	v := &VMA{Start: start, End: end, Prot: prot, Flags: flags, Intent: intent,
		Backing: Backing{Kind: BackingAnonymous}}
	if err := as.vmas.Insert(v); err != errno.OK {
		return 0, err
	}
	if hint == 0 {
		as.mmapHint = end
	}
	return start, errno.OK
}

// MapAnonEager behaves like MmapAnon but populates every page immediately
// instead of leaving them for the page-fault resolver to fault in lazily.
// The module loader uses this: it needs to write the relocated image into
// the region right after mapping it, before the task (or, for a
// kernel-mode module, any other code) ever touches it.
func (as *AddressSpace) MapAnonEager(length uint64, prot mem.Protection) (mem.VirtAddr, errno.Err_t) {
	length = (length + mem.PageSize - 1) &^ (mem.PageSize - 1)
	as.vmaMu.Lock()
	defer as.vmaMu.Unlock()

	h, ok := as.vmas.FindHole(as.mmapHint, length, userSpaceLimit)
	if !ok {
		return 0, errno.OutOfMemory
	}
	start := h
	end := start.Add(length)
	v := &VMA{Start: start, End: end, Prot: prot, Flags: FlagNoCOW, Intent: IntentCode,
		Backing: Backing{Kind: BackingAnonymous}}
	if err := as.vmas.Insert(v); err != errno.OK {
		return 0, err
	}

	npages := length / mem.PageSize
	flags := mem.MapFlags{Write: true, Exec: false, User: prot.CanExec() || true}
	for i := uint64(0); i < npages; i++ {
		pa, err := as.pmm.Alloc(mem.OwnerAnonVMA, 0)
		if err != errno.OK {
			as.vmas.Remove(start)
			return 0, err
		}
		va := start.Add(i * mem.PageSize)
		if merr := as.mapper.Map(va, pa, flags); merr != errno.OK {
			as.pmm.Free(pa, mem.OwnerAnonVMA)
			as.vmas.Remove(start)
			return 0, merr
		}
		as.pmm.AddBackref(pa, as.pcid, va)
	}
	as.mmapHint = end
	as.bumpTLBGen()
	return start, errno.OK
}

// MapShared installs a VMA backed directly by vmo (a shared-pinned VMO, in
// practice) with SHARED semantics: every mapping of the same vmo observes
// the same frames, as opposed to the COW-private semantics a file or
// anonymous mapping gets by default. Used by the IPC shared-memory
// handle, which hands out the same VMO to multiple address spaces.
func (as *AddressSpace) MapShared(hint mem.VirtAddr, length uint64, prot mem.Protection, vmo *VMO, intent Intent) (mem.VirtAddr, errno.Err_t) {
	length = (length + mem.PageSize - 1) &^ (mem.PageSize - 1)
	as.vmaMu.Lock()
	defer as.vmaMu.Unlock()

	start := hint
	if start == 0 {
		h, ok := as.vmas.FindHole(as.mmapHint, length, userSpaceLimit)
		if !ok {
			return 0, errno.OutOfMemory
		}
		start = h
	}
	if !mem.IsUserRange(start, length) {
		return 0, errno.InvalidArgument
	}
	end := start.Add(length)
	v := &VMA{Start: start, End: end, Prot: prot, Flags: FlagShared, Intent: intent,
		Backing: Backing{Kind: BackingVMO, VMO: vmo}}
	if err := as.vmas.Insert(v); err != errno.OK {
		return 0, err
	}
	vmo.Ref()
	if err := as.installSharedEager(v); err != errno.OK {
		as.vmas.Remove(start)
		vmo.Unref()
		return 0, err
	}
	if hint == 0 {
		as.mmapHint = end
	}
	return start, errno.OK
}

// Munmap removes the VMA starting exactly at addr, tearing down every
// page-table entry it owns and dropping the corresponding frame
// references.
func (as *AddressSpace) Munmap(addr mem.VirtAddr) errno.Err_t {
	as.vmaMu.Lock()
	v, ok := as.vmas.Remove(addr)
	as.vmaMu.Unlock()
	if !ok {
		return errno.NotFound
	}
	npages := v.Len() / mem.PageSize
	for i := uint64(0); i < npages; i++ {
		va := v.Start.Add(i * mem.PageSize)
		pa, uerr := as.mapper.Unmap(va)
		if uerr != errno.OK {
			continue // page was never faulted in; nothing to release
		}
		as.pmm.RemoveBackref(pa, as.pcid, va)
		owner := mem.OwnerAnonVMA
		if v.Backing.Kind == BackingFile {
			owner = mem.OwnerFileCache
		}
		as.pmm.Free(pa, owner)
	}
	if v.Backing.Kind == BackingVMO {
		v.Backing.VMO.Unref()
	}
	as.bumpTLBGen()
	return errno.OK
}

// Protect changes the protection recorded on the VMA starting exactly at
// addr and re-protects every page of it that is already mapped; a page
// that has not yet been faulted in simply picks up the new protection the
// first time the resolver maps it, since the resolver always reads Prot
// off the VMA rather than off any stale page-table entry.
func (as *AddressSpace) Protect(addr mem.VirtAddr, newProt mem.Protection) errno.Err_t {
	as.vmaMu.Lock()
	defer as.vmaMu.Unlock()
	v, ok := as.vmas.Lookup(addr)
	if !ok || v.Start != addr {
		return errno.NotFound
	}
	v.Prot = newProt
	npages := v.Len() / mem.PageSize
	for i := uint64(0); i < npages; i++ {
		va := v.Start.Add(i * mem.PageSize)
		if _, mapped := as.mapper.Translate(va); !mapped {
			continue
		}
		flags := mem.MapFlags{Write: newProt.CanWrite(), Exec: newProt.CanExec(), User: true}
		if err := as.mapper.Protect(va, flags); err != errno.OK {
			return err
		}
	}
	as.bumpTLBGen()
	return errno.OK
}

// Translate exposes Mapper.Translate for callers (copy-in/out, debugging).
func (as *AddressSpace) Translate(v mem.VirtAddr) (mem.PhysAddr, bool) {
	return as.mapper.Translate(v)
}

// Lookup returns the VMA containing addr under the read lock.
func (as *AddressSpace) Lookup(addr mem.VirtAddr) (*VMA, bool) {
	as.vmaMu.RLock()
	defer as.vmaMu.RUnlock()
	return as.vmas.Lookup(addr)
}

func (as *AddressSpace) NextAfter(addr mem.VirtAddr) (*VMA, bool) {
	as.vmaMu.RLock()
	defer as.vmaMu.RUnlock()
	return as.vmas.NextAfter(addr)
}

// GrowDown extends a GROWS_DOWN VMA's Start downward by one page, used
// when the page-fault resolver decides a write one page below a growable
// stack VMA should extend it instead of faulting.
func (as *AddressSpace) GrowDown(v *VMA) errno.Err_t {
	as.vmaMu.Lock()
	defer as.vmaMu.Unlock()
	newStart := mem.VirtAddr(uint64(v.Start) - mem.PageSize)
	if _, ok := as.vmas.Remove(v.Start); !ok {
		return errno.Internal
	}
	v.Start = newStart
	return as.vmas.Insert(v)
}
