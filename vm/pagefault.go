package vm

import (
	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/mem"
)

// FaultErrorCode mirrors the bits x86_64 pushes for vector 14.
type FaultErrorCode uint64

const (
	FaultPresent FaultErrorCode = 1 << 0 // 0 = not-present, 1 = protection violation
	FaultWrite   FaultErrorCode = 1 << 1
	FaultUser    FaultErrorCode = 1 << 2
	FaultInstr   FaultErrorCode = 1 << 4
)

// FaultOutcome tells the caller (the vector-14 handler, which owns
// delivering signals to the faulting task) what happened.
type FaultOutcome int

const (
	FaultResolved FaultOutcome = iota
	FaultSegv                  // no VMA, or a guard page with no adjacent growable VMA
	FaultProtection            // VMA present but access exceeds its protection
	FaultError                 // resolver itself hit an allocation failure etc.
)

// Resolve implements the page-fault decision tree from the spec: no VMA,
// protection violation, not-yet-mapped, or COW. On FaultResolved the
// faulting instruction is safe to re-execute; TLB invalidation for the new
// mapping has already completed.
func (as *AddressSpace) Resolve(addr mem.VirtAddr, code FaultErrorCode) (FaultOutcome, errno.Err_t) {
	v, ok := as.Lookup(addr)
	if !ok {
		return as.resolveNoVMA(addr, code)
	}

	wantWrite := code&FaultWrite != 0
	wantExec := code&FaultInstr != 0
	if wantWrite && !v.Prot.CanWrite() {
		return FaultProtection, errno.OK
	}
	if wantExec && !v.Prot.CanExec() {
		return FaultProtection, errno.OK
	}

	if code&FaultPresent == 0 {
		return as.resolveNotMapped(v, addr)
	}

	// Present but faulted: only legitimate case is a COW write.
	if wantWrite && v.Flags&FlagCOW != 0 {
		return as.resolveCOW(v, addr)
	}
	return FaultProtection, errno.OK
}

func (as *AddressSpace) resolveNoVMA(addr mem.VirtAddr, code FaultErrorCode) (FaultOutcome, errno.Err_t) {
	if code&FaultWrite == 0 {
		return FaultSegv, errno.OK
	}
	next, ok := as.NextAfter(addr)
	if !ok || next.Flags&FlagGrowsDown == 0 || next.Flags&FlagGrowable == 0 {
		return FaultSegv, errno.OK
	}
	// addr must be exactly the page immediately below next.Start (the
	// guard page) for this to be a legitimate stack-growth fault.
	if addr.AlignDown() != mem.VirtAddr(uint64(next.Start)-mem.PageSize) {
		return FaultSegv, errno.OK
	}
	if err := as.GrowDown(next); err != errno.OK {
		return FaultError, err
	}
	return as.resolveNotMapped(next, addr)
}

func (as *AddressSpace) resolveNotMapped(v *VMA, addr mem.VirtAddr) (FaultOutcome, errno.Err_t) {
	pageAddr := addr.AlignDown()
	var pa mem.PhysAddr
	var err errno.Err_t

	switch v.Backing.Kind {
	case BackingAnonymous:
		pa, err = as.pmm.Alloc(mem.OwnerAnonVMA, 0)
		if err == errno.OK {
			zeroPage(as.hhdm.PhysToVirt(pa))
		}
	case BackingFile:
		idx := (uint64(pageAddr) - uint64(v.Start) + uint64(v.Backing.Offset)) / mem.PageSize
		vmo := v.Backing.VMO
		if vmo == nil {
			// Lazily attach a file-backed VMO the first time this VMA
			// needs a page; subsequent faults in the same VMA share it.
			vmo = NewFileBackedVMO(as.pmm, v.Backing.VNode)
			v.Backing.VMO = vmo
			v.Backing.Kind = BackingVMO
		}
		pa, err = vmo.PageAt(idx, as.hhdm)
	case BackingVMO:
		idx := (uint64(pageAddr) - uint64(v.Start) + uint64(v.Backing.Offset)) / mem.PageSize
		pa, err = v.Backing.VMO.PageAt(idx, as.hhdm)
	}
	if err != errno.OK {
		return FaultError, err
	}

	flags := mem.MapFlags{Write: v.Prot.CanWrite(), Exec: v.Prot.CanExec(), User: true}
	if v.Flags&FlagCOW != 0 {
		flags.Write = false // installed read-only; a write fault drives the COW path next time
	}
	if merr := as.mapper.Map(pageAddr, pa, flags); merr != errno.OK {
		as.pmm.Free(pa, mem.OwnerAnonVMA)
		return FaultError, merr
	}
	as.pmm.AddBackref(pa, as.pcid, pageAddr)
	as.bumpTLBGen()
	return FaultResolved, errno.OK
}

func (as *AddressSpace) resolveCOW(v *VMA, addr mem.VirtAddr) (FaultOutcome, errno.Err_t) {
	pageAddr := addr.AlignDown()
	srcPA, ok := as.mapper.Translate(pageAddr)
	if !ok {
		return FaultError, errno.Internal
	}
	srcPA = srcPA.AlignDown()

	if as.pmm.RefCount(srcPA) == 1 {
		// Sole owner: promote in place instead of copying.
		if err := as.mapper.Protect(pageAddr, mem.MapFlags{Write: true, Exec: v.Prot.CanExec(), User: true}); err != errno.OK {
			return FaultError, err
		}
		as.bumpTLBGen()
		return FaultResolved, errno.OK
	}

	dstPA, err := as.pmm.Alloc(mem.OwnerAnonVMA, 0)
	if err != errno.OK {
		return FaultError, err
	}
	copyPage(as.hhdm.PhysToVirt(dstPA), as.hhdm.PhysToVirt(srcPA))

	as.pmm.RemoveBackref(srcPA, as.pcid, pageAddr)
	as.pmm.Free(srcPA, mem.OwnerAnonVMA)

	if _, uerr := as.mapper.Unmap(pageAddr); uerr != errno.OK && uerr != errno.NotMapped {
		as.pmm.Free(dstPA, mem.OwnerAnonVMA)
		return FaultError, uerr
	}
	flags := mem.MapFlags{Write: true, Exec: v.Prot.CanExec(), User: true}
	if merr := as.mapper.Map(pageAddr, dstPA, flags); merr != errno.OK {
		as.pmm.Free(dstPA, mem.OwnerAnonVMA)
		return FaultError, merr
	}
	as.pmm.AddBackref(dstPA, as.pcid, pageAddr)
	as.bumpTLBGen()
	return FaultResolved, errno.OK
}
