package mem

import (
	"sync"
	"unsafe"

	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/hal"
)

// PTE bits. Bits 9-11 are software-available in every level; COW is used
// only at the leaf level by the page-fault resolver, never interpreted by
// hardware.
type PTE uint64

const (
	PteP   PTE = 1 << 0 // present
	PteW   PTE = 1 << 1 // writable
	PteU   PTE = 1 << 2 // user-accessible
	PtePCD PTE = 1 << 4 // cache disable
	PteA   PTE = 1 << 5 // accessed
	PteD   PTE = 1 << 6 // dirty
	PtePS  PTE = 1 << 7 // page size (huge)
	PteG   PTE = 1 << 8 // global
	PteCOW PTE = 1 << 9 // software: copy-on-write
	PteNX  PTE = 1 << 63

	pteAddrMask PTE = 0x000F_FFFF_FFFF_F000
)

// MapFlags describes the protection and cacheability requested for a
// mapping; Mapper translates these into raw PTE bits.
type MapFlags struct {
	Write    bool
	Exec     bool
	User     bool
	Global   bool
	COW      bool
	NoCache  bool
	HugePage bool // caller is installing/expects a 2M or 1G leaf
}

func (f MapFlags) toPTE() PTE {
	p := PteP
	if f.Write {
		p |= PteW
	}
	if f.User {
		p |= PteU
	}
	if f.Global {
		p |= PteG
	}
	if f.COW {
		p |= PteCOW
	}
	if f.NoCache {
		p |= PtePCD
	}
	if !f.Exec {
		p |= PteNX
	}
	if f.HugePage {
		p |= PtePS
	}
	return p
}

func (f MapFlags) Protection() Protection {
	prot := ProtRead
	if f.Write {
		prot |= ProtWrite
	}
	if f.Exec {
		prot |= ProtExec
	}
	return prot
}

type table [512]PTE

// Mapper owns one top-level page table (one PML4 page) and the lock
// guarding its mutation. VMM operations never need the VMA-tree lock; that
// lock belongs to vm.AddressSpace, one layer up, per the documented lock
// order (VMA lock -> VMA-specific lock -> page-table lock -> per-frame
// lock).
type Mapper struct {
	mu       sync.Mutex
	pml4Phys PhysAddr
	hhdm     *HHDM
	pmm      *PMM
	pcid     uint32
}

// NewMapper allocates a fresh top-level table. If kernelHalf is non-nil its
// upper-half (indices 256-511) entries are copied in so every address
// space shares the kernel mapping by reference, per the AddressSpace
// invariant.
func NewMapper(hhdm *HHDM, pmm *PMM, pcid uint32, kernelHalf *Mapper) (*Mapper, errno.Err_t) {
	pa, err := pmm.Alloc(OwnerPageTable, 0)
	if err != errno.OK {
		return nil, err
	}
	t := (*table)(unsafe.Pointer(uintptr(hhdm.PhysToVirt(pa))))
	for i := range t {
		t[i] = 0
	}
	if kernelHalf != nil {
		kt := (*table)(unsafe.Pointer(uintptr(hhdm.PhysToVirt(kernelHalf.pml4Phys))))
		for i := 256; i < 512; i++ {
			t[i] = kt[i]
		}
	}
	return &Mapper{pml4Phys: pa, hhdm: hhdm, pmm: pmm, pcid: pcid}, errno.OK
}

func (m *Mapper) PML4Phys() PhysAddr { return m.pml4Phys }
func (m *Mapper) PCID() uint32       { return m.pcid }

func idxOf(v VirtAddr, level int) int {
	shift := uint(12 + 9*level)
	return int((uint64(v) >> shift) & 0x1FF)
}

func (m *Mapper) table(phys PhysAddr) *table {
	return (*table)(unsafe.Pointer(uintptr(m.hhdm.PhysToVirt(phys))))
}

// walk returns the leaf PTE slot for v, allocating intermediate tables
// lazily when create is true. stopAtPD stops the walk one level early (at
// the PD) when installing a 2 MiB mapping.
func (m *Mapper) walk(v VirtAddr, create bool, stopAtPD bool) (*PTE, errno.Err_t) {
	pml4 := m.table(m.pml4Phys)
	t := pml4
	for level := 3; level >= 1; level-- {
		i := idxOf(v, level)
		e := &t[i]
		if stopAtPD && level == 1 {
			return e, errno.OK
		}
		if *e&PteP == 0 {
			if !create {
				return nil, errno.NotMapped
			}
			pa, err := m.pmm.Alloc(OwnerPageTable, 0)
			if err != errno.OK {
				return nil, err
			}
			nt := m.table(pa)
			for i := range nt {
				nt[i] = 0
			}
			*e = PTE(pa.Masked()) | PteP | PteW | PteU
		}
		if *e&PtePS != 0 {
			// Already a huge leaf at this level; caller must SplitHuge
			// first if they need page granularity inside it.
			return e, errno.AlreadyMapped
		}
		t = m.table(PhysAddr(*e & pteAddrMask))
	}
	i := idxOf(v, 0)
	return &t[i], errno.OK
}

// Map installs a single mapping. Huge-page installs (flags.HugePage) stop
// the walk at the PD level, giving a 2 MiB leaf, instead of descending to a
// 4K leaf; Map does not install 1 GiB leaves at the PDPT level.
func (m *Mapper) Map(v VirtAddr, p PhysAddr, flags MapFlags) errno.Err_t {
	if uint64(v)&PageMask != 0 || uint64(p)&PageMask != 0 {
		return errno.NotAligned
	}
	m.mu.Lock()
	pte, err := m.walk(v, true, flags.HugePage)
	if err != errno.OK {
		m.mu.Unlock()
		return err
	}
	if *pte&PteP != 0 {
		m.mu.Unlock()
		return errno.AlreadyMapped
	}
	*pte = PTE(p.Masked()) | flags.toPTE()
	hal.FlushRange(m.pcid, hal.ShootdownRange{Base: uint64(v), Pages: 1})
	m.mu.Unlock()

	return errno.OK
}

// Unmap removes the mapping at v and returns the physical address that was
// mapped there. Empty interior tables encountered while walking up are
// freed; this only frees a table level when every one of its 512 entries
// observed present bit clear, which Unmap checks explicitly.
func (m *Mapper) Unmap(v VirtAddr) (PhysAddr, errno.Err_t) {
	m.mu.Lock()
	pte, err := m.walk(v, false, false)
	if err != errno.OK {
		m.mu.Unlock()
		return 0, err
	}
	if *pte&PteP == 0 {
		m.mu.Unlock()
		return 0, errno.NotMapped
	}
	pa := PhysAddr(*pte & pteAddrMask)
	*pte = 0
	m.freeEmptyInteriorTables(v)
	hal.FlushRange(m.pcid, hal.ShootdownRange{Base: uint64(v), Pages: 1})
	m.mu.Unlock()

	return pa, errno.OK
}

// freeEmptyInteriorTables walks from the PML4 down to the PT covering v,
// freeing any interior table all of whose entries are now absent. Must be
// called with mu held.
func (m *Mapper) freeEmptyInteriorTables(v VirtAddr) {
	var path [3]PhysAddr
	t := m.table(m.pml4Phys)
	for level := 3; level >= 1; level-- {
		i := idxOf(v, level)
		e := t[i]
		if e&PteP == 0 || e&PtePS != 0 {
			return
		}
		path[level-1] = PhysAddr(e & pteAddrMask)
		t = m.table(path[level-1])
	}
	for level := 1; level <= 3; level++ {
		child := path[level-1]
		ct := m.table(child)
		empty := true
		for _, e := range ct {
			if e&PteP != 0 {
				empty = false
				break
			}
		}
		if !empty {
			break
		}
		var parent *table
		if level == 3 {
			parent = m.table(m.pml4Phys)
		} else {
			parent = m.table(path[level])
		}
		parent[idxOf(v, level)] = 0
		m.pmm.Free(child, OwnerPageTable)
	}
}

// Translate reports the physical address currently backing v, if any.
func (m *Mapper) Translate(v VirtAddr) (PhysAddr, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pte, err := m.walk(v, false, false)
	if err != errno.OK || *pte&PteP == 0 {
		return 0, false
	}
	return PhysAddr(*pte&pteAddrMask) + PhysAddr(v.PageOffset()), true
}

// Protect changes the R/W/X bits of an existing mapping in place.
func (m *Mapper) Protect(v VirtAddr, flags MapFlags) errno.Err_t {
	m.mu.Lock()
	pte, err := m.walk(v, false, false)
	if err != errno.OK {
		m.mu.Unlock()
		return err
	}
	if *pte&PteP == 0 {
		m.mu.Unlock()
		return errno.NotMapped
	}
	addr := *pte & pteAddrMask
	*pte = addr | flags.toPTE()
	hal.FlushRange(m.pcid, hal.ShootdownRange{Base: uint64(v), Pages: 1})
	m.mu.Unlock()
	return errno.OK
}

// SplitHuge turns a 2 MiB mapping covering v into 512 4 KiB mappings with
// identical protection, so a subsequent per-page protection change (e.g.
// COW on one page of a huge anonymous region) is possible. A no-op if v is
// not currently backed by a huge page.
func (m *Mapper) SplitHuge(v VirtAddr) errno.Err_t {
	m.mu.Lock()

	pte, err := m.walk(v, false, true)
	if err != errno.OK {
		m.mu.Unlock()
		return err
	}
	if *pte&PteP == 0 {
		m.mu.Unlock()
		return errno.NotMapped
	}
	if *pte&PtePS == 0 {
		m.mu.Unlock()
		return errno.OK // already page-granular
	}
	base := PhysAddr(*pte & pteAddrMask)
	flags := *pte &^ (pteAddrMask | PtePS)

	pa, aerr := m.pmm.Alloc(OwnerPageTable, 0)
	if aerr != errno.OK {
		m.mu.Unlock()
		return aerr
	}
	nt := m.table(pa)
	for i := 0; i < 512; i++ {
		nt[i] = PTE(base+PhysAddr(i*PageSize)) | flags
	}
	*pte = PTE(pa.Masked()) | PteP | PteW | PteU

	// The huge leaf covered 2 MiB; every 4K entry it was split into must
	// be invalidated, not just the first, or a stale huge TLB entry can
	// keep translating part of the range until the next full flush.
	hal.FlushRange(m.pcid, hal.ShootdownRange{Base: uint64(v) &^ (HugePage2M - 1), Pages: HugePage2M / PageSize})
	m.mu.Unlock()

	return errno.OK
}
