package mem

import "unsafe"

// HHDMBase is the default base of the higher-half direct map: every
// physical byte of RAM is visible at HHDMBase+phys with R/W permission and
// the global bit set, mapped using the largest page size available to
// minimize page-table footprint.
const HHDMBase VirtAddr = 0xFFFF_8000_0000_0000

// HHDM is the process-independent direct map. It has no VMA of its own
// (the kernel half of every address space's page table shares these
// mappings by reference), so it is represented separately from the VMA
// machinery used for user mappings.
type HHDM struct {
	base VirtAddr
}

func NewHHDM(base VirtAddr) *HHDM {
	if base == 0 {
		base = HHDMBase
	}
	return &HHDM{base: base}
}

// PhysToVirt is pure pointer arithmetic: the map is linear and total, so no
// lookup is required.
func (h *HHDM) PhysToVirt(p PhysAddr) VirtAddr {
	return h.base.Add(uint64(p.Masked()))
}

// VirtToPhys inverts PhysToVirt. It panics only in debug builds when v does
// not fall in the HHDM range, matching the spec: production builds must
// never panic on a data-dependent check this cheap to get wrong in a
// caller, but debug builds want the loud failure.
func (h *HHDM) VirtToPhys(v VirtAddr, debug bool) PhysAddr {
	if v < h.base {
		if debug {
			panic("mem: VirtToPhys: address below HHDM range")
		}
		return 0
	}
	return PhysAddr(uint64(v) - uint64(h.base))
}

// InRange reports whether v lies within the direct map.
func (h *HHDM) InRange(v VirtAddr) bool {
	return v >= h.base
}

// BytesAt returns a slice over n bytes of physical memory starting at p,
// viewed through the direct map. Used by code that needs to read or write
// a frame's contents directly (the module loader copying a relocated
// image in, the page-fault resolver zeroing a fresh frame).
func (h *HHDM) BytesAt(p PhysAddr, n int) []byte {
	virt := uintptr(h.PhysToVirt(p))
	return unsafe.Slice((*byte)(unsafe.Pointer(virt)), n)
}
