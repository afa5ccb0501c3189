package mem

import (
	"sync"
	"sync/atomic"

	"github.com/Redstone-OS/forge/errno"
)

// FrameState classifies a physical frame's ownership. The owning subsystem
// is recorded separately, as the OwnerTag passed to Alloc.
type FrameState uint8

const (
	FrameFree FrameState = iota
	FrameOwned
	FrameShared
	FrameKernel
	FramePinned
	FrameDevice
)

// OwnerTag identifies who asked for a frame; passed to Alloc and checked
// again on Free so a stray free from the wrong subsystem is caught rather
// than silently corrupting another owner's mapping.
type OwnerTag uint32

const (
	OwnerNone OwnerTag = iota
	OwnerKernelHeap
	OwnerPageTable
	OwnerAnonVMA
	OwnerFileCache
	OwnerSHM
)

const inlineBackrefs = 4

// backref is one PTE that maps this frame, identified by the address space
// that owns the PTE and the virtual address of the mapping (not the PTE's
// own physical location, since that can move if an interior table is
// reallocated).
type backref struct {
	pcid uint32
	virt VirtAddr
}

// Frame is the per-4KiB-page metadata record. The design note on cyclic
// reverse-map graphs applies here: a Frame owns its refcount and its
// back-reference set; PTEs hold only a non-owning physical address.
type Frame struct {
	mu    sync.Mutex
	state FrameState
	owner OwnerTag
	refs  int32 // atomic

	node uint16 // NUMA node id

	// invgen increments on every TLB-relevant mutation of this frame's
	// mapping set (new backref, removed backref, protection change) so a
	// racing shootdown fast-path can tell whether it needs to act.
	invgen uint64

	inline    [inlineBackrefs]backref
	inlineLen uint8
	overflow  map[backref]struct{} // non-nil only once inline is exhausted

	next uint32 // free-list link, index into PMM.frames
}

func (f *Frame) Refcount() int32    { return atomic.LoadInt32(&f.refs) }
func (f *Frame) State() FrameState  { return f.state }
func (f *Frame) Generation() uint64 { return atomic.LoadUint64(&f.invgen) }

// addBackref records a new PTE pointing at this frame.
func (f *Frame) addBackref(b backref) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.overflow != nil {
		f.overflow[b] = struct{}{}
	} else if int(f.inlineLen) < inlineBackrefs {
		f.inline[f.inlineLen] = b
		f.inlineLen++
	} else {
		f.overflow = make(map[backref]struct{}, inlineBackrefs*2)
		for _, e := range f.inline[:f.inlineLen] {
			f.overflow[e] = struct{}{}
		}
		f.overflow[b] = struct{}{}
	}
	atomic.AddUint64(&f.invgen, 1)
}

func (f *Frame) removeBackref(b backref) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.overflow != nil {
		delete(f.overflow, b)
	} else {
		for i := uint8(0); i < f.inlineLen; i++ {
			if f.inline[i] == b {
				f.inline[i] = f.inline[f.inlineLen-1]
				f.inlineLen--
				break
			}
		}
	}
	atomic.AddUint64(&f.invgen, 1)
}

// Backrefs returns a snapshot of every PTE currently mapping this frame,
// used by frame destruction to clear them all before the frame returns to
// the free list.
func (f *Frame) Backrefs() []struct {
	PCID uint32
	Virt VirtAddr
} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]struct {
		PCID uint32
		Virt VirtAddr
	}, 0, int(f.inlineLen)+len(f.overflow))
	for i := uint8(0); i < f.inlineLen; i++ {
		out = append(out, struct {
			PCID uint32
			Virt VirtAddr
		}{f.inline[i].pcid, f.inline[i].virt})
	}
	for b := range f.overflow {
		out = append(out, struct {
			PCID uint32
			Virt VirtAddr
		}{b.pcid, b.virt})
	}
	return out
}

const framesPerBatch = 64

// percpuFreelist is a small per-core cache of free frame indices so the
// common allocation path does not contend on PMM.mu.
type percpuFreelist struct {
	mu    sync.Mutex
	heads []uint32
}

// PMM is the global physical frame allocator. The frame array is sized for
// total RAM and allocated by NewPMM with an ordinary Go make; it does not
// come from an early bump region. Frames parked in a per-CPU cache still
// count toward FreeFrames until they are handed out.
type PMM struct {
	mu        sync.Mutex
	frames    []Frame
	base      PhysAddr // physical address of frames[0]
	freeHead  uint32
	freeCount int64 // atomic
	hasFree   bool

	percpu []percpuFreelist
}

// MemRegionKind mirrors the boot handoff's region classification; only
// Usable regions contribute frames to the allocator.
type MemRegionKind int

const (
	RegionUsable MemRegionKind = iota
	RegionReserved
	RegionAcpiReclaimable
	RegionAcpiNvs
	RegionBadMemory
	RegionBootloaderReclaimable
	RegionKernelAndModules
	RegionFramebuffer
)

type MemRegion struct {
	Base PhysAddr
	Len  uint64
	Kind MemRegionKind
}

const noFrame = ^uint32(0)

// NewPMM builds the frame-metadata array from the boot memory map. Frames
// overlapping a non-Usable region (kernel image, modules, framebuffer,
// bootloader-reserved areas) are marked FrameReserved-equivalent (Kernel)
// and never enter the free list. ncores sizes the per-CPU free caches.
func NewPMM(regions []MemRegion, ncores int) *PMM {
	var top PhysAddr
	for _, r := range regions {
		end := r.Base + PhysAddr(r.Len)
		if end > top {
			top = end
		}
	}
	nframes := uint32(top.AlignUp()) >> PageShift

	p := &PMM{
		frames: make([]Frame, nframes),
		base:   0,
		percpu: make([]percpuFreelist, ncores),
	}
	for i := range p.frames {
		p.frames[i].state = FrameKernel
		p.frames[i].next = noFrame
	}

	for _, r := range regions {
		if r.Kind != RegionUsable {
			continue
		}
		start := uint32(r.Base.AlignUp()) >> PageShift
		end := uint32((r.Base + PhysAddr(r.Len)).AlignDown()) >> PageShift
		for i := start; i < end; i++ {
			p.frames[i].state = FrameFree
			if p.hasFree {
				p.frames[i].next = p.freeHead
			}
			p.freeHead = i
			p.hasFree = true
			atomic.AddInt64(&p.freeCount, 1)
		}
	}
	return p
}

func (p *PMM) frameOf(pa PhysAddr) *Frame {
	idx := uint32(pa.AlignDown()) >> PageShift
	return &p.frames[idx]
}

func (p *PMM) addrOf(idx uint32) PhysAddr {
	return PhysAddr(idx) << PageShift
}

// Alloc returns one zeroed-metadata frame (callers needing zeroed *content*
// must zero through HHDM themselves; PMM only guarantees the metadata
// starts in FrameOwned state with refcount 1).
func (p *PMM) Alloc(owner OwnerTag, node uint16) (PhysAddr, errno.Err_t) {
	core := node // cheap proxy for "prefer this core's cache" pre-NUMA-aware placement
	if int(core) < len(p.percpu) {
		if pa, ok := p.allocFromPercpu(int(core), owner, node); ok {
			return pa, errno.OK
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasFree {
		return 0, errno.FrameNotAvailable
	}
	idx := p.freeHead
	f := &p.frames[idx]
	p.freeHead = f.next
	if p.freeHead == noFrame {
		p.hasFree = false
	}
	atomic.AddInt64(&p.freeCount, -1)

	f.state = FrameOwned
	f.owner = owner
	f.node = node
	atomic.StoreInt32(&f.refs, 1)
	f.inlineLen = 0
	f.overflow = nil
	return p.addrOf(idx), errno.OK
}

func (p *PMM) allocFromPercpu(core int, owner OwnerTag, node uint16) (PhysAddr, bool) {
	pc := &p.percpu[core]
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if len(pc.heads) == 0 {
		p.refillPercpu(pc)
		if len(pc.heads) == 0 {
			return 0, false
		}
	}
	idx := pc.heads[len(pc.heads)-1]
	pc.heads = pc.heads[:len(pc.heads)-1]
	atomic.AddInt64(&p.freeCount, -1)
	f := &p.frames[idx]
	f.state = FrameOwned
	f.owner = owner
	f.node = node
	atomic.StoreInt32(&f.refs, 1)
	f.inlineLen = 0
	f.overflow = nil
	return p.addrOf(idx), true
}

func (p *PMM) refillPercpu(pc *percpuFreelist) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < framesPerBatch && p.hasFree; i++ {
		idx := p.freeHead
		f := &p.frames[idx]
		p.freeHead = f.next
		if p.freeHead == noFrame {
			p.hasFree = false
		}
		pc.heads = append(pc.heads, idx)
	}
}

// Free releases a frame back to the allocator. owner must match the owner
// recorded at Alloc time; a mismatch indicates a double-free or a
// use-after-free and is a kernel bug, surfaced as an error rather than
// silently accepted.
func (p *PMM) Free(pa PhysAddr, owner OwnerTag) errno.Err_t {
	f := p.frameOf(pa)
	if f.state == FrameFree {
		return errno.AlreadyExists // detected double-free
	}
	if f.owner != owner {
		return errno.PermissionDenied
	}
	if n := atomic.AddInt32(&f.refs, -1); n > 0 {
		return errno.OK
	}
	f.mu.Lock()
	f.inlineLen = 0
	f.overflow = nil
	f.state = FrameFree
	f.owner = OwnerNone
	f.mu.Unlock()

	idx := uint32(pa.AlignDown()) >> PageShift
	p.mu.Lock()
	f.next = p.freeHead
	p.freeHead = idx
	p.hasFree = true
	atomic.AddInt64(&p.freeCount, 1)
	p.mu.Unlock()
	return errno.OK
}

// Ref increments a frame's refcount (used when a second PTE or a fork's
// COW sharing starts pointing at an already-owned frame).
func (p *PMM) Ref(pa PhysAddr) {
	atomic.AddInt32(&p.frameOf(pa).refs, 1)
}

func (p *PMM) RefCount(pa PhysAddr) int32 {
	return p.frameOf(pa).Refcount()
}

func (p *PMM) AddBackref(pa PhysAddr, pcid uint32, virt VirtAddr) {
	p.frameOf(pa).addBackref(backref{pcid, virt})
}

func (p *PMM) RemoveBackref(pa PhysAddr, pcid uint32, virt VirtAddr) {
	p.frameOf(pa).removeBackref(backref{pcid, virt})
}

func (p *PMM) FreeFrames() int64 { return atomic.LoadInt64(&p.freeCount) }

func (p *PMM) State(pa PhysAddr) FrameState { return p.frameOf(pa).State() }
