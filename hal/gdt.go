package hal

import "unsafe"

// gdtEntry is a raw 8-byte segment descriptor. Long mode ignores base/limit
// for code and data segments (they are always flat) except for the TSS
// descriptor, which is a 16-byte system descriptor pair.
type gdtEntry struct {
	limitLow  uint16
	baseLow   uint16
	baseMid   uint8
	access    uint8
	granular  uint8
	baseHigh  uint8
}

type tssDescriptor struct {
	gdtEntry
	baseUpper uint32
	reserved  uint32
}

// TSS holds only the pieces long mode actually consults: the ring-0 stack
// pointer loaded on a privilege-level change, and the IST stack pointers
// used by the double-fault and NMI vectors so a corrupted kernel stack does
// not re-fault into the same broken frame.
type TSS struct {
	reserved0 uint32
	RSP0      uint64
	rsp1, rsp2 uint64
	reserved1 uint64
	IST       [7]uint64
	reserved2 uint64
	reserved3 uint16
	ioMapBase uint16
}

const (
	accPresent  = 1 << 7
	accRing3    = 3 << 5
	accCode     = 0x1A // execute/read, accessed clear
	accData     = 0x12 // read/write
	accTSSAvail = 0x09
	granLong    = 1 << 5 // L bit: 64-bit code segment
)

type gdtTable struct {
	null       gdtEntry
	kernelCode gdtEntry
	kernelData gdtEntry
	userData   gdtEntry
	userCode   gdtEntry
	tss        tssDescriptor
}

type descriptorPtr struct {
	limit uint16
	base  uint64
}

//go:noescape
func lgdtAsm(ptr *descriptorPtr)

//go:noescape
func ltrAsm(selector uint16)

var perCoreGDT = make(map[CoreID]*gdtTable)
var perCoreTSS = make(map[CoreID]*TSS)

// InstallGDT builds the null/kernel-code/kernel-data/user-code/user-data/TSS
// descriptor set for the calling core and loads it with LGDT, then loads
// the task register with LTR so interrupts landing in ring 0 switch to
// tss.RSP0 for their stack.
func InstallGDT(core CoreID, kernelStackTop uint64, doubleFaultStackTop uint64) {
	tss := &TSS{RSP0: kernelStackTop}
	tss.IST[0] = doubleFaultStackTop

	g := &gdtTable{
		kernelCode: gdtEntry{access: accPresent | accCode, granular: granLong},
		kernelData: gdtEntry{access: accPresent | accData},
		userData:   gdtEntry{access: accPresent | accRing3 | accData},
		userCode:   gdtEntry{access: accPresent | accRing3 | accCode, granular: granLong},
	}
	base := uint64(uintptr(unsafe.Pointer(tss)))
	g.tss = tssDescriptor{
		gdtEntry: gdtEntry{
			limitLow: uint16(unsafe.Sizeof(*tss) - 1),
			baseLow:  uint16(base),
			baseMid:  uint8(base >> 16),
			access:   accPresent | accTSSAvail,
			baseHigh: uint8(base >> 24),
		},
		baseUpper: uint32(base >> 32),
	}

	perCoreGDT[core] = g
	perCoreTSS[core] = tss

	dp := descriptorPtr{
		limit: uint16(unsafe.Sizeof(*g) - 1),
		base:  uint64(uintptr(unsafe.Pointer(g))),
	}
	lgdtAsm(&dp)
	ltrAsm(SelTSS)
}

// SetKernelStack updates RSP0 for the calling core, called whenever the
// scheduler switches the current task (so the next ring3->ring0 transition
// lands on that task's kernel stack).
func SetKernelStack(core CoreID, rsp0 uint64) {
	if tss, ok := perCoreTSS[core]; ok {
		tss.RSP0 = rsp0
	}
}
