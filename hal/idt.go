package hal

import "unsafe"

type idtEntry struct {
	offsetLow  uint16
	selector   uint16
	istIndex   uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

const (
	idtPresent    = 1 << 7
	idtGateIntr64 = 0xE // 64-bit interrupt gate: clears IF on entry
)

const numVectors = 256

var idt [numVectors]idtEntry

func setGate(vec int, handler uintptr, ist uint8) {
	idt[vec] = idtEntry{
		offsetLow:  uint16(handler),
		selector:   SelKernelCS,
		istIndex:   ist,
		typeAttr:   idtPresent | idtGateIntr64,
		offsetMid:  uint16(handler >> 16),
		offsetHigh: uint32(handler >> 32),
	}
}

//go:noescape
func lidtAsm(ptr *descriptorPtr)

// stubTable is filled in by GenerateTrapStubs (trapgen.go) with the address
// of each per-vector entry stub: small synthesized trampolines that store
// the vector number at GS:24, push a synthetic error code where the CPU
// doesn't, and jump to the common trap path in entry_amd64.s.
var stubTable [numVectors]uintptr

// InstallIDT wires all 256 vectors to their assembly entry stubs. Vector 8
// (double fault) and vector 2 (NMI) run on the IST1 stack configured in
// InstallGDT so a corrupted kernel stack cannot cascade into a triple
// fault before the panic handler gets a chance to dump state.
func InstallIDT() {
	for v := 0; v < numVectors; v++ {
		ist := uint8(0)
		if v == VecDoubleFault || v == VecNMI {
			ist = 1
		}
		setGate(v, stubTable[v], ist)
	}
	dp := descriptorPtr{
		limit: uint16(unsafe.Sizeof(idt) - 1),
		base:  uint64(uintptr(unsafe.Pointer(&idt[0]))),
	}
	lidtAsm(&dp)
}

// RegisterStub lets GenerateTrapStubs publish each vector's trampoline
// address before InstallIDT runs.
func RegisterStub(vec int, addr uintptr) {
	stubTable[vec] = addr
}
