package hal

import "unsafe"

//go:noescape
func commonTrapEntryAddr() uintptr

//go:noescape
func syscallEntryAddrAsm() uintptr

// vectorsWithErrorCode lists the exception vectors where the CPU itself
// pushes an error code; every other vector needs a synthetic zero pushed by
// its stub so the frame layout is uniform regardless of vector.
var vectorsWithErrorCode = map[int]bool{
	VecDoubleFault: true,
	10:             true, // invalid TSS
	11:             true, // segment not present
	12:             true, // stack fault
	VecGPFault:     true,
	VecPageFault:   true,
	17:             true, // alignment check
}

// CodeAllocator supplies an executable, writable-at-install-time page for
// the synthesized per-vector stubs. The mem package's kernel code allocator
// satisfies this once PMM/VMM are up; during very early boot a small static
// buffer is used instead (see earlyStubPage).
type CodeAllocator interface {
	AllocExecPage() (virt uintptr, err error)
}

var earlyStubPage [4096]byte

// GenerateTrapStubs writes one 22-byte trampoline per vector into an
// executable page and registers each with the IDT builder. Each trampoline
// is:
//
//	MOV  DWORD PTR gs:24, <vector>   ; 12 bytes: 65 C7 04 25 18 00 00 00 <imm32>
//	PUSH <errcode-or-0>               ; 5 bytes if synthetic, 0 if hw-provided
//	JMP  commonTrapEntry               ; 5 bytes, rel32
//
// A 4 KiB page holds 186 such stubs, so vectors 0-185 get one; the
// remaining vectors keep a zero stub address.
//
// Real kernels typically emit these 256 trampolines with an assembler
// macro; Go's Plan9 assembler has no macro facility, so the kernel
// synthesizes the machine code directly at boot instead of hand-writing
// 256 near-identical TEXT blocks.
func GenerateTrapStubs(alloc CodeAllocator) error {
	common := commonTrapEntryAddr()

	pageVirt := uintptr(unsafe.Pointer(&earlyStubPage[0]))
	if alloc != nil {
		v, err := alloc.AllocExecPage()
		if err != nil {
			return err
		}
		pageVirt = v
	}

	const stubSize = 22
	buf := (*[4096]byte)(unsafe.Pointer(pageVirt))
	off := 0
	for vec := 0; vec < numVectors && off+stubSize <= len(buf); vec++ {
		start := off
		// MOV DWORD PTR gs:24, imm32
		buf[off] = 0x65 // GS prefix
		off++
		buf[off] = 0xC7
		off++
		buf[off] = 0x04
		off++
		buf[off] = 0x25
		off++
		putLE32(buf[off:], 24)
		off += 4
		putLE32(buf[off:], uint32(vec))
		off += 4

		if !vectorsWithErrorCode[vec] {
			// PUSH imm32 0
			buf[off] = 0x68
			off++
			putLE32(buf[off:], 0)
			off += 4
		}

		// JMP rel32 to commonTrapEntry, encoded relative to the next
		// instruction's address.
		buf[off] = 0xE9
		off++
		next := pageVirt + uintptr(off) + 4
		rel := int32(int64(common) - int64(next))
		putLE32(buf[off:], uint32(rel))
		off += 4

		RegisterStub(vec, pageVirt+uintptr(start))
		// Pad to a fixed stride so every stub starts at a predictable
		// offset even though the with/without-error-code bodies differ
		// in length.
		for off < start+stubSize {
			buf[off] = 0x90 // NOP
			off++
		}
	}
	return nil
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// SyscallEntryAddr returns the address programmed into MSR_LSTAR.
func SyscallEntryAddr() uintptr {
	return syscallEntryAddrAsm()
}
