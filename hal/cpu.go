// Package hal isolates every x86_64-specific primitive the rest of the
// kernel depends on: interrupt control, descriptor tables, MSRs, I/O ports,
// the APIC, and the assembly trampolines that bridge traps and syscalls into
// Go. Nothing outside this package touches CR3, GDT/IDT selectors, or raw
// port numbers directly.
package hal

// CoreID identifies a logical CPU (APIC id / cpu-local index).
type CoreID uint32

//go:noescape
func cliAsm()

//go:noescape
func stiAsm()

//go:noescape
func readflagsAsm() uint64

//go:noescape
func hltAsm()

//go:noescape
func pauseAsm()

//go:noescape
func rdmsrAsm(msr uint32) uint64

//go:noescape
func wrmsrAsm(msr uint32, val uint64)

//go:noescape
func readCR3Asm() uint64

//go:noescape
func writeCR3Asm(val uint64)

//go:noescape
func invlpgAsm(addr uint64)

//go:noescape
func coreIDAsm() uint32

const flagsIF = 1 << 9

// DisableInterrupts turns off maskable interrupts on the calling core and
// reports whether they were enabled beforehand, so the caller can restore
// the prior state rather than unconditionally re-enabling (the IRQ-safe
// spinlock discipline in ksync depends on this).
func DisableInterrupts() (wasEnabled bool) {
	flags := readflagsAsm()
	cliAsm()
	return flags&flagsIF != 0
}

// RestoreInterrupts re-enables interrupts iff wasEnabled is true.
func RestoreInterrupts(wasEnabled bool) {
	if wasEnabled {
		stiAsm()
	}
}

// InterruptsEnabled reports the current IF flag without changing it.
func InterruptsEnabled() bool {
	return readflagsAsm()&flagsIF != 0
}

// Halt stops the CPU until the next interrupt. Used by the idle loop and by
// panic to park non-faulting cores.
func Halt() {
	hltAsm()
}

// Pause emits the PAUSE hint used by spinlock busy-wait loops to reduce
// memory-order contention and power draw on the core.
func Pause() {
	pauseAsm()
}

// CurrentCore returns the logical id of the calling CPU, read from the local
// APIC id register via the per-CPU GS-relative cache installed at boot.
func CurrentCore() CoreID {
	return CoreID(coreIDAsm())
}

// ReadMSR/WriteMSR wrap RDMSR/WRMSR for the handful of model-specific
// registers the kernel configures directly (EFER, STAR, LSTAR, SFMASK, the
// APIC base, FS/GS base).
func ReadMSR(msr uint32) uint64         { return rdmsrAsm(msr) }
func WriteMSR(msr uint32, val uint64)   { wrmsrAsm(msr, val) }

// ReadCR3/WriteCR3 expose the top-level page table register. WriteCR3 is the
// only legal way to switch address spaces; the VMM package is the only
// caller outside HAL itself.
func ReadCR3() uint64        { return readCR3Asm() }
func WriteCR3(val uint64)    { writeCR3Asm(val) }

// InvalidatePage issues INVLPG for a single virtual address.
func InvalidatePage(virt uint64) { invlpgAsm(virt) }
