package hal

import "unsafe"

// Local APIC register offsets this kernel touches, relative to the APIC's
// MMIO base (itself discovered from MSR_APIC_BASE during boot).
const (
	apicRegID      = 0x020
	apicRegEOI     = 0x0B0
	apicRegSpurious = 0x0F0
	apicRegICRLow  = 0x300
	apicRegICRHigh = 0x310
	apicRegLVTTimer = 0x320
	apicRegTimerInit = 0x380
	apicRegTimerCur  = 0x390
	apicRegTimerDiv  = 0x3E0

	icrDeliverFixed = 0 << 8
	icrDestPhysical = 0 << 11
	icrAssert       = 1 << 14
	icrTriggerEdge  = 0 << 15

	lvtMasked      = 1 << 16
	lvtModePeriodic = 1 << 17
	timerDivideBy16 = 0x3
)

// LocalAPIC is a thin MMIO wrapper. base is the HHDM-mapped virtual address
// of the APIC's physical MMIO page, supplied by the caller (the mem package
// maps Device-state physical frames through the direct map with caching
// disabled before handing the address here).
type LocalAPIC struct {
	base uintptr
}

func NewLocalAPIC(hhdmMappedBase uintptr) *LocalAPIC {
	return &LocalAPIC{base: hhdmMappedBase}
}

func (a *LocalAPIC) reg(off uintptr) *uint32 {
	return (*uint32)(unsafe.Pointer(a.base + off))
}

// EOI signals end-of-interrupt to the local APIC; every IRQ and IPI handler
// must call this exactly once before returning.
func (a *LocalAPIC) EOI() {
	*a.reg(apicRegEOI) = 0
}

// ID returns this core's local APIC id, used as its CoreID.
func (a *LocalAPIC) ID() uint32 {
	return *a.reg(apicRegID) >> 24
}

// SendIPI issues a fixed-delivery, edge-triggered IPI carrying vector to the
// given destination APIC id. Used for TLB shootdown and for waking a core
// whose runqueue just gained work.
func (a *LocalAPIC) SendIPI(dest uint32, vector uint8) {
	*a.reg(apicRegICRHigh) = dest << 24
	*a.reg(apicRegICRLow) = uint32(vector) | icrDeliverFixed | icrDestPhysical | icrAssert | icrTriggerEdge
}

// ConfigureTimer arms the local APIC's built-in timer in periodic mode at
// divisor 16, firing VecTimer every initCount bus clocks. Callers derive
// initCount from a one-shot calibration against another clock source
// (PIT or TSC) before the scheduler's first reschedule depends on ticks
// actually arriving; this only programs the registers, it does not
// calibrate.
func (a *LocalAPIC) ConfigureTimer(vector uint8, initCount uint32) {
	*a.reg(apicRegTimerDiv) = timerDivideBy16
	*a.reg(apicRegLVTTimer) = uint32(vector) | lvtModePeriodic
	*a.reg(apicRegTimerInit) = initCount
}

// StopTimer masks the LVT timer entry, the counterpart to ConfigureTimer
// used when a core parks for good (the panic path halting every other
// core, say) and should not keep taking timer interrupts.
func (a *LocalAPIC) StopTimer() {
	*a.reg(apicRegLVTTimer) = lvtMasked
}

// HaltAllOtherCores broadcasts a non-maskable halt IPI to every other core.
// Used exactly once, by the panic handler, to stop the machine.
func (a *LocalAPIC) HaltAllOtherCores() {
	const allExcludingSelf = 3 << 18
	const deliverNMI = 4 << 8
	*a.reg(apicRegICRHigh) = 0
	*a.reg(apicRegICRLow) = deliverNMI | icrAssert | allExcludingSelf
}
