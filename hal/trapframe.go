package hal

// TrapFrame is the in-memory layout built by the assembly entry wrappers in
// entry_amd64.s. It is the single authoritative layout: every exception,
// every remapped IRQ, and the syscall entry stub all forge or consume this
// exact struct, so fields must never be reordered without updating the
// corresponding pushes/pops in assembly.
//
// Field order matches ascending memory order from the frame pointer handed
// to the Go-level handler: the GPR snapshot (R15 down to RAX), an error
// code slot (zero when the trap vector has none, or for syscall-forged
// frames), then the hardware-defined IRETQ tail.
type TrapFrame struct {
	R15, R14, R13, R12 uint64
	R11, R10, R9, R8   uint64
	RBP                uint64
	RDI, RSI           uint64
	RDX, RCX, RBX, RAX uint64

	ErrorCode uint64

	RIP    uint64
	CS     uint64
	RFLAGS uint64
	RSP    uint64
	SS     uint64
}

// Vector numbers for CPU exceptions and the remapped IRQ range. IRQs are
// rebased above the last reserved exception vector so the dispatcher can
// distinguish them with a single range check.
const (
	VecDivideError    = 0
	VecDebug          = 1
	VecNMI            = 2
	VecBreakpoint     = 3
	VecOverflow       = 4
	VecBoundRange     = 5
	VecInvalidOpcode  = 6
	VecDeviceNA       = 7
	VecDoubleFault    = 8
	VecInvalidTSS     = 10
	VecSegmentNP      = 11
	VecStackFault     = 12
	VecGPFault        = 13
	VecPageFault      = 14
	VecFPError        = 16
	VecAlignCheck     = 17
	VecMachineCheck   = 18
	VecSIMDFP         = 19

	IRQBase    = 32
	VecTimer   = IRQBase
	VecKbd     = IRQBase + 1
	VecCom1    = IRQBase + 4
	VecTLBShootdown = 70
	IRQLast    = 78
)

const rflagsIF = 1 << 9

// FromUserMode reports whether the trap interrupted ring 3 by inspecting
// the RPL bits of the saved CS selector, the same test the entry wrapper
// uses to decide whether swapgs is needed.
func (tf *TrapFrame) FromUserMode() bool {
	return tf.CS&3 == 3
}

// ShouldReschedule reports whether the trapped context came from user mode
// with interrupts enabled. The timer path does not call it: sched.TimerTick
// reschedules on quantum expiry whichever mode the tick interrupted.
func (tf *TrapFrame) ShouldReschedule() bool {
	return tf.FromUserMode() && tf.RFLAGS&rflagsIF != 0
}
