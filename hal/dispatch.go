package hal

// ExceptionHandler handles one CPU exception vector (divide error, GP
// fault, page fault, ...). It runs with interrupts disabled and must not
// block.
type ExceptionHandler func(frame *TrapFrame, vector uint32)

// IRQHandler handles one remapped hardware interrupt vector.
type IRQHandler func(frame *TrapFrame, vector uint32)

// SyscallHandler is the single entry point for the syscall trampoline.
// frame.RAX holds the syscall number on entry; the handler's return value
// is written back into frame.RAX before the trampoline restores registers.
type SyscallHandler func(frame *TrapFrame) int64

var (
	exceptionHandlers [32]ExceptionHandler
	irqHandlers       [IRQLast - IRQBase + 1]IRQHandler
	syscallHandler    SyscallHandler
)

// RegisterException installs the handler for a CPU exception vector (0-31).
func RegisterException(vector uint32, h ExceptionHandler) {
	exceptionHandlers[vector] = h
}

// RegisterIRQ installs the handler for a remapped IRQ vector.
func RegisterIRQ(vector uint32, h IRQHandler) {
	irqHandlers[vector-IRQBase] = h
}

// RegisterSyscallHandler installs the kernel-wide syscall dispatcher. Called
// once during boot after the syscall layer's dispatch table is built.
func RegisterSyscallHandler(h SyscallHandler) {
	syscallHandler = h
}

// TrapDispatch is called from commonTrapEntry in entry_amd64.s with the
// trap frame pointer and vector number. It must not allocate or touch
// anything that assumes a live goroutine scheduler — it runs on the raw
// interrupt stack, potentially before the kernel's own task model has a
// concept of "the current task" to blame a fault on.
//
//go:nosplit
func TrapDispatch(frame *TrapFrame, vector uint32) {
	if vector < 32 {
		if h := exceptionHandlers[vector]; h != nil {
			h(frame, vector)
			return
		}
		panicUnhandled(frame, vector)
		return
	}
	if vector >= IRQBase && vector <= IRQLast {
		if h := irqHandlers[vector-IRQBase]; h != nil {
			h(frame, vector)
		}
		apicEOIHook()
		return
	}
	panicUnhandled(frame, vector)
}

// SyscallDispatch is called from syscallEntryAsm with the forged frame.
func SyscallDispatch(frame *TrapFrame) {
	if syscallHandler == nil {
		var errRet int64 = -1
		frame.RAX = uint64(errRet)
		return
	}
	ret := syscallHandler(frame)
	frame.RAX = uint64(ret)
}

// panicUnhandledFn and apicEOIFn are set by boot init so this package does
// not need to import the panic/APIC machinery directly and create a cycle.
var (
	panicUnhandledFn func(frame *TrapFrame, vector uint32)
	apicEOIFn        func()
)

func SetUnhandledTrapHandler(f func(frame *TrapFrame, vector uint32)) { panicUnhandledFn = f }
func SetEOIHook(f func())                                             { apicEOIFn = f }

func panicUnhandled(frame *TrapFrame, vector uint32) {
	if panicUnhandledFn != nil {
		panicUnhandledFn(frame, vector)
		return
	}
	for {
		Halt()
	}
}

func apicEOIHook() {
	if apicEOIFn != nil {
		apicEOIFn()
	}
}
