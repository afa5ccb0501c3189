package boot

import (
	"io"

	"github.com/Redstone-OS/forge/hal"
	"github.com/Redstone-OS/forge/klog"
)

// apic is the local APIC boot installed, if any; nil until Init reaches the
// interrupt-controller stage. Panic uses it to halt every other core
// before this one spins forever, so a fault on one CPU does not leave the
// rest of the machine running against now-corrupt shared state.
var apic *hal.LocalAPIC

// panicSink mirrors whatever console Init wired klog to. There is no
// underlying OS here to hand Panic an os.Stderr — the console driver is
// the only output device that exists — so Panic keeps its own reference
// rather than asking klog for one back.
var panicSink io.Writer

// SetAPIC records the local APIC for Panic's HaltAllOtherCores call.
func SetAPIC(a *hal.LocalAPIC) { apic = a }

// SetPanicSink records the console Panic dumps the log ring to.
func SetPanicSink(w io.Writer) { panicSink = w }

// Panic is the funnel every unrecoverable invariant violation in this
// kernel goes through: an unhandled trap, a failed subsystem Init, a
// watchdog-detected fault in a Critical module. It never returns.
func Panic(format string, args ...interface{}) {
	hal.DisableInterrupts()
	klog.Error(format, args...)
	if panicSink != nil {
		klog.Dump(panicSink)
	}
	if apic != nil {
		apic.HaltAllOtherCores()
	}
	for {
		hal.Halt()
	}
}

// UnhandledTrap is installed via hal.SetUnhandledTrapHandler and is the
// bridge from a bare trap vector (no Go stack, no room for fmt-heavy
// diagnostics beyond what klog already buffers) into Panic.
func UnhandledTrap(frame *hal.TrapFrame, vector uint32) {
	Panic("unhandled trap: vector=%d rip=%#x cs=%#x err=%#x", vector, frame.RIP, frame.CS, frame.ErrorCode)
}
