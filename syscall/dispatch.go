package syscall

import (
	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/hal"
)

// Handler services one syscall number. It receives the raw trap frame
// (RDI, RSI, RDX, R10, R8, R9 carry the first six arguments, matching the
// entry trampoline's forged layout) and returns the raw ABI value to write
// into RAX — non-negative for success, errno.Err_t.ABI() for failure.
type Handler func(frame *hal.TrapFrame) int64

// Table is a sparse dispatch table sized to cover every reserved category;
// unpopulated slots dispatch InvalidSyscall.
type Table struct {
	handlers [DispatchTableSize]Handler
}

var global *Table

// NewTable allocates an empty table. Boot calls this once, registers
// every handler via Register, then installs it with hal.RegisterSyscallHandler(t.Dispatch).
func NewTable() *Table {
	return &Table{}
}

func (t *Table) Register(n Number, h Handler) {
	t.handlers[n] = h
}

// Dispatch is installed as the HAL's SyscallHandler. frame.RAX holds the
// syscall number on entry.
func (t *Table) Dispatch(frame *hal.TrapFrame) int64 {
	n := Number(frame.RAX)
	if int(n) >= len(t.handlers) || t.handlers[n] == nil {
		return errno.InvalidSyscall.ABI()
	}
	return t.handlers[n](frame)
}

// Install registers this table as the kernel-wide syscall handler.
func (t *Table) Install() {
	global = t
	hal.RegisterSyscallHandler(t.Dispatch)
}
