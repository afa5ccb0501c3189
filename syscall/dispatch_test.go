package syscall

import (
	"testing"

	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/hal"
)

func TestDispatchUnregisteredNumberIsInvalidSyscall(t *testing.T) {
	table := NewTable()
	frame := &hal.TrapFrame{RAX: uint64(SysProcessExit) + 1000}

	if got := table.Dispatch(frame); got != errno.InvalidSyscall.ABI() {
		t.Fatalf("Dispatch(unregistered) = %d, want %d", got, errno.InvalidSyscall.ABI())
	}
}

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	table := NewTable()
	called := false
	table.Register(SysProcessExit, func(frame *hal.TrapFrame) int64 {
		called = true
		return 42
	})

	frame := &hal.TrapFrame{RAX: uint64(SysProcessExit)}
	if got := table.Dispatch(frame); got != 42 {
		t.Fatalf("Dispatch() = %d, want 42", got)
	}
	if !called {
		t.Fatalf("registered handler was not invoked")
	}
}

func TestDispatchOutOfRangeNumber(t *testing.T) {
	table := NewTable()
	frame := &hal.TrapFrame{RAX: uint64(DispatchTableSize) + 1}
	if got := table.Dispatch(frame); got != errno.InvalidSyscall.ABI() {
		t.Fatalf("Dispatch(out of range) = %d, want %d", got, errno.InvalidSyscall.ABI())
	}
}
