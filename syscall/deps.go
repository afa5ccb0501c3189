package syscall

import (
	"github.com/Redstone-OS/forge/ipc"
	"github.com/Redstone-OS/forge/mem"
)

// The handlers in this package need two pieces of global kernel state that
// would otherwise have to be threaded through every Handler's signature:
// the physical frame allocator (to back a freshly created shared-memory
// region) and the system-wide futex table. Boot installs both once, right
// after mem.NewPMM and ipc.NewFutexTable run, the same pattern ksync uses
// for its WaitQueueFactory.
var (
	pmm     *mem.PMM
	futexes *ipc.FutexTable
)

// SetPMM installs the frame allocator SysIPCShmCreate allocates from.
func SetPMM(p *mem.PMM) { pmm = p }

// SetFutexTable installs the table SysIPCFutexWait/Wake operate on.
func SetFutexTable(f *ipc.FutexTable) { futexes = f }
