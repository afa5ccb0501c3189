package syscall

import (
	"unsafe"

	"github.com/Redstone-OS/forge/cap"
	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/hal"
	"github.com/Redstone-OS/forge/ipc"
	"github.com/Redstone-OS/forge/klog"
	"github.com/Redstone-OS/forge/mem"
	"github.com/Redstone-OS/forge/sched"
	"github.com/Redstone-OS/forge/vm"
)

// RegisterDefaults installs a handler for every syscall number this package
// knows about. Boot calls this once, right after syscall.NewTable, before
// Install hands the table to the HAL.
func RegisterDefaults(t *Table) {
	t.Register(SysProcessExit, sysProcessExit)
	t.Register(SysProcessSpawn, sysProcessSpawn)
	t.Register(SysProcessKill, sysProcessKill)
	t.Register(SysProcessWait, sysProcessWait)
	t.Register(SysProcessYield, sysProcessYield)

	t.Register(SysMemoryMmap, sysMemoryMmap)
	t.Register(SysMemoryMunmap, sysMemoryMunmap)
	t.Register(SysMemoryProtect, sysMemoryProtect)

	t.Register(SysHandleClose, sysHandleClose)
	t.Register(SysHandleDuplicate, sysHandleDuplicate)
	t.Register(SysHandleDerive, sysHandleDerive)

	t.Register(SysIPCPortCreate, sysIPCPortCreate)
	t.Register(SysIPCSend, sysIPCSend)
	t.Register(SysIPCRecv, sysIPCRecv)
	t.Register(SysIPCChannelCreate, sysIPCChannelCreate)
	t.Register(SysIPCShmCreate, sysIPCShmCreate)
	t.Register(SysIPCShmMap, sysIPCShmMap)
	t.Register(SysIPCFutexWait, sysIPCFutexWait)
	t.Register(SysIPCFutexWake, sysIPCFutexWake)

	t.Register(SysTimeNow, sysTimeNow)
	t.Register(SysTimeSleep, sysTimeSleep)

	t.Register(SysSystemDebugLog, sysSystemDebugLog)
}

func current() (*sched.Task, errno.Err_t) {
	cur := sched.Current()
	if cur == nil {
		return nil, errno.Internal
	}
	return cur, errno.OK
}

// --- process ---

func sysProcessExit(frame *hal.TrapFrame) int64 {
	sched.Exit(int(int32(frame.RDI)))
	panic("syscall: sysProcessExit: Exit returned")
}

// sysProcessSpawn creates a new thread in the caller's own address space
// and capability space: entry in RDI, arg in RSI, priority in RDX, kernel
// stack size in bytes in R10. There is no separate process-creation path in
// this model — a new Pid only comes from loading a module through the
// supervisor, which spawns its own initial thread directly via
// sched.Spawn rather than through this syscall.
func sysProcessSpawn(frame *hal.TrapFrame) int64 {
	cur, err := current()
	if err != errno.OK {
		return err.ABI()
	}
	stackSize := frame.R10
	if stackSize == 0 || stackSize > 16<<20 {
		return errno.InvalidArgument.ABI()
	}
	stack := make([]byte, stackSize)
	t := sched.Spawn(cur.Pid, cur.AS, cur.Name+"/spawn", int(frame.RDX), uintptr(frame.RDI), uintptr(frame.RSI), stack)
	return int64(t.Tid)
}

func sysProcessKill(frame *hal.TrapFrame) int64 {
	if !sched.Kill(sched.Tid(frame.RDI)) {
		return errno.NotFound.ABI()
	}
	return 0
}

func sysProcessWait(frame *hal.TrapFrame) int64 {
	code, ok := sched.CollectExit(sched.Tid(frame.RDI))
	if !ok {
		return errno.Again.ABI()
	}
	return int64(code)
}

func sysProcessYield(frame *hal.TrapFrame) int64 {
	sched.Yield()
	return 0
}

// --- memory ---

func sysMemoryMmap(frame *hal.TrapFrame) int64 {
	cur, err := current()
	if err != errno.OK {
		return err.ABI()
	}
	hint := mem.VirtAddr(frame.RDI)
	length := frame.RSI
	prot := mem.Protection(frame.RDX)
	flags := vm.VMAFlags(frame.R10)
	addr, merr := cur.AS.MmapAnon(hint, length, prot, flags, vm.IntentHeap)
	if merr != errno.OK {
		return merr.ABI()
	}
	return int64(addr)
}

func sysMemoryMunmap(frame *hal.TrapFrame) int64 {
	cur, err := current()
	if err != errno.OK {
		return err.ABI()
	}
	return cur.AS.Munmap(mem.VirtAddr(frame.RDI)).ABI()
}

func sysMemoryProtect(frame *hal.TrapFrame) int64 {
	cur, err := current()
	if err != errno.OK {
		return err.ABI()
	}
	return cur.AS.Protect(mem.VirtAddr(frame.RDI), mem.Protection(frame.RSI)).ABI()
}

// --- handles ---

func sysHandleClose(frame *hal.TrapFrame) int64 {
	cur, err := current()
	if err != errno.OK {
		return err.ABI()
	}
	return cur.CSpace.Close(cap.Handle(frame.RDI)).ABI()
}

func sysHandleDuplicate(frame *hal.TrapFrame) int64 {
	cur, err := current()
	if err != errno.OK {
		return err.ABI()
	}
	h, derr := cur.CSpace.Duplicate(cap.Handle(frame.RDI))
	if derr != errno.OK {
		return derr.ABI()
	}
	return int64(h)
}

func sysHandleDerive(frame *hal.TrapFrame) int64 {
	cur, err := current()
	if err != errno.OK {
		return err.ABI()
	}
	h, derr := cur.CSpace.Derive(cap.Handle(frame.RDI), cap.Rights(frame.RSI), frame.RDX != 0)
	if derr != errno.OK {
		return derr.ABI()
	}
	return int64(h)
}

// --- ipc ---

func sysIPCPortCreate(frame *hal.TrapFrame) int64 {
	cur, err := current()
	if err != errno.OK {
		return err.ABI()
	}
	capacity := int(frame.RDI)
	if capacity <= 0 {
		capacity = 64
	}
	port := ipc.NewPort(capacity)
	obj := cap.NewObject(cap.TypePort, port)
	h, ierr := cur.CSpace.Insert(cap.NewRoot(obj, cap.RightsAll, 0))
	if ierr != errno.OK {
		return ierr.ABI()
	}
	return int64(h)
}

const maxInlineHandles = ipc.MaxMessageHandles

// sysIPCSend sends the payload at (RSI, RDX) through the port handle in
// RDI, transferring the up-to-R8 capability handles found in the user
// array at R10 (each a little-endian uint32 cap.Handle in the caller's own
// CSpace; TRANSFER is required on each, same as cap.CSpace.TakeForTransfer
// enforces).
func sysIPCSend(frame *hal.TrapFrame) int64 {
	cur, err := current()
	if err != errno.OK {
		return err.ABI()
	}
	portCap, cerr := cur.CSpace.LookupRights(cap.Handle(frame.RDI), cap.RightWrite)
	if cerr != errno.OK {
		return cerr.ABI()
	}
	port, ok := portCap.Object.Concrete().(*ipc.Port)
	if !ok {
		return errno.TypeMismatch.ABI()
	}

	payload := make([]byte, frame.RDX)
	if len(payload) > 0 {
		if cerr := CopyIn(cur.AS, argPointer(frame.RSI), payload); cerr != errno.OK {
			return cerr.ABI()
		}
	}

	handleCount := int(frame.R8)
	if handleCount > maxInlineHandles {
		return errno.InvalidArgument.ABI()
	}
	msg := ipc.Message{Payload: payload}
	if handleCount > 0 {
		raw := make([]byte, handleCount*4)
		if cerr := CopyIn(cur.AS, argPointer(frame.R10), raw); cerr != errno.OK {
			return cerr.ABI()
		}
		taken := make([]cap.Capability, 0, handleCount)
		for i := 0; i < handleCount; i++ {
			h := cap.Handle(uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24)
			c, terr := cur.CSpace.TakeForTransfer(h)
			if terr != errno.OK {
				// CSpace.Insert hands out closed slots LIFO (cap/cspace.go's
				// free list), and TakeForTransfer pushed them in the order
				// taken; restoring in reverse order is what puts each
				// capability back on the handle it actually came from,
				// instead of permuting them across the handles freed here.
				for j := len(taken) - 1; j >= 0; j-- {
					cur.CSpace.InsertTransferred(taken[j])
				}
				return terr.ABI()
			}
			taken = append(taken, c)
		}
		msg.Handles = taken
	}

	if serr := port.Send(msg); serr != errno.OK {
		return serr.ABI()
	}
	return int64(len(payload))
}

// sysIPCRecv receives into the payload buffer at (RSI, RDX) and the handle
// array at (R10, R8) from the port handle in RDI; R9 points to a uint32 the
// kernel writes the number of transferred handles received into.
func sysIPCRecv(frame *hal.TrapFrame) int64 {
	cur, err := current()
	if err != errno.OK {
		return err.ABI()
	}
	portCap, cerr := cur.CSpace.LookupRights(cap.Handle(frame.RDI), cap.RightRead)
	if cerr != errno.OK {
		return cerr.ABI()
	}
	port, ok := portCap.Object.Concrete().(*ipc.Port)
	if !ok {
		return errno.TypeMismatch.ABI()
	}

	msg, rerr := port.Recv()
	if rerr != errno.OK {
		return rerr.ABI()
	}

	bufCap := frame.RDX
	n := uint64(len(msg.Payload))
	if n > bufCap {
		return errno.BufferTooSmall.ABI()
	}
	if n > 0 {
		if cerr := CopyOut(cur.AS, argPointer(frame.RSI), msg.Payload); cerr != errno.OK {
			return cerr.ABI()
		}
	}

	handleCap := int(frame.R8)
	if len(msg.Handles) > handleCap {
		return errno.BufferTooSmall.ABI()
	}
	raw := make([]byte, len(msg.Handles)*4)
	for i, c := range msg.Handles {
		h, ierr := cur.CSpace.InsertTransferred(c)
		if ierr != errno.OK {
			return ierr.ABI()
		}
		raw[i*4] = byte(h)
		raw[i*4+1] = byte(h >> 8)
		raw[i*4+2] = byte(h >> 16)
		raw[i*4+3] = byte(h >> 24)
	}
	if len(raw) > 0 {
		if cerr := CopyOut(cur.AS, argPointer(frame.R10), raw); cerr != errno.OK {
			return cerr.ABI()
		}
	}
	countBuf := []byte{byte(len(msg.Handles)), byte(len(msg.Handles) >> 8), byte(len(msg.Handles) >> 16), byte(len(msg.Handles) >> 24)}
	if cerr := CopyOut(cur.AS, argPointer(frame.R9), countBuf); cerr != errno.OK {
		return cerr.ABI()
	}
	return int64(n)
}

// sysIPCChannelCreate creates a linked pair of ports: capacity in RDI, a
// user-supplied uint32 pointer in RSI receives the second endpoint's
// handle, and RAX returns the first.
func sysIPCChannelCreate(frame *hal.TrapFrame) int64 {
	cur, err := current()
	if err != errno.OK {
		return err.ABI()
	}
	capacity := int(frame.RDI)
	if capacity <= 0 {
		capacity = 64
	}
	a, b := ipc.NewChannelPair(capacity)
	ha, ierr := cur.CSpace.Insert(cap.NewRoot(cap.NewObject(cap.TypeChannel, a), cap.RightsAll, 0))
	if ierr != errno.OK {
		return ierr.ABI()
	}
	hb, ierr := cur.CSpace.Insert(cap.NewRoot(cap.NewObject(cap.TypeChannel, b), cap.RightsAll, 0))
	if ierr != errno.OK {
		cur.CSpace.Close(ha)
		return ierr.ABI()
	}
	outBuf := []byte{byte(hb), byte(hb >> 8), byte(hb >> 16), byte(hb >> 24)}
	if cerr := CopyOut(cur.AS, argPointer(frame.RSI), outBuf); cerr != errno.OK {
		cur.CSpace.Close(ha)
		cur.CSpace.Close(hb)
		return cerr.ABI()
	}
	return int64(ha)
}

func sysIPCShmCreate(frame *hal.TrapFrame) int64 {
	cur, err := current()
	if err != errno.OK {
		return err.ABI()
	}
	if pmm == nil {
		return errno.NotSupported.ABI()
	}
	npages := int(frame.RDI)
	shm, serr := ipc.NewSharedMemory(pmm, npages)
	if serr != errno.OK {
		return serr.ABI()
	}
	h, ierr := cur.CSpace.Insert(cap.NewRoot(cap.NewObject(cap.TypeVmo, shm), cap.RightsAll, 0))
	if ierr != errno.OK {
		shm.Close()
		return ierr.ABI()
	}
	return int64(h)
}

func sysIPCShmMap(frame *hal.TrapFrame) int64 {
	cur, err := current()
	if err != errno.OK {
		return err.ABI()
	}
	shmCap, cerr := cur.CSpace.LookupRights(cap.Handle(frame.RDI), cap.RightRead)
	if cerr != errno.OK {
		return cerr.ABI()
	}
	shm, ok := shmCap.Object.Concrete().(*ipc.SharedMemory)
	if !ok {
		return errno.TypeMismatch.ABI()
	}
	prot := mem.Protection(frame.RDX)
	addr, merr := shm.MapInto(cur.AS, mem.VirtAddr(frame.RSI), prot)
	if merr != errno.OK {
		return merr.ABI()
	}
	return int64(addr)
}

// userUint32 translates uva through as's mapper into the kernel's HHDM
// alias and returns a pointer usable by the atomic ops ipc.FutexTable
// needs, mirroring guardedCopy's translate-then-touch pattern but handing
// back a pointer instead of copying bytes since futex semantics require
// direct atomic access to the word itself.
func userUint32(as *vm.AddressSpace, uva mem.VirtAddr) (*uint32, errno.Err_t) {
	if uint64(uva)%4 != 0 {
		return nil, errno.NotAligned
	}
	pa, ok := as.Translate(uva)
	if !ok {
		return nil, errno.BadAddress
	}
	host := as.HHDM().BytesAt(pa, 4)
	return (*uint32)(unsafe.Pointer(&host[0])), errno.OK
}

func sysIPCFutexWait(frame *hal.TrapFrame) int64 {
	cur, err := current()
	if err != errno.OK {
		return err.ABI()
	}
	uva := mem.VirtAddr(frame.RDI)
	expected := uint32(frame.RSI)
	ptr, perr := userUint32(cur.AS, uva)
	if perr != errno.OK {
		return perr.ABI()
	}
	if futexes == nil {
		return errno.NotSupported.ABI()
	}
	return futexes.Wait(cur.AS.PCID(), uint64(uva), ptr, expected).ABI()
}

func sysIPCFutexWake(frame *hal.TrapFrame) int64 {
	cur, err := current()
	if err != errno.OK {
		return err.ABI()
	}
	if futexes == nil {
		return errno.NotSupported.ABI()
	}
	uva := mem.VirtAddr(frame.RDI)
	n := int(frame.RSI)
	return int64(futexes.Wake(cur.AS.PCID(), uint64(uva), n))
}

// --- time ---

func sysTimeNow(frame *hal.TrapFrame) int64 {
	return int64(sched.Ticks())
}

// sysTimeSleep yields repeatedly until at least RDI ticks have elapsed.
// There is no timer-backed wait queue in this model, so a sleeping task
// keeps re-entering the ready queue every quantum instead of blocking
// outright; correct, just not power-efficient.
func sysTimeSleep(frame *hal.TrapFrame) int64 {
	target := sched.Ticks() + frame.RDI
	for sched.Ticks() < target {
		sched.Yield()
	}
	return 0
}

// --- system ---

func sysSystemDebugLog(frame *hal.TrapFrame) int64 {
	cur, err := current()
	if err != errno.OK {
		return err.ABI()
	}
	const maxDebugLine = 256
	s, serr := CopyInString(cur.AS, argPointer(frame.RDI), maxDebugLine)
	if serr != errno.OK {
		return serr.ABI()
	}
	klog.Info("user(%d): %s", cur.Pid, s)
	return int64(len(s))
}
