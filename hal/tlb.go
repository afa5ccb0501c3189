package hal

import "sync"

// ShootdownRange is one TLB invalidation against a single address space,
// covering Pages pages from Base. mem.Mapper issues one per mapping change
// (a single page for Map/Unmap/Protect, the whole 2 MiB range for
// SplitHuge); ranges are not accumulated across operations.
type ShootdownRange struct {
	Base  uint64
	Pages uint64
	Full  bool // whole address space invalidated (e.g. CR3 switch, huge unmap)
}

// Shootdowner issues an IPI to every core whose TLB generation for the
// target address space may be stale, then returns; it does not wait for
// the receiving cores to acknowledge. The scheduler supplies the concrete implementation because
// it alone knows which cores currently run threads of which address space.
type Shootdowner interface {
	Shootdown(pcid uint32, r ShootdownRange)
}

var (
	shootMu  sync.Mutex
	shootImp Shootdowner
)

// SetShootdowner installs the scheduler-provided IPI broadcaster. Called
// once during boot after the scheduler initializes per-CPU state.
func SetShootdowner(s Shootdowner) {
	shootMu.Lock()
	defer shootMu.Unlock()
	shootImp = s
}

// FlushRange invalidates a batch of pages on the local core immediately and
// asks the installed Shootdowner to propagate to any other core that might
// have this address space loaded.
func FlushRange(pcid uint32, r ShootdownRange) {
	if r.Full {
		FlushLocalFull(pcid)
	} else {
		for i := uint64(0); i < r.Pages; i++ {
			InvalidatePage(r.Base + i*4096)
		}
	}
	shootMu.Lock()
	s := shootImp
	shootMu.Unlock()
	if s != nil {
		s.Shootdown(pcid, r)
	}
}

// FlushLocalFull reloads CR3 on the calling core by writing back the value
// it already holds. The pcid argument is not used.
func FlushLocalFull(pcid uint32) {
	WriteCR3(ReadCR3())
}
