package module

import (
	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/klog"
)

// Watchdog periodically polls every running module's health callback with
// a deadline. It holds no state of its own beyond a reference to the
// supervisor whose fault counters it drives. Polling happens only when
// something calls Tick; boot constructs the Watchdog but starts no thread
// that calls it.
type Watchdog struct {
	sup *Supervisor
}

func NewWatchdog(sup *Supervisor) *Watchdog {
	return &Watchdog{sup: sup}
}

// Tick runs one poll round over every currently running module. tick is
// an opaque monotonic counter (the caller's own notion of "now") recorded
// against whichever modules report healthy, for the last-OK timestamp the
// data model specifies.
func (w *Watchdog) Tick(tick uint64) {
	w.sup.lock.Lock()
	mods := make([]*Module, 0, len(w.sup.modules))
	for _, m := range w.sup.modules {
		mods = append(mods, m)
	}
	w.sup.lock.Unlock()

	for _, m := range mods {
		w.poll(m, tick)
	}
}

// poll invokes one module's health callback. A callback that itself never
// returns is not something this package can preempt from the outside
// (the health call runs synchronously on the watchdog thread); callers
// that need true deadline enforcement run the callback on a separate task
// and treat a timer expiry before it completes as a fault the same as a
// non-OK return. Here, a nil callback is simply treated as always healthy.
func (w *Watchdog) poll(m *Module, tick uint64) {
	if m.State() != StateRunning {
		return
	}
	if m.cb.Health == nil {
		w.sup.recordOK(m, tick)
		return
	}
	if herr := m.cb.Health(); herr != errno.OK {
		if w.sup.recordFault(m) {
			w.applyFallback(m)
		}
		return
	}
	w.sup.recordOK(m, tick)
}

// applyFallback runs once, the instant a module transitions to Banned.
// supervisor.ban has already torn down the faulted instance by the time
// this runs; what is left is deciding whether anything comes back up in
// its place.
func (w *Watchdog) applyFallback(m *Module) {
	if m.Critical {
		panic("module: critical module " + m.Name + " banned by watchdog")
	}

	switch m.fallback {
	case FallbackPanic:
		panic("module: " + m.Name + " banned by watchdog (fallback=panic)")
	case FallbackReload:
		w.sup.reload(m)
	case FallbackGenericDriver:
		w.sup.swapGeneric(m)
	case FallbackDisableHardware:
		klog.Warn("module: %s: fallback=disable-hardware, staying torn down", m.Name)
	}
}
