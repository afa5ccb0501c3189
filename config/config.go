// Package config holds the kernel's compile-time constants: the knobs a
// from-scratch boot has to pick before any subsystem can initialize, and
// which boot may override before calling the subsystem Init functions that
// consume them. None of this is runtime-reconfigurable — a kernel has
// exactly one boot per power cycle, so there is no reflection-based config
// surface here, only plain package-level constants plus a few variables a
// build can set at link time or boot can adjust in the handful of lines
// between parsing the handoff record and calling mem.NewPMM.
package config

import "github.com/Redstone-OS/forge/mem"

// HHDMBase is the virtual base of the higher-half direct map. Overriding
// it is only meaningful before the first call to mem.NewHHDM; changing it
// afterward has no effect on an already-constructed HHDM value.
var HHDMBase = mem.HHDMBase

// DefaultQuantum is the number of timer ticks a task runs before
// preemption becomes eligible, mirrored from sched.DefaultQuantum so boot
// code has one place to read it without importing sched just for this.
const DefaultQuantum = 10

// MaxCodePages bounds a single module's code region, mirrored from
// module.MaxCodePages for the same reason.
const MaxCodePages = 4096

// ModuleFaultBanThreshold is the number of consecutive watchdog faults
// that transitions a module to Banned.
const ModuleFaultBanThreshold = 3

// DefaultCSpaceLimit is the number of live capability slots a freshly
// created process's CSpace is given, absent an explicit per-manifest
// override (modules set their own limit in their Manifest).
const DefaultCSpaceLimit = 4096

// DefaultPortCapacity bounds a newly created port's message queue when
// the creating syscall does not specify one explicitly.
const DefaultPortCapacity = 64

// KernelStackPages is the number of pages reserved for a task's pinned
// kernel stack.
const KernelStackPages = 4

// EarlyHeapSize is the size, in bytes, of the bump-allocated region boot
// hands to mem.NewEarlyHeap before the PMM is available.
const EarlyHeapSize = 2 << 20 // 2 MiB

// KernelHeapBase is the virtual address the buddy/slab heap starts
// allocating from once mem.KernelHeap.UpgradeToBuddy runs.
var KernelHeapBase mem.VirtAddr = 0xFFFF_9000_0000_0000

// WatchdogPeriodTicks is a polling period, in timer ticks, for the module
// watchdog. Nothing in the kernel reads it: boot starts no thread that
// calls module.Watchdog.Tick.
const WatchdogPeriodTicks = 100

// TimerInitCount is the LAPIC timer's initial count, divisor 16, used to
// arm the tick interrupt before any PIT/TSC calibration runs. It is
// deliberately conservative (tuned for a ~100-200Hz tick rate on common
// LAPIC bus clock speeds) rather than exact; a build that needs precise
// tick timing overrides this after calibrating against the PIT.
var TimerInitCount uint32 = 50_000

// DebugBuild selects the module trust policy boot.Init installs: when true,
// Init uses module.PolicyAllowAny, so Verify tolerates an unsigned or
// invalid module image; left false, Init uses module.PolicyRequired.
var DebugBuild = false
