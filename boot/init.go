package boot

import (
	"crypto/ed25519"
	"unsafe"

	"github.com/Redstone-OS/forge/config"
	"github.com/Redstone-OS/forge/drivers"
	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/hal"
	"github.com/Redstone-OS/forge/ipc"
	"github.com/Redstone-OS/forge/klog"
	"github.com/Redstone-OS/forge/mem"
	"github.com/Redstone-OS/forge/module"
	"github.com/Redstone-OS/forge/sched"
	syscallpkg "github.com/Redstone-OS/forge/syscall"
	"github.com/Redstone-OS/forge/vm"
)

// Kernel bundles every subsystem handle Init produces: the references
// boot's own later stages (idle task spawn, module loading, a debug
// console) need, gathered in one place instead of scattered package-level
// globals. Nothing about its fields is runtime-reconfigurable past Init.
type Kernel struct {
	PMM  *mem.PMM
	HHDM *mem.HHDM
	Heap *mem.KernelHeap

	KernelAS *vm.AddressSpace

	Scheduler  *sched.Scheduler
	Futexes    *ipc.FutexTable
	Supervisor *module.Supervisor
	Watchdog   *module.Watchdog

	SyscallTable *syscallpkg.Table

	ModulePolicy module.TrustPolicy
	NCores       int
}

// TrustedSigners is overridden by a real boot configuration (baked into
// the kernel image, or read off a measured-boot-verified region) before
// Init runs; left empty, the module subsystem accepts nothing unless
// config.DebugBuild sets PolicyAllowAny.
var TrustedSigners []ed25519.PublicKey

// Init drives every subsystem through initialization in the one order
// that satisfies their dependencies: logging first (every later stage
// wants to log its own progress), then memory management (everything
// after needs to allocate), then the interrupt/trap machinery, then the
// scheduler, then IPC and the module subsystem, then the syscall table
// last, since installing it is what makes the machine user-facing.
func Init(h *Handoff, ncores int) (*Kernel, errno.Err_t) {
	console := drivers.DefaultSerialConsole()
	sink := consoleSink{console}
	klog.Install(sink)
	SetPanicSink(sink)
	hal.SetUnhandledTrapHandler(UnhandledTrap)
	klog.Banner("logging")

	k := &Kernel{NCores: ncores}

	k.PMM = mem.NewPMM(h.Regions, ncores)
	k.HHDM = mem.NewHHDM(config.HHDMBase)
	kernelAS, aerr := vm.NewAddressSpace(0, k.HHDM, k.PMM, nil)
	if aerr != errno.OK {
		return nil, aerr
	}
	k.KernelAS = kernelAS
	k.Heap = mem.NewEarlyHeap(uintptr(config.KernelHeapBase), config.EarlyHeapSize)
	k.Heap.UpgradeToBuddy(k.PMM, kernelAS.Mapper(), k.HHDM, config.KernelHeapBase)
	klog.Info("mm: %d usable bytes, %d free frames", h.TotalUsableBytes(), k.PMM.FreeFrames())
	klog.Banner("mm")

	core := hal.CurrentCore()
	kstack := make([]byte, config.KernelStackPages*mem.PageSize)
	dfstack := make([]byte, config.KernelStackPages*mem.PageSize)
	hal.InstallGDT(core, stackTop(kstack), stackTop(dfstack))
	if err := hal.GenerateTrapStubs(nil); err != nil {
		Panic("boot: GenerateTrapStubs: %v", err)
	}
	hal.InstallIDT()
	hal.ConfigureSyscallMSRs(hal.SyscallEntryAddr())

	apicPhys := mem.PhysAddr(hal.ReadMSR(hal.MSR_APIC_BASE) &^ 0xFFF)
	lapic := hal.NewLocalAPIC(uintptr(k.HHDM.PhysToVirt(apicPhys)))
	hal.SetEOIHook(lapic.EOI)
	SetAPIC(lapic)
	klog.Banner("interrupts")

	sched.SetLocalAPIC(lapic)
	k.Scheduler = sched.Init(ncores)
	lapic.ConfigureTimer(hal.VecTimer, config.TimerInitCount)
	k.SpawnIdleTask(core)
	klog.Banner("scheduler")

	k.Futexes = ipc.NewFutexTable()
	syscallpkg.SetPMM(k.PMM)
	syscallpkg.SetFutexTable(k.Futexes)
	klog.Banner("ipc")

	k.ModulePolicy = module.PolicyRequired
	if config.DebugBuild {
		k.ModulePolicy = module.PolicyAllowAny
	}
	module.InstallTrustRoot(TrustedSigners)
	k.Supervisor = module.NewSupervisor()
	k.Watchdog = module.NewWatchdog(k.Supervisor)
	klog.Banner("module")

	t := syscallpkg.NewTable()
	syscallpkg.RegisterDefaults(t)
	t.Install()
	k.SyscallTable = t
	klog.Banner("syscalls")

	return k, errno.OK
}

// stackTop returns the address one past the last byte of stack, the value
// InstallGDT wants for RSP0/the double-fault IST entry: both grow down
// from here.
func stackTop(stack []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(&stack[0]))) + uint64(len(stack))
}
