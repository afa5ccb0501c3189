package module

import (
	"github.com/Redstone-OS/forge/cap"
	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/klog"
	"github.com/Redstone-OS/forge/ksync"
	"github.com/Redstone-OS/forge/vm"
)

// State mirrors the module lifecycle from the data model.
type State uint8

const (
	StateLoading State = iota
	StateRunning
	StateStopped
	StateFailed
	StateBanned
)

// InitFunc runs once after a module's capability bundle is constructed; a
// non-OK return aborts the load before the module is ever marked Running.
type InitFunc func(sandbox *Sandbox) errno.Err_t

// HealthFunc is polled by the watchdog; a non-OK return or a call that
// never returns within its deadline counts as a fault.
type HealthFunc func() errno.Err_t

// CleanupFunc runs exactly once, when a module is stopped or banned.
type CleanupFunc func()

// Callbacks bundles the three module-supplied entry points the loader
// wires up after Load succeeds.
type Callbacks struct {
	Init    InitFunc
	Health  HealthFunc
	Cleanup CleanupFunc
}

// Module is one loaded module's full bookkeeping record: identity,
// lifecycle state, its sandboxed capability set, the code/data region it
// owns, and the watchdog counters the health-poll loop maintains.
type Module struct {
	ID       uint64
	Name     string
	Critical bool

	lock     ksync.SpinLock
	state    State
	loaded   *Loaded
	sandbox  *Sandbox
	cb       Callbacks
	as       *vm.AddressSpace
	manifest Manifest
	fallback FallbackAction

	faultCount int
	lastOKTick uint64
}

func (m *Module) State() State {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state
}

// FallbackAction names what the supervisor does once a module is Banned.
type FallbackAction uint8

const (
	FallbackDisableHardware FallbackAction = iota
	FallbackReload
	FallbackGenericDriver
	FallbackPanic
)

// Manifest is what a load request supplies beyond the raw image: the
// signature to verify it against, the trust policy to apply, and the
// rights the supervisor is willing to approve regardless of what the
// module's own header requests.
type Manifest struct {
	Image        []byte
	Signature    []byte
	Policy       TrustPolicy
	ApprovedRights cap.Rights
	CSpaceLimit  int
	Critical     bool
	Fallback     FallbackAction
	// Generic, if non-zero, is the reduced-functionality callback set
	// FallbackGenericDriver swaps in once the module backed by the
	// original Callbacks has been banned.
	Generic Callbacks
}

// Supervisor owns every loaded module and drives the load flow: verify,
// parse, allocate with W^X, relocate, sandbox, init-with-timeout, mark
// Running. It also owns the banned-name list a repeated load of an
// uncorrected manifest is refused against.
type Supervisor struct {
	lock     ksync.SpinLock
	nextID   uint64
	modules  map[uint64]*Module
	banned   map[string]bool
}

func NewSupervisor() *Supervisor {
	return &Supervisor{
		modules: make(map[uint64]*Module),
		banned:  make(map[string]bool),
	}
}

// Load runs the full eight-step load flow against as (the address space
// the module's code/data gets mapped into — the kernel's own for a
// kernel-mode module). cb.Init is invoked synchronously; the caller is
// responsible for bounding it with a timeout (the watchdog owns ongoing
// health polling, not the one-time init call, which the module/process
// layer wraps with its own deadline machinery since it already has access
// to scheduled wakeups).
func (s *Supervisor) Load(name string, as *vm.AddressSpace, m Manifest, cb Callbacks) (*Module, errno.Err_t) {
	s.lock.Lock()
	if s.banned[name] {
		s.lock.Unlock()
		return nil, errno.PermissionDenied
	}
	s.lock.Unlock()

	if verr := Verify(m.Image, m.Signature, m.Policy); verr != errno.OK {
		return nil, verr
	}

	img, perr := Parse(m.Image)
	if perr != errno.OK {
		return nil, perr
	}

	loaded, lerr := Load(as, img)
	if lerr != errno.OK {
		return nil, lerr
	}

	sandbox := NewSandbox(img.Header.RequestedRights, m.ApprovedRights, m.CSpaceLimit)

	s.lock.Lock()
	s.nextID++
	id := s.nextID
	s.lock.Unlock()

	mod := &Module{
		ID:       id,
		Name:     name,
		Critical: m.Critical,
		state:    StateLoading,
		loaded:   loaded,
		sandbox:  sandbox,
		cb:       cb,
		as:       as,
		manifest: m,
		fallback: m.Fallback,
	}

	if cb.Init != nil {
		if ierr := cb.Init(sandbox); ierr != errno.OK {
			s.teardown(mod)
			return nil, ierr
		}
	}

	mod.lock.Lock()
	mod.state = StateRunning
	mod.lock.Unlock()

	s.lock.Lock()
	s.modules[id] = mod
	s.lock.Unlock()

	return mod, errno.OK
}

// recordFault increments a module's fault counter; on the third
// consecutive fault it bans the module per the watchdog policy. Returns
// true if this call caused the Banned transition.
func (s *Supervisor) recordFault(mod *Module) bool {
	mod.lock.Lock()
	mod.faultCount++
	banned := mod.faultCount >= 3
	if banned {
		mod.state = StateBanned
	}
	mod.lock.Unlock()
	if banned {
		s.ban(mod)
	}
	return banned
}

func (s *Supervisor) recordOK(mod *Module, tick uint64) {
	mod.lock.Lock()
	mod.faultCount = 0
	mod.lastOKTick = tick
	mod.lock.Unlock()
}

// ban runs cleanup, releases resources, records the name so a subsequent
// uncorrected load is refused, and applies the configured fallback.
func (s *Supervisor) ban(mod *Module) {
	klog.Warn("module: %s (id=%d): banned after repeated faults, fallback=%v", mod.Name, mod.ID, mod.fallback)
	s.teardown(mod)
	s.lock.Lock()
	s.banned[mod.Name] = true
	delete(s.modules, mod.ID)
	s.lock.Unlock()
}

// teardown runs a module's cleanup callback, releases every capability it
// held, and unmaps its code and data regions from the address space it was
// loaded into. Order matters: Cleanup may still touch the sandbox's
// handles, so it runs before TeardownAll, and both run before the backing
// mapping disappears from under them.
func (s *Supervisor) teardown(mod *Module) {
	if mod.cb.Cleanup != nil {
		mod.cb.Cleanup()
	}
	if mod.sandbox != nil {
		mod.sandbox.TeardownAll()
	}
	if mod.as != nil && mod.loaded != nil {
		mod.as.Munmap(mod.loaded.CodeBase)
		mod.as.Munmap(mod.loaded.DataBase)
	}
}

// reload clears a module's ban and loads it again from the manifest and
// callbacks it was first loaded with, the "power cycle the driver"
// fallback. A second failure is logged and left banned; reload does not
// retry itself.
func (s *Supervisor) reload(mod *Module) {
	s.ClearBan(mod.Name)
	if _, err := s.Load(mod.Name, mod.as, mod.manifest, mod.cb); err != errno.OK {
		klog.Error("module: %s: reload failed: %s", mod.Name, err.Error())
	}
}

// swapGeneric replaces a banned module with the reduced-functionality
// driver its manifest's Generic callbacks describe, if any were supplied.
// A manifest with no generic fallback leaves the module banned.
func (s *Supervisor) swapGeneric(mod *Module) {
	generic := mod.manifest.Generic
	if generic.Init == nil && generic.Health == nil && generic.Cleanup == nil {
		klog.Warn("module: %s: no generic driver configured, staying banned", mod.Name)
		return
	}
	s.ClearBan(mod.Name)
	if _, err := s.Load(mod.Name, mod.as, mod.manifest, generic); err != errno.OK {
		klog.Error("module: %s: generic-driver fallback failed: %s", mod.Name, err.Error())
	}
}

// ClearBan allows a corrected manifest for name to load again.
func (s *Supervisor) ClearBan(name string) {
	s.lock.Lock()
	delete(s.banned, name)
	s.lock.Unlock()
}

func (s *Supervisor) Lookup(id uint64) (*Module, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	m, ok := s.modules[id]
	return m, ok
}
