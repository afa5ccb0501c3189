package boot

import (
	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/klog"
	"github.com/Redstone-OS/forge/module"
)

// ModuleSpec is one entry in the static module manifest boot carries: the
// signed image bytes and the callbacks that back it. Unlike a user
// process, a module's code lives in this binary (or an image baked into
// it) rather than an ELF pulled off a filesystem, so its Init/Health/
// Cleanup are ordinary Go closures, not an address jumped to in some
// other address space.
type ModuleSpec struct {
	Name      string
	Image     []byte
	Signature []byte
	// Manifest supplies what Load needs beyond the fields below:
	// ApprovedRights, CSpaceLimit and any Generic callbacks. Its
	// Image/Signature/Policy/Critical/Fallback are overwritten from the
	// other fields of this spec and the kernel's policy before Load runs.
	Manifest  module.Manifest
	Callbacks module.Callbacks
	Critical  bool
	Fallback  module.FallbackAction
}

// LoadModules runs the supervisor's load flow against every entry in
// specs, in order, using the trust policy Init already decided. A module
// that fails verification or init is logged and skipped rather than
// aborting the rest of the manifest, unless it is marked Critical, in
// which case the watchdog's fallback action decides what happens next;
// FallbackPanic is the only one that actually stops the machine, so that
// is the only case handled here directly.
func (k *Kernel) LoadModules(specs []ModuleSpec) {
	for _, spec := range specs {
		m := spec.Manifest
		m.Image = spec.Image
		m.Signature = spec.Signature
		m.Policy = k.ModulePolicy
		m.Critical = spec.Critical
		m.Fallback = spec.Fallback

		mod, err := k.Supervisor.Load(spec.Name, k.KernelAS, m, spec.Callbacks)
		if err != errno.OK {
			klog.Error("module: %s: load failed: %s", spec.Name, err.Error())
			if spec.Critical && spec.Fallback == module.FallbackPanic {
				Panic("module: critical module %s failed to load: %s", spec.Name, err.Error())
			}
			continue
		}
		klog.Info("module: %s: running (id=%d)", spec.Name, mod.ID)
	}
}
