// Package boot parses the bootloader handoff record, drives every kernel
// subsystem through its initialization in the required order, runs the
// idle loop once there is nothing left to schedule, and owns the panic
// path every unrecoverable invariant violation funnels into.
package boot

import "github.com/Redstone-OS/forge/mem"

// HandoffVersion is the current binary layout version of Handoff. It is
// bumped, explicitly and only, whenever a field is added, removed, or
// reordered; a bootloader and kernel built against different versions
// must refuse to hand off rather than silently misinterpret each other's
// layout.
const HandoffVersion = 1

// FramebufferInfo describes a linear framebuffer the bootloader already
// set up, if any.
type FramebufferInfo struct {
	Address mem.PhysAddr
	Width   uint32
	Height  uint32
	Stride  uint32
	Bpp     uint8
}

// InitramfsInfo locates a bootloader-loaded initial ramdisk image in
// physical memory.
type InitramfsInfo struct {
	Address mem.PhysAddr
	Size    uint64
}

// Handoff is the record a bootloader constructs and passes to the kernel
// entry point. Every optional field uses a Has* flag rather than a zero
// value doing double duty as "absent", since zero is also a legal address
// (the first physical page, conventionally reserved, legitimately can be
// zero-length when a bootloader chooses not to report it at all).
type Handoff struct {
	Version uint32

	Regions []mem.MemRegion

	HasFramebuffer bool
	Framebuffer    FramebufferInfo

	HasRSDP bool
	RSDP    mem.PhysAddr

	HasCmdline bool
	Cmdline    string

	HasInitramfs bool
	Initramfs    InitramfsInfo
}

// TotalUsableBytes sums every Usable region's length, the quantity boot
// logs right after the PMM comes up and scenario 1 checks against the
// synthesized 128 MiB handoff.
func (h *Handoff) TotalUsableBytes() uint64 {
	var total uint64
	for _, r := range h.Regions {
		if r.Kind == mem.RegionUsable {
			total += r.Len
		}
	}
	return total
}

// HasModules is a convenience used by boot's own logging; the core
// itself does not parse individual module images out of the initramfs —
// that is the module subsystem's job once a filesystem can enumerate the
// archive's contents — so this only reports whether any initramfs was
// handed off at all.
func (h *Handoff) HasModules() bool { return h.HasInitramfs }
