// Command forge is the kernel's Go-reachable entry point. Everything
// before it — the real-mode/long-mode transition, page table bootstrap,
// and parsing whatever protocol the bootloader speaks into a
// boot.Handoff — is architecture bootstrap code outside this module's
// scope; that stub is expected to populate Handoff and NumCores below
// and then jump to main the way a freestanding kernel's linker script
// routes control at the runtime's own entry symbol, not through a libc
// crt0.
package main

import (
	"github.com/Redstone-OS/forge/boot"
	"github.com/Redstone-OS/forge/errno"
)

// Handoff and NumCores are set by the architecture bootstrap before it
// transfers control here. They are package-level rather than function
// arguments because main takes none: Go requires a main package's main
// to have this exact signature, so the bootstrap stub communicates
// through these instead of a call it cannot make.
var (
	Handoff  *boot.Handoff
	NumCores = 1
)

// Modules is the static manifest of in-tree modules to bring up once
// the core subsystems are running. A real build populates this from
// generated code (forgebuild output embedded via go:embed) rather than
// leaving it empty; left empty, boot simply comes up with no modules
// loaded.
var Modules []boot.ModuleSpec

func main() {
	if Handoff == nil {
		panic("forge: main entered without a handoff record")
	}

	k, err := boot.Init(Handoff, NumCores)
	if err != errno.OK {
		boot.Panic("boot: Init failed: %s", err.Error())
	}

	k.LoadModules(Modules)

	boot.Idle()
}
