package module

import (
	"github.com/Redstone-OS/forge/cap"
	"github.com/Redstone-OS/forge/errno"
)

// Sandbox is the restricted capability bundle a module actually runs
// with: only the rights its manifest requested, intersected with whatever
// the supervisor approves, ever reach the module's CSpace. A module never
// sees the kernel's own page tables or the supervisor's CSpace directly.
type Sandbox struct {
	CSpace *cap.CSpace
	Rights cap.Rights
}

// NewSandbox builds the bundle a module gets: requested is what the
// manifest asked for, approved is what the supervisor's policy grants
// (possibly less, never more). Every capability later inserted into the
// module's CSpace is derived with rights restricted to this intersection.
func NewSandbox(requested, approved cap.Rights, cspaceLimit int) *Sandbox {
	return &Sandbox{
		CSpace: cap.NewCSpace(cspaceLimit),
		Rights: requested & approved,
	}
}

// Grant inserts a capability derived from root, restricted to this
// sandbox's approved rights, into the module's CSpace.
func (s *Sandbox) Grant(root cap.Capability) (cap.Handle, errno.Err_t) {
	restricted := cap.Capability{
		Object:     root.Object,
		Rights:     root.Rights.Restrict(s.Rights),
		Badge:      root.Badge,
		Generation: root.Object.Generation(),
	}
	root.Object.Ref()
	h, err := s.CSpace.Insert(restricted)
	if err != errno.OK {
		root.Object.Unref()
	}
	return h, err
}

// TeardownAll closes every handle currently held by the sandbox, dropping
// the module's references to whatever kernel objects it was granted.
// Called once, during cleanup, before the module's code/data pages are
// released.
func (s *Sandbox) TeardownAll() {
	for _, h := range s.CSpace.Occupied() {
		s.CSpace.Close(h)
	}
}
