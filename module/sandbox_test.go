package module

import (
	"testing"

	"github.com/Redstone-OS/forge/cap"
	"github.com/Redstone-OS/forge/errno"
)

type fakeDestroyable struct{ destroyed bool }

func (f *fakeDestroyable) OnDestroy() { f.destroyed = true }

func TestNewSandboxIntersectsRequestedAndApproved(t *testing.T) {
	s := NewSandbox(cap.RightRead|cap.RightWrite|cap.RightExecute, cap.RightRead|cap.RightWrite, 8)
	want := cap.RightRead | cap.RightWrite
	if s.Rights != want {
		t.Fatalf("Rights = %v, want %v (requested ∩ approved)", s.Rights, want)
	}
}

func TestSandboxGrantRestrictsToSandboxRights(t *testing.T) {
	s := NewSandbox(cap.RightRead|cap.RightWrite, cap.RightRead, 8)
	obj := cap.NewObject(cap.TypeVmo, &fakeDestroyable{})
	root := cap.Capability{Object: obj, Rights: cap.RightRead | cap.RightWrite | cap.RightGrant}

	h, err := s.Grant(root)
	if err != errno.OK {
		t.Fatalf("Grant: %v", err)
	}
	got, err := s.CSpace.Lookup(h)
	if err != errno.OK {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Rights != cap.RightRead {
		t.Fatalf("granted Rights = %v, want %v (restricted to sandbox)", got.Rights, cap.RightRead)
	}
}

func TestSandboxTeardownAllClosesEveryHandleEvenWithMultipleLive(t *testing.T) {
	s := NewSandbox(cap.RightsAll, cap.RightsAll, 8)
	destroyed := make([]*fakeDestroyable, 3)
	for i := range destroyed {
		d := &fakeDestroyable{}
		destroyed[i] = d
		obj := cap.NewObject(cap.TypeVmo, d)
		if _, err := s.Grant(cap.Capability{Object: obj, Rights: cap.RightsAll}); err != errno.OK {
			t.Fatalf("Grant #%d: %v", i, err)
		}
		// Grant added the sandbox's own reference on top of NewObject's
		// initial one; drop the creator's reference the way a syscall
		// handing an object off to a module would, so the sandbox's
		// Close below is what brings each object to zero.
		obj.Unref()
	}
	if got := s.CSpace.Len(); got != 3 {
		t.Fatalf("Len() before teardown = %d, want 3", got)
	}

	s.TeardownAll()

	if got := s.CSpace.Len(); got != 0 {
		t.Fatalf("Len() after TeardownAll = %d, want 0 (every handle closed)", got)
	}
	for i, d := range destroyed {
		if !d.destroyed {
			t.Fatalf("handle #%d was never destroyed — TeardownAll stopped early", i)
		}
	}
}
