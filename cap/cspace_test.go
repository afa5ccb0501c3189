package cap

import (
	"testing"

	"github.com/Redstone-OS/forge/errno"
)

func TestCSpaceInsertLookupClose(t *testing.T) {
	cs := NewCSpace(4)
	obj := NewObject(TypePort, &fakeDestroyable{})
	c := NewRoot(obj, RightsAll, 0)

	h, err := cs.Insert(c)
	if err != errno.OK {
		t.Fatalf("Insert: %v", err)
	}
	if cs.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", cs.Len())
	}

	got, err := cs.Lookup(h)
	if err != errno.OK || got.Object != obj {
		t.Fatalf("Lookup(%d) = %+v, %v", h, got, err)
	}

	if err := cs.Close(h); err != errno.OK {
		t.Fatalf("Close: %v", err)
	}
	if cs.Len() != 0 {
		t.Fatalf("Len() after Close = %d, want 0", cs.Len())
	}
	if _, err := cs.Lookup(h); err == errno.OK {
		t.Fatalf("Lookup after Close should fail")
	}
}

func TestCSpaceInsertionAtCapacityFails(t *testing.T) {
	cs := NewCSpace(1)
	obj := NewObject(TypePort, &fakeDestroyable{})

	if _, err := cs.Insert(NewRoot(obj, RightsAll, 0)); err != errno.OK {
		t.Fatalf("first Insert: %v", err)
	}
	before := cs.Len()
	if _, err := cs.Insert(NewRoot(obj, RightsAll, 0)); err == errno.OK {
		t.Fatalf("Insert past limit should fail")
	}
	if cs.Len() != before {
		t.Fatalf("failed Insert changed table size: %d -> %d", before, cs.Len())
	}
}

func TestCSpaceRevokeInvalidatesLookup(t *testing.T) {
	cs := NewCSpace(2)
	obj := NewObject(TypePort, &fakeDestroyable{})
	h, _ := cs.Insert(NewRoot(obj, RightsAll, 0))

	if err := cs.Revoke(h); err != errno.OK {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := cs.Lookup(h); err == errno.OK {
		t.Fatalf("Lookup after Revoke should report the slot invalid")
	}
}

func TestCSpaceDeriveRightsSubset(t *testing.T) {
	cs := NewCSpace(4)
	obj := NewObject(TypePort, &fakeDestroyable{})
	parent, _ := cs.Insert(NewRoot(obj, RightRead|RightWrite|RightGrant, 0))

	child, err := cs.Derive(parent, RightRead, false)
	if err != errno.OK {
		t.Fatalf("Derive: %v", err)
	}
	got, _ := cs.Lookup(child)
	if got.Rights != RightRead {
		t.Fatalf("derived rights = %v, want RightRead only", got.Rights)
	}
}

func TestCSpaceTransferRoundTrip(t *testing.T) {
	src := NewCSpace(2)
	dst := NewCSpace(2)
	obj := NewObject(TypeChannel, &fakeDestroyable{})
	h, _ := src.Insert(NewRoot(obj, RightTransfer|RightRead, 0))

	c, err := src.TakeForTransfer(h)
	if err != errno.OK {
		t.Fatalf("TakeForTransfer: %v", err)
	}
	if _, err := src.Lookup(h); err == errno.OK {
		t.Fatalf("source CSpace should no longer hold the transferred capability")
	}

	nh, err := dst.InsertTransferred(c)
	if err != errno.OK {
		t.Fatalf("InsertTransferred: %v", err)
	}
	got, err := dst.Lookup(nh)
	if err != errno.OK || got.Object != obj {
		t.Fatalf("transferred capability not resolvable in destination CSpace")
	}
}
