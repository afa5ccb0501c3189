package mem

import "testing"

func TestProtectionAccessors(t *testing.T) {
	p := ProtRead | ProtWrite
	if !p.CanRead() || !p.CanWrite() || p.CanExec() {
		t.Fatalf("ProtRead|ProtWrite: CanRead=%v CanWrite=%v CanExec=%v", p.CanRead(), p.CanWrite(), p.CanExec())
	}
}

func TestProtectionSubset(t *testing.T) {
	parent := ProtRead | ProtWrite
	if !(ProtRead).Subset(parent) {
		t.Errorf("ProtRead should be a subset of ProtRead|ProtWrite")
	}
	if (ProtExec).Subset(parent) {
		t.Errorf("ProtExec should not be a subset of ProtRead|ProtWrite")
	}
	if !Protection(0).Subset(parent) {
		t.Errorf("the empty set is a subset of anything")
	}
}
