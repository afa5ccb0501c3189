package mem

import "testing"

func TestMapFlagsToPTESetsExpectedBits(t *testing.T) {
	f := MapFlags{Write: true, User: true, Global: true, COW: true, NoCache: true, HugePage: true, Exec: true}
	pte := f.toPTE()
	want := PteP | PteW | PteU | PteG | PteCOW | PtePCD | PtePS
	if pte != want {
		t.Fatalf("toPTE() = %#x, want %#x", pte, want)
	}
}

func TestMapFlagsToPTESetsNXWhenNotExecutable(t *testing.T) {
	f := MapFlags{Exec: false}
	pte := f.toPTE()
	if pte&PteNX == 0 {
		t.Fatalf("toPTE() with Exec=false lacks PteNX: %#x", pte)
	}
}

func TestMapFlagsToPTEClearsNXWhenExecutable(t *testing.T) {
	f := MapFlags{Exec: true}
	pte := f.toPTE()
	if pte&PteNX != 0 {
		t.Fatalf("toPTE() with Exec=true set PteNX: %#x", pte)
	}
}

func TestMapFlagsProtection(t *testing.T) {
	f := MapFlags{Write: true, Exec: true}
	prot := f.Protection()
	if !prot.CanRead() || !prot.CanWrite() || !prot.CanExec() {
		t.Fatalf("Protection() = %v, want read+write+exec", prot)
	}
}

func TestIdxOfExtractsCorrectTableIndex(t *testing.T) {
	// level 0 (PT): bits 12-20. level 3 (PML4): bits 39-47.
	v := VirtAddr(0x1234_5678_9000)
	for level := 0; level <= 3; level++ {
		shift := uint(12 + 9*level)
		want := int((uint64(v) >> shift) & 0x1FF)
		if got := idxOf(v, level); got != want {
			t.Errorf("idxOf(level=%d) = %d, want %d", level, got, want)
		}
	}
}
