package vm

import (
	"testing"

	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/mem"
)

func vmaAt(start, end uint64) *VMA {
	return &VMA{Start: mem.VirtAddr(start), End: mem.VirtAddr(end)}
}

func TestVMAContainsAndOverlaps(t *testing.T) {
	v := vmaAt(0x1000, 0x3000)
	if !v.Contains(mem.VirtAddr(0x1000)) || !v.Contains(mem.VirtAddr(0x2FFF)) {
		t.Fatalf("Contains() false for addresses inside the range")
	}
	if v.Contains(mem.VirtAddr(0x3000)) {
		t.Fatalf("Contains(End) = true, want false (half-open range)")
	}
	if !v.Overlaps(0x2000, 0x4000) || !v.Overlaps(0x0, 0x1001) {
		t.Fatalf("Overlaps() missed a genuine overlap")
	}
	if v.Overlaps(0x3000, 0x4000) {
		t.Fatalf("Overlaps() true for a disjoint, adjacent range")
	}
}

func TestVMATreeInsertLookupOrdering(t *testing.T) {
	var tree VMATree
	a := vmaAt(0x1000, 0x2000)
	b := vmaAt(0x5000, 0x6000)
	if err := tree.Insert(a); err != errno.OK {
		t.Fatalf("Insert(a): %v", err)
	}
	if err := tree.Insert(b); err != errno.OK {
		t.Fatalf("Insert(b): %v", err)
	}
	if got, ok := tree.Lookup(mem.VirtAddr(0x1500)); !ok || got != a {
		t.Fatalf("Lookup(0x1500) = %v, %v, want a", got, ok)
	}
	if _, ok := tree.Lookup(mem.VirtAddr(0x3000)); ok {
		t.Fatalf("Lookup(0x3000) found a VMA in a gap")
	}
	if got, ok := tree.NextAfter(mem.VirtAddr(0x2500)); !ok || got != b {
		t.Fatalf("NextAfter(0x2500) = %v, %v, want b", got, ok)
	}
}

func TestVMATreeInsertRejectsOverlap(t *testing.T) {
	var tree VMATree
	tree.Insert(vmaAt(0x1000, 0x3000))
	if err := tree.Insert(vmaAt(0x2000, 0x4000)); err != errno.AlreadyMapped {
		t.Fatalf("Insert(overlapping) = %v, want AlreadyMapped", err)
	}
}

func TestVMATreeRemove(t *testing.T) {
	var tree VMATree
	a := vmaAt(0x1000, 0x2000)
	tree.Insert(a)
	got, ok := tree.Remove(mem.VirtAddr(0x1000))
	if !ok || got != a {
		t.Fatalf("Remove(0x1000) = %v, %v, want a, true", got, ok)
	}
	if tree.Len() != 0 {
		t.Fatalf("Len() after Remove = %d, want 0", tree.Len())
	}
	if _, ok := tree.Remove(mem.VirtAddr(0x1000)); ok {
		t.Fatalf("Remove() of an absent start succeeded")
	}
}

func TestVMATreeFindHoleSkipsOccupiedRanges(t *testing.T) {
	var tree VMATree
	tree.Insert(vmaAt(0x1000, 0x2000))
	tree.Insert(vmaAt(0x2000, 0x3000))
	hole, ok := tree.FindHole(mem.VirtAddr(0x1000), 0x1000, mem.VirtAddr(0x10000))
	if !ok {
		t.Fatalf("FindHole() found nothing")
	}
	if hole != mem.VirtAddr(0x3000) {
		t.Fatalf("FindHole() = %#x, want 0x3000 (first gap past both VMAs)", hole)
	}
}

func TestVMATreeFindHoleReportsNoneWhenExhausted(t *testing.T) {
	var tree VMATree
	tree.Insert(vmaAt(0x1000, 0x2000))
	if _, ok := tree.FindHole(mem.VirtAddr(0x1000), 0x2000, mem.VirtAddr(0x1800)); ok {
		t.Fatalf("FindHole() succeeded with a limit smaller than the request")
	}
}
