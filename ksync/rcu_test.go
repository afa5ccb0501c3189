package ksync

import (
	"testing"
	"unsafe"
)

func TestRCUPointerReadReturnsLastUpdate(t *testing.T) {
	var r RCUPointer
	if r.Read() != nil {
		t.Fatalf("Read() on a zero-value RCUPointer = %v, want nil", r.Read())
	}

	a := 1
	r.Update(unsafe.Pointer(&a), nil)
	if got := (*int)(r.Read()); got != &a {
		t.Fatalf("Read() after Update = %p, want %p", got, &a)
	}

	b := 2
	r.Update(unsafe.Pointer(&b), nil)
	if got := (*int)(r.Read()); got != &b {
		t.Fatalf("Read() after second Update = %p, want %p", got, &b)
	}
}

func TestRCUPointerUpdateReclaimsOldValueWithoutGracePeriod(t *testing.T) {
	DefaultGracePeriod = nil
	var r RCUPointer
	a := 1
	r.Update(unsafe.Pointer(&a), nil)

	b := 2
	var reclaimed unsafe.Pointer
	r.Update(unsafe.Pointer(&b), func(old unsafe.Pointer) { reclaimed = old })
	if reclaimed != unsafe.Pointer(&a) {
		t.Fatalf("reclaimOld got %p, want %p", reclaimed, &a)
	}
}

func TestRCUPointerUpdateRunsGracePeriodBeforeReclaim(t *testing.T) {
	ran := false
	DefaultGracePeriod = func() { ran = true }
	defer func() { DefaultGracePeriod = nil }()

	var r RCUPointer
	a := 1
	r.Update(unsafe.Pointer(&a), nil)
	reclaimedAfterGrace := false
	r.Update(unsafe.Pointer(&a), func(unsafe.Pointer) {
		if !ran {
			t.Fatalf("reclaimOld ran before the grace-period hook")
		}
		reclaimedAfterGrace = true
	})
	if !reclaimedAfterGrace {
		t.Fatalf("reclaimOld was never called")
	}
}
