package sched

import (
	"testing"

	"github.com/Redstone-OS/forge/hal"
)

func TestShootdownNoopWithoutAPIC(t *testing.T) {
	localAPIC = nil
	s := &Scheduler{cpus: make([]perCPU, 4)}
	sd := schedShootdowner{s: s}

	sd.Shootdown(1, hal.ShootdownRange{})
}
