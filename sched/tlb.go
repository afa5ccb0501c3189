package sched

import "github.com/Redstone-OS/forge/hal"

// localAPIC is used to broadcast the IPI a cross-core TLB shootdown needs;
// boot installs it once, during the interrupts stage, before Init ever
// runs (Init installs the Shootdowner that reads this var, it does not
// need the APIC itself yet).
var localAPIC *hal.LocalAPIC

// SetLocalAPIC records the APIC boot brought up, for cross-core shootdown
// IPIs. Must be called before Init.
func SetLocalAPIC(a *hal.LocalAPIC) { localAPIC = a }

// schedShootdowner implements hal.Shootdowner on top of the scheduler's own
// per-core "which task, and therefore which address space, is this core
// currently running" bookkeeping: only a core actually running a thread of
// the target address space needs the IPI at all.
type schedShootdowner struct {
	s *Scheduler
}

func installShootdowner(s *Scheduler) {
	hal.SetShootdowner(schedShootdowner{s: s})
	hal.RegisterIRQ(hal.VecTLBShootdown, shootdownIRQ)
}

// shootdownIRQ runs on the receiving core: the IPI itself carries no
// payload beyond the vector, but Shootdown only ever targets a core
// currently running a thread of the affected address space, so that core's
// own current task already names the right pcid to flush.
func shootdownIRQ(frame *hal.TrapFrame, vector uint32) {
	cur := Current()
	if cur == nil || cur.AS == nil {
		return
	}
	hal.FlushLocalFull(cur.AS.PCID())
}

// Shootdown sends hal.VecTLBShootdown to every other core whose current
// task's address space has pcid, so that core's trap handler invalidates
// the same range this one already flushed locally.
func (sd schedShootdowner) Shootdown(pcid uint32, r hal.ShootdownRange) {
	if localAPIC == nil {
		return
	}
	self := hal.CurrentCore()
	for i := range sd.s.cpus {
		core := hal.CoreID(i)
		if core == self {
			continue
		}
		cpu := &sd.s.cpus[i]
		if cpu.current == nil || cpu.current.AS == nil || cpu.current.AS.PCID() != pcid {
			continue
		}
		localAPIC.SendIPI(uint32(core), hal.VecTLBShootdown)
	}
}
