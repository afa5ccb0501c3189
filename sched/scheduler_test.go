package sched

import (
	"sync/atomic"
	"testing"
)

func TestCollectExitRequiresZombie(t *testing.T) {
	s := &Scheduler{tasks: make(map[Tid]*Task)}
	task := &Task{Tid: 1, state: StateReady}
	s.tasks[task.Tid] = task

	if _, ok := s.CollectExit(task.Tid); ok {
		t.Fatalf("CollectExit succeeded on a non-zombie task")
	}

	task.state = StateZombie
	task.exitCode = 7
	code, ok := s.CollectExit(task.Tid)
	if !ok || code != 7 {
		t.Fatalf("CollectExit = (%d, %v), want (7, true)", code, ok)
	}
	if task.state != StateDead {
		t.Fatalf("task state after CollectExit = %v, want StateDead", task.state)
	}
}

func TestCollectExitUnknownTid(t *testing.T) {
	s := &Scheduler{tasks: make(map[Tid]*Task)}
	if _, ok := s.CollectExit(999); ok {
		t.Fatalf("CollectExit on an unknown tid should fail")
	}
}

// TimerTick itself reaches into hal.CurrentCore(), which needs a real
// per-core GS base installed by boot, so it is not exercised directly
// here; this only checks that Ticks() reflects the same atomic counter
// TimerTick increments.
func TestTicksReflectsCounter(t *testing.T) {
	before := Ticks()
	atomic.AddUint64(&ticks, 1)
	if Ticks() != before+1 {
		t.Fatalf("Ticks() = %d, want %d", Ticks(), before+1)
	}
}

func TestKillMarksTaskAndReportsSuccess(t *testing.T) {
	s := &Scheduler{tasks: make(map[Tid]*Task)}
	task := &Task{Tid: 2}
	s.tasks[task.Tid] = task

	if !s.Kill(task.Tid) {
		t.Fatalf("Kill on a known tid should succeed")
	}
	if !task.Killed() {
		t.Fatalf("Kill did not set the task's killed flag")
	}
	if s.Kill(999) {
		t.Fatalf("Kill on an unknown tid should fail")
	}
}
