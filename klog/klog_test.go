package klog

import (
	"bytes"
	"strings"
	"testing"
)

func freshLogger() *Logger {
	return &Logger{min: LevelDebug}
}

func TestLogReachesSink(t *testing.T) {
	var buf bytes.Buffer
	l := freshLogger()
	l.Install(&buf)
	l.log(LevelInfo, "mapped %d pages at %x", 3, 0x1000)

	out := buf.String()
	if !strings.Contains(out, "[INFO]") || !strings.Contains(out, "mapped 3 pages at 1000") {
		t.Fatalf("unexpected sink output: %q", out)
	}
}

func TestLogBeforeInstallIsRetainedNotLost(t *testing.T) {
	l := freshLogger()
	l.log(LevelWarn, "no sink yet")

	var buf bytes.Buffer
	l.Dump(&buf)
	if !strings.Contains(buf.String(), "no sink yet") {
		t.Fatalf("expected ring buffer to retain line logged with no sink installed")
	}
}

func TestSetMinLevelSuppressesSinkButNotRing(t *testing.T) {
	var buf bytes.Buffer
	l := freshLogger()
	l.Install(&buf)
	l.SetMinLevel(LevelError)
	l.log(LevelInfo, "should not reach sink")

	if buf.Len() != 0 {
		t.Fatalf("expected suppressed line to not reach sink, got %q", buf.String())
	}

	var dump bytes.Buffer
	l.Dump(&dump)
	if !strings.Contains(dump.String(), "should not reach sink") {
		t.Fatalf("expected suppressed line to still be retained in the ring buffer")
	}
}

func TestRingBufferWrapsWithoutGrowing(t *testing.T) {
	l := freshLogger()
	for i := 0; i < ringSize*2+5; i++ {
		l.log(LevelDebug, "line %d", i)
	}

	var dump bytes.Buffer
	l.Dump(&dump)
	lines := strings.Split(strings.TrimRight(dump.String(), "\n"), "\n")
	if len(lines) != ringSize {
		t.Fatalf("expected ring dump to contain exactly %d lines, got %d", ringSize, len(lines))
	}
	if !strings.Contains(lines[len(lines)-1], "line 516") {
		t.Fatalf("expected last retained line to be the most recent one, got %q", lines[len(lines)-1])
	}
}

func TestLevelString(t *testing.T) {
	cases := map[Level]string{
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
		LevelPanic: "PANIC",
	}
	for lvl, want := range cases {
		if got := lvl.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", lvl, got, want)
		}
	}
}
