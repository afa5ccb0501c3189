package ipc

import (
	"testing"

	"github.com/Redstone-OS/forge/cap"
)

func TestMessageCarriesPayloadAndHandlesIndependently(t *testing.T) {
	m := Message{Payload: []byte("hello"), Handles: []cap.Capability{{}, {}}}
	if len(m.Handles) != 2 {
		t.Fatalf("len(Handles) = %d, want 2", len(m.Handles))
	}
	if len(m.Handles) > MaxMessageHandles {
		t.Fatalf("test message exceeds MaxMessageHandles, fixture is wrong")
	}
	if string(m.Payload) != "hello" {
		t.Fatalf("Payload = %q, want %q", m.Payload, "hello")
	}
}
