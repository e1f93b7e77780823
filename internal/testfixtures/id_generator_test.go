package testfixtures

import "testing"

func TestIDGeneratorSequence(t *testing.T) {
	sessions := NewIDGenerator("session")
	if first, second := sessions.Next(), sessions.Next(); first != "session-1" || second != "session-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}

	fallback := NewIDGenerator("")
	if next := fallback.Next(); next != "id-1" {
		t.Fatalf("expected the default prefix, got %q", next)
	}
}
