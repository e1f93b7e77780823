package connectivity

import "testing"

func TestMonitor_StartsUnknown(t *testing.T) {
	m := NewMonitor()
	if m.Status() != StateUnknown {
		t.Fatalf("expected unknown, got %s", m.Status())
	}
}

func TestMonitor_RestoreCallbacks(t *testing.T) {

	t.Run("fire on offline to connected", func(t *testing.T) {
		m := NewMonitor()
		fired := 0
		m.OnRestore(func() { fired++ })

		m.Set(StateOffline)
		m.Set(StateConnected)
		if fired != 1 {
			t.Fatalf("expected one restore callback, got %d", fired)
		}
	})

	t.Run("do not fire on other transitions", func(t *testing.T) {
		m := NewMonitor()
		fired := 0
		m.OnRestore(func() { fired++ })

		m.Set(StateConnected)
		m.Set(StateConnected)
		m.Set(StateOffline)
		m.Set(StateOffline)
		if fired != 0 {
			t.Fatalf("expected no restore callbacks, got %d", fired)
		}
	})

	t.Run("fire once per transition in registration order", func(t *testing.T) {
		m := NewMonitor()
		var order []string
		m.OnRestore(func() { order = append(order, "first") })
		m.OnRestore(func() { order = append(order, "second") })

		m.Set(StateOffline)
		m.Set(StateConnected)
		m.Set(StateOffline)
		m.Set(StateConnected)

		if len(order) != 4 || order[0] != "first" || order[1] != "second" {
			t.Fatalf("unexpected callback order: %v", order)
		}
	})
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateUnknown:   "unknown",
		StateConnected: "connected",
		StateOffline:   "offline",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}
