// Package connectivity holds the tri-state connectivity signal consumed by
// the mutation coordinator. Actual network detection lives outside this
// module; whatever detects changes feeds them in through Monitor.Set.
package connectivity

import "sync"

// State is the coarse connectivity signal read once per commit attempt.
type State int

const (
	// StateUnknown means no connectivity information is available yet.
	StateUnknown State = iota
	// StateConnected means the backing store is believed reachable.
	StateConnected
	// StateOffline means writes should be deferred to the offline queue.
	StateOffline
)

// String renders the state for logs.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Monitor is a concurrency-safe holder for the current connectivity state.
// Callbacks registered through OnRestore fire on every offline-to-connected
// transition, which is the queue drain trigger.
type Monitor struct {
	mu        sync.Mutex
	state     State
	onRestore []func()
}

// NewMonitor returns a monitor starting in the unknown state.
func NewMonitor() *Monitor {
	return &Monitor{state: StateUnknown}
}

// Status returns the current state.
func (m *Monitor) Status() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Set records a state transition and fires restore callbacks when the
// transition is offline to connected. Callbacks run outside the lock, in
// registration order.
func (m *Monitor) Set(state State) {
	m.mu.Lock()
	previous := m.state
	m.state = state
	var callbacks []func()
	if previous == StateOffline && state == StateConnected {
		callbacks = append(callbacks, m.onRestore...)
	}
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// OnRestore registers a callback for offline-to-connected transitions.
func (m *Monitor) OnRestore(fn func()) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.onRestore = append(m.onRestore, fn)
	m.mu.Unlock()
}
