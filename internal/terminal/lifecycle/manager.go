package lifecycle

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termhost/internal/logging"
	"github.com/GriffinCanCode/termhost/internal/shared/clock"
)

// Manager indexes machines by terminal id.
type Manager struct {
	opts   Options
	logger *zap.Logger

	mu       sync.RWMutex
	machines map[string]*Machine
	global   []Listener
}

// NewManager creates an empty manager. opts is applied to every machine.
func NewManager(opts Options) *Manager {
	opts.Clock = clock.OrReal(opts.Clock)
	return &Manager{
		opts:     opts,
		logger:   logging.Component(opts.Logger, "lifecycle"),
		machines: make(map[string]*Machine),
	}
}

// AddGlobalListener registers a listener that is attached to every machine
// created afterwards. Existing machines are not affected.
func (m *Manager) AddGlobalListener(l Listener) {
	m.mu.Lock()
	m.global = append(m.global, l)
	m.mu.Unlock()
}

// Create starts tracking a terminal in the Creating state.
func (m *Manager) Create(terminalID string) (*Machine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.machines[terminalID]; ok {
		return nil, ErrExists
	}
	machine := NewMachine(terminalID, m.opts)
	for _, l := range m.global {
		machine.OnTransition(l)
	}
	m.machines[terminalID] = machine
	return machine, nil
}

// Get returns the machine for a terminal.
func (m *Manager) Get(terminalID string) (*Machine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	machine, ok := m.machines[terminalID]
	return machine, ok
}

// Transition applies a validated transition to the named terminal.
func (m *Manager) Transition(terminalID string, to State, reason string) error {
	machine, ok := m.Get(terminalID)
	if !ok {
		return ErrNotFound
	}
	return machine.Transition(to, reason)
}

// Remove stops tracking a terminal.
func (m *Manager) Remove(terminalID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.machines[terminalID]; !ok {
		return false
	}
	delete(m.machines, terminalID)
	return true
}

// InState returns the ids of every terminal currently in s, sorted.
func (m *Manager) InState(s State) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, machine := range m.machines {
		if machine.State() == s {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns the current state of every tracked terminal.
func (m *Manager) Snapshot() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]State, len(m.machines))
	for id, machine := range m.machines {
		out[id] = machine.State()
	}
	return out
}

// Count returns the number of tracked terminals.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.machines)
}
