package lifecycle

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termhost/internal/events"
	"github.com/GriffinCanCode/termhost/internal/logging"
	"github.com/GriffinCanCode/termhost/internal/shared/clock"
)

// DefaultHistoryCap bounds the per-machine transition history.
const DefaultHistoryCap = 100

// Transition records a single state change.
type Transition struct {
	TerminalID string    `json:"terminalId"`
	From       State     `json:"from"`
	To         State     `json:"to"`
	At         time.Time `json:"at"`
	Reason     string    `json:"reason,omitempty"`
	Forced     bool      `json:"forced,omitempty"`
}

// Listener observes transitions.
type Listener = events.Handler[Transition]

// Options configures a Machine.
type Options struct {
	HistoryCap int
	Clock      clock.Clock
	Logger     *zap.Logger
}

// Machine is the lifecycle state of one terminal.
type Machine struct {
	terminalID string
	clock      clock.Clock
	logger     *zap.Logger
	listeners  *events.Bus[Transition]

	mu      sync.RWMutex
	state   State
	history []Transition
	head    int
	size    int
}

// NewMachine creates a machine in the Creating state.
func NewMachine(terminalID string, opts Options) *Machine {
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = DefaultHistoryCap
	}
	logger := logging.ForTerminal(logging.Component(opts.Logger, "lifecycle"), terminalID)
	return &Machine{
		terminalID: terminalID,
		clock:      clock.OrReal(opts.Clock),
		logger:     logger,
		listeners:  events.NewBus[Transition]("lifecycle", logger),
		state:      Creating,
		history:    make([]Transition, opts.HistoryCap),
	}
}

// TerminalID returns the id of the terminal this machine tracks.
func (m *Machine) TerminalID() string {
	return m.terminalID
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Is reports whether the machine is currently in s.
func (m *Machine) Is(s State) bool {
	return m.State() == s
}

// CanTransition reports whether to is reachable from the current state.
func (m *Machine) CanTransition(to State) bool {
	return CanTransition(m.State(), to)
}

// Transition moves to the target state. On an invalid target it returns an
// InvalidTransitionError and leaves the state unchanged.
func (m *Machine) Transition(to State, reason string) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return &InvalidTransitionError{
			TerminalID: m.terminalID,
			From:       from,
			To:         to,
			Valid:      ValidNext(from),
		}
	}
	t := m.applyLocked(from, to, reason, false)
	m.mu.Unlock()

	m.notify(t)
	return nil
}

// ForceTransition moves to the target state without validation. It is used
// by recovery paths and records the transition as forced.
func (m *Machine) ForceTransition(to State, reason string) {
	m.mu.Lock()
	t := m.applyLocked(m.state, to, reason, true)
	m.mu.Unlock()

	m.logger.Warn("forced lifecycle transition",
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
		zap.String("reason", reason),
	)
	m.notify(t)
}

// OnTransition registers a listener and returns a function that removes it.
func (m *Machine) OnTransition(l Listener) func() {
	return m.listeners.Subscribe(l)
}

// History returns the recorded transitions, oldest first.
func (m *Machine) History() []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Transition, 0, m.size)
	start := (m.head - m.size + len(m.history)) % len(m.history)
	for i := 0; i < m.size; i++ {
		out = append(out, m.history[(start+i)%len(m.history)])
	}
	return out
}

// LastTransition returns the most recent transition, if any.
func (m *Machine) LastTransition() (Transition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.size == 0 {
		return Transition{}, false
	}
	return m.history[(m.head-1+len(m.history))%len(m.history)], true
}

func (m *Machine) applyLocked(from, to State, reason string, forced bool) Transition {
	t := Transition{
		TerminalID: m.terminalID,
		From:       from,
		To:         to,
		At:         m.clock.Now(),
		Reason:     reason,
		Forced:     forced,
	}
	m.history[m.head] = t
	m.head = (m.head + 1) % len(m.history)
	if m.size < len(m.history) {
		m.size++
	}
	m.state = to
	return t
}

func (m *Machine) notify(t Transition) {
	m.logger.Debug("lifecycle transition",
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
	)
	m.listeners.Publish(t)
}
