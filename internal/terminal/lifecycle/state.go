// Package lifecycle enforces the per-terminal lifecycle state machine.
//
// A terminal moves Creating → Initializing → Ready/Active and ends in
// Closing → Closed. Error is reachable from every live state and can only
// lead to teardown. Transitions outside the table are rejected and leave
// the machine unchanged.
package lifecycle

// State is a lifecycle phase.
type State string

const (
	Creating     State = "creating"
	Initializing State = "initializing"
	Ready        State = "ready"
	Active       State = "active"
	Closing      State = "closing"
	Closed       State = "closed"
	Error        State = "error"
)

// States lists every state in declaration order.
var States = []State{Creating, Initializing, Ready, Active, Closing, Closed, Error}

var transitions = map[State][]State{
	Creating:     {Initializing, Error},
	Initializing: {Ready, Active, Error},
	Ready:        {Active, Closing, Error},
	Active:       {Ready, Closing, Error},
	Closing:      {Closed, Error},
	Closed:       {},
	Error:        {Closing, Closed},
}

// ValidNext returns the states reachable from s. The result is a copy.
func ValidNext(s State) []State {
	next := transitions[s]
	out := make([]State, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from → to is in the table.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// IsLive reports whether a terminal in s can still accept input.
func (s State) IsLive() bool {
	return s == Ready || s == Active
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s State) String() string {
	return string(s)
}
