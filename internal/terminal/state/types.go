// Package state is the registry of live terminals.
//
// It owns terminal metadata, slot numbers and the single active terminal,
// and publishes an event for every change. Numbers are recycled: a new
// terminal takes the lowest free slot in 1..MaxTerminals.
package state

import "time"

// ProcessState is the state of the process behind a terminal.
type ProcessState string

const (
	ProcessUninitialized ProcessState = "uninitialized"
	ProcessRunning       ProcessState = "running"
	ProcessExited        ProcessState = "exited"
	ProcessFailed        ProcessState = "failed"
)

// LifecycleInfo tracks process-level facts about a terminal.
type LifecycleInfo struct {
	ProcessState   ProcessState `json:"processState"`
	HasInteraction bool         `json:"hasInteraction"`
	ExitCode       *int         `json:"exitCode,omitempty"`
}

// Terminal is the registry record for one terminal.
type Terminal struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Number       int           `json:"number"`
	Cwd          string        `json:"cwd"`
	Shell        string        `json:"shell"`
	Pid          int           `json:"pid"`
	IsActive     bool          `json:"isActive"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastActiveAt time.Time     `json:"lastActiveAt"`
	Lifecycle    LifecycleInfo `json:"lifecycle"`
}

func (t *Terminal) clone() *Terminal {
	if t == nil {
		return nil
	}
	c := *t
	if t.Lifecycle.ExitCode != nil {
		code := *t.Lifecycle.ExitCode
		c.Lifecycle.ExitCode = &code
	}
	return &c
}

// Registration describes a terminal to register. A zero Number takes the
// lowest free slot.
type Registration struct {
	ID     string
	Name   string
	Number int
	Cwd    string
	Shell  string
	Pid    int
}

// MetadataPatch is a partial update of identity fields. Nil fields are left
// unchanged.
type MetadataPatch struct {
	Name  *string
	Cwd   *string
	Shell *string
	Pid   *int
}

// LifecyclePatch is a partial update of lifecycle facts.
type LifecyclePatch struct {
	ProcessState   *ProcessState
	HasInteraction *bool
	ExitCode       *int
}

// EventType identifies a registry change.
type EventType string

const (
	EventRegistered   EventType = "registered"
	EventUnregistered EventType = "unregistered"
	EventActivated    EventType = "activated"
	EventDeactivated  EventType = "deactivated"
	EventUpdated      EventType = "updated"
)

// Event describes a registry change. Before is nil for registrations and
// After is nil for removals.
type Event struct {
	Type       EventType
	TerminalID string
	Before     *Terminal
	After      *Terminal
}
