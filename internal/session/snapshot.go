package session

import (
	"fmt"
	"time"
)

const (
	// SchemaVersion is the snapshot layout written by this package.
	SchemaVersion = 1
	// DefaultExpiry is how long a snapshot remains restorable.
	DefaultExpiry = 7 * 24 * time.Hour
)

// TerminalSnapshot is one saved terminal.
type TerminalSnapshot struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Number     int    `json:"number"`
	Cwd        string `json:"cwd"`
	Shell      string `json:"shell"`
	Cols       int    `json:"cols,omitempty"`
	Rows       int    `json:"rows,omitempty"`
	Scrollback string `json:"scrollback,omitempty"`
}

// Snapshot is a saved session.
type Snapshot struct {
	SchemaVersion    int                `json:"schemaVersion"`
	Timestamp        time.Time          `json:"timestamp"`
	ActiveTerminalID string             `json:"activeTerminalId,omitempty"`
	Terminals        []TerminalSnapshot `json:"terminals"`
}

// Validate checks the snapshot's structure.
func (s *Snapshot) Validate() error {
	if s.SchemaVersion != SchemaVersion {
		return &RestoreError{Reason: fmt.Sprintf("unsupported schema version %d", s.SchemaVersion)}
	}
	if s.Timestamp.IsZero() {
		return &RestoreError{Reason: "missing timestamp"}
	}
	seen := make(map[string]struct{}, len(s.Terminals))
	for i, t := range s.Terminals {
		if t.ID == "" {
			return &RestoreError{Reason: fmt.Sprintf("terminal %d has no id", i)}
		}
		if _, dup := seen[t.ID]; dup {
			return &RestoreError{Reason: fmt.Sprintf("duplicate terminal id %s", t.ID)}
		}
		seen[t.ID] = struct{}{}
	}
	if s.ActiveTerminalID != "" {
		if _, ok := seen[s.ActiveTerminalID]; !ok {
			return &RestoreError{Reason: fmt.Sprintf("active terminal %s not in snapshot", s.ActiveTerminalID)}
		}
	}
	return nil
}

// Expired reports whether the snapshot is older than expiry at now.
func (s *Snapshot) Expired(now time.Time, expiry time.Duration) bool {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return now.Sub(s.Timestamp) > expiry
}
