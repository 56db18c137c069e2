package terminal

import (
	"github.com/GriffinCanCode/termhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termhost/internal/terminal/lifecycle"
	"github.com/GriffinCanCode/termhost/internal/terminal/state"
)

// CreateOptions describes a terminal to create. Zero values take the
// service defaults; an empty ID generates one.
type CreateOptions struct {
	ID        string
	Name      string
	Number    int
	Cwd       string
	Shell     string
	Cols      int
	Rows      int
	Focus     bool
	Restoring bool
}

// SurfaceConfig is the display configuration announced with a new terminal.
type SurfaceConfig struct {
	Name       string `json:"name"`
	Shell      string `json:"shell"`
	Cwd        string `json:"cwd"`
	Cols       int    `json:"cols"`
	Rows       int    `json:"rows"`
	Scrollback int    `json:"scrollback"`
	Restoring  bool   `json:"restoring,omitempty"`
}

// Surface receives notifications for the rendering surface.
//
// TerminalRegistered is called before the terminal's process is spawned,
// so the surface can hold output that arrives ahead of TerminalCreated.
type Surface interface {
	TerminalRegistered(terminalID string)
	TerminalCreated(t state.Terminal, cfg SurfaceConfig)
	Output(terminalID, data string)
	ActiveChanged(terminalID string)
	TerminalExited(terminalID string, code int)
	TerminalRemoved(terminalID string)
	Warn(message string)
}

type nopSurface struct{}

func (nopSurface) TerminalRegistered(string)                      {}
func (nopSurface) TerminalCreated(state.Terminal, SurfaceConfig) {}
func (nopSurface) Output(string, string)                         {}
func (nopSurface) ActiveChanged(string)                          {}
func (nopSurface) TerminalExited(string, int)                    {}
func (nopSurface) TerminalRemoved(string)                        {}
func (nopSurface) Warn(string)                                   {}

// Diagnostics is a point-in-time view of the backend.
type Diagnostics struct {
	Terminals   []state.Terminal           `json:"terminals"`
	Lifecycle   map[string]lifecycle.State `json:"lifecycle"`
	Health      state.HealthReport         `json:"health"`
	AgentActive bool                       `json:"agentActive"`
	Metrics     monitoring.Snapshot        `json:"metrics"`
}
