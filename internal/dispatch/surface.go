package dispatch

import (
	"github.com/GriffinCanCode/termhost/internal/logging"
	"github.com/GriffinCanCode/termhost/internal/terminal"
	"github.com/GriffinCanCode/termhost/internal/terminal/state"

	"go.uber.org/zap"
)

var _ terminal.Surface = (*Dispatcher)(nil)

// TerminalRegistered starts holding a terminal's output. The process has
// not been spawned yet.
func (d *Dispatcher) TerminalRegistered(terminalID string) {
	d.mu.Lock()
	d.holdLocked(terminalID)
	d.mu.Unlock()
}

// TerminalCreated announces a terminal and starts its handshake.
func (d *Dispatcher) TerminalCreated(t state.Terminal, cfg terminal.SurfaceConfig) {
	d.mu.Lock()
	d.enqueueLocked(terminalCreated(t, cfg), PriorityHigh)
	d.beginHandshakeLocked(t.ID)
	d.mu.Unlock()
	d.kick()
}

// Output forwards coalesced terminal output. Until the terminal's handshake
// is acknowledged the data is held, never dropped. Output for a terminal
// the dispatcher was never told about is discarded.
func (d *Dispatcher) Output(terminalID, data string) {
	d.mu.Lock()
	hs, ok := d.handshakes[terminalID]
	if !ok {
		d.mu.Unlock()
		d.metrics.IncDropped()
		logging.ForTerminal(d.logger, terminalID).Debug("dropping output for unknown terminal", zap.Int("bytes", len(data)))
		return
	}
	if !hs.acked {
		hs.pending = append(hs.pending, data)
		d.mu.Unlock()
		return
	}
	err := d.enqueueLocked(Message{Command: CmdOutput, TerminalID: terminalID, Data: data}, PriorityNormal)
	d.mu.Unlock()
	if err != nil {
		return
	}
	d.kick()
}

// ActiveChanged tells the surface which terminal is active.
func (d *Dispatcher) ActiveChanged(terminalID string) {
	d.Send(Message{Command: CmdSetActiveTerminal, TerminalID: terminalID}, PriorityHigh)
}

// TerminalExited reports a process exit.
func (d *Dispatcher) TerminalExited(terminalID string, code int) {
	d.Send(Message{Command: CmdTerminalExited, TerminalID: terminalID, ExitCode: &code}, PriorityHigh)
}

// TerminalRemoved cancels the terminal's handshake, purges its queued
// messages and tells the surface to dispose of it. A terminal that was
// never announced is dropped silently.
func (d *Dispatcher) TerminalRemoved(terminalID string) {
	d.mu.Lock()
	announced := true
	if hs, ok := d.handshakes[terminalID]; ok {
		hs.stop()
		announced = hs.announced
		delete(d.handshakes, terminalID)
	}
	purged := d.queue.PurgeTerminal(terminalID)
	if announced {
		d.enqueueLocked(Message{Command: CmdTerminalRemoved, TerminalID: terminalID}, PriorityHigh)
	}
	d.mu.Unlock()

	if purged > 0 {
		logging.ForTerminal(d.logger, terminalID).Debug("purged queued messages", zap.Int("count", purged))
	}
	d.kick()
}

// Warn shows a user-visible warning.
func (d *Dispatcher) Warn(message string) {
	d.Send(Message{Command: CmdShowWarning, Message: message}, PriorityHigh)
}

// ReplayScrollback asks the surface to write saved scrollback into a
// terminal.
func (d *Dispatcher) ReplayScrollback(terminalID, content string) error {
	return d.Send(Message{Command: CmdRestoreScrollback, TerminalID: terminalID, ScrollbackContent: content}, PriorityHigh)
}

// RequestScrollback asks the surface for a serialized scrollback capture.
func (d *Dispatcher) RequestScrollback(terminalID string) error {
	return d.Send(Message{Command: CmdRequestScrollback, TerminalID: terminalID}, PriorityLow)
}
