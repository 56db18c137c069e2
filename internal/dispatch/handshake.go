package dispatch

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termhost/internal/logging"
	"github.com/GriffinCanCode/termhost/internal/shared/clock"
)

// handshake holds a terminal's output until the surface acknowledges it.
type handshake struct {
	terminalID string
	created    time.Time
	announced  bool
	attempts   int
	acked      bool
	failed     bool
	timer      clock.Timer
	pending    []string
}

func (h *handshake) stop() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// HandshakeStatus describes a terminal's creation handshake.
type HandshakeStatus struct {
	TerminalID   string `json:"terminalId"`
	Attempts     int    `json:"attempts"`
	Acked        bool   `json:"acked"`
	Failed       bool   `json:"failed"`
	PendingBytes int    `json:"pendingBytes"`
}

// Handshake returns the handshake state of a terminal.
func (d *Dispatcher) Handshake(terminalID string) (HandshakeStatus, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	hs, ok := d.handshakes[terminalID]
	if !ok {
		return HandshakeStatus{}, false
	}
	n := 0
	for _, p := range hs.pending {
		n += len(p)
	}
	return HandshakeStatus{
		TerminalID:   terminalID,
		Attempts:     hs.attempts,
		Acked:        hs.acked,
		Failed:       hs.failed,
		PendingBytes: n,
	}, true
}

// holdLocked replaces any handshake for terminalID with a fresh one that
// holds output but has not been announced.
func (d *Dispatcher) holdLocked(terminalID string) *handshake {
	if old, ok := d.handshakes[terminalID]; ok {
		old.stop()
	}
	hs := &handshake{terminalID: terminalID, created: d.clock.Now()}
	d.handshakes[terminalID] = hs
	return hs
}

// beginHandshakeLocked starts the announcement schedule for a terminal.
// Output held since registration is kept.
func (d *Dispatcher) beginHandshakeLocked(terminalID string) {
	hs, ok := d.handshakes[terminalID]
	if !ok || hs.announced {
		hs = d.holdLocked(terminalID)
	}
	hs.announced = true
	hs.timer = d.clock.AfterFunc(d.opts.Handshake.Delay(1), func() { d.handshakeTick(hs) })
}

// handshakeTick re-announces initialization. Each announcement schedules
// the next after the policy's delay; one delay after the last announcement
// the handshake is declared failed.
func (d *Dispatcher) handshakeTick(hs *handshake) {
	policy := d.opts.Handshake

	d.mu.Lock()
	if d.closed || d.handshakes[hs.terminalID] != hs || hs.acked {
		d.mu.Unlock()
		return
	}
	hs.timer = nil

	if !policy.Allows(hs.attempts + 1) {
		hs.failed = true
		attempts := hs.attempts
		d.mu.Unlock()

		d.metrics.IncHandshakeFailures()
		logging.ForTerminal(d.logger, hs.terminalID).Warn("creation handshake failed",
			zap.Int("attempts", attempts),
		)
		return
	}

	hs.attempts++
	attempt := hs.attempts
	next := policy.Delay(attempt + 1)
	hs.timer = d.clock.AfterFunc(next, func() { d.handshakeTick(hs) })
	err := d.enqueueLocked(Message{
		Command:    CmdInitializationComplete,
		TerminalID: hs.terminalID,
		Attempt:    attempt,
	}, PriorityHigh)
	d.mu.Unlock()

	if err == nil {
		d.kick()
	}
}

// acknowledge completes a handshake and releases held output as a single
// message. A late ack after failure is still honoured.
func (d *Dispatcher) acknowledge(terminalID string) {
	d.mu.Lock()
	hs, ok := d.handshakes[terminalID]
	if !ok || hs.acked {
		d.mu.Unlock()
		if !ok {
			logging.ForTerminal(d.logger, terminalID).Debug("startOutput for unknown terminal")
		}
		return
	}
	hs.acked = true
	hs.stop()
	late := hs.failed
	hs.failed = false
	latency := d.clock.Now().Sub(hs.created)
	held := len(hs.pending)
	var err error
	if held > 0 {
		data := strings.Join(hs.pending, "")
		hs.pending = nil
		err = d.enqueueLocked(Message{Command: CmdOutput, TerminalID: terminalID, Data: data}, PriorityNormal)
	}
	d.mu.Unlock()

	d.metrics.ObserveHandshake(latency)
	logger := logging.ForTerminal(d.logger, terminalID)
	if late {
		logger.Info("late handshake acknowledgement accepted", zap.Duration("after", latency))
	} else {
		logger.Debug("handshake complete", zap.Duration("after", latency), zap.Int("held_chunks", held))
	}
	if err != nil {
		logger.Warn("held output rejected", zap.Error(err))
	}
	d.kick()
}
