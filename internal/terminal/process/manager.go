package process

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termhost/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/termhost/internal/logging"
	"github.com/GriffinCanCode/termhost/internal/shared/apperrors"
	"github.com/GriffinCanCode/termhost/internal/shared/clock"
)

// Defaults for Options.
const (
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = 500 * time.Millisecond
	DefaultRedrawDelay   = 50 * time.Millisecond
	DefaultPollInterval  = 50 * time.Millisecond
	DefaultMaxWriteBytes = 1 << 20
)

// Options configures a Manager.
type Options struct {
	RetryDelay    time.Duration
	RedrawDelay   time.Duration
	PollInterval  time.Duration
	MaxWriteBytes int
	Clock         clock.Clock
	Logger        *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.RedrawDelay <= 0 {
		o.RedrawDelay = DefaultRedrawDelay
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxWriteBytes <= 0 {
		o.MaxWriteBytes = DefaultMaxWriteBytes
	}
	o.Clock = clock.OrReal(o.Clock)
	return o
}

// Manager guards the process handles of one terminal.
type Manager struct {
	terminalID string
	opts       Options
	logger     *zap.Logger

	mu        sync.Mutex
	primary   Process
	secondary Process
	killed    bool
	redraw    clock.Timer
}

// NewManager creates a manager with no process attached.
func NewManager(terminalID string, opts Options) *Manager {
	return &Manager{
		terminalID: terminalID,
		opts:       opts.withDefaults(),
		logger:     logging.ForTerminal(logging.Component(opts.Logger, "process"), terminalID),
	}
}

// Attach sets the primary process handle and clears the killed flag. When
// p implements Reopener a secondary handle is opened for AttemptRecovery.
func (m *Manager) Attach(p Process) {
	secondary := m.reopen(p)
	m.mu.Lock()
	m.primary = p
	m.secondary = secondary
	m.killed = false
	m.mu.Unlock()
}

func (m *Manager) reopen(p Process) Process {
	r, ok := p.(Reopener)
	if !ok {
		return nil
	}
	h, err := r.Reopen()
	if err != nil {
		m.logger.Debug("no secondary process handle", zap.Error(err))
		return nil
	}
	return h
}

// SetSecondary registers a fallback handle used by AttemptRecovery.
func (m *Manager) SetSecondary(p Process) {
	m.mu.Lock()
	m.secondary = p
	m.mu.Unlock()
}

// Pid returns the primary process id, or 0 when none is attached.
func (m *Manager) Pid() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.primary == nil {
		return 0
	}
	return m.primary.Pid()
}

// IsAlive reports whether the primary handle has a positive pid and has not
// been killed.
func (m *Manager) IsAlive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aliveLocked()
}

func (m *Manager) aliveLocked() bool {
	return m.primary != nil && !m.killed && m.primary.Pid() > 0
}

func (m *Manager) handle() (Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.primary == nil {
		return nil, ErrNotReady
	}
	if !m.aliveLocked() {
		return nil, ErrProcessInvalid
	}
	return m.primary, nil
}

// Write sends data to the process. Native failures are returned as
// transient I/O errors.
func (m *Manager) Write(data []byte) error {
	if len(data) > m.opts.MaxWriteBytes {
		return ErrDataTooLarge
	}
	p, err := m.handle()
	if err != nil {
		return err
	}
	if _, err := p.Write(data); err != nil {
		return apperrors.New(apperrors.KindTransientIO, "process write", err)
	}
	return nil
}

// Resize validates the dimensions, resizes the pty and schedules a redraw.
func (m *Manager) Resize(cols, rows int) error {
	if err := ValidateDimensions(cols, rows); err != nil {
		return err
	}
	p, err := m.handle()
	if err != nil {
		return err
	}
	if err := p.Resize(cols, rows); err != nil {
		return apperrors.New(apperrors.KindTransientIO, "process resize", err)
	}

	m.mu.Lock()
	if m.redraw != nil {
		m.redraw.Stop()
	}
	m.redraw = m.opts.Clock.AfterFunc(m.opts.RedrawDelay, func() { m.sendRedraw(p) })
	m.mu.Unlock()
	return nil
}

func (m *Manager) sendRedraw(p Process) {
	m.mu.Lock()
	stale := m.killed || m.primary != p
	m.redraw = nil
	m.mu.Unlock()
	if stale {
		return
	}
	if err := p.Redraw(); err != nil {
		m.logger.Debug("redraw signal failed", zap.Error(err))
	}
}

// Kill terminates the primary process and marks the handle killed.
func (m *Manager) Kill() error {
	m.mu.Lock()
	p := m.primary
	if m.redraw != nil {
		m.redraw.Stop()
		m.redraw = nil
	}
	if p == nil || m.killed {
		m.killed = true
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := p.Kill(); err != nil {
		return apperrors.New(apperrors.KindTransientIO, "process kill", err)
	}

	m.mu.Lock()
	m.killed = true
	m.mu.Unlock()
	m.logger.Debug("process killed", zap.Int("pid", p.Pid()))
	return nil
}

// MarkExited flags the handle as dead after the child exits on its own.
func (m *Manager) MarkExited() {
	m.mu.Lock()
	m.killed = true
	m.mu.Unlock()
}

// RetryWrite attempts Write up to maxRetries times. Between attempts it
// waits the retry delay, then polls for the handle to become ready for at
// most the same duration. A maxRetries below 1 uses DefaultMaxRetries.
func (m *Manager) RetryWrite(ctx context.Context, data []byte, maxRetries int) error {
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	policy := resilience.Fixed(m.opts.RetryDelay, maxRetries)

	var last error
	for attempt := 1; policy.Allows(attempt); attempt++ {
		if attempt > 1 {
			if err := clock.Sleep(ctx, m.opts.Clock, policy.Delay(attempt)); err != nil {
				return err
			}
			if err := m.waitReady(ctx, policy.Delay(attempt)); err != nil {
				return err
			}
		}

		last = m.Write(data)
		if last == nil {
			if attempt > 1 {
				m.logger.Info("write succeeded after retry", zap.Int("attempt", attempt))
			}
			return nil
		}
		if apperrors.Is(last, apperrors.KindValidation) {
			return last
		}
		m.logger.Warn("write attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxRetries),
			zap.Error(last),
		)
	}
	return &RetryError{Attempts: maxRetries, Last: last}
}

// waitReady polls until the handle is alive or timeout elapses. It returns
// nil on timeout so the caller's next attempt reports the real failure.
func (m *Manager) waitReady(ctx context.Context, timeout time.Duration) error {
	deadline := m.opts.Clock.Now().Add(timeout)
	for !m.IsAlive() {
		remaining := deadline.Sub(m.opts.Clock.Now())
		if remaining <= 0 {
			return nil
		}
		step := m.opts.PollInterval
		if step > remaining {
			step = remaining
		}
		if err := clock.Sleep(ctx, m.opts.Clock, step); err != nil {
			return err
		}
	}
	return nil
}

// AttemptRecovery tests the secondary handle with an empty write. On
// success the secondary becomes primary, the stale handle is dropped and a
// fresh secondary is opened from the new primary when it supports Reopener.
func (m *Manager) AttemptRecovery() error {
	m.mu.Lock()
	secondary := m.secondary
	primary := m.primary
	m.mu.Unlock()

	if secondary == nil || secondary == primary {
		return ErrNoSecondary
	}
	if secondary.Pid() <= 0 {
		return ErrProcessInvalid
	}
	if _, err := secondary.Write(nil); err != nil {
		return apperrors.New(apperrors.KindTransientIO, "process recovery", fmt.Errorf("secondary handle: %w", err))
	}

	next := m.reopen(secondary)
	m.mu.Lock()
	m.primary = secondary
	m.secondary = next
	m.killed = false
	m.mu.Unlock()

	m.logger.Info("recovered using secondary process handle", zap.Int("pid", secondary.Pid()))
	return nil
}
