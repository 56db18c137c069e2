package terminal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termhost/internal/logging"
	"github.com/GriffinCanCode/termhost/internal/shared/apperrors"
	"github.com/GriffinCanCode/termhost/internal/shared/clock"
	"github.com/GriffinCanCode/termhost/internal/shared/id"
	"github.com/GriffinCanCode/termhost/internal/terminal/buffer"
	"github.com/GriffinCanCode/termhost/internal/terminal/lifecycle"
	"github.com/GriffinCanCode/termhost/internal/terminal/process"
	"github.com/GriffinCanCode/termhost/internal/terminal/scrollback"
	"github.com/GriffinCanCode/termhost/internal/terminal/state"
)

// Options configures a Service.
type Options struct {
	MaxTerminals    int
	Shell           string
	Cwd             string
	Cols            int
	Rows            int
	ScrollbackLines int

	Spawner        process.Spawner
	ProcessOptions process.Options
	Buffer         buffer.Config

	Clock   clock.Clock
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

type entry struct {
	machine *lifecycle.Machine
	proc    *process.Manager
	scroll  *scrollback.Buffer
	cols    int
	rows    int
}

// Service coordinates every terminal.
type Service struct {
	opts     Options
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	spawner  process.Spawner
	machines *lifecycle.Manager
	registry *state.Service
	buffers  *buffer.Service
	detector *buffer.AgentDetector

	mu      sync.RWMutex
	entries map[string]*entry
	surface Surface
	shell   string
}

// NewService creates a coordinator with its own lifecycle manager, state
// registry and buffer service.
func NewService(opts Options) *Service {
	if opts.Cols <= 0 {
		opts.Cols = 80
	}
	if opts.Rows <= 0 {
		opts.Rows = 24
	}
	if opts.ScrollbackLines <= 0 {
		opts.ScrollbackLines = scrollback.DefaultMaxLines
	}
	if opts.Spawner == nil {
		opts.Spawner = process.NewPTYSpawner(opts.Logger)
	}
	c := clock.OrReal(opts.Clock)
	logger := logging.Component(opts.Logger, "terminal")

	s := &Service{
		opts:    opts,
		clock:   c,
		logger:  logger,
		metrics: opts.Metrics,
		spawner: opts.Spawner,
		machines: lifecycle.NewManager(lifecycle.Options{
			Clock:  c,
			Logger: opts.Logger,
		}),
		registry: state.NewService(state.Options{
			MaxTerminals: opts.MaxTerminals,
			Clock:        c,
			Logger:       opts.Logger,
		}),
		buffers: buffer.NewService(buffer.Options{
			Config:  opts.Buffer,
			Clock:   c,
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
		}),
		entries: make(map[string]*entry),
		surface: nopSurface{},
		shell:   opts.Shell,
	}
	s.detector = buffer.NewAgentDetector(s.buffers, c, 0, nil)

	s.machines.AddGlobalListener(func(t lifecycle.Transition) {
		s.metrics.RecordTransition(string(t.To), t.Forced)
	})
	s.buffers.OnFlush(func(f buffer.Flush) {
		s.currentSurface().Output(f.TerminalID, f.Data)
	})
	s.registry.Subscribe(s.onStateEvent)
	return s
}

// SetSurface routes notifications to surface. A nil surface discards them.
func (s *Service) SetSurface(surface Surface) {
	if surface == nil {
		surface = nopSurface{}
	}
	s.mu.Lock()
	s.surface = surface
	s.mu.Unlock()
}

func (s *Service) currentSurface() Surface {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.surface
}

// State returns the registry.
func (s *Service) State() *state.Service { return s.registry }

// Buffers returns the output buffer service.
func (s *Service) Buffers() *buffer.Service { return s.buffers }

// Lifecycle returns the lifecycle manager.
func (s *Service) Lifecycle() *lifecycle.Manager { return s.machines }

// SetDefaultShell changes the shell used when CreateOptions.Shell is empty.
func (s *Service) SetDefaultShell(shell string) {
	s.mu.Lock()
	s.shell = shell
	s.mu.Unlock()
}

func (s *Service) defaultShell() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.shell != "" {
		return s.shell
	}
	return process.DefaultShell()
}

// CreateTerminal registers, spawns and announces a terminal. The first
// terminal, or one created with Focus, becomes active.
func (s *Service) CreateTerminal(ctx context.Context, opts CreateOptions) (state.Terminal, error) {
	termID := opts.ID
	if termID == "" {
		termID = string(id.NewTerminalID())
	} else if err := id.ValidateExternal(termID); err != nil {
		return state.Terminal{}, apperrors.New(apperrors.KindValidation, "create terminal", err)
	}
	if s.registry.Count() >= s.registry.MaxTerminals() {
		return state.Terminal{}, ErrLimitReached
	}

	cols, rows := opts.Cols, opts.Rows
	if cols == 0 {
		cols = s.opts.Cols
	}
	if rows == 0 {
		rows = s.opts.Rows
	}
	if err := process.ValidateDimensions(cols, rows); err != nil {
		return state.Terminal{}, err
	}
	shell := opts.Shell
	if shell == "" {
		shell = s.defaultShell()
	}
	cwd := opts.Cwd
	if cwd == "" {
		cwd = s.opts.Cwd
	}
	if cwd == "" {
		cwd = process.DefaultCwd()
	}

	logger := logging.ForTerminal(s.logger, termID)

	machine, err := s.machines.Create(termID)
	if err != nil {
		return state.Terminal{}, fmt.Errorf("%w: %s", state.ErrDuplicateTerminal, termID)
	}
	term, err := s.registry.RegisterTerminal(state.Registration{
		ID:     termID,
		Name:   opts.Name,
		Number: opts.Number,
		Cwd:    cwd,
		Shell:  shell,
	})
	if err != nil {
		s.machines.Remove(termID)
		if errors.Is(err, state.ErrPoolFull) {
			return state.Terminal{}, ErrLimitReached
		}
		return state.Terminal{}, err
	}
	if err := machine.Transition(lifecycle.Initializing, "registered"); err != nil {
		s.discard(termID)
		return state.Terminal{}, err
	}

	procOpts := s.opts.ProcessOptions
	if procOpts.Clock == nil {
		procOpts.Clock = s.clock
	}
	procOpts.Logger = s.opts.Logger
	e := &entry{
		machine: machine,
		proc:    process.NewManager(termID, procOpts),
		scroll:  scrollback.New(s.opts.ScrollbackLines, s.clock),
		cols:    cols,
		rows:    rows,
	}
	s.mu.Lock()
	s.entries[termID] = e
	s.mu.Unlock()

	surface := s.currentSurface()
	surface.TerminalRegistered(termID)

	p, err := s.spawner.Spawn(ctx, process.SpawnOptions{
		Shell: shell,
		Cwd:   cwd,
		Cols:  cols,
		Rows:  rows,
		Env:   map[string]string{"TERMHOST_TERMINAL_ID": termID},
	}, process.Callbacks{
		OnData: func(data []byte) { s.onData(termID, data) },
		OnExit: func(code int) { s.onExit(termID, code) },
	})
	if err != nil {
		machine.Transition(lifecycle.Error, "spawn failed")
		failed := state.ProcessFailed
		s.registry.UpdateLifecycleState(termID, state.LifecyclePatch{ProcessState: &failed})
		s.buffers.ClearTerminalBuffer(termID)
		s.discard(termID)
		surface.TerminalRemoved(termID)
		logger.Error("failed to spawn shell", zap.String("shell", shell), zap.Error(err))
		return state.Terminal{}, fmt.Errorf("spawn %s: %w", shell, err)
	}

	e.proc.Attach(p)
	pid := p.Pid()
	running := state.ProcessRunning
	s.registry.UpdateMetadata(termID, state.MetadataPatch{Pid: &pid})
	s.registry.UpdateLifecycleState(termID, state.LifecyclePatch{ProcessState: &running})

	if err := machine.Transition(lifecycle.Ready, "process started"); err != nil {
		// Exited before we got here; onExit already tore it down.
		return state.Terminal{}, err
	}

	term, _ = s.registry.GetTerminal(termID)
	s.metrics.IncTerminalsCreated()
	s.metrics.SetTerminalsActive(s.registry.Count())
	logger.Info("terminal created",
		zap.Int("number", term.Number),
		zap.Int("pid", pid),
		zap.String("shell", shell),
	)

	s.currentSurface().TerminalCreated(term, SurfaceConfig{
		Name:       term.Name,
		Shell:      shell,
		Cwd:        cwd,
		Cols:       cols,
		Rows:       rows,
		Scrollback: s.opts.ScrollbackLines,
		Restoring:  opts.Restoring,
	})

	if opts.Focus || s.registry.ActiveTerminalID() == "" {
		if err := s.FocusTerminal(termID); err != nil {
			logger.Warn("failed to focus new terminal", zap.Error(err))
		}
	}
	term, _ = s.registry.GetTerminal(termID)
	return term, nil
}

// discard drops every trace of a terminal that never became live.
func (s *Service) discard(termID string) {
	s.mu.Lock()
	delete(s.entries, termID)
	s.mu.Unlock()
	s.registry.UnregisterTerminal(termID)
	s.machines.Remove(termID)
}

func (s *Service) lookup(termID string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[termID]
	return e, ok
}

func (s *Service) onData(termID string, data []byte) {
	e, ok := s.lookup(termID)
	if !ok {
		return
	}
	chunk := string(data)
	e.scroll.AppendOutput(chunk)
	s.detector.Observe(chunk)
	if err := s.buffers.BufferData(termID, chunk); err != nil {
		s.logger.Debug("dropped output", zap.String(logging.TerminalIDKey, termID), zap.Error(err))
	}
}

func (s *Service) onExit(termID string, code int) {
	e, ok := s.lookup(termID)
	if !ok {
		return
	}
	e.proc.MarkExited()
	// Deletion in progress owns the teardown.
	if e.machine.Is(lifecycle.Closing) || e.machine.Is(lifecycle.Closed) {
		return
	}

	exited := state.ProcessExited
	s.registry.UpdateLifecycleState(termID, state.LifecyclePatch{ProcessState: &exited, ExitCode: &code})
	logging.ForTerminal(s.logger, termID).Info("process exited", zap.Int("code", code))
	s.currentSurface().TerminalExited(termID, code)

	if err := e.machine.Transition(lifecycle.Closing, "process exited"); err != nil {
		e.machine.ForceTransition(lifecycle.Closing, "process exited")
	}
	s.finishClose(termID, e)
}

// BeginClose moves a terminal to Closing and returns the state to roll
// back to if the close is abandoned.
func (s *Service) BeginClose(termID string) (lifecycle.State, error) {
	e, ok := s.lookup(termID)
	if !ok {
		return "", ErrNotFound
	}
	prev := e.machine.State()
	if prev == lifecycle.Closing {
		return prev, nil
	}
	if err := e.machine.Transition(lifecycle.Closing, "close requested"); err != nil {
		return prev, err
	}
	return prev, nil
}

// RollbackClose returns a terminal from Closing to the given state.
func (s *Service) RollbackClose(termID string, to lifecycle.State) {
	e, ok := s.lookup(termID)
	if !ok || !e.machine.Is(lifecycle.Closing) || to == lifecycle.Closing || to == "" {
		return
	}
	e.machine.ForceTransition(to, "close rolled back")
}

// DeleteTerminal closes a terminal: pending output is flushed, the process
// is killed and the terminal is unregistered. If the kill fails the
// lifecycle is rolled back and the terminal stays registered.
func (s *Service) DeleteTerminal(ctx context.Context, termID string) error {
	prev, err := s.BeginClose(termID)
	if err != nil {
		return err
	}
	e, ok := s.lookup(termID)
	if !ok {
		return ErrNotFound
	}

	s.buffers.ClearTerminalBuffer(termID)
	if err := e.proc.Kill(); err != nil {
		s.RollbackClose(termID, prev)
		logging.ForTerminal(s.logger, termID).Error("failed to kill process", zap.Error(err))
		return fmt.Errorf("delete terminal: %w", err)
	}
	s.finishClose(termID, e)
	return nil
}

func (s *Service) finishClose(termID string, e *entry) {
	s.buffers.ClearTerminalBuffer(termID)

	s.mu.Lock()
	if s.entries[termID] != e {
		s.mu.Unlock()
		return
	}
	delete(s.entries, termID)
	s.mu.Unlock()

	s.registry.UnregisterTerminal(termID)
	if err := e.machine.Transition(lifecycle.Closed, "closed"); err != nil {
		e.machine.ForceTransition(lifecycle.Closed, "closed")
	}
	s.machines.Remove(termID)
	s.metrics.SetTerminalsActive(s.registry.Count())

	logging.ForTerminal(s.logger, termID).Info("terminal removed")
	s.currentSurface().TerminalRemoved(termID)
}

// WriteInput sends user input to a terminal. Failed writes are retried,
// then recovery through a secondary handle is attempted; if both fail the
// terminal moves to Error.
func (s *Service) WriteInput(ctx context.Context, termID, data string) error {
	e, ok := s.lookup(termID)
	if !ok {
		return ErrNotFound
	}
	if !e.machine.State().IsLive() {
		return ErrNotLive
	}
	s.markInteraction(termID)

	err := e.proc.Write([]byte(data))
	if err == nil {
		return nil
	}
	if apperrors.Is(err, apperrors.KindValidation) {
		return err
	}

	logger := logging.ForTerminal(s.logger, termID)
	logger.Warn("write failed, retrying", zap.Error(err))
	if err = e.proc.RetryWrite(ctx, []byte(data), process.DefaultMaxRetries); err == nil {
		s.metrics.RecordWriteRetry("retried")
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if rerr := e.proc.AttemptRecovery(); rerr == nil {
		if werr := e.proc.Write([]byte(data)); werr == nil {
			s.metrics.RecordWriteRetry("recovered")
			return nil
		}
	}

	s.metrics.RecordWriteRetry("failed")
	logger.Error("terminal unrecoverable", zap.Error(err))
	if terr := e.machine.Transition(lifecycle.Error, "write failed"); terr != nil {
		logger.Debug("error transition rejected", zap.Error(terr))
	}
	failed := state.ProcessFailed
	s.registry.UpdateLifecycleState(termID, state.LifecyclePatch{ProcessState: &failed})
	e.scroll.AppendError(err.Error())
	s.currentSurface().Warn(fmt.Sprintf("Terminal input failed: %v", err))
	return err
}

func (s *Service) markInteraction(termID string) {
	t, ok := s.registry.GetTerminal(termID)
	if !ok || t.Lifecycle.HasInteraction {
		return
	}
	yes := true
	s.registry.UpdateLifecycleState(termID, state.LifecyclePatch{HasInteraction: &yes})
}

// ResizeTerminal resizes a terminal's pty.
func (s *Service) ResizeTerminal(termID string, cols, rows int) error {
	e, ok := s.lookup(termID)
	if !ok {
		return ErrNotFound
	}
	if err := e.proc.Resize(cols, rows); err != nil {
		return err
	}
	s.mu.Lock()
	e.cols, e.rows = cols, rows
	s.mu.Unlock()
	return nil
}

// FocusTerminal makes a terminal the active one.
func (s *Service) FocusTerminal(termID string) error {
	if _, ok := s.lookup(termID); !ok {
		return ErrNotFound
	}
	return s.registry.SetActiveTerminal(termID)
}

// onStateEvent keeps lifecycle phases and the surface in step with the
// active terminal.
func (s *Service) onStateEvent(ev state.Event) {
	switch ev.Type {
	case state.EventDeactivated:
		if e, ok := s.lookup(ev.TerminalID); ok && e.machine.Is(lifecycle.Active) {
			e.machine.Transition(lifecycle.Ready, "deactivated")
		}
	case state.EventActivated:
		if e, ok := s.lookup(ev.TerminalID); ok && e.machine.Is(lifecycle.Ready) {
			e.machine.Transition(lifecycle.Active, "activated")
		}
		s.currentSurface().ActiveChanged(ev.TerminalID)
	}
}

// Terminals returns every terminal in creation order.
func (s *Service) Terminals() []state.Terminal {
	return s.registry.Terminals()
}

// ActiveTerminalID returns the active terminal id or "".
func (s *Service) ActiveTerminalID() string {
	return s.registry.ActiveTerminalID()
}

// Scrollback returns the backend's plain-text scrollback for a terminal.
func (s *Service) Scrollback(termID string) (string, bool) {
	e, ok := s.lookup(termID)
	if !ok {
		return "", false
	}
	return e.scroll.PlainText(), true
}

// Dimensions returns the last applied size of a terminal.
func (s *Service) Dimensions(termID string) (cols, rows int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[termID]
	if !ok {
		return 0, 0, false
	}
	return e.cols, e.rows, true
}

// Diagnostics returns registry, lifecycle and buffer state.
func (s *Service) Diagnostics() Diagnostics {
	return Diagnostics{
		Terminals:   s.registry.Terminals(),
		Lifecycle:   s.machines.Snapshot(),
		Health:      s.registry.HealthCheck(),
		AgentActive: s.buffers.AgentActive(),
		Metrics:     s.metrics.Snapshot(),
	}
}

// Shutdown kills every terminal and stops background timers.
func (s *Service) Shutdown(ctx context.Context) {
	for _, t := range s.registry.Terminals() {
		if err := s.DeleteTerminal(ctx, t.ID); err != nil {
			s.logger.Warn("shutdown: delete failed", zap.String(logging.TerminalIDKey, t.ID), zap.Error(err))
		}
	}
	s.detector.Stop()
	s.buffers.Dispose()
}
