package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termhost/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/termhost/internal/logging"
	"github.com/GriffinCanCode/termhost/internal/shared/clock"
	"github.com/GriffinCanCode/termhost/internal/terminal"
	"github.com/GriffinCanCode/termhost/internal/terminal/state"
)

// Defaults for Options.
const (
	DefaultKey             = "session"
	DefaultReplayAttempts  = 10
	DefaultReplayInterval  = 200 * time.Millisecond
	DefaultAutosaveDelay   = 2 * time.Second
	DefaultAutosaveGrace   = time.Second
	DefaultCaptureWait     = 300 * time.Millisecond
	defaultAutosaveTimeout = 5 * time.Second
)

// Workspace is the terminal capability the manager saves and restores.
type Workspace interface {
	Terminals() []state.Terminal
	CreateTerminal(ctx context.Context, opts terminal.CreateOptions) (state.Terminal, error)
	FocusTerminal(terminalID string) error
	Scrollback(terminalID string) (string, bool)
	Dimensions(terminalID string) (cols, rows int, ok bool)
}

// Replayer moves scrollback between the backend and the surface.
type Replayer interface {
	ReplayScrollback(terminalID, content string) error
	RequestScrollback(terminalID string) error
}

// RestoreResult summarizes a restore.
type RestoreResult struct {
	RestoredCount    int    `json:"restoredCount"`
	SkippedCount     int    `json:"skippedCount"`
	ActiveTerminalID string `json:"activeTerminalId,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// Options configures a Manager.
type Options struct {
	Store             Store
	Key               string
	Enabled           bool
	ScrollbackEnabled bool
	Expiry            time.Duration
	Replay            resilience.Policy
	AutosaveDelay     time.Duration
	AutosaveGrace     time.Duration
	CaptureWait       time.Duration
	Clock             clock.Clock
	Logger            *zap.Logger
	Metrics           *monitoring.Metrics
}

// DefaultOptions returns enabled persistence over an in-memory store.
func DefaultOptions() Options {
	return Options{
		Store:             NewMemoryStore(),
		Enabled:           true,
		ScrollbackEnabled: true,
	}
}

func (o Options) withDefaults() Options {
	if o.Store == nil {
		o.Store = NewMemoryStore()
	}
	if o.Key == "" {
		o.Key = DefaultKey
	}
	if o.Expiry <= 0 {
		o.Expiry = DefaultExpiry
	}
	if o.Replay.MaxAttempts <= 0 {
		o.Replay = resilience.Fixed(DefaultReplayInterval, DefaultReplayAttempts)
	}
	if o.AutosaveDelay <= 0 {
		o.AutosaveDelay = DefaultAutosaveDelay
	}
	if o.AutosaveGrace < 0 {
		o.AutosaveGrace = 0
	} else if o.AutosaveGrace == 0 {
		o.AutosaveGrace = DefaultAutosaveGrace
	}
	if o.CaptureWait <= 0 {
		o.CaptureWait = DefaultCaptureWait
	}
	o.Clock = clock.OrReal(o.Clock)
	return o
}

type replay struct {
	terminalID string
	content    string
	attempts   int
	timer      clock.Timer
}

// Manager saves and restores sessions.
type Manager struct {
	opts    Options
	ws      Workspace
	clock   clock.Clock
	logger  *zap.Logger
	metrics *monitoring.Metrics

	saveMu sync.Mutex

	mu         sync.Mutex
	replayer   Replayer
	restoring  bool
	replays    map[string]*replay
	graceUntil time.Time
	cache      map[string]string
	autosave   clock.Timer
	closed     bool
}

// NewManager creates a manager over ws.
func NewManager(ws Workspace, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		opts:    opts,
		ws:      ws,
		clock:   opts.Clock,
		logger:  logging.Component(opts.Logger, "session"),
		metrics: opts.Metrics,
		replays: make(map[string]*replay),
		cache:   make(map[string]string),
	}
}

// SetReplayer installs the surface side of scrollback replay.
func (m *Manager) SetReplayer(r Replayer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replayer = r
}

// Enabled reports whether persistence is on.
func (m *Manager) Enabled() bool { return m.opts.Enabled }

// Restoring reports whether a restore or its scrollback replay is running.
func (m *Manager) Restoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restoring || len(m.replays) > 0
}

func (m *Manager) suppressedLocked() bool {
	return m.restoring || len(m.replays) > 0 || m.clock.Now().Before(m.graceUntil)
}

// CacheScrollback stores a serialized capture supplied by the surface.
func (m *Manager) CacheScrollback(terminalID, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[terminalID] = content
}

// Save writes a snapshot of every registered terminal and returns how many
// were saved. Saves are skipped while a restore is replaying. With no
// terminals the stored session is cleared.
func (m *Manager) Save(ctx context.Context) (int, error) {
	if !m.opts.Enabled {
		return 0, ErrDisabled
	}
	m.mu.Lock()
	if m.suppressedLocked() {
		m.mu.Unlock()
		m.logger.Debug("save skipped during restore")
		return 0, nil
	}
	cache := make(map[string]string, len(m.cache))
	for k, v := range m.cache {
		cache[k] = v
	}
	m.mu.Unlock()

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	terms := m.ws.Terminals()
	if len(terms) == 0 {
		if err := m.opts.Store.Update(ctx, m.opts.Key, nil); err != nil {
			return 0, fmt.Errorf("clear session: %w", err)
		}
		m.logger.Debug("no terminals, stored session cleared")
		return 0, nil
	}

	snap := Snapshot{
		SchemaVersion: SchemaVersion,
		Timestamp:     m.clock.Now(),
		Terminals:     make([]TerminalSnapshot, 0, len(terms)),
	}
	for _, t := range terms {
		ts := TerminalSnapshot{
			ID:     t.ID,
			Name:   t.Name,
			Number: t.Number,
			Cwd:    t.Cwd,
			Shell:  t.Shell,
		}
		if cols, rows, ok := m.ws.Dimensions(t.ID); ok {
			ts.Cols, ts.Rows = cols, rows
		}
		if m.opts.ScrollbackEnabled {
			if content, ok := cache[t.ID]; ok {
				ts.Scrollback = content
			} else if text, ok := m.ws.Scrollback(t.ID); ok {
				ts.Scrollback = text
			}
		}
		if t.IsActive {
			snap.ActiveTerminalID = t.ID
		}
		snap.Terminals = append(snap.Terminals, ts)
	}

	data, err := sonic.Marshal(&snap)
	if err != nil {
		return 0, fmt.Errorf("encode session: %w", err)
	}
	if err := m.opts.Store.Update(ctx, m.opts.Key, data); err != nil {
		return 0, fmt.Errorf("store session: %w", err)
	}
	m.metrics.IncSessionsSaved()
	m.logger.Info("session saved",
		zap.Int("terminals", len(snap.Terminals)),
		zap.String("active", snap.ActiveTerminalID),
		zap.Int("bytes", len(data)),
	)
	return len(snap.Terminals), nil
}

// Load reads and validates the stored snapshot. A missing session returns
// nil without error.
func (m *Manager) Load(ctx context.Context) (*Snapshot, error) {
	data, ok, err := m.opts.Store.Get(ctx, m.opts.Key)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var snap Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return nil, &RestoreError{Reason: "malformed snapshot", Err: err}
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	if snap.Expired(m.clock.Now(), m.opts.Expiry) {
		return nil, &RestoreError{Reason: fmt.Sprintf("snapshot from %s expired", snap.Timestamp.Format(time.RFC3339))}
	}
	return &snap, nil
}

// Clear deletes the stored session.
func (m *Manager) Clear(ctx context.Context) error {
	return m.opts.Store.Update(ctx, m.opts.Key, nil)
}

// Restore recreates the saved terminals. It does nothing when terminals
// already exist. An invalid or expired snapshot is discarded and the
// stored session cleared. Scrollback replay continues after Restore
// returns.
func (m *Manager) Restore(ctx context.Context) (RestoreResult, error) {
	if !m.opts.Enabled {
		return RestoreResult{Reason: "disabled"}, nil
	}
	m.mu.Lock()
	if m.restoring {
		m.mu.Unlock()
		return RestoreResult{}, ErrRestoreInProgress
	}
	m.restoring = true
	m.mu.Unlock()

	res, err := m.restore(ctx)

	m.mu.Lock()
	m.restoring = false
	if len(m.replays) == 0 {
		m.graceUntil = m.clock.Now().Add(m.opts.AutosaveGrace)
	}
	m.mu.Unlock()
	return res, err
}

func (m *Manager) restore(ctx context.Context) (RestoreResult, error) {
	if live := m.ws.Terminals(); len(live) > 0 {
		skipped := 0
		if snap, err := m.Load(ctx); err == nil && snap != nil {
			skipped = len(snap.Terminals)
		}
		m.metrics.IncRestoreSkipped()
		m.logger.Info("restore skipped, terminals already open",
			zap.Int("live", len(live)),
			zap.Int("saved", skipped),
		)
		return RestoreResult{SkippedCount: skipped, Reason: "terminals already open"}, nil
	}

	snap, err := m.Load(ctx)
	if err != nil {
		var rerr *RestoreError
		if !errors.As(err, &rerr) {
			return RestoreResult{}, err
		}
		m.logger.Warn("discarding stored session", zap.Error(err))
		if cerr := m.Clear(ctx); cerr != nil {
			m.logger.Warn("failed to clear stored session", zap.Error(cerr))
		}
		return RestoreResult{Reason: rerr.Reason}, nil
	}
	if snap == nil || len(snap.Terminals) == 0 {
		return RestoreResult{Reason: "no saved session"}, nil
	}

	var res RestoreResult
	restored := make(map[string]bool, len(snap.Terminals))
	for _, ts := range snap.Terminals {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		t, err := m.ws.CreateTerminal(ctx, terminal.CreateOptions{
			ID:        ts.ID,
			Name:      ts.Name,
			Number:    ts.Number,
			Cwd:       ts.Cwd,
			Shell:     ts.Shell,
			Cols:      ts.Cols,
			Rows:      ts.Rows,
			Restoring: true,
		})
		if err != nil {
			res.SkippedCount++
			logging.ForTerminal(m.logger, ts.ID).Warn("failed to restore terminal", zap.Error(err))
			continue
		}
		res.RestoredCount++
		restored[t.ID] = true
		if m.opts.ScrollbackEnabled && ts.Scrollback != "" {
			m.startReplay(t.ID, ts.Scrollback)
		}
	}

	if id := snap.ActiveTerminalID; id != "" && restored[id] {
		if err := m.ws.FocusTerminal(id); err != nil {
			logging.ForTerminal(m.logger, id).Warn("failed to activate restored terminal", zap.Error(err))
		} else {
			res.ActiveTerminalID = id
		}
	}

	m.metrics.AddSessionsRestored(res.RestoredCount)
	m.logger.Info("session restored",
		zap.Int("restored", res.RestoredCount),
		zap.Int("skipped", res.SkippedCount),
		zap.String("active", res.ActiveTerminalID),
	)
	return res, nil
}

// startReplay sends saved scrollback to the surface, re-sending on the
// replay policy until the surface confirms it.
func (m *Manager) startReplay(terminalID, content string) {
	r := &replay{terminalID: terminalID, content: content}
	m.mu.Lock()
	if old, ok := m.replays[terminalID]; ok && old.timer != nil {
		old.timer.Stop()
	}
	m.replays[terminalID] = r
	m.mu.Unlock()
	m.replayAttempt(r)
}

func (m *Manager) replayAttempt(r *replay) {
	m.mu.Lock()
	if m.closed || m.replays[r.terminalID] != r {
		m.mu.Unlock()
		return
	}
	r.attempts++
	attempt := r.attempts
	replayer := m.replayer
	r.timer = m.clock.AfterFunc(m.opts.Replay.Delay(attempt), func() { m.replayCheck(r) })
	m.mu.Unlock()

	if replayer == nil {
		return
	}
	if err := replayer.ReplayScrollback(r.terminalID, r.content); err != nil {
		logging.ForTerminal(m.logger, r.terminalID).Debug("scrollback replay send failed",
			zap.Int("attempt", attempt), zap.Error(err))
	}
}

func (m *Manager) replayCheck(r *replay) {
	m.mu.Lock()
	if m.closed || m.replays[r.terminalID] != r {
		m.mu.Unlock()
		return
	}
	if m.opts.Replay.Allows(r.attempts + 1) {
		m.mu.Unlock()
		m.replayAttempt(r)
		return
	}
	attempts := r.attempts
	m.finishReplayLocked(r.terminalID)
	m.mu.Unlock()
	logging.ForTerminal(m.logger, r.terminalID).Warn("scrollback replay unconfirmed",
		zap.Int("attempts", attempts))
}

// ScrollbackRestored records the surface's confirmation of a replay.
func (m *Manager) ScrollbackRestored(terminalID string, lines int) {
	m.mu.Lock()
	r, ok := m.replays[terminalID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	attempts := r.attempts
	m.finishReplayLocked(terminalID)
	m.mu.Unlock()
	logging.ForTerminal(m.logger, terminalID).Debug("scrollback restored",
		zap.Int("lines", lines), zap.Int("attempts", attempts))
}

func (m *Manager) finishReplayLocked(terminalID string) {
	delete(m.replays, terminalID)
	if len(m.replays) == 0 && !m.restoring {
		m.graceUntil = m.clock.Now().Add(m.opts.AutosaveGrace)
	}
}

// HandleStateEvent schedules an autosave for registry changes. It is
// meant to be subscribed to the state service.
func (m *Manager) HandleStateEvent(ev state.Event) {
	switch ev.Type {
	case state.EventUnregistered:
		m.mu.Lock()
		delete(m.cache, ev.TerminalID)
		m.mu.Unlock()
	case state.EventRegistered, state.EventActivated:
	default:
		return
	}
	m.scheduleAutosave()
}

func (m *Manager) scheduleAutosave() {
	if !m.opts.Enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.autosave != nil {
		m.autosave.Stop()
	}
	m.autosave = m.clock.AfterFunc(m.opts.AutosaveDelay, m.captureForAutosave)
}

// captureForAutosave asks the surface for fresh scrollback, then saves
// once the captures have had time to arrive.
func (m *Manager) captureForAutosave() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.suppressedLocked() {
		m.autosave = m.clock.AfterFunc(m.opts.AutosaveDelay, m.captureForAutosave)
		m.mu.Unlock()
		return
	}
	replayer := m.replayer
	m.autosave = nil
	m.mu.Unlock()

	if m.opts.ScrollbackEnabled && replayer != nil {
		for _, t := range m.ws.Terminals() {
			if err := replayer.RequestScrollback(t.ID); err != nil {
				logging.ForTerminal(m.logger, t.ID).Debug("scrollback capture request failed", zap.Error(err))
			}
		}
		m.mu.Lock()
		if !m.closed {
			m.autosave = m.clock.AfterFunc(m.opts.CaptureWait, m.runAutosave)
		}
		m.mu.Unlock()
		return
	}
	m.runAutosave()
}

func (m *Manager) runAutosave() {
	m.mu.Lock()
	m.autosave = nil
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultAutosaveTimeout)
	defer cancel()
	if _, err := m.Save(ctx); err != nil {
		m.logger.Warn("autosave failed", zap.Error(err))
	}
}

// Close stops autosave and pending replays.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.autosave != nil {
		m.autosave.Stop()
		m.autosave = nil
	}
	for id, r := range m.replays {
		if r.timer != nil {
			r.timer.Stop()
		}
		delete(m.replays, id)
	}
}
