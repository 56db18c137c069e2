package buffer

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termhost/internal/events"
	"github.com/GriffinCanCode/termhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termhost/internal/logging"
	"github.com/GriffinCanCode/termhost/internal/shared/apperrors"
	"github.com/GriffinCanCode/termhost/internal/shared/clock"
)

// ErrDisposed is returned by operations on a disposed service.
var ErrDisposed = apperrors.Sentinel(apperrors.KindProgrammer, "buffer: service disposed")

// errEmptyTerminalID rejects chunks that cannot be routed.
var errEmptyTerminalID = errors.New("buffer: empty terminal id")

// Flush triggers.
const (
	TriggerTimer     = "timer"
	TriggerImmediate = "immediate"
	TriggerMode      = "mode"
	TriggerManual    = "manual"
	TriggerClear     = "clear"
)

// Config holds buffering thresholds.
type Config struct {
	FlushInterval       time.Duration
	AgentFlushInterval  time.Duration
	ImmediateFlushBytes int
	MaxChunks           int
	MaxBytes            int
}

// DefaultConfig returns 60fps batching with 250fps in agent mode.
func DefaultConfig() Config {
	return Config{
		FlushInterval:       16 * time.Millisecond,
		AgentFlushInterval:  4 * time.Millisecond,
		ImmediateFlushBytes: 1000,
		MaxChunks:           50,
		MaxBytes:            256 * 1024,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.AgentFlushInterval <= 0 {
		c.AgentFlushInterval = d.AgentFlushInterval
	}
	if c.ImmediateFlushBytes <= 0 {
		c.ImmediateFlushBytes = d.ImmediateFlushBytes
	}
	if c.MaxChunks <= 0 {
		c.MaxChunks = d.MaxChunks
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = d.MaxBytes
	}
	return c
}

// Flush is one coalesced payload for a terminal.
type Flush struct {
	TerminalID string
	Data       string
	Chunks     int
	Trigger    string
}

type pending struct {
	chunks []string
	bytes  int
	timer  clock.Timer
}

// Options configures a Service.
type Options struct {
	Config  Config
	Clock   clock.Clock
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// Service buffers output for every terminal.
type Service struct {
	clock   clock.Clock
	logger  *zap.Logger
	metrics *monitoring.Metrics
	flushes *events.Bus[Flush]

	// emitMu serializes take+publish so a terminal's payloads reach
	// subscribers in FIFO order. Acquired before mu. Subscribers must not
	// call back into flushing methods.
	emitMu sync.Mutex

	mu          sync.Mutex
	cfg         Config
	buffers     map[string]*pending
	agentActive bool
	disposed    bool
}

// NewService creates a buffer service.
func NewService(opts Options) *Service {
	logger := logging.Component(opts.Logger, "buffer")
	return &Service{
		clock:   clock.OrReal(opts.Clock),
		logger:  logger,
		metrics: opts.Metrics,
		flushes: events.NewBus[Flush]("buffer", logger),
		cfg:     opts.Config.withDefaults(),
		buffers: make(map[string]*pending),
	}
}

// OnFlush registers a consumer of coalesced payloads and returns a function
// that removes it.
func (s *Service) OnFlush(h func(Flush)) func() {
	return s.flushes.Subscribe(h)
}

// BufferData queues a chunk for a terminal. It flushes at once when the
// chunk reaches the immediate threshold or the queue is full, and otherwise
// arms the flush timer if none is pending.
func (s *Service) BufferData(terminalID, chunk string) error {
	if terminalID == "" {
		return errEmptyTerminalID
	}
	if chunk == "" {
		return nil
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	buf, ok := s.buffers[terminalID]
	if !ok {
		buf = &pending{}
		s.buffers[terminalID] = buf
	}
	buf.chunks = append(buf.chunks, chunk)
	buf.bytes += len(chunk)

	if len(chunk) >= s.cfg.ImmediateFlushBytes || len(buf.chunks) >= s.cfg.MaxChunks || buf.bytes >= s.cfg.MaxBytes {
		f, ok := s.takeLocked(terminalID, TriggerImmediate)
		s.mu.Unlock()
		if ok {
			s.emit(f)
		}
		return nil
	}

	if buf.timer == nil {
		interval := s.intervalLocked()
		buf.timer = s.clock.AfterFunc(interval, func() { s.timerFired(terminalID, buf) })
	}
	s.mu.Unlock()
	return nil
}

func (s *Service) timerFired(terminalID string, owner *pending) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	// A flush may have replaced the pending state since this timer was armed.
	if s.buffers[terminalID] != owner {
		s.mu.Unlock()
		return
	}
	owner.timer = nil
	f, ok := s.takeLocked(terminalID, TriggerTimer)
	s.mu.Unlock()
	if ok {
		s.emit(f)
	}
}

// FlushBuffer emits a terminal's pending chunks as one payload. It emits
// nothing when the buffer is empty.
func (s *Service) FlushBuffer(terminalID string) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	f, ok := s.takeLocked(terminalID, TriggerManual)
	s.mu.Unlock()
	if ok {
		s.emit(f)
	}
}

// FlushAll flushes every terminal.
func (s *Service) FlushAll() {
	s.flushAll(TriggerManual)
}

func (s *Service) flushAll(trigger string) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	ids := make([]string, 0, len(s.buffers))
	for id := range s.buffers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Flush, 0, len(ids))
	for _, id := range ids {
		if f, ok := s.takeLocked(id, trigger); ok {
			out = append(out, f)
		}
	}
	s.mu.Unlock()

	for _, f := range out {
		s.emit(f)
	}
}

// ClearTerminalBuffer flushes a terminal and drops its state.
func (s *Service) ClearTerminalBuffer(terminalID string) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	f, ok := s.takeLocked(terminalID, TriggerClear)
	delete(s.buffers, terminalID)
	s.mu.Unlock()
	if ok {
		s.emit(f)
	}
}

// SetAgentActive switches between the baseline and agent flush intervals.
// A change of mode flushes all pending output.
func (s *Service) SetAgentActive(active bool) {
	s.mu.Lock()
	if s.disposed || s.agentActive == active {
		s.mu.Unlock()
		return
	}
	s.agentActive = active
	s.mu.Unlock()

	s.metrics.SetAgentMode(active)
	s.logger.Debug("agent mode changed", zap.Bool("active", active))
	s.flushAll(TriggerMode)
}

// AgentActive reports whether the agent flush interval is in use.
func (s *Service) AgentActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentActive
}

// FlushInterval returns the interval currently applied to new timers.
func (s *Service) FlushInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intervalLocked()
}

// UpdateConfig replaces the thresholds. Pending timers keep their interval.
func (s *Service) UpdateConfig(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

// Config returns the current thresholds.
func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Pending returns the number of chunks waiting for a terminal.
func (s *Service) Pending(terminalID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if buf, ok := s.buffers[terminalID]; ok {
		return len(buf.chunks)
	}
	return 0
}

// Dispose flushes everything and rejects further data.
func (s *Service) Dispose() {
	s.flushAll(TriggerClear)
	s.mu.Lock()
	for id, buf := range s.buffers {
		if buf.timer != nil {
			buf.timer.Stop()
		}
		delete(s.buffers, id)
	}
	s.disposed = true
	s.mu.Unlock()
}

func (s *Service) intervalLocked() time.Duration {
	if s.agentActive {
		return s.cfg.AgentFlushInterval
	}
	return s.cfg.FlushInterval
}

// takeLocked drains a terminal's chunks and cancels its timer. The pending
// entry is replaced so a racing timer callback sees a different owner.
func (s *Service) takeLocked(terminalID, trigger string) (Flush, bool) {
	buf, ok := s.buffers[terminalID]
	if !ok {
		return Flush{}, false
	}
	if buf.timer != nil {
		buf.timer.Stop()
		buf.timer = nil
	}
	if len(buf.chunks) == 0 {
		return Flush{}, false
	}

	var data string
	if len(buf.chunks) == 1 {
		data = buf.chunks[0]
	} else {
		var sb strings.Builder
		sb.Grow(buf.bytes)
		for _, c := range buf.chunks {
			sb.WriteString(c)
		}
		data = sb.String()
	}
	f := Flush{TerminalID: terminalID, Data: data, Chunks: len(buf.chunks), Trigger: trigger}
	s.buffers[terminalID] = &pending{}
	return f, true
}

func (s *Service) emit(f Flush) {
	s.metrics.RecordFlush(f.Trigger, len(f.Data))
	s.flushes.Publish(f)
}
