package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/termhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termhost/internal/session"
	"github.com/GriffinCanCode/termhost/internal/shared/clock"
	"github.com/GriffinCanCode/termhost/internal/terminal"
	"github.com/GriffinCanCode/termhost/internal/terminal/lifecycle"
	"github.com/GriffinCanCode/termhost/internal/terminal/state"
)

var errSend = errors.New("transport: broken pipe")

type fakeTransport struct {
	mu       sync.Mutex
	codec    Codec
	sent     []Message
	attempts int
	fail     func(attempt int) error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{codec: NewCodec()}
}

func (f *fakeTransport) Send(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.fail != nil {
		if err := f.fail(f.attempts); err != nil {
			return err
		}
	}
	msg, err := f.codec.Decode(data)
	if err != nil {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) setFail(fn func(attempt int) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fn
}

func (f *fakeTransport) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.sent...)
}

func (f *fakeTransport) commands() []string {
	var out []string
	for _, m := range f.messages() {
		out = append(out, m.Command)
	}
	return out
}

func (f *fakeTransport) find(command string) []Message {
	var out []Message
	for _, m := range f.messages() {
		if m.Command == command {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeTransport) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

type fakeCoordinator struct {
	mu        sync.Mutex
	created   []terminal.CreateOptions
	deleted   []string
	inputs    []string
	resized   [][2]int
	focused   []string
	rollbacks []lifecycle.State
	createErr error
	deleteErr error
	writeErr  error
}

func (c *fakeCoordinator) CreateTerminal(_ context.Context, opts terminal.CreateOptions) (state.Terminal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = append(c.created, opts)
	if c.createErr != nil {
		return state.Terminal{}, c.createErr
	}
	return state.Terminal{ID: "term_new", Number: len(c.created)}, nil
}

func (c *fakeCoordinator) DeleteTerminal(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	c.deleted = append(c.deleted, id)
	return nil
}

func (c *fakeCoordinator) BeginClose(string) (lifecycle.State, error) {
	return lifecycle.Active, nil
}

func (c *fakeCoordinator) RollbackClose(_ string, to lifecycle.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollbacks = append(c.rollbacks, to)
}

func (c *fakeCoordinator) WriteInput(_ context.Context, _ string, data string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs = append(c.inputs, data)
	return c.writeErr
}

func (c *fakeCoordinator) ResizeTerminal(_ string, cols, rows int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resized = append(c.resized, [2]int{cols, rows})
	return nil
}

func (c *fakeCoordinator) FocusTerminal(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focused = append(c.focused, id)
	return nil
}

func (c *fakeCoordinator) Terminals() []state.Terminal { return nil }

func (c *fakeCoordinator) Scrollback(string) (string, bool) { return "", false }

func (c *fakeCoordinator) Diagnostics() terminal.Diagnostics { return terminal.Diagnostics{} }

type fakeSession struct {
	mu        sync.Mutex
	restores  int
	saves     int
	restored  map[string]int
	cached    map[string]string
	result    session.RestoreResult
	restoreCh chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{restored: map[string]int{}, cached: map[string]string{}}
}

func (s *fakeSession) Restore(context.Context) (session.RestoreResult, error) {
	s.mu.Lock()
	s.restores++
	ch := s.restoreCh
	s.mu.Unlock()
	if ch != nil {
		<-ch
	}
	return s.result, nil
}

func (s *fakeSession) Save(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	return 2, nil
}

func (s *fakeSession) ScrollbackRestored(id string, lines int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restored[id] = lines
}

func (s *fakeSession) CacheScrollback(id, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached[id] = content
}

func (s *fakeSession) restoreCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restores
}

type harness struct {
	clock     *clock.Fake
	transport *fakeTransport
	coord     *fakeCoordinator
	sess      *fakeSession
	logs      *observer.ObservedLogs
	metrics   *monitoring.Metrics
	d         *Dispatcher
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		clock:     clock.NewFake(time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)),
		transport: newFakeTransport(),
		coord:     &fakeCoordinator{},
		sess:      newFakeSession(),
		logs:      logs,
		metrics:   monitoring.NewMetrics(nil),
	}
	opts := Options{Clock: h.clock, Logger: zap.New(core), Metrics: h.metrics}
	for _, m := range mutate {
		m(&opts)
	}
	h.d = New(opts)
	require.NoError(t, h.d.RegisterHandlers(h.coord, h.sess))
	h.d.Attach(h.transport)
	t.Cleanup(h.d.Close)
	return h
}

func (h *harness) handle(t *testing.T, msg Message) error {
	t.Helper()
	return h.d.HandleMessage(context.Background(), msg)
}
