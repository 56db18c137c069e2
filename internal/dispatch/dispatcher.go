package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termhost/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/termhost/internal/logging"
	"github.com/GriffinCanCode/termhost/internal/session"
	"github.com/GriffinCanCode/termhost/internal/shared/clock"
	"github.com/GriffinCanCode/termhost/internal/terminal"
	"github.com/GriffinCanCode/termhost/internal/terminal/lifecycle"
	"github.com/GriffinCanCode/termhost/internal/terminal/state"
)

// Defaults for Options.
const (
	DefaultMaxSendRetries    = 3
	DefaultSendRetryDelay    = 100 * time.Millisecond
	DefaultSendTimeout       = 5 * time.Second
	DefaultDeleteTimeout     = 5 * time.Second
	DefaultHandshakeBase     = 200 * time.Millisecond
	DefaultHandshakeAttempts = 4
)

// Transport delivers encoded messages to the rendering surface.
type Transport interface {
	Send(ctx context.Context, data []byte) error
}

// Coordinator is every terminal capability a handler may invoke.
type Coordinator interface {
	CreateTerminal(ctx context.Context, opts terminal.CreateOptions) (state.Terminal, error)
	DeleteTerminal(ctx context.Context, terminalID string) error
	BeginClose(terminalID string) (lifecycle.State, error)
	RollbackClose(terminalID string, to lifecycle.State)
	WriteInput(ctx context.Context, terminalID, data string) error
	ResizeTerminal(terminalID string, cols, rows int) error
	FocusTerminal(terminalID string) error
	Terminals() []state.Terminal
	Scrollback(terminalID string) (string, bool)
	Diagnostics() terminal.Diagnostics
}

// SessionCoordinator is the session capability handlers invoke.
type SessionCoordinator interface {
	Restore(ctx context.Context) (session.RestoreResult, error)
	Save(ctx context.Context) (int, error)
	ScrollbackRestored(terminalID string, lines int)
	CacheScrollback(terminalID, content string)
}

// HandlerFunc handles one inbound command.
type HandlerFunc func(ctx context.Context, msg Message) error

// Options configures a Dispatcher.
type Options struct {
	QueueCapacity  int
	MaxSendRetries int
	SendRetryDelay time.Duration
	SendTimeout    time.Duration
	DeleteTimeout  time.Duration
	Handshake      resilience.Policy
	Breaker        *resilience.Breaker
	Codec          Codec
	Clock          clock.Clock
	Logger         *zap.Logger
	Metrics        *monitoring.Metrics
}

func (o Options) withDefaults() Options {
	if o.MaxSendRetries <= 0 {
		o.MaxSendRetries = DefaultMaxSendRetries
	}
	if o.SendRetryDelay <= 0 {
		o.SendRetryDelay = DefaultSendRetryDelay
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = DefaultSendTimeout
	}
	if o.DeleteTimeout <= 0 {
		o.DeleteTimeout = DefaultDeleteTimeout
	}
	if o.Handshake.MaxAttempts <= 0 {
		o.Handshake = resilience.Exponential(DefaultHandshakeBase, DefaultHandshakeAttempts)
	}
	if o.Codec == nil {
		o.Codec = NewCodec()
	}
	o.Clock = clock.OrReal(o.Clock)
	return o
}

// Dispatcher routes inbound commands and delivers outbound messages. It
// implements terminal.Surface and the session replayer.
type Dispatcher struct {
	opts    Options
	codec   Codec
	clock   clock.Clock
	logger  *zap.Logger
	metrics *monitoring.Metrics
	queue   *Queue

	ctx    context.Context
	cancel context.CancelFunc

	readyOnce sync.Once

	mu         sync.Mutex
	handlers   map[string]HandlerFunc
	coord      Coordinator
	sess       SessionCoordinator
	transport  Transport
	flushing   bool
	retry      clock.Timer
	handshakes map[string]*handshake
	deletes    map[string]*pendingDelete
	closed     bool
}

// New creates a dispatcher. Handlers are installed by RegisterHandlers.
func New(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		opts:       opts,
		codec:      opts.Codec,
		clock:      opts.Clock,
		logger:     logging.Component(opts.Logger, "dispatch"),
		metrics:    opts.Metrics,
		queue:      NewQueue(opts.QueueCapacity),
		ctx:        ctx,
		cancel:     cancel,
		handshakes: make(map[string]*handshake),
		deletes:    make(map[string]*pendingDelete),
	}
}

// Attach makes t the active transport and flushes anything queued while
// disconnected. A previous transport is replaced.
func (d *Dispatcher) Attach(t Transport) {
	d.mu.Lock()
	d.transport = t
	if d.retry != nil {
		d.retry.Stop()
		d.retry = nil
	}
	d.mu.Unlock()

	if d.opts.Breaker != nil {
		d.opts.Breaker.Reset()
	}
	d.logger.Info("surface attached", zap.Int("queued", d.queue.Len()))
	d.kick()
}

// Detach removes t if it is still the active transport. Queued messages
// are kept.
func (d *Dispatcher) Detach(t Transport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transport == t {
		d.transport = nil
		d.logger.Info("surface detached", zap.Int("queued", d.queue.Len()))
	}
}

// Connected reports whether a transport is attached.
func (d *Dispatcher) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transport != nil
}

// QueueLen returns the number of undelivered messages.
func (d *Dispatcher) QueueLen() int {
	return d.queue.Len()
}

// Send queues a message for delivery.
func (d *Dispatcher) Send(msg Message, p Priority) error {
	d.mu.Lock()
	err := d.enqueueLocked(msg, p)
	d.mu.Unlock()
	if err != nil {
		return err
	}
	d.kick()
	return nil
}

func (d *Dispatcher) enqueueLocked(msg Message, p Priority) error {
	if d.closed {
		return ErrClosed
	}
	if _, err := d.queue.Push(msg, p, d.clock.Now()); err != nil {
		d.metrics.IncRejected()
		d.logger.Warn("outbound message rejected",
			zap.String("command", msg.Command),
			zap.String(logging.TerminalIDKey, msg.TerminalID),
			zap.Error(err),
		)
		return err
	}
	d.metrics.SetQueueDepth(d.queue.Len())
	return nil
}

// kick starts the flusher unless one is running, a retry is pending or no
// transport is attached.
func (d *Dispatcher) kick() {
	d.mu.Lock()
	if d.flushing || d.transport == nil || d.retry != nil || d.closed {
		d.mu.Unlock()
		return
	}
	d.flushing = true
	d.mu.Unlock()
	d.flush()
}

var errEncode = errors.New("dispatch: encode failed")

func (d *Dispatcher) flush() {
	for {
		d.mu.Lock()
		if d.transport == nil || d.closed {
			d.flushing = false
			d.mu.Unlock()
			return
		}
		item, ok := d.queue.Pop()
		if !ok {
			d.flushing = false
			d.mu.Unlock()
			d.metrics.SetQueueDepth(0)
			return
		}
		t := d.transport
		d.mu.Unlock()

		err := d.deliver(t, item)
		if err == nil {
			continue
		}
		if errors.Is(err, errEncode) {
			d.logger.Error("dropping unencodable message", zap.String("command", item.Msg.Command), zap.Error(err))
			d.metrics.IncDropped()
			continue
		}

		deferred := errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests)
		d.mu.Lock()
		if !deferred {
			item.Retries++
		}
		if item.Retries > d.opts.MaxSendRetries {
			d.mu.Unlock()
			d.metrics.IncDropped()
			d.logger.Warn("dropping message after send retries",
				zap.String("command", item.Msg.Command),
				zap.String(logging.TerminalIDKey, item.Msg.TerminalID),
				zap.Int("retries", item.Retries-1),
				zap.Error(err),
			)
			continue
		}
		d.queue.PushFront(item)
		if !deferred {
			d.metrics.IncRetried()
		}
		d.retry = d.clock.AfterFunc(d.opts.SendRetryDelay, d.retryFired)
		d.flushing = false
		d.mu.Unlock()
		d.logger.Debug("send failed, retry scheduled",
			zap.String("command", item.Msg.Command),
			zap.Bool("deferred", deferred),
			zap.Error(err),
		)
		return
	}
}

func (d *Dispatcher) retryFired() {
	d.mu.Lock()
	d.retry = nil
	d.mu.Unlock()
	d.kick()
}

func (d *Dispatcher) deliver(t Transport, item *Item) error {
	data, err := d.codec.Encode(item.Msg)
	if err != nil {
		return fmt.Errorf("%w: %v", errEncode, err)
	}
	ctx, cancel := context.WithTimeout(d.ctx, d.opts.SendTimeout)
	defer cancel()

	send := func() error { return t.Send(ctx, data) }
	if d.opts.Breaker != nil {
		err = d.opts.Breaker.Execute(send)
	} else {
		err = send()
	}
	if err == nil {
		d.metrics.RecordSent(item.Msg.Command)
	}
	return err
}

// RegisterHandlers builds the command table. It may be called once.
func (d *Dispatcher) RegisterHandlers(coord Coordinator, sess SessionCoordinator) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers != nil {
		return ErrHandlersFrozen
	}
	d.coord = coord
	d.sess = sess
	d.handlers = d.buildHandlers()
	return nil
}

// Handle decodes and dispatches one inbound frame.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) error {
	msg, err := d.codec.Decode(raw)
	if err != nil {
		d.logger.Warn("malformed inbound message", zap.Int("bytes", len(raw)), zap.Error(err))
		return fmt.Errorf("decode message: %w", err)
	}
	return d.HandleMessage(ctx, msg)
}

// HandleMessage dispatches a decoded message. Unknown commands are logged
// and dropped.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg Message) error {
	d.mu.Lock()
	h, ok := d.handlers[msg.Command]
	d.mu.Unlock()
	if !ok {
		d.logger.Warn("unknown command", zap.String("command", msg.Command))
		return nil
	}
	if err := h(ctx, msg); err != nil {
		d.logger.Warn("command failed",
			zap.String("command", msg.Command),
			zap.String(logging.TerminalIDKey, msg.TerminalID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Close stops timers and rejects further sends. Queued messages are
// discarded.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	if d.retry != nil {
		d.retry.Stop()
		d.retry = nil
	}
	for _, hs := range d.handshakes {
		hs.stop()
	}
	d.mu.Unlock()

	d.cancel()
	d.queue.Clear()
}
