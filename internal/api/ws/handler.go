package ws

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/termhost/internal/dispatch"
	"github.com/GriffinCanCode/termhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termhost/internal/logging"
)

// Defaults for Options.
const (
	DefaultWriteTimeout   = 5 * time.Second
	DefaultPongWait       = 60 * time.Second
	DefaultMaxMessageSize = 1 << 20
	DefaultInputPerSecond = 500
	DefaultInputBurst     = 1000
)

// Surface is the dispatcher side of a connection.
type Surface interface {
	Attach(t dispatch.Transport)
	Detach(t dispatch.Transport)
	HandleMessage(ctx context.Context, msg dispatch.Message) error
}

// Options configures a Handler.
type Options struct {
	WriteTimeout   time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	InputPerSecond int
	InputBurst     int
	// CheckOrigin overrides LocalOrigin.
	CheckOrigin func(r *http.Request) bool
	Codec       dispatch.Codec
	Logger      *zap.Logger
	Metrics     *monitoring.Metrics
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.PongWait <= 0 {
		o.PongWait = DefaultPongWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
	if o.InputPerSecond <= 0 {
		o.InputPerSecond = DefaultInputPerSecond
	}
	if o.InputBurst <= 0 {
		o.InputBurst = DefaultInputBurst
	}
	if o.CheckOrigin == nil {
		o.CheckOrigin = LocalOrigin
	}
	if o.Codec == nil {
		o.Codec = dispatch.NewCodec()
	}
	return o
}

// Handler upgrades surface connections. One connection is served at a
// time; a new connection replaces the previous one.
type Handler struct {
	surface  Surface
	opts     Options
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu      sync.Mutex
	current *Conn
}

// NewHandler creates a handler that attaches connections to surface.
func NewHandler(surface Surface, opts Options) *Handler {
	opts = opts.withDefaults()
	return &Handler{
		surface: surface,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
		logger:  logging.Component(opts.Logger, "ws"),
		metrics: opts.Metrics,
	}
}

// LocalOrigin accepts requests without an Origin header, from a loopback
// origin, or from the serving host itself.
func LocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// HandleConnection upgrades the request and serves it until the socket
// closes or is replaced.
func (h *Handler) HandleConnection(c *gin.Context) {
	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn := newConn(raw, h.opts.WriteTimeout, h.metrics)

	h.mu.Lock()
	prev := h.current
	h.current = conn
	h.mu.Unlock()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	h.surface.Attach(conn)
	if prev != nil {
		prev.Close(websocket.CloseNormalClosure, "replaced by a new connection")
	}
	h.logger.Info("surface connected", zap.String("remote", c.Request.RemoteAddr))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go h.keepAlive(ctx, conn)

	h.readLoop(ctx, conn)

	h.surface.Detach(conn)
	conn.Close(websocket.CloseNormalClosure, "")

	h.mu.Lock()
	if h.current == conn {
		h.current = nil
	}
	h.mu.Unlock()
	h.logger.Info("surface disconnected", zap.String("remote", c.Request.RemoteAddr))
}

func (h *Handler) readLoop(ctx context.Context, conn *Conn) {
	ws := conn.ws
	ws.SetReadLimit(h.opts.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	input := rate.NewLimiter(rate.Limit(h.opts.InputPerSecond), h.opts.InputBurst)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.opts.PongWait))

		msg, err := h.opts.Codec.Decode(data)
		if err != nil {
			h.logger.Warn("malformed surface message", zap.Int("bytes", len(data)), zap.Error(err))
			continue
		}
		h.metrics.RecordWSMessage("in", msg.Command)

		if msg.Command == dispatch.CmdInput {
			if err := input.Wait(ctx); err != nil {
				return
			}
		}
		// Failures are logged by the dispatcher.
		_ = h.surface.HandleMessage(ctx, msg)
	}
}

func (h *Handler) keepAlive(ctx context.Context, conn *Conn) {
	ticker := time.NewTicker(h.opts.PongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case <-ticker.C:
			if err := conn.ping(time.Now().Add(h.opts.WriteTimeout)); err != nil {
				h.logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// Connected reports whether a surface connection is open.
func (h *Handler) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != nil
}

// Close closes the current connection, if any.
func (h *Handler) Close() {
	h.mu.Lock()
	conn := h.current
	h.current = nil
	h.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.CloseGoingAway, "server shutting down")
	}
}
