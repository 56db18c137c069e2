package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/termhost/internal/api/http"
	"github.com/GriffinCanCode/termhost/internal/api/middleware"
	"github.com/GriffinCanCode/termhost/internal/api/ws"
	"github.com/GriffinCanCode/termhost/internal/dispatch"
	"github.com/GriffinCanCode/termhost/internal/infrastructure/config"
	"github.com/GriffinCanCode/termhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termhost/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/termhost/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/termhost/internal/logging"
	"github.com/GriffinCanCode/termhost/internal/session"
	"github.com/GriffinCanCode/termhost/internal/shared/clock"
	"github.com/GriffinCanCode/termhost/internal/terminal"
	"github.com/GriffinCanCode/termhost/internal/terminal/buffer"
	"github.com/GriffinCanCode/termhost/internal/terminal/process"
)

// Version is reported by /health.
const Version = "0.3.0"

// Options carries dependencies that tests substitute.
type Options struct {
	Logger   *logging.Logger
	Registry *prometheus.Registry
	Spawner  process.Spawner
	Clock    clock.Clock
	Store    session.Store
}

// Server wraps the HTTP server and dependencies
type Server struct {
	config     *config.Config
	logger     *logging.Logger
	metrics    *monitoring.Metrics
	provider   *config.Provider
	terminals  *terminal.Service
	dispatcher *dispatch.Dispatcher
	sessions   *session.Manager
	store      session.Store
	wsHandler  *ws.Handler
	router     *gin.Engine
	httpServer *http.Server

	unsubscribe []func()
}

// NewServer wires every component from cfg.
func NewServer(cfg *config.Config, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	logger.Info("Initializing terminal host",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.Int("max_terminals", cfg.Terminal.MaxTerminals),
	)

	metrics := monitoring.NewMetrics(opts.Registry)

	provider := config.NewProvider(cfg, logger.Logger)
	if cfg.Server.ConfigFile != "" {
		if err := provider.LoadFile(cfg.Server.ConfigFile); err != nil {
			return nil, fmt.Errorf("failed to load config overlay: %w", err)
		}
		logger.Info("Loaded config overlay", zap.String("path", cfg.Server.ConfigFile))
	}

	terminals := terminal.NewService(terminal.Options{
		MaxTerminals:    cfg.Terminal.MaxTerminals,
		Shell:           provider.GetString("terminal", "shell", cfg.Terminal.Shell),
		Cwd:             cfg.Terminal.Cwd,
		Cols:            cfg.Terminal.Cols,
		Rows:            cfg.Terminal.Rows,
		ScrollbackLines: cfg.Terminal.ScrollbackLines,
		Spawner:         opts.Spawner,
		Buffer:          bufferConfig(provider),
		Clock:           opts.Clock,
		Logger:          logger.Logger,
		Metrics:         metrics,
	})

	breaker := resilience.New("surface-send", resilience.Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		Clock: opts.Clock,
	})

	dispatcher := dispatch.New(dispatch.Options{
		QueueCapacity:  cfg.Dispatcher.QueueCapacity,
		MaxSendRetries: cfg.Dispatcher.MaxSendRetries,
		SendRetryDelay: cfg.Dispatcher.SendRetryDelay,
		DeleteTimeout:  cfg.Dispatcher.DeleteTimeout,
		Handshake:      resilience.Exponential(cfg.Dispatcher.HandshakeBase, cfg.Dispatcher.HandshakeAttempts),
		Breaker:        breaker,
		Clock:          opts.Clock,
		Logger:         logger.Logger,
		Metrics:        metrics,
	})

	store := opts.Store
	if store == nil && cfg.Session.StorePath != "" {
		fs, err := session.NewFileStore(cfg.Session.StorePath)
		if err != nil {
			dispatcher.Close()
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		store = fs
		logger.Info("Session store opened", zap.String("dir", fs.Dir()))
	}

	sessions := session.NewManager(terminals, session.Options{
		Store:             store,
		Enabled:           provider.GetBool("session", "enabled", cfg.Session.Enabled),
		ScrollbackEnabled: provider.GetBool("session", "scrollbackEnabled", cfg.Session.ScrollbackEnabled),
		Expiry:            cfg.Session.Expiry,
		Replay:            resilience.Fixed(cfg.Session.RestoreInterval, cfg.Session.RestoreAttempts),
		AutosaveDelay:     provider.GetDuration("session", "autosaveDelay", cfg.Session.AutosaveDelay),
		AutosaveGrace:     cfg.Session.AutosaveGrace,
		Clock:             opts.Clock,
		Logger:            logger.Logger,
		Metrics:           metrics,
	})

	terminals.SetSurface(dispatcher)
	sessions.SetReplayer(dispatcher)
	if err := dispatcher.RegisterHandlers(terminals, sessions); err != nil {
		dispatcher.Close()
		return nil, err
	}

	s := &Server{
		config:     cfg,
		logger:     logger,
		metrics:    metrics,
		provider:   provider,
		terminals:  terminals,
		dispatcher: dispatcher,
		sessions:   sessions,
		store:      store,
	}
	s.unsubscribe = append(s.unsubscribe,
		terminals.State().Subscribe(sessions.HandleStateEvent),
		provider.OnChange(s.applyChange),
	)

	s.wsHandler = ws.NewHandler(dispatcher, ws.Options{
		InputPerSecond: cfg.RateLimit.InputPerSecond,
		InputBurst:     cfg.RateLimit.InputBurst,
		CheckOrigin:    originPolicy(cfg.Server.AllowedOrigins),
		Logger:         logger.Logger,
		Metrics:        metrics,
	})
	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) buildRouter() *gin.Engine {
	cfg := s.config
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracing.New(s.logger.Logger)))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(cfg.Server.AllowedOrigins)))

	handlers := apihttp.NewHandlers(apihttp.Options{
		Coordinator: s.terminals,
		Sessions:    s.sessions,
		Deleter:     s.dispatcher,
		Logger:      s.logger.Logger,
		Version:     Version,
	})

	api := router.Group("/")
	if cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		api.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	handlers.Register(api)

	router.GET("/ws", s.wsHandler.HandleConnection)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))
	return router
}

// originPolicy accepts the configured origins in addition to local ones.
func originPolicy(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return ws.LocalOrigin
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if _, ok := set[r.Header.Get("Origin")]; ok {
			return true
		}
		return ws.LocalOrigin(r)
	}
}

func bufferConfig(p *config.Provider) buffer.Config {
	def := buffer.DefaultConfig()
	return buffer.Config{
		FlushInterval:       p.GetDuration("buffer", "flushInterval", def.FlushInterval),
		AgentFlushInterval:  p.GetDuration("buffer", "agentFlushInterval", def.AgentFlushInterval),
		ImmediateFlushBytes: p.GetInt("buffer", "immediateFlushBytes", def.ImmediateFlushBytes),
		MaxChunks:           p.GetInt("buffer", "maxChunks", def.MaxChunks),
		MaxBytes:            p.GetInt("buffer", "maxBytes", def.MaxBytes),
	}
}

// applyChange pushes runtime setting changes into the running components.
func (s *Server) applyChange(ch config.Change) {
	switch {
	case ch.Section == "buffer":
		s.terminals.Buffers().UpdateConfig(bufferConfig(s.provider))
	case ch.Section == "terminal" && ch.Key == "shell":
		s.terminals.SetDefaultShell(s.provider.GetString("terminal", "shell", ""))
	case ch.Section == "logging" && ch.Key == "level":
		if err := s.logger.SetLevel(s.provider.GetString("logging", "level", "info")); err != nil {
			s.logger.Warn("Ignoring invalid log level", zap.Any("value", ch.NewValue), zap.Error(err))
		}
	default:
		return
	}
	s.logger.Info("Applied config change",
		zap.String("section", ch.Section),
		zap.String("key", ch.Key),
		zap.String("source", ch.Source),
	)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Provider returns the runtime configuration provider.
func (s *Server) Provider() *config.Provider {
	return s.provider
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.Close(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownGrace)
	defer cancel()
	return s.Close(shutdownCtx)
}

// Close saves the session, disconnects the surface and releases every
// terminal.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	if s.sessions.Enabled() {
		if n, err := s.sessions.Save(ctx); err != nil {
			s.logger.Warn("Final session save failed", zap.Error(err))
		} else {
			s.logger.Info("Final session saved", zap.Int("terminals", n))
		}
	}

	s.wsHandler.Close()
	var shutdownErr error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		shutdownErr = fmt.Errorf("failed to shut down http server: %w", err)
		s.logger.Error("HTTP shutdown failed", zap.Error(err))
	}

	for _, unsub := range s.unsubscribe {
		unsub()
	}
	s.sessions.Close()
	s.dispatcher.Close()
	s.terminals.Shutdown(ctx)

	if c, ok := s.store.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			s.logger.Warn("Failed to close session store", zap.Error(err))
		}
	}

	_ = s.logger.Sync()
	return shutdownErr
}
