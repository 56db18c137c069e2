package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Logging    LogConfig
	RateLimit  RateLimitConfig
	Terminal   TerminalConfig
	Buffer     BufferConfig
	Dispatcher DispatcherConfig
	Session    SessionConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8000"`
	Host           string        `envconfig:"HOST" default:"127.0.0.1"`
	ConfigFile     string        `envconfig:"TERMHOST_CONFIG"`
	AllowedOrigins []string      `envconfig:"TERMHOST_ALLOWED_ORIGINS"`
	ShutdownGrace  time.Duration `envconfig:"TERMHOST_SHUTDOWN_GRACE" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	InputPerSecond    int  `envconfig:"RATE_LIMIT_INPUT_RPS" default:"500"`
	InputBurst        int  `envconfig:"RATE_LIMIT_INPUT_BURST" default:"1000"`
}

// TerminalConfig holds terminal pool configuration.
type TerminalConfig struct {
	MaxTerminals    int    `envconfig:"TERMHOST_MAX_TERMINALS" default:"5"`
	Shell           string `envconfig:"TERMHOST_SHELL"`
	Cwd             string `envconfig:"TERMHOST_CWD"`
	Cols            int    `envconfig:"TERMHOST_COLS" default:"80"`
	Rows            int    `envconfig:"TERMHOST_ROWS" default:"24"`
	ScrollbackLines int    `envconfig:"TERMHOST_SCROLLBACK_LINES" default:"1000"`
}

// BufferConfig holds output coalescing thresholds.
type BufferConfig struct {
	FlushInterval       time.Duration `envconfig:"TERMHOST_FLUSH_INTERVAL" default:"16ms"`
	AgentFlushInterval  time.Duration `envconfig:"TERMHOST_AGENT_FLUSH_INTERVAL" default:"4ms"`
	ImmediateFlushBytes int           `envconfig:"TERMHOST_IMMEDIATE_FLUSH_BYTES" default:"1000"`
	MaxChunks           int           `envconfig:"TERMHOST_MAX_CHUNKS" default:"50"`
	MaxBytes            int           `envconfig:"TERMHOST_MAX_BUFFER_BYTES" default:"262144"`
}

// DispatcherConfig holds surface messaging configuration.
type DispatcherConfig struct {
	QueueCapacity     int           `envconfig:"TERMHOST_QUEUE_CAPACITY" default:"1000"`
	MaxSendRetries    int           `envconfig:"TERMHOST_MAX_SEND_RETRIES" default:"3"`
	SendRetryDelay    time.Duration `envconfig:"TERMHOST_SEND_RETRY_DELAY" default:"100ms"`
	DeleteTimeout     time.Duration `envconfig:"TERMHOST_DELETE_TIMEOUT" default:"5s"`
	HandshakeBase     time.Duration `envconfig:"TERMHOST_HANDSHAKE_BASE" default:"200ms"`
	HandshakeAttempts int           `envconfig:"TERMHOST_HANDSHAKE_ATTEMPTS" default:"4"`
}

// SessionConfig holds session persistence configuration.
type SessionConfig struct {
	Enabled           bool          `envconfig:"TERMHOST_SESSION_ENABLED" default:"true"`
	ScrollbackEnabled bool          `envconfig:"TERMHOST_SESSION_SCROLLBACK" default:"true"`
	StorePath         string        `envconfig:"TERMHOST_SESSION_DIR"`
	Expiry            time.Duration `envconfig:"TERMHOST_SESSION_EXPIRY" default:"168h"`
	RestoreAttempts   int           `envconfig:"TERMHOST_RESTORE_ATTEMPTS" default:"10"`
	RestoreInterval   time.Duration `envconfig:"TERMHOST_RESTORE_INTERVAL" default:"200ms"`
	AutosaveDelay     time.Duration `envconfig:"TERMHOST_AUTOSAVE_DELAY" default:"2s"`
	AutosaveGrace     time.Duration `envconfig:"TERMHOST_AUTOSAVE_GRACE" default:"1s"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8000",
			Host:          "127.0.0.1",
			ShutdownGrace: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
			InputPerSecond:    500,
			InputBurst:        1000,
		},
		Terminal: TerminalConfig{
			MaxTerminals:    5,
			Cols:            80,
			Rows:            24,
			ScrollbackLines: 1000,
		},
		Buffer: BufferConfig{
			FlushInterval:       16 * time.Millisecond,
			AgentFlushInterval:  4 * time.Millisecond,
			ImmediateFlushBytes: 1000,
			MaxChunks:           50,
			MaxBytes:            256 * 1024,
		},
		Dispatcher: DispatcherConfig{
			QueueCapacity:     1000,
			MaxSendRetries:    3,
			SendRetryDelay:    100 * time.Millisecond,
			DeleteTimeout:     5 * time.Second,
			HandshakeBase:     200 * time.Millisecond,
			HandshakeAttempts: 4,
		},
		Session: SessionConfig{
			Enabled:           true,
			ScrollbackEnabled: true,
			Expiry:            7 * 24 * time.Hour,
			RestoreAttempts:   10,
			RestoreInterval:   200 * time.Millisecond,
			AutosaveDelay:     2 * time.Second,
			AutosaveGrace:     time.Second,
		},
	}
}

// Validate rejects values the components cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Terminal.MaxTerminals <= 0:
		return fmt.Errorf("config: terminal.maxTerminals must be positive, got %d", c.Terminal.MaxTerminals)
	case c.Terminal.Cols <= 0 || c.Terminal.Rows <= 0:
		return fmt.Errorf("config: terminal dimensions must be positive, got %dx%d", c.Terminal.Cols, c.Terminal.Rows)
	case c.Buffer.FlushInterval <= 0:
		return fmt.Errorf("config: buffer.flushInterval must be positive")
	case c.Dispatcher.HandshakeAttempts <= 0:
		return fmt.Errorf("config: dispatcher.handshakeAttempts must be positive")
	case c.Session.RestoreAttempts <= 0:
		return fmt.Errorf("config: session.restoreAttempts must be positive")
	}
	return nil
}
