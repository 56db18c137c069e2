// Package config provides 12-factor configuration for the terminal host.
//
// Configuration is loaded from environment variables with defaults. CLI
// flags may override the environment, and a YAML or TOML file can overlay
// the runtime-tunable settings through a Provider.
//
// Configuration Sections:
//   - Server: HTTP listen address, allowed origins, shutdown grace
//   - Logging: log level and output format
//   - RateLimit: per-IP HTTP limits and per-connection input limits
//   - Terminal: pool size, default shell, dimensions, scrollback length
//   - Buffer: output coalescing thresholds
//   - Dispatcher: surface queue, send retry and handshake settings
//   - Session: persistence, expiry, replay and autosave timing
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	p := config.NewProvider(cfg, logger)
//	p.OnChange(func(c config.Change) { ... })
//	_ = p.LoadFile("termhost.yaml")
package config
