// Package main is the entry point for the terminal host server.
//
// The server owns the shell processes behind every terminal and talks to a
// rendering surface over a WebSocket at /ws. A REST control API and
// Prometheus metrics are served on the same listener.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//   - An optional YAML or TOML overlay (-config) for runtime settings
//
// Usage:
//
//	# Persist sessions to disk
//	./server -port 8000 -session-dir ~/.local/state/termhost
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: save the session and shut down gracefully
package main
