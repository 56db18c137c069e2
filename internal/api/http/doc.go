// Package http exposes the terminal host over a REST control API.
//
// Routes:
//   - GET    /health
//   - GET    /api/terminals
//   - POST   /api/terminals
//   - DELETE /api/terminals/:id
//   - POST   /api/terminals/:id/input | resize | focus
//   - POST   /api/session/save | restore
//   - GET    /api/diagnostics
//   - POST   /api/logs
//
// Errors are returned as {"error": "..."} with a status derived from the
// error's apperrors kind (see StatusFor).
package http
