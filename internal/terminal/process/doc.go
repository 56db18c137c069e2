// Package process owns the pseudo-terminal process behind each terminal.
//
// A Manager wraps one terminal's process handle and guards every operation
// with a liveness check: writes and resizes against a missing or killed
// process fail with classified errors instead of reaching the OS. Writes can
// be retried with a fixed backoff, and a secondary handle can replace a stale
// primary through AttemptRecovery.
//
// PTYSpawner starts shells under a real pseudo-terminal using creack/pty.
package process
