// Package session saves and restores the set of open terminals.
//
// A snapshot records each live terminal's identity, dimensions and,
// optionally, its scrollback. Restoring recreates the terminals in their
// saved order under their saved ids, activates the saved active terminal
// and replays scrollback into the surface. Autosave runs on registry
// changes and is suppressed while a restore is replaying.
package session
