// Package dispatch carries the message protocol between the backend and the
// rendering surface.
//
// Inbound messages are JSON records with a "command" discriminator, routed
// through a handler table that is built once. Outbound messages go through
// a bounded three-tier priority queue drained by a single flusher, so the
// queue survives transport disconnects and failed sends are retried a
// bounded number of times.
//
// Each new terminal goes through a creation handshake: its output is held
// until the surface acknowledges with startOutput, while the dispatcher
// re-announces initializationComplete on an exponential schedule.
package dispatch
