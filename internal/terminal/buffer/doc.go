// Package buffer coalesces PTY output into per-frame batches.
//
// Each terminal has a list of pending chunks and at most one flush timer.
// Chunks submitted within one flush interval are delivered as a single
// concatenated payload, in submission order. Large chunks and full queues
// flush immediately. The interval drops from ~16ms to ~4ms while agent mode
// is active, and toggling the mode flushes every terminal at once.
package buffer
