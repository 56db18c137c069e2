// Package terminal coordinates the per-terminal components.
//
// Service ties together the lifecycle machines, the state registry, process
// managers, output buffering and backend scrollback for every terminal. It
// is the capability surface message handlers call into: create, delete,
// write, resize and focus. Rendering-surface notifications go out through
// the Surface interface.
//
// Creation moves a terminal Creating → Initializing → Ready and announces it
// to the surface; focus moves it to Active. Deletion moves it to Closing,
// kills the process and unregisters it; a kill failure rolls the lifecycle
// back. A process that exits on its own is removed the same way.
package terminal
