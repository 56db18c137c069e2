package process

import (
	"context"
)

// Process is a running pseudo-terminal child.
type Process interface {
	Write(p []byte) (int, error)
	Resize(cols, rows int) error
	// Redraw asks the child to repaint, typically by sending SIGWINCH.
	Redraw() error
	Kill() error
	Pid() int
}

// Reopener is implemented by processes that can open an independent
// handle on the same child. The process manager keeps one as the fallback
// for AttemptRecovery.
type Reopener interface {
	Reopen() (Process, error)
}

// SpawnOptions describes the process to start.
type SpawnOptions struct {
	Shell string
	Args  []string
	Cwd   string
	Env   map[string]string
	Cols  int
	Rows  int
}

// Callbacks receive process output and exit. They are invoked from the
// spawner's reader goroutine.
type Callbacks struct {
	OnData func(data []byte)
	OnExit func(code int)
}

// Spawner starts processes.
type Spawner interface {
	Spawn(ctx context.Context, opts SpawnOptions, cb Callbacks) (Process, error)
}
