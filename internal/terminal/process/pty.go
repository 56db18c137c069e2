package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termhost/internal/logging"
)

const (
	readBufferSize = 4096
	drainTimeout   = time.Second
)

// PTYSpawner starts shells attached to a pseudo-terminal.
type PTYSpawner struct {
	logger *zap.Logger
}

// NewPTYSpawner creates a spawner.
func NewPTYSpawner(logger *zap.Logger) *PTYSpawner {
	return &PTYSpawner{logger: logging.Component(logger, "pty")}
}

// Spawn starts the shell described by opts. Output is delivered to
// cb.OnData from a reader goroutine until the pty closes; cb.OnExit runs
// once after the child has been reaped.
func (s *PTYSpawner) Spawn(ctx context.Context, opts SpawnOptions, cb Callbacks) (Process, error) {
	shell := opts.Shell
	if shell == "" {
		shell = DefaultShell()
	}
	cwd := opts.Cwd
	if cwd == "" {
		cwd = DefaultCwd()
	}
	cols, rows := opts.Cols, opts.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	if err := ValidateDimensions(cols, rows); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, shell, opts.Args...)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), "TERM=xterm-256color", "COLORTERM=truecolor")
	for key, value := range opts.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}

	p := &ptyProcess{cmd: cmd, ptmx: ptmx, drained: make(chan struct{})}
	logger := s.logger.With(zap.Int("pid", p.Pid()), zap.String("shell", shell))
	logger.Debug("pty started")

	go p.readOutput(cb.OnData, logger)
	go p.monitor(cb.OnExit, logger)
	return p, nil
}

// DefaultShell returns $SHELL or /bin/bash.
func DefaultShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/bash"
}

// DefaultCwd returns $HOME or the temp directory.
func DefaultCwd() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	return os.TempDir()
}

type ptyProcess struct {
	cmd  *exec.Cmd
	ptmx *os.File
	// drained closes once the reader goroutine has returned.
	drained chan struct{}

	mu     sync.Mutex
	closed bool
	dups   []*ptyProcess
}

// Reopen returns a second handle on the same child backed by a duplicate
// of the pty master descriptor. Output is still read through p.
func (p *ptyProcess) Reopen() (Process, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, os.ErrClosed
	}
	f, err := dupFile(p.ptmx)
	if err != nil {
		return nil, fmt.Errorf("duplicate pty master: %w", err)
	}
	h := &ptyProcess{cmd: p.cmd, ptmx: f, drained: p.drained}
	p.dups = append(p.dups, h)
	return h, nil
}

// closeDups closes every handle opened by Reopen.
func (p *ptyProcess) closeDups() {
	p.mu.Lock()
	dups := p.dups
	p.dups = nil
	p.mu.Unlock()
	for _, d := range dups {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		d.ptmx.Close()
	}
}

func (p *ptyProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *ptyProcess) Write(b []byte) (int, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, os.ErrClosed
	}
	if len(b) == 0 {
		return 0, nil
	}
	return p.ptmx.Write(b)
}

func (p *ptyProcess) Resize(cols, rows int) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

func (p *ptyProcess) Redraw() error {
	if p.cmd.Process == nil {
		return os.ErrProcessDone
	}
	return sendRedraw(p.cmd.Process)
}

func (p *ptyProcess) Kill() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var err error
	if p.cmd.Process != nil {
		if kerr := p.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = kerr
		}
	}
	if cerr := p.ptmx.Close(); cerr != nil && err == nil && !errors.Is(cerr, os.ErrClosed) {
		err = cerr
	}
	p.closeDups()
	return err
}

func (p *ptyProcess) readOutput(onData func([]byte), logger *zap.Logger) {
	defer close(p.drained)
	buf := make([]byte, readBufferSize)
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 && onData != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onData(chunk)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				logger.Debug("pty read ended", zap.Error(err))
			}
			return
		}
	}
}

func (p *ptyProcess) monitor(onExit func(int), logger *zap.Logger) {
	err := p.cmd.Wait()
	code := 0
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	} else if err != nil {
		code = -1
	}

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	// Let the reader drain output the child wrote before exiting.
	select {
	case <-p.drained:
	case <-time.After(drainTimeout):
	}
	p.ptmx.Close()
	p.closeDups()

	logger.Debug("pty exited", zap.Int("code", code))
	if onExit != nil {
		onExit(code)
	}
}
