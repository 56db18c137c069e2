package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/termhost/internal/terminal"
	"github.com/GriffinCanCode/termhost/internal/terminal/process"
)

// eagerSpawner emits output from inside Spawn, before the service has
// announced the terminal.
type eagerSpawner struct {
	data []byte
	err  error
}

func (s eagerSpawner) Spawn(_ context.Context, _ process.SpawnOptions, cb process.Callbacks) (process.Process, error) {
	if s.err != nil {
		return nil, s.err
	}
	if cb.OnData != nil {
		cb.OnData(s.data)
	}
	return stubProcess{}, nil
}

type stubProcess struct{}

func (stubProcess) Write(b []byte) (int, error) { return len(b), nil }
func (stubProcess) Resize(int, int) error       { return nil }
func (stubProcess) Redraw() error               { return nil }
func (stubProcess) Kill() error                 { return nil }
func (stubProcess) Pid() int                    { return 4242 }

func (h *harness) service(spawner process.Spawner) *terminal.Service {
	svc := terminal.NewService(terminal.Options{
		MaxTerminals: 3,
		Shell:        "/bin/sh",
		Cwd:          "/work",
		Spawner:      spawner,
		Clock:        h.clock,
		Metrics:      h.metrics,
	})
	svc.SetSurface(h.d)
	return svc
}

func TestOutputBeforeCreationIsHeld(t *testing.T) {
	h := newHarness(t)
	banner := strings.Repeat("a", 1200)
	svc := h.service(eagerSpawner{data: []byte(banner)})

	term, err := svc.CreateTerminal(context.Background(), terminal.CreateOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{CmdTerminalCreated, CmdSetActiveTerminal}, h.transport.commands())
	status, ok := h.d.Handshake(term.ID)
	require.True(t, ok)
	assert.False(t, status.Acked)
	assert.Equal(t, 1200, status.PendingBytes)

	require.NoError(t, h.handle(t, Message{Command: CmdStartOutput, TerminalID: term.ID}))
	out := h.transport.find(CmdOutput)
	require.Len(t, out, 1)
	assert.Equal(t, term.ID, out[0].TerminalID)
	assert.Equal(t, banner, out[0].Data)
}

func TestSpawnFailureIsNotAnnounced(t *testing.T) {
	h := newHarness(t)
	svc := h.service(eagerSpawner{err: errors.New("exec: no such file")})

	_, err := svc.CreateTerminal(context.Background(), terminal.CreateOptions{})
	require.Error(t, err)

	assert.Empty(t, h.transport.commands(), "a terminal that never spawned is not announced or removed")
}
