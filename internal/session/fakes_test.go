package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/termhost/internal/terminal"
	"github.com/GriffinCanCode/termhost/internal/terminal/process"
	"github.com/GriffinCanCode/termhost/internal/terminal/state"
)

type fakeWorkspace struct {
	mu         sync.Mutex
	terms      []state.Terminal
	active     string
	scrollback map[string]string
	created    []terminal.CreateOptions
	focused    []string
	failIDs    map[string]bool
	onCreate   func()
}

func newFakeWorkspace() *fakeWorkspace {
	return &fakeWorkspace{scrollback: map[string]string{}, failIDs: map[string]bool{}}
}

func (w *fakeWorkspace) add(id string, number int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.terms = append(w.terms, state.Terminal{
		ID:     id,
		Name:   fmt.Sprintf("Terminal %d", number),
		Number: number,
		Cwd:    "/home/dev",
		Shell:  "/bin/zsh",
	})
}

func (w *fakeWorkspace) Terminals() []state.Terminal {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]state.Terminal, len(w.terms))
	for i, t := range w.terms {
		t.IsActive = t.ID == w.active
		out[i] = t
	}
	return out
}

func (w *fakeWorkspace) CreateTerminal(_ context.Context, opts terminal.CreateOptions) (state.Terminal, error) {
	if w.onCreate != nil {
		w.onCreate()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.created = append(w.created, opts)
	if w.failIDs[opts.ID] {
		return state.Terminal{}, fmt.Errorf("spawn failed for %s", opts.ID)
	}
	t := state.Terminal{ID: opts.ID, Name: opts.Name, Number: opts.Number, Cwd: opts.Cwd, Shell: opts.Shell}
	w.terms = append(w.terms, t)
	if w.active == "" {
		w.active = t.ID
	}
	return t, nil
}

func (w *fakeWorkspace) FocusTerminal(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.focused = append(w.focused, id)
	w.active = id
	return nil
}

func (w *fakeWorkspace) Scrollback(id string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.scrollback[id]
	return s, ok
}

func (w *fakeWorkspace) Dimensions(id string) (int, int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.terms {
		if t.ID == id {
			return 120, 40, true
		}
	}
	return 0, 0, false
}

type replayCall struct {
	id      string
	content string
}

type fakeReplayer struct {
	mu        sync.Mutex
	replays   []replayCall
	requested []string
}

func (r *fakeReplayer) ReplayScrollback(id, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replays = append(r.replays, replayCall{id, content})
	return nil
}

func (r *fakeReplayer) RequestScrollback(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requested = append(r.requested, id)
	return nil
}

func (r *fakeReplayer) replaysFor(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.replays {
		if c.id == id {
			n++
		}
	}
	return n
}

type stubSpawner struct {
	mu   sync.Mutex
	next int
}

func (s *stubSpawner) Spawn(context.Context, process.SpawnOptions, process.Callbacks) (process.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return stubProcess(s.next), nil
}

type stubProcess int

func (stubProcess) Write(b []byte) (int, error) { return len(b), nil }
func (stubProcess) Resize(int, int) error       { return nil }
func (stubProcess) Redraw() error               { return nil }
func (stubProcess) Kill() error                 { return nil }
func (p stubProcess) Pid() int                  { return 3000 + int(p) }
