package terminal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/termhost/internal/terminal/process"
	"github.com/GriffinCanCode/termhost/internal/terminal/state"
)

type fakeProc struct {
	mu       sync.Mutex
	pid      int
	writes   []string
	failing  bool
	killErr  error
	killed   bool
	resized  [2]int
	redraws  int
	callback process.Callbacks
	reopen   bool
	dup      *fakeProc
}

func (p *fakeProc) Reopen() (process.Process, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.reopen {
		return nil, errors.New("reopen not supported")
	}
	p.dup = &fakeProc{pid: p.pid, callback: p.callback}
	return p.dup, nil
}

func (p *fakeProc) secondary() *fakeProc {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dup
}

func (p *fakeProc) written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes...)
}

func (p *fakeProc) setFailing(v bool) {
	p.mu.Lock()
	p.failing = v
	p.mu.Unlock()
}

func (p *fakeProc) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing {
		return 0, errors.New("broken pipe")
	}
	p.writes = append(p.writes, string(b))
	return len(b), nil
}

func (p *fakeProc) Resize(cols, rows int) error {
	p.mu.Lock()
	p.resized = [2]int{cols, rows}
	p.mu.Unlock()
	return nil
}

func (p *fakeProc) Redraw() error {
	p.mu.Lock()
	p.redraws++
	p.mu.Unlock()
	return nil
}

func (p *fakeProc) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.killErr != nil {
		return p.killErr
	}
	p.killed = true
	return nil
}

func (p *fakeProc) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *fakeProc) emit(s string) { p.callback.OnData([]byte(s)) }
func (p *fakeProc) exit(code int) { p.callback.OnExit(code) }

type fakeSpawner struct {
	mu     sync.Mutex
	procs  map[string]*fakeProc
	opts   []process.SpawnOptions
	fail   error
	next   int
	reopen bool
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{procs: make(map[string]*fakeProc), next: 1000}
}

func (s *fakeSpawner) Spawn(_ context.Context, opts process.SpawnOptions, cb process.Callbacks) (process.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	s.next++
	p := &fakeProc{pid: s.next, callback: cb, reopen: s.reopen}
	s.procs[opts.Env["TERMHOST_TERMINAL_ID"]] = p
	s.opts = append(s.opts, opts)
	return p, nil
}

func (s *fakeSpawner) proc(id string) *fakeProc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[id]
}

type surfaceEvent struct {
	kind string
	id   string
	data string
}

type fakeSurface struct {
	mu         sync.Mutex
	events     []surfaceEvent
	registered []string
}

func (f *fakeSurface) TerminalRegistered(id string) {
	f.mu.Lock()
	f.registered = append(f.registered, id)
	f.mu.Unlock()
}

func (f *fakeSurface) add(kind, id, data string) {
	f.mu.Lock()
	f.events = append(f.events, surfaceEvent{kind, id, data})
	f.mu.Unlock()
}

func (f *fakeSurface) TerminalCreated(t state.Terminal, cfg SurfaceConfig) {
	f.add("created", t.ID, fmt.Sprintf("%d %dx%d", t.Number, cfg.Cols, cfg.Rows))
}
func (f *fakeSurface) Output(id, data string)          { f.add("output", id, data) }
func (f *fakeSurface) ActiveChanged(id string)         { f.add("active", id, "") }
func (f *fakeSurface) TerminalExited(id string, c int) { f.add("exited", id, fmt.Sprint(c)) }
func (f *fakeSurface) TerminalRemoved(id string)       { f.add("removed", id, "") }
func (f *fakeSurface) Warn(msg string)                 { f.add("warn", "", msg) }

func (f *fakeSurface) kinds(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		if id == "" || e.id == id {
			out = append(out, e.kind)
		}
	}
	return out
}

func (f *fakeSurface) find(kind string) []surfaceEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []surfaceEvent
	for _, e := range f.events {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}
