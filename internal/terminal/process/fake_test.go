package process

import (
	"errors"
	"sync"
)

var errEIO = errors.New("input/output error")

type fakeProcess struct {
	mu        sync.Mutex
	pid       int
	writes    [][]byte
	failures  int
	resizes   [][2]int
	redraws   int
	killed    bool
	killErr   error
	resizeErr error
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid}
}

func (f *fakeProcess) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return 0, errEIO
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeProcess) Resize(cols, rows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resizeErr != nil {
		return f.resizeErr
	}
	f.resizes = append(f.resizes, [2]int{cols, rows})
	return nil
}

func (f *fakeProcess) Redraw() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redraws++
	return nil
}

func (f *fakeProcess) Kill() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.killErr != nil {
		return f.killErr
	}
	f.killed = true
	return nil
}

func (f *fakeProcess) Pid() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pid
}

func (f *fakeProcess) setPid(pid int) {
	f.mu.Lock()
	f.pid = pid
	f.mu.Unlock()
}

func (f *fakeProcess) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeProcess) redrawCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.redraws
}

// reopeningProcess hands out fresh fakeProcess handles from Reopen.
type reopeningProcess struct {
	*fakeProcess
	nextPid int
	err     error
	opened  []*fakeProcess
}

func (r *reopeningProcess) Reopen() (Process, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.nextPid++
	h := &reopeningProcess{fakeProcess: newFakeProcess(r.nextPid), nextPid: r.nextPid}
	r.opened = append(r.opened, h.fakeProcess)
	return h, nil
}
