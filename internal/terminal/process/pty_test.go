//go:build !windows

package process

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPTYSpawnerRunsShell(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}

	var (
		mu     sync.Mutex
		output strings.Builder
	)
	exited := make(chan int, 1)

	spawner := NewPTYSpawner(nil)
	p, err := spawner.Spawn(context.Background(), SpawnOptions{
		Shell: "/bin/sh",
		Args:  []string{"-c", "echo termhost-ready"},
		Cwd:   t.TempDir(),
		Cols:  80,
		Rows:  24,
	}, Callbacks{
		OnData: func(b []byte) {
			mu.Lock()
			output.Write(b)
			mu.Unlock()
		},
		OnExit: func(code int) { exited <- code },
	})
	require.NoError(t, err)
	assert.Greater(t, p.Pid(), 0)

	select {
	case code := <-exited:
		assert.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		_ = p.Kill()
		t.Fatal("shell did not exit")
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return strings.Contains(output.String(), "termhost-ready")
	}, time.Second, 10*time.Millisecond)

	_, err = p.Write([]byte("ignored"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestPTYSpawnerRejectsBadDimensions(t *testing.T) {
	_, err := NewPTYSpawner(nil).Spawn(context.Background(), SpawnOptions{Cols: 900, Rows: 24}, Callbacks{})
	var dim *DimensionError
	assert.ErrorAs(t, err, &dim)
}

func TestPTYReopenWritesThroughDuplicate(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}

	var (
		mu     sync.Mutex
		output strings.Builder
	)
	exited := make(chan int, 1)

	p, err := NewPTYSpawner(nil).Spawn(context.Background(), SpawnOptions{
		Shell: "/bin/sh",
		Args:  []string{"-c", "read line; echo got:$line"},
		Cwd:   t.TempDir(),
		Cols:  80,
		Rows:  24,
	}, Callbacks{
		OnData: func(b []byte) {
			mu.Lock()
			output.Write(b)
			mu.Unlock()
		},
		OnExit: func(code int) { exited <- code },
	})
	require.NoError(t, err)

	r, ok := p.(Reopener)
	require.True(t, ok)
	dup, err := r.Reopen()
	require.NoError(t, err)
	assert.Equal(t, p.Pid(), dup.Pid())

	_, err = dup.Write([]byte("duplicate\n"))
	require.NoError(t, err)

	select {
	case code := <-exited:
		assert.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		_ = p.Kill()
		t.Fatal("shell did not exit")
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return strings.Contains(output.String(), "got:duplicate")
	}, time.Second, 10*time.Millisecond)

	_, err = dup.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
	_, err = r.Reopen()
	assert.ErrorIs(t, err, os.ErrClosed)
}
