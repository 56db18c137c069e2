package buffer

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/termhost/internal/shared/clock"
)

type recorder struct {
	mu      sync.Mutex
	flushes []Flush
}

func (r *recorder) record(f Flush) {
	r.mu.Lock()
	r.flushes = append(r.flushes, f)
	r.mu.Unlock()
}

func (r *recorder) all() []Flush {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Flush(nil), r.flushes...)
}

func newTestService(t *testing.T) (*Service, *clock.Fake, *recorder) {
	t.Helper()
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := NewService(Options{Clock: fake})
	rec := &recorder{}
	svc.OnFlush(rec.record)
	return svc, fake, rec
}

func TestChunksWithinIntervalCoalesce(t *testing.T) {
	svc, fake, rec := newTestService(t)

	chunks := []string{"a", "bc", "\x1b[31mred\x1b[0m", "def"}
	for _, c := range chunks {
		require.NoError(t, svc.BufferData("term_1", c))
	}
	assert.Empty(t, rec.all())

	fake.Advance(16 * time.Millisecond)

	flushes := rec.all()
	require.Len(t, flushes, 1)
	assert.Equal(t, strings.Join(chunks, ""), flushes[0].Data)
	assert.Equal(t, len(chunks), flushes[0].Chunks)
	assert.Equal(t, TriggerTimer, flushes[0].Trigger)
	assert.Equal(t, "term_1", flushes[0].TerminalID)
}

func TestEmptyFlushEmitsNothing(t *testing.T) {
	svc, fake, rec := newTestService(t)

	svc.FlushBuffer("term_1")
	require.NoError(t, svc.BufferData("term_1", "x"))
	svc.FlushBuffer("term_1")
	svc.FlushBuffer("term_1")
	fake.Advance(time.Second)

	assert.Len(t, rec.all(), 1)
}

func TestLargeChunkFlushesImmediately(t *testing.T) {
	svc, _, rec := newTestService(t)

	require.NoError(t, svc.BufferData("term_1", "prefix-"))
	require.NoError(t, svc.BufferData("term_1", strings.Repeat("x", 1000)))

	flushes := rec.all()
	require.Len(t, flushes, 1)
	assert.Equal(t, TriggerImmediate, flushes[0].Trigger)
	assert.True(t, strings.HasPrefix(flushes[0].Data, "prefix-"))
	assert.Equal(t, 0, svc.Pending("term_1"))
}

func TestFullQueueFlushesImmediately(t *testing.T) {
	svc, _, rec := newTestService(t)

	for i := 0; i < 49; i++ {
		require.NoError(t, svc.BufferData("term_1", "."))
	}
	assert.Empty(t, rec.all())
	require.NoError(t, svc.BufferData("term_1", "."))

	flushes := rec.all()
	require.Len(t, flushes, 1)
	assert.Equal(t, 50, flushes[0].Chunks)
}

func TestTimerCancelledByImmediateFlush(t *testing.T) {
	svc, fake, rec := newTestService(t)

	require.NoError(t, svc.BufferData("term_1", "a"))
	require.NoError(t, svc.BufferData("term_1", strings.Repeat("b", 1200)))
	fake.Advance(time.Second)

	assert.Len(t, rec.all(), 1)
	assert.Zero(t, fake.Pending())
}

func TestTerminalsAreIndependent(t *testing.T) {
	svc, fake, rec := newTestService(t)

	require.NoError(t, svc.BufferData("term_a", "1"))
	require.NoError(t, svc.BufferData("term_b", "2"))
	require.NoError(t, svc.BufferData("term_a", "3"))
	fake.Advance(16 * time.Millisecond)

	got := map[string]string{}
	for _, f := range rec.all() {
		got[f.TerminalID] = f.Data
	}
	assert.Equal(t, map[string]string{"term_a": "13", "term_b": "2"}, got)
}

func TestAgentModeChangesIntervalAndFlushes(t *testing.T) {
	svc, fake, rec := newTestService(t)

	require.NoError(t, svc.BufferData("term_1", "pending"))
	svc.SetAgentActive(true)

	flushes := rec.all()
	require.Len(t, flushes, 1)
	assert.Equal(t, TriggerMode, flushes[0].Trigger)
	assert.Equal(t, 4*time.Millisecond, svc.FlushInterval())

	require.NoError(t, svc.BufferData("term_1", "fast"))
	fake.Advance(4 * time.Millisecond)
	require.Len(t, rec.all(), 2)

	svc.SetAgentActive(true)
	assert.Len(t, rec.all(), 2)

	svc.SetAgentActive(false)
	assert.Equal(t, 16*time.Millisecond, svc.FlushInterval())
}

func TestClearTerminalBuffer(t *testing.T) {
	svc, fake, rec := newTestService(t)

	require.NoError(t, svc.BufferData("term_1", "last words"))
	svc.ClearTerminalBuffer("term_1")

	flushes := rec.all()
	require.Len(t, flushes, 1)
	assert.Equal(t, "last words", flushes[0].Data)
	assert.Zero(t, fake.Pending())

	fake.Advance(time.Second)
	assert.Len(t, rec.all(), 1)
}

func TestDispose(t *testing.T) {
	svc, _, rec := newTestService(t)

	require.NoError(t, svc.BufferData("term_1", "tail"))
	svc.Dispose()

	assert.Len(t, rec.all(), 1)
	assert.ErrorIs(t, svc.BufferData("term_1", "more"), ErrDisposed)
}

func TestUpdateConfig(t *testing.T) {
	svc, _, rec := newTestService(t)

	svc.UpdateConfig(Config{ImmediateFlushBytes: 4})
	assert.Equal(t, 4, svc.Config().ImmediateFlushBytes)
	assert.Equal(t, 50, svc.Config().MaxChunks)

	require.NoError(t, svc.BufferData("term_1", "abcd"))
	assert.Len(t, rec.all(), 1)
}

func TestEmptyInputs(t *testing.T) {
	svc, fake, rec := newTestService(t)

	assert.Error(t, svc.BufferData("", "x"))
	require.NoError(t, svc.BufferData("term_1", ""))
	fake.Advance(time.Second)
	assert.Empty(t, rec.all())
}
