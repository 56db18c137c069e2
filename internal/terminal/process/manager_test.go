package process

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/termhost/internal/shared/apperrors"
	"github.com/GriffinCanCode/termhost/internal/shared/clock"
)

func fastOptions() Options {
	return Options{
		RetryDelay:   5 * time.Millisecond,
		PollInterval: time.Millisecond,
	}
}

func TestWriteWithoutProcess(t *testing.T) {
	m := NewManager("term_1", Options{})
	assert.ErrorIs(t, m.Write([]byte("ls\n")), ErrNotReady)
}

func TestWriteInvalidHandle(t *testing.T) {
	m := NewManager("term_1", Options{})
	m.Attach(newFakeProcess(0))
	assert.ErrorIs(t, m.Write([]byte("ls\n")), ErrProcessInvalid)

	p := newFakeProcess(42)
	m.Attach(p)
	require.NoError(t, m.Kill())
	assert.ErrorIs(t, m.Write([]byte("ls\n")), ErrProcessInvalid)
}

func TestWriteCapturesNativeFailure(t *testing.T) {
	m := NewManager("term_1", Options{})
	p := newFakeProcess(42)
	p.failures = 1
	m.Attach(p)

	err := m.Write([]byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errEIO)
	assert.Equal(t, apperrors.KindTransientIO, apperrors.KindOf(err))

	require.NoError(t, m.Write([]byte("x")))
	assert.Equal(t, 1, p.writeCount())
}

func TestWriteSizeLimit(t *testing.T) {
	m := NewManager("term_1", Options{MaxWriteBytes: 4})
	m.Attach(newFakeProcess(42))
	err := m.Write([]byte("12345"))
	assert.ErrorIs(t, err, ErrDataTooLarge)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestResizeValidation(t *testing.T) {
	tests := []struct {
		name       string
		cols, rows int
		wantErr    bool
	}{
		{"zero cols", 0, 10, true},
		{"negative rows", 80, -1, true},
		{"too wide", 501, 10, true},
		{"too tall", 80, 201, true},
		{"standard", 80, 24, false},
		{"limit", 500, 200, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProcess(42)
			m := NewManager("term_1", Options{Clock: clock.NewFake(time.Now())})
			m.Attach(p)

			err := m.Resize(tt.cols, tt.rows)
			if tt.wantErr {
				var dim *DimensionError
				require.ErrorAs(t, err, &dim)
				assert.Equal(t, tt.cols, dim.Cols)
				assert.Empty(t, p.resizes)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, [][2]int{{tt.cols, tt.rows}}, p.resizes)
		})
	}
}

func TestResizeSchedulesRedraw(t *testing.T) {
	fake := clock.NewFake(time.Now())
	p := newFakeProcess(42)
	m := NewManager("term_1", Options{Clock: fake})
	m.Attach(p)

	require.NoError(t, m.Resize(80, 24))
	fake.Advance(49 * time.Millisecond)
	assert.Equal(t, 0, p.redrawCount())
	fake.Advance(time.Millisecond)
	assert.Equal(t, 1, p.redrawCount())
}

func TestKillCancelsPendingRedraw(t *testing.T) {
	fake := clock.NewFake(time.Now())
	p := newFakeProcess(42)
	m := NewManager("term_1", Options{Clock: fake})
	m.Attach(p)

	require.NoError(t, m.Resize(100, 30))
	require.NoError(t, m.Kill())
	fake.Advance(time.Second)

	assert.Equal(t, 0, p.redrawCount())
	assert.True(t, p.killed)
	assert.False(t, m.IsAlive())
}

func TestResizeDeadProcess(t *testing.T) {
	m := NewManager("term_1", Options{})
	m.Attach(newFakeProcess(42))
	m.MarkExited()
	assert.ErrorIs(t, m.Resize(80, 24), ErrProcessInvalid)
}

func TestIsAlive(t *testing.T) {
	m := NewManager("term_1", Options{})
	assert.False(t, m.IsAlive())

	m.Attach(newFakeProcess(7))
	assert.True(t, m.IsAlive())
	assert.Equal(t, 7, m.Pid())
}

func TestRetryWriteRecoversAfterFailures(t *testing.T) {
	p := newFakeProcess(42)
	p.failures = 2
	m := NewManager("term_1", fastOptions())
	m.Attach(p)

	require.NoError(t, m.RetryWrite(context.Background(), []byte("echo hi\n"), 3))
	assert.Equal(t, 1, p.writeCount())
}

func TestRetryWriteExhausted(t *testing.T) {
	p := newFakeProcess(42)
	p.failures = 10
	m := NewManager("term_1", fastOptions())
	m.Attach(p)

	err := m.RetryWrite(context.Background(), []byte("x"), 3)
	var retryErr *RetryError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, 3, retryErr.Attempts)
	assert.ErrorIs(t, err, errEIO)
	assert.Contains(t, err.Error(), "3 attempts")
}

func TestRetryWriteWaitsForReadiness(t *testing.T) {
	p := newFakeProcess(0)
	m := NewManager("term_1", Options{RetryDelay: 20 * time.Millisecond, PollInterval: time.Millisecond})
	m.Attach(p)

	go func() {
		time.Sleep(25 * time.Millisecond)
		p.setPid(42)
	}()

	require.NoError(t, m.RetryWrite(context.Background(), []byte("x"), 3))
	assert.Equal(t, 1, p.writeCount())
}

func TestRetryWriteStopsOnValidationError(t *testing.T) {
	p := newFakeProcess(42)
	m := NewManager("term_1", Options{MaxWriteBytes: 1, RetryDelay: time.Hour})
	m.Attach(p)

	err := m.RetryWrite(context.Background(), []byte("too long"), 3)
	assert.ErrorIs(t, err, ErrDataTooLarge)
}

func TestRetryWriteHonoursContext(t *testing.T) {
	p := newFakeProcess(42)
	p.failures = 10
	m := NewManager("term_1", Options{RetryDelay: time.Hour})
	m.Attach(p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.RetryWrite(ctx, []byte("x"), 3), context.Canceled)
}

func TestAttemptRecovery(t *testing.T) {
	primary := newFakeProcess(0)
	secondary := newFakeProcess(99)
	m := NewManager("term_1", Options{})
	m.Attach(primary)

	assert.ErrorIs(t, m.AttemptRecovery(), ErrNoSecondary)

	m.SetSecondary(primary)
	assert.ErrorIs(t, m.AttemptRecovery(), ErrNoSecondary)

	m.SetSecondary(secondary)
	require.NoError(t, m.AttemptRecovery())
	assert.Equal(t, 99, m.Pid())
	assert.True(t, m.IsAlive())

	require.NoError(t, m.Write([]byte("y")))
	assert.Equal(t, 2, secondary.writeCount())
	assert.ErrorIs(t, m.AttemptRecovery(), ErrNoSecondary)
}

func TestAttemptRecoverySecondaryWriteFails(t *testing.T) {
	secondary := newFakeProcess(5)
	secondary.failures = 1
	m := NewManager("term_1", Options{})
	m.Attach(newFakeProcess(0))
	m.SetSecondary(secondary)

	err := m.AttemptRecovery()
	require.Error(t, err)
	assert.Equal(t, 0, m.Pid())
}

func TestAttachOpensSecondaryFromReopener(t *testing.T) {
	tests := []struct {
		name      string
		reopenErr error
		wantErr   error
	}{
		{name: "reopen succeeds"},
		{name: "reopen fails", reopenErr: errors.New("not supported"), wantErr: ErrNoSecondary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &reopeningProcess{fakeProcess: newFakeProcess(10), nextPid: 10, err: tt.reopenErr}
			primary.failures = 10
			m := NewManager("term_1", Options{})
			m.Attach(primary)

			err := m.AttemptRecovery()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, primary.opened, 1)
			assert.Equal(t, 11, m.Pid())

			require.NoError(t, m.Write([]byte("ls\n")))
			assert.Equal(t, 2, primary.opened[0].writeCount())

			require.NoError(t, m.AttemptRecovery(), "promotion reopens a fresh secondary")
			assert.Equal(t, 12, m.Pid())
		})
	}
}
