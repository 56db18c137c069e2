package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuePopsByPriorityThenFIFO(t *testing.T) {
	q := NewQueue(10)
	now := time.Now()
	push := func(cmd string, p Priority) {
		_, err := q.Push(Message{Command: cmd}, p, now)
		require.NoError(t, err)
	}
	push("low1", PriorityLow)
	push("normal1", PriorityNormal)
	push("high1", PriorityHigh)
	push("normal2", PriorityNormal)
	push("high2", PriorityHigh)

	var got []string
	for {
		item, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, item.Msg.Command)
	}
	assert.Equal(t, []string{"high1", "high2", "normal1", "normal2", "low1"}, got)
	assert.Zero(t, q.Len())
}

func TestQueueRejectsWhenFull(t *testing.T) {
	q := NewQueue(2)
	now := time.Now()
	_, err := q.Push(Message{Command: "a"}, PriorityLow, now)
	require.NoError(t, err)
	_, err = q.Push(Message{Command: "b"}, PriorityLow, now)
	require.NoError(t, err)

	_, err = q.Push(Message{Command: "c"}, PriorityHigh, now)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 2, q.Capacity())
}

func TestQueuePushFrontRestoresHead(t *testing.T) {
	q := NewQueue(2)
	now := time.Now()
	q.Push(Message{Command: "first"}, PriorityNormal, now)
	q.Push(Message{Command: "second"}, PriorityNormal, now)

	item, _ := q.Pop()
	item.Retries++
	q.Push(Message{Command: "third"}, PriorityNormal, now)
	q.PushFront(item)
	assert.Equal(t, 3, q.Len(), "requeue bypasses capacity")

	head, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "first", head.Msg.Command)
	assert.Equal(t, 1, head.Retries)
	assert.Equal(t, item.ID, head.ID)
}

func TestQueuePurgeTerminal(t *testing.T) {
	q := NewQueue(10)
	now := time.Now()
	q.Push(Message{Command: CmdOutput, TerminalID: "a"}, PriorityNormal, now)
	q.Push(Message{Command: CmdOutput, TerminalID: "b"}, PriorityNormal, now)
	q.Push(Message{Command: CmdInitializationComplete, TerminalID: "a"}, PriorityHigh, now)
	q.Push(Message{Command: CmdShowWarning}, PriorityHigh, now)

	assert.Equal(t, 2, q.PurgeTerminal("a"))
	assert.Equal(t, 2, q.Len())

	first, _ := q.Pop()
	second, _ := q.Pop()
	assert.Equal(t, CmdShowWarning, first.Msg.Command)
	assert.Equal(t, "b", second.Msg.TerminalID)
}

func TestQueueClampsPriority(t *testing.T) {
	q := NewQueue(0)
	assert.Equal(t, DefaultQueueCapacity, q.Capacity())

	item, err := q.Push(Message{}, Priority(9), time.Now())
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, item.Priority)
	assert.NotEmpty(t, item.ID)
}
