package dispatch

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/termhost/internal/shared/apperrors"
)

// Priority orders outbound messages. Higher tiers are always sent first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

const tiers = 3

// ErrQueueFull is returned when an enqueue would exceed capacity.
var ErrQueueFull = apperrors.Sentinel(apperrors.KindTransientIO, "dispatch: queue full")

// DefaultQueueCapacity bounds the outbound queue.
const DefaultQueueCapacity = 1000

// Item is a queued outbound message.
type Item struct {
	ID       string
	Msg      Message
	Priority Priority
	Retries  int
	Enqueued time.Time
}

// Queue is a bounded FIFO per priority tier.
type Queue struct {
	mu       sync.Mutex
	capacity int
	tiers    [tiers][]*Item
	size     int
}

// NewQueue creates a queue holding at most capacity items.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{capacity: capacity}
}

// Push appends a message to its tier, failing fast when full.
func (q *Queue) Push(msg Message, p Priority, now time.Time) (*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size >= q.capacity {
		return nil, ErrQueueFull
	}
	item := &Item{ID: uuid.NewString(), Msg: msg, Priority: clampPriority(p), Enqueued: now}
	q.tiers[item.Priority] = append(q.tiers[item.Priority], item)
	q.size++
	return item, nil
}

// PushFront returns a previously popped item to the head of its tier. It
// does not check capacity since the item was already admitted.
func (q *Queue) PushFront(item *Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t := clampPriority(item.Priority)
	q.tiers[t] = append([]*Item{item}, q.tiers[t]...)
	q.size++
}

// Pop removes the oldest item of the highest non-empty tier.
func (q *Queue) Pop() (*Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for t := tiers - 1; t >= 0; t-- {
		if len(q.tiers[t]) == 0 {
			continue
		}
		item := q.tiers[t][0]
		q.tiers[t][0] = nil
		q.tiers[t] = q.tiers[t][1:]
		q.size--
		return item, true
	}
	return nil, false
}

// PurgeTerminal removes every queued message addressed to a terminal and
// returns how many were removed.
func (q *Queue) PurgeTerminal(terminalID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := 0
	for t := range q.tiers {
		kept := q.tiers[t][:0]
		for _, item := range q.tiers[t] {
			if item.Msg.TerminalID == terminalID {
				removed++
				continue
			}
			kept = append(kept, item)
		}
		for i := len(kept); i < len(q.tiers[t]); i++ {
			q.tiers[t][i] = nil
		}
		q.tiers[t] = kept
	}
	q.size -= removed
	return removed
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Capacity returns the queue bound.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Clear drops every queued item.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for t := range q.tiers {
		q.tiers[t] = nil
	}
	q.size = 0
}

func clampPriority(p Priority) Priority {
	if p < PriorityLow {
		return PriorityLow
	}
	if p > PriorityHigh {
		return PriorityHigh
	}
	return p
}
