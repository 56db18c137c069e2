// Package events provides a small synchronous publish/subscribe bus.
//
// Subscribers are invoked in registration order on the publishing goroutine.
// A panicking subscriber is recovered and logged; the remaining subscribers
// still receive the event.
package events

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termhost/internal/logging"
)

// Handler receives published events.
type Handler[E any] func(E)

// Bus fans events out to subscribers.
type Bus[E any] struct {
	mu     sync.RWMutex
	subs   map[uint64]Handler[E]
	next   uint64
	name   string
	logger *zap.Logger
}

// NewBus creates a bus. name is used in panic logs.
func NewBus[E any](name string, logger *zap.Logger) *Bus[E] {
	return &Bus[E]{
		subs:   make(map[uint64]Handler[E]),
		name:   name,
		logger: logging.OrNop(logger),
	}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus[E]) Subscribe(h Handler[E]) func() {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers e to every subscriber and returns the number of
// subscribers that panicked.
func (b *Bus[E]) Publish(e E) int {
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	handlers := make(map[uint64]Handler[E], len(ids))
	for _, id := range ids {
		handlers[id] = b.subs[id]
	}
	b.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	failed := 0
	for _, id := range ids {
		if !b.deliver(handlers[id], e) {
			failed++
		}
	}
	return failed
}

// Len returns the current subscriber count.
func (b *Bus[E]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus[E]) deliver(h Handler[E], e E) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			b.logger.Error("event subscriber panicked",
				zap.String("bus", b.name),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	h(e)
	return true
}
