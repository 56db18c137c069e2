package state

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termhost/internal/events"
	"github.com/GriffinCanCode/termhost/internal/logging"
	"github.com/GriffinCanCode/termhost/internal/shared/clock"
)

// DefaultMaxTerminals bounds the terminal pool.
const DefaultMaxTerminals = 5

// Options configures a Service.
type Options struct {
	MaxTerminals int
	Clock        clock.Clock
	Logger       *zap.Logger
}

// Service tracks terminal metadata and the active terminal.
type Service struct {
	maxTerminals int
	clock        clock.Clock
	logger       *zap.Logger
	bus          *events.Bus[Event]

	mu        sync.RWMutex
	terminals map[string]*Terminal
	order     []string
	activeID  string
}

// NewService creates an empty registry.
func NewService(opts Options) *Service {
	if opts.MaxTerminals <= 0 {
		opts.MaxTerminals = DefaultMaxTerminals
	}
	logger := logging.Component(opts.Logger, "state")
	return &Service{
		maxTerminals: opts.MaxTerminals,
		clock:        clock.OrReal(opts.Clock),
		logger:       logger,
		bus:          events.NewBus[Event]("state", logger),
		terminals:    make(map[string]*Terminal),
	}
}

// Subscribe registers h for every registry event and returns a function
// that removes it.
func (s *Service) Subscribe(h func(Event)) func() {
	return s.bus.Subscribe(h)
}

// MaxTerminals returns the pool size.
func (s *Service) MaxTerminals() int {
	return s.maxTerminals
}

// RegisterTerminal adds a terminal with an uninitialized process and no
// interaction recorded.
func (s *Service) RegisterTerminal(reg Registration) (Terminal, error) {
	if reg.ID == "" {
		return Terminal{}, ErrInvalidID
	}

	s.mu.Lock()
	if _, ok := s.terminals[reg.ID]; ok {
		s.mu.Unlock()
		return Terminal{}, fmt.Errorf("%w: %s", ErrDuplicateTerminal, reg.ID)
	}
	number, err := s.allocateLocked(reg.Number)
	if err != nil {
		s.mu.Unlock()
		return Terminal{}, err
	}

	now := s.clock.Now()
	name := reg.Name
	if name == "" {
		name = fmt.Sprintf("Terminal %d", number)
	}
	t := &Terminal{
		ID:           reg.ID,
		Name:         name,
		Number:       number,
		Cwd:          reg.Cwd,
		Shell:        reg.Shell,
		Pid:          reg.Pid,
		CreatedAt:    now,
		LastActiveAt: now,
		Lifecycle:    LifecycleInfo{ProcessState: ProcessUninitialized},
	}
	s.terminals[t.ID] = t
	s.order = append(s.order, t.ID)
	out := *t.clone()
	s.mu.Unlock()

	s.logger.Debug("terminal registered",
		zap.String(logging.TerminalIDKey, t.ID),
		zap.Int("number", number),
	)
	s.bus.Publish(Event{Type: EventRegistered, TerminalID: t.ID, After: out.clone()})
	return out, nil
}

func (s *Service) allocateLocked(requested int) (int, error) {
	used := make(map[int]bool, len(s.terminals))
	for _, t := range s.terminals {
		used[t.Number] = true
	}
	if requested != 0 {
		if requested < 1 || requested > s.maxTerminals {
			return 0, fmt.Errorf("%w: %d", ErrInvalidNumber, requested)
		}
		if used[requested] {
			return 0, fmt.Errorf("%w: %d", ErrNumberInUse, requested)
		}
		return requested, nil
	}
	for n := 1; n <= s.maxTerminals; n++ {
		if !used[n] {
			return n, nil
		}
	}
	return 0, ErrPoolFull
}

// NextAvailableNumber returns the slot the next registration would take.
func (s *Service) NextAvailableNumber() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := s.allocateLocked(0)
	return n, err == nil
}

// UnregisterTerminal removes a terminal. When it was active, the most
// recently active remaining terminal is activated.
func (s *Service) UnregisterTerminal(id string) error {
	s.mu.Lock()
	t, ok := s.terminals[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	before := t.clone()
	delete(s.terminals, id)
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	pending := []Event{{Type: EventUnregistered, TerminalID: id, Before: before}}
	if s.activeID == id {
		s.activeID = ""
		if next := s.mostRecentLocked(); next != nil {
			pending = append(pending, s.activateLocked(next))
		}
	}
	s.mu.Unlock()

	s.logger.Debug("terminal unregistered", zap.String(logging.TerminalIDKey, id))
	s.publish(pending)
	return nil
}

// SetActiveTerminal makes id the only active terminal. The previous active
// terminal is deactivated first; subscribers observe "deactivated" before
// "activated".
func (s *Service) SetActiveTerminal(id string) error {
	s.mu.Lock()
	target, ok := s.terminals[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if s.activeID == id && target.IsActive {
		s.mu.Unlock()
		return nil
	}

	var pending []Event
	if prev, ok := s.terminals[s.activeID]; ok {
		before := prev.clone()
		prev.IsActive = false
		prev.LastActiveAt = s.clock.Now()
		pending = append(pending, Event{Type: EventDeactivated, TerminalID: prev.ID, Before: before, After: prev.clone()})
	}
	pending = append(pending, s.activateLocked(target))
	s.mu.Unlock()

	s.publish(pending)
	return nil
}

func (s *Service) activateLocked(t *Terminal) Event {
	before := t.clone()
	t.IsActive = true
	t.LastActiveAt = s.clock.Now()
	s.activeID = t.ID
	return Event{Type: EventActivated, TerminalID: t.ID, Before: before, After: t.clone()}
}

func (s *Service) mostRecentLocked() *Terminal {
	var best *Terminal
	for _, id := range s.order {
		t := s.terminals[id]
		if best == nil || t.LastActiveAt.After(best.LastActiveAt) {
			best = t
		}
	}
	return best
}

// ActiveTerminal returns the active terminal, if any.
func (s *Service) ActiveTerminal() (Terminal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.terminals[s.activeID]
	if !ok {
		return Terminal{}, false
	}
	return *t.clone(), true
}

// ActiveTerminalID returns the active terminal id or "".
func (s *Service) ActiveTerminalID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// GetTerminal returns a copy of a terminal record.
func (s *Service) GetTerminal(id string) (Terminal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.terminals[id]
	if !ok {
		return Terminal{}, false
	}
	return *t.clone(), true
}

// Terminals returns every terminal in registration order.
func (s *Service) Terminals() []Terminal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Terminal, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.terminals[id].clone())
	}
	return out
}

// Count returns the number of registered terminals.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.terminals)
}

// UpdateMetadata merges non-nil patch fields into a terminal.
func (s *Service) UpdateMetadata(id string, patch MetadataPatch) error {
	return s.update(id, func(t *Terminal) {
		if patch.Name != nil {
			t.Name = *patch.Name
		}
		if patch.Cwd != nil {
			t.Cwd = *patch.Cwd
		}
		if patch.Shell != nil {
			t.Shell = *patch.Shell
		}
		if patch.Pid != nil {
			t.Pid = *patch.Pid
		}
	})
}

// UpdateLifecycleState merges non-nil patch fields into a terminal's
// lifecycle facts.
func (s *Service) UpdateLifecycleState(id string, patch LifecyclePatch) error {
	return s.update(id, func(t *Terminal) {
		if patch.ProcessState != nil {
			t.Lifecycle.ProcessState = *patch.ProcessState
		}
		if patch.HasInteraction != nil {
			t.Lifecycle.HasInteraction = *patch.HasInteraction
		}
		if patch.ExitCode != nil {
			code := *patch.ExitCode
			t.Lifecycle.ExitCode = &code
		}
	})
}

// update applies fn and always publishes an "updated" event.
func (s *Service) update(id string, fn func(*Terminal)) error {
	s.mu.Lock()
	t, ok := s.terminals[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	before := t.clone()
	fn(t)
	after := t.clone()
	s.mu.Unlock()

	s.bus.Publish(Event{Type: EventUpdated, TerminalID: id, Before: before, After: after})
	return nil
}

// GetTerminalsByActivity returns terminal ids, most recently active first.
// Ties are broken by terminal number.
func (s *Service) GetTerminalsByActivity() []string {
	s.mu.RLock()
	list := make([]*Terminal, 0, len(s.terminals))
	for _, t := range s.terminals {
		list = append(list, t.clone())
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].LastActiveAt.Equal(list[j].LastActiveAt) {
			return list[i].LastActiveAt.After(list[j].LastActiveAt)
		}
		return list[i].Number < list[j].Number
	})
	ids := make([]string, len(list))
	for i, t := range list {
		ids[i] = t.ID
	}
	return ids
}

// Clear removes every terminal, publishing an unregistered event for each.
func (s *Service) Clear() {
	s.mu.Lock()
	pending := make([]Event, 0, len(s.order))
	for _, id := range s.order {
		pending = append(pending, Event{Type: EventUnregistered, TerminalID: id, Before: s.terminals[id].clone()})
	}
	s.terminals = make(map[string]*Terminal)
	s.order = nil
	s.activeID = ""
	s.mu.Unlock()

	s.publish(pending)
}

func (s *Service) publish(pending []Event) {
	for _, e := range pending {
		s.bus.Publish(e)
	}
}
