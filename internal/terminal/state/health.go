package state

import (
	"fmt"
	"sort"
)

// HealthReport is the result of a registry health check. Problems are
// reported, never corrected.
type HealthReport struct {
	Healthy       bool              `json:"healthy"`
	TerminalCount int               `json:"terminalCount"`
	ActiveID      string            `json:"activeId,omitempty"`
	Issues        []*IntegrityError `json:"issues,omitempty"`
}

// HealthCheck inspects the registry for duplicate ids or numbers, missing
// required fields and active-terminal inconsistencies.
func (s *Service) HealthCheck() HealthReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := HealthReport{TerminalCount: len(s.terminals), ActiveID: s.activeID}
	add := func(id, field, problem string) {
		report.Issues = append(report.Issues, &IntegrityError{TerminalID: id, Field: field, Problem: problem})
	}

	keys := make([]string, 0, len(s.terminals))
	for key := range s.terminals {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	ids := make(map[string]string)
	numbers := make(map[int]string)
	active := 0
	for _, key := range keys {
		t := s.terminals[key]
		if t.ID == "" {
			add(key, "id", "missing")
		} else if t.ID != key {
			add(key, "id", fmt.Sprintf("record id %q does not match registry key", t.ID))
		}
		if owner, dup := ids[t.ID]; dup && t.ID != "" {
			add(t.ID, "id", fmt.Sprintf("duplicate of %s", owner))
		}
		ids[t.ID] = key

		if t.Name == "" {
			add(key, "name", "missing")
		}
		if t.Number < 1 || t.Number > s.maxTerminals {
			add(key, "number", fmt.Sprintf("%d out of range 1..%d", t.Number, s.maxTerminals))
		} else if owner, dup := numbers[t.Number]; dup {
			add(key, "number", fmt.Sprintf("%d shared with %s", t.Number, owner))
		} else {
			numbers[t.Number] = key
		}
		if t.CreatedAt.IsZero() {
			add(key, "createdAt", "missing")
		}
		if t.IsActive {
			active++
			if key != s.activeID {
				add(key, "isActive", "flagged active but not the active terminal")
			}
		}
	}

	if active > 1 {
		add("", "isActive", fmt.Sprintf("%d terminals flagged active", active))
	}
	if s.activeID != "" {
		if _, ok := s.terminals[s.activeID]; !ok {
			add(s.activeID, "activeId", "active terminal is not registered")
		}
	}
	if len(s.order) != len(s.terminals) {
		add("", "order", fmt.Sprintf("%d ordered ids for %d terminals", len(s.order), len(s.terminals)))
	}

	report.Healthy = len(report.Issues) == 0
	return report
}
