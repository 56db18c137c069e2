package buffer

import (
	"regexp"
	"sync"
	"time"

	"github.com/GriffinCanCode/termhost/internal/shared/clock"
)

// DefaultIdleTimeout is how long agent mode stays on without a marker.
const DefaultIdleTimeout = 5 * time.Second

// DefaultAgentMarkers match status lines printed by interactive coding
// assistants while they stream output.
var DefaultAgentMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)esc to interrupt`),
	regexp.MustCompile(`(?i)\bthinking…|\bthinking\.\.\.`),
	regexp.MustCompile(`✻|✳|✢|⏺`),
	regexp.MustCompile(`(?i)\b(claude|codex|aider|gemini)\b.*\b(code|cli|chat)\b`),
}

// ModeSetter receives agent mode changes.
type ModeSetter interface {
	SetAgentActive(active bool)
}

// AgentDetector switches agent mode on when output matches a marker and
// off again after an idle period without one.
type AgentDetector struct {
	target  ModeSetter
	clock   clock.Clock
	idle    time.Duration
	markers []*regexp.Regexp

	mu       sync.Mutex
	active   bool
	lastSeen time.Time
	timer    clock.Timer
}

// NewAgentDetector creates a detector driving target. Zero idle and nil
// markers use the defaults.
func NewAgentDetector(target ModeSetter, c clock.Clock, idle time.Duration, markers []*regexp.Regexp) *AgentDetector {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if markers == nil {
		markers = DefaultAgentMarkers
	}
	return &AgentDetector{
		target:  target,
		clock:   clock.OrReal(c),
		idle:    idle,
		markers: markers,
	}
}

// Observe inspects a chunk of terminal output.
func (d *AgentDetector) Observe(chunk string) {
	if !d.matches(chunk) {
		return
	}

	d.mu.Lock()
	d.lastSeen = d.clock.Now()
	activate := !d.active
	d.active = true
	if d.timer == nil {
		d.timer = d.clock.AfterFunc(d.idle, d.checkIdle)
	}
	d.mu.Unlock()

	if activate {
		d.target.SetAgentActive(true)
	}
}

// Active reports whether the detector currently considers an agent running.
func (d *AgentDetector) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Stop cancels the idle timer and switches agent mode off.
func (d *AgentDetector) Stop() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	was := d.active
	d.active = false
	d.mu.Unlock()

	if was {
		d.target.SetAgentActive(false)
	}
}

func (d *AgentDetector) matches(chunk string) bool {
	for _, re := range d.markers {
		if re.MatchString(chunk) {
			return true
		}
	}
	return false
}

func (d *AgentDetector) checkIdle() {
	d.mu.Lock()
	d.timer = nil
	if !d.active {
		d.mu.Unlock()
		return
	}
	quiet := d.clock.Now().Sub(d.lastSeen)
	if quiet < d.idle {
		d.timer = d.clock.AfterFunc(d.idle-quiet, d.checkIdle)
		d.mu.Unlock()
		return
	}
	d.active = false
	d.mu.Unlock()

	d.target.SetAgentActive(false)
}
