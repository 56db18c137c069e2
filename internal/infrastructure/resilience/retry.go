package resilience

import "time"

// Policy describes a bounded retry schedule. Attempts are numbered from 1.
// Delays[i] is the wait before attempt i+1; when Delays is shorter than
// MaxAttempts the last delay repeats.
type Policy struct {
	MaxAttempts int
	Delays      []time.Duration
}

// Fixed returns a policy with attempts evenly spaced by delay.
func Fixed(delay time.Duration, attempts int) Policy {
	return Policy{MaxAttempts: attempts, Delays: []time.Duration{delay}}
}

// Exponential returns a policy whose delays double from base:
// base, 2*base, 4*base, ...
func Exponential(base time.Duration, attempts int) Policy {
	delays := make([]time.Duration, attempts)
	d := base
	for i := range delays {
		delays[i] = d
		d *= 2
	}
	return Policy{MaxAttempts: attempts, Delays: delays}
}

// Delay returns the wait before the given attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if len(p.Delays) == 0 || attempt < 1 {
		return 0
	}
	if attempt > len(p.Delays) {
		return p.Delays[len(p.Delays)-1]
	}
	return p.Delays[attempt-1]
}

// Allows reports whether the given attempt (1-based) is within budget.
func (p Policy) Allows(attempt int) bool {
	return attempt >= 1 && attempt <= p.MaxAttempts
}

// Total returns the sum of every delay in the schedule.
func (p Policy) Total() time.Duration {
	var total time.Duration
	for i := 1; i <= p.MaxAttempts; i++ {
		total += p.Delay(i)
	}
	return total
}
