/*
Package resilience provides the failure-handling primitives shared by the
terminal backend: a circuit breaker guarding sends to the rendering surface and
retry policies describing bounded attempts with fixed or exponential delays.

# Circuit breaker

	breaker := resilience.New("surface", resilience.Settings{
		Timeout: 2 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})

	err := breaker.Execute(func() error {
		return conn.Send(msg)
	})

States:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                         Open

# Retry policies

A Policy is a value: a maximum attempt count and a delay sequence. Timers are
driven by an injected clock.Clock, so backoff schedules are testable without
sleeping.

	handshake := resilience.Exponential(200*time.Millisecond, 4) // 200, 400, 800, 1600ms
	replay := resilience.Fixed(200*time.Millisecond, 10)
*/
package resilience
