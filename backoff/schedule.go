// Package backoff provides the fixed retry schedule for failed webhook deliveries.
package backoff

import (
	"fmt"
	"time"
)

// Schedule defines the fixed delay table applied after each failed delivery
// attempt. Unlike exponential strategies, the magnitudes are explicit so that
// operators can read the exact retry times off the delivery ledger.
//
// The default schedule:
//
//	After attempt 1: 1m
//	After attempt 2: 5m
//	After attempt 3: 15m
//	After attempt 4: 1h
//	After attempt 5: 6h
//	After attempt 6: exhausted
//
// No jitter is applied.
type Schedule struct {
	delays []time.Duration
}

// Default returns the production retry schedule: five fixed delays, six
// attempts total.
func Default() Schedule {
	return Schedule{
		delays: []time.Duration{
			1 * time.Minute,
			5 * time.Minute,
			15 * time.Minute,
			1 * time.Hour,
			6 * time.Hour,
		},
	}
}

// NewSchedule builds a schedule from an explicit delay table. A table of N
// delays allows N+1 attempts; the failure after the last delay exhausts the
// delivery.
func NewSchedule(delays ...time.Duration) Schedule {
	table := make([]time.Duration, len(delays))
	copy(table, delays)
	return Schedule{delays: table}
}

// NextDelay returns the delay to apply after the given failed attempt.
// The attempt number is 1-based. ok is false when the attempt was the final
// one and the delivery must be marked exhausted instead of rescheduled.
func (s Schedule) NextDelay(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > len(s.delays) {
		return 0, false
	}
	return s.delays[attempt-1], true
}

// MaxAttempts returns the total number of attempts before exhaustion.
func (s Schedule) MaxAttempts() int {
	return len(s.delays) + 1
}

// Describe returns a human-readable rendering of the schedule for logs and
// operator tooling.
func (s Schedule) Describe() string {
	out := "Retry Schedule:\n"
	for i, delay := range s.delays {
		out += fmt.Sprintf("  After attempt %d: %v\n", i+1, delay)
	}
	out += fmt.Sprintf("  After attempt %d: exhausted\n", s.MaxAttempts())
	return out
}
