package astrologer

import "time"

// The retry loop is an explicit state machine: each attempt either
// succeeds, surfaces a hard upstream error, or transitions through
// BackingOff until the attempt budget is exhausted.
type retryState int

const (
	stateAttempting retryState = iota
	stateBackingOff
	stateSucceeded
	stateExhaustedFailed
)

// maxAttempts bounds the total number of upstream calls per request.
const maxAttempts = 3

// backoffSchedule is the fixed wait before the second and third attempts.
// There is no wait after the final attempt.
var backoffSchedule = []time.Duration{1 * time.Second, 2 * time.Second}

// nextDelay returns the backoff before the attempt following the given
// zero-based one.
func nextDelay(attempt int) time.Duration {
	if attempt < len(backoffSchedule) {
		return backoffSchedule[attempt]
	}
	return 0
}
