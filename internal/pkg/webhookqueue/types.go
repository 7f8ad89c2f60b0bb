package webhookqueue

import (
	"errors"
	"time"
)

const (
	// DefaultPollInterval is how often each processor loop asks for work.
	DefaultPollInterval = 5 * time.Second

	// DefaultLeaseDuration is how long a claimed item may stay in processing
	// before the sweeper treats the worker as dead and recovers the item.
	// It matches the stuck-item threshold used by the health check.
	DefaultLeaseDuration = 5 * time.Minute

	// DefaultSweepInterval is how often the lease sweeper runs.
	DefaultSweepInterval = 1 * time.Minute

	// Exponential backoff settings for retries: base * 2^attempts, capped.
	retryBackoffBase = 30 * time.Second
	retryBackoffCap  = 1 * time.Hour

	// claimCandidateBatch is how many eligible rows a single claim round
	// inspects before giving up to the next poll tick.
	claimCandidateBatch = 5

	// healthSampleSize bounds the status histogram to recent items.
	healthSampleSize = 1000
)

// ErrNotClaimable is returned by outcome operations when the row is not in
// the state the transition requires (e.g. completing an item that was
// already swept back to pending).
var ErrNotClaimable = errors.New("webhookqueue: item not in expected state")

// Backoff returns the retry delay after the given number of attempts.
// It grows exponentially and is capped so dead-lettered operator requeues
// do not inherit absurd delays.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	d := retryBackoffBase
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= retryBackoffCap {
			return retryBackoffCap
		}
	}
	return d
}
