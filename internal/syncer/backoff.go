package syncer

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// newBackoff builds the retry schedule for failed sync cycles: exponential
// from base, capped at ceiling, jittered, and stopping after maxRetries so
// sync can report a terminal status instead of retrying forever.
func newBackoff(base, ceiling time.Duration, maxRetries uint64) retry.Backoff {
	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(ceiling, b)
	b = retry.WithJitterPercent(10, b)
	b = retry.WithMaxRetries(maxRetries, b)
	return b
}
