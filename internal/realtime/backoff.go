package realtime

import "time"

const (
	defaultBaseDelay = time.Second
	maxBackoff       = 30 * time.Second
)

// Backoff returns the delay before retry number attempt (zero based): base
// doubled per attempt, capped at limit.
func Backoff(attempt int, base, limit time.Duration) time.Duration {
	if base <= 0 {
		base = defaultBaseDelay
	}
	if limit <= 0 {
		limit = maxBackoff
	}
	if attempt <= 0 {
		return min(base, limit)
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	return delay
}
