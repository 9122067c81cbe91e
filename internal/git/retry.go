package git

import "time"

// Policy governs push recovery: how many attempts are made, how long to
// wait between them, and which errors are worth retrying at all. It is
// injected rather than hardcoded so deployments can pick stricter or
// gentler strategies.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Retryable   func(err error) bool
}

// DefaultPolicy retries three times with a fixed one-second delay and
// treats every push error as retryable.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     FixedBackoff(time.Second),
		Retryable:   func(error) bool { return true },
	}
}

// FixedBackoff returns a backoff function yielding the same delay for
// every attempt.
func FixedBackoff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// normalize fills in zero-value fields with defaults.
func (p Policy) normalize() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Backoff == nil {
		p.Backoff = def.Backoff
	}
	if p.Retryable == nil {
		p.Retryable = def.Retryable
	}
	return p
}
