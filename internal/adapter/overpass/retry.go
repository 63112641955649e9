package overpass

import "time"

// RetryPolicy bounds the retry/subdivide state machine for one query scope.
// Rate-limited responses are retried with doubling waits; a server-side
// timeout optionally splits the scope into four quadrants, each fetched with
// a reduced, non-subdividing policy. Both bounds guarantee termination.
type RetryPolicy struct {
	MaxAttempts    int // attempts per scope, including the first
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Subdivide      bool // split once into quadrants on a server-side timeout
}

// DefaultPolicy is the full-area policy: a few patient retries and one level
// of subdivision.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    4,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     40 * time.Second,
		Subdivide:      true,
	}
}

// quadrantPolicy derives the per-quadrant policy: a short retry budget and no
// further subdivision, so a quadrant that cannot complete degrades to partial
// coverage instead of recursing.
func quadrantPolicy(p RetryPolicy) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    2,
		InitialBackoff: p.InitialBackoff,
		MaxBackoff:     p.MaxBackoff,
		Subdivide:      false,
	}
}

// backoffFor returns the wait before retry number attempt (1-based),
// doubling from InitialBackoff and capped at MaxBackoff.
func (p RetryPolicy) backoffFor(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}
