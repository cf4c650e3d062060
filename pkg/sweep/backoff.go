package sweep

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// Policy bounds the retry schedule for transient failures. Jitter is derived
// from the record key, so a given record always draws the same schedule and
// sweep runs stay reproducible.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	MaxJitter   time.Duration
}

// DefaultPolicy is tuned for store hiccups, not outages. A record that stays
// broken is left for the next sweep cycle.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Base:        200 * time.Millisecond,
		Cap:         5 * time.Second,
		MaxJitter:   100 * time.Millisecond,
	}
}

// Backoff returns the delay before the given retry attempt. Attempt 0 is the
// first retry after the initial failure.
func (p Policy) Backoff(key string, attempt int) time.Duration {
	factor := int64(1)
	if attempt > 0 {
		if attempt > 30 {
			factor = 1 << 30
		} else {
			factor = 1 << attempt
		}
	}

	delay := time.Duration(factor) * p.Base
	if p.Cap > 0 && delay > p.Cap {
		delay = p.Cap
	}
	return delay + p.jitter(key, attempt)
}

func (p Policy) jitter(key string, attempt int) time.Duration {
	if p.MaxJitter <= 0 {
		return 0
	}
	seed := fmt.Sprintf("%s:%d", key, attempt)
	h := sha256.Sum256([]byte(seed))
	basis := binary.BigEndian.Uint64(h[:8])
	return time.Duration(basis % uint64(p.MaxJitter)) //nolint:gosec // MaxJitter is always positive
}
