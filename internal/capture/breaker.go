package capture

import (
	"sync"
	"time"
)

// breaker trips after an uninterrupted streak of renderer failures and
// recovers on its own once resetTimeout has elapsed. Recovery happens lazily
// when the state is next read; there is no background timer.
type breaker struct {
	mu           sync.Mutex
	threshold    int
	resetTimeout time.Duration
	clock        Clock

	failures int
	open     bool
	openedAt time.Time
}

func newBreaker(threshold int, resetTimeout time.Duration, clock Clock) *breaker {
	return &breaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		clock:        clock,
	}
}

// Blocked reports whether the breaker is open. An open breaker closes itself
// once resetTimeout has passed since it tripped, starting a fresh streak.
func (b *breaker) Blocked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return false
	}
	if b.clock.Now().Sub(b.openedAt) >= b.resetTimeout {
		b.open = false
		b.failures = 0
		return false
	}
	return true
}

// RecordFailure extends the failure streak and trips the breaker once the
// streak exceeds the threshold. It reports whether this failure tripped it.
func (b *breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures > b.threshold && !b.open {
		b.open = true
		b.openedAt = b.clock.Now()
		return true
	}
	return false
}

// RecordSuccess resets the failure streak. It never force-closes an already
// open breaker; only the reset timeout does that.
func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}
