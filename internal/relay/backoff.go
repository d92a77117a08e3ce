package relay

import (
	"math/rand/v2"
	"time"
)

const jitterWindow = 250 * time.Millisecond

// backoff doubles from base up to ceiling on each failure.
type backoff struct {
	base    time.Duration
	ceiling time.Duration
	cur     time.Duration
}

func newBackoff(base, ceiling time.Duration) backoff {
	return backoff{base: base, ceiling: ceiling, cur: base}
}

func (b *backoff) current() time.Duration { return b.cur }

func (b *backoff) reset() { b.cur = b.base }

// grow returns the next wait and advances the state.
func (b *backoff) grow() time.Duration {
	b.cur = min(b.cur*2, b.ceiling)
	return b.cur
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}
