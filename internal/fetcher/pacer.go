package fetcher

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer is a token bucket shared by every fetch in flight. It spreads
// requests out across the whole process so a burst of concurrent checks
// does not hammer a site, with a jitter fraction so the spacing never
// looks machine-regular.
type Pacer struct {
	mu           sync.Mutex
	capacity     float64
	tokens       float64
	refillPerSec float64
	jitterFrac   float64
	last         time.Time
}

// NewPacer allows roughly ratePerSec requests per second process-wide.
// Returns nil when ratePerSec <= 0, which disables pacing.
func NewPacer(ratePerSec, jitterFrac float64) *Pacer {
	if ratePerSec <= 0 {
		return nil
	}
	if jitterFrac < 0 {
		jitterFrac = 0
	}
	capacity := ratePerSec
	if capacity < 1 {
		capacity = 1
	}
	return &Pacer{
		capacity:     capacity,
		tokens:       capacity,
		refillPerSec: ratePerSec,
		jitterFrac:   jitterFrac,
		last:         time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	for {
		p.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(p.last).Seconds()
		p.last = now
		p.tokens += elapsed * p.refillPerSec
		if p.tokens > p.capacity {
			p.tokens = p.capacity
		}
		if p.tokens >= 1 {
			p.tokens--
			p.mu.Unlock()
			return nil
		}
		deficit := (1 - p.tokens) / p.refillPerSec
		p.mu.Unlock()

		sleep := time.Duration(deficit * float64(time.Second))
		if p.jitterFrac > 0 {
			sleep += time.Duration(rand.Float64() * p.jitterFrac * float64(sleep))
		}
		if sleep < time.Millisecond {
			sleep = time.Millisecond
		}
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
