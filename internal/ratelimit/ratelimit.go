// Package ratelimit provides a token bucket limiter. Each connection owns
// one bucket; over-limit commands get an error reply instead of a
// disconnect.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a token bucket. It starts full at burst capacity and refills at
// a fixed per-second rate.
type Bucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64
	last       time.Time
}

// New builds a bucket refilling at ratePerSec with room for burst tokens.
// A non-positive rate disables limiting: Allow always returns true.
func New(ratePerSec float64, burst int) *Bucket {
	if burst < 1 {
		burst = 1
	}
	return &Bucket{
		capacity:   float64(burst),
		tokens:     float64(burst),
		refillRate: ratePerSec,
		last:       time.Now(),
	}
}

// Allow consumes one token if available.
func (b *Bucket) Allow() bool {
	if b.refillRate <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(time.Now())
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.last = now
}
