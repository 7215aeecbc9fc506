package signal

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type joinBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// JoinRateLimiter caps join attempts per client token.
// A bucket idle for a whole interval is full again, so it is evicted.
type JoinRateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*joinBucket
	limit     int
	interval  time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewJoinRateLimiter(limit int, interval time.Duration) *JoinRateLimiter {
	return &JoinRateLimiter{
		buckets:  make(map[string]*joinBucket),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// Allow allows up to limit joins per interval, refilled evenly.
func (rl *JoinRateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= rl.interval {
		rl.sweep(now)
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &joinBucket{limiter: rate.NewLimiter(rate.Every(rl.interval/time.Duration(rl.limit)), rl.limit)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (rl *JoinRateLimiter) sweep(now time.Time) {
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) >= rl.interval {
			delete(rl.buckets, key)
		}
	}
	rl.lastSweep = now
}

// Len reports how many client tokens are tracked.
func (rl *JoinRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}
