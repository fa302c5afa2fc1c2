// ABOUTME: Per-realm request throttle applied before every upstream call.
// ABOUTME: Keeps one token bucket per realm id, evicting idle ones; a nil limiter never blocks.

package qbo

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdle is how long a realm's bucket may go unused before it is evicted.
// NewRealmLimiter raises it to the bucket's refill time when that is longer.
const limiterIdle = 10 * time.Minute

// RealmLimiter throttles upstream requests per realm. The buckets are keyed by
// realm id and hold no credential material.
type RealmLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	now       func() time.Time
	lastSweep time.Time
	limiters  map[string]*realmBucket
}

type realmBucket struct {
	lim      *rate.Limiter
	lastUsed time.Time
}

// NewRealmLimiter allows perSecond requests per realm with the given burst.
// It returns nil (no throttling) when perSecond is not positive.
func NewRealmLimiter(perSecond float64, burst int) *RealmLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	idle := limiterIdle
	if refill := time.Duration(float64(burst) / perSecond * float64(time.Second)); refill > idle {
		idle = refill
	}
	return &RealmLimiter{
		limit:     rate.Limit(perSecond),
		burst:     burst,
		idle:      idle,
		now:       time.Now,
		lastSweep: time.Now(),
		limiters:  make(map[string]*realmBucket),
	}
}

// Wait blocks until realm may send another request or ctx is done.
func (l *RealmLimiter) Wait(ctx context.Context, realm string) error {
	if l == nil {
		return nil
	}
	return l.get(realm).Wait(ctx)
}

func (l *RealmLimiter) get(realm string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweepLocked(now)
	}

	b, ok := l.limiters[realm]
	if !ok {
		b = &realmBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[realm] = b
	}
	b.lastUsed = now
	return b.lim
}

// sweepLocked drops buckets unused for at least l.idle. l.mu must be held.
func (l *RealmLimiter) sweepLocked(now time.Time) {
	for realm, b := range l.limiters {
		if now.Sub(b.lastUsed) >= l.idle {
			delete(l.limiters, realm)
		}
	}
	l.lastSweep = now
}

// Realms returns how many realms currently hold a bucket.
func (l *RealmLimiter) Realms() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
