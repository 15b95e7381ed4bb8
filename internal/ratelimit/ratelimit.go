// Package ratelimit provides per-user token buckets for job creation and
// manual additions. Exceeding a limit rejects the request itself; no ledger
// row is ever created for a rate-limited attempt.
package ratelimit

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Action identifies the rate-limited operation kind
type Action string

const (
	ActionUpload Action = "upload"
	ActionManual Action = "manual"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds per-(user, action) token buckets
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limits  map[Action]rateSpec
}

type rateSpec struct {
	limit rate.Limit
	burst int
}

// NewLimiter creates a Limiter with the configured per-user ceilings:
// uploadsPerHour upload jobs per rolling hour and manualPerMinute manual
// additions per rolling minute.
func NewLimiter(uploadsPerHour, manualPerMinute int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		limits: map[Action]rateSpec{
			ActionUpload: {limit: rate.Every(time.Hour / time.Duration(uploadsPerHour)), burst: uploadsPerHour},
			ActionManual: {limit: rate.Every(time.Minute / time.Duration(manualPerMinute)), burst: manualPerMinute},
		},
	}
}

// Allow reports whether the user may perform the action now, consuming one
// token when permitted.
func (l *Limiter) Allow(userID uuid.UUID, action Action) bool {
	spec, ok := l.limits[action]
	if !ok {
		return false
	}

	key := string(action) + ":" + userID.String()
	now := time.Now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(spec.limit, spec.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	if len(l.buckets) > maxBuckets {
		l.evictStale(now)
	}
	l.mu.Unlock()

	return b.limiter.Allow()
}

const (
	maxBuckets = 10000
	staleAfter = 2 * time.Hour
)

// evictStale drops buckets idle long enough that they are back at full burst
// anyway. Caller holds the lock.
func (l *Limiter) evictStale(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > staleAfter {
			delete(l.buckets, key)
		}
	}
}
