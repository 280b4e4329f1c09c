package main

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = time.Minute
	limiterStaleAfter      = 3 * time.Minute
)

type limitedVisitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitorRateLimiter keeps a token bucket per visitor id.
type visitorRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*limitedVisitor
	limit    rate.Limit
	burst    int
}

func newVisitorRateLimiter(perSecond, burst int) *visitorRateLimiter {
	return &visitorRateLimiter{
		mu:       sync.Mutex{},
		visitors: map[string]*limitedVisitor{},
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *visitorRateLimiter) allow(visitorID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.visitors[visitorID]
	if !ok {
		v = &limitedVisitor{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: time.Time{}}
		l.visitors[visitorID] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

// cleanup forgets visitors not seen for a while until ctx is cancelled.
func (l *visitorRateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.prune(time.Now().Add(-limiterStaleAfter))
		}
	}
}

func (l *visitorRateLimiter) prune(before time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	pruned := 0
	for id, v := range l.visitors {
		if v.lastSeen.Before(before) {
			delete(l.visitors, id)
			pruned++
		}
	}
	return pruned
}
