package server

import (
	"sync"
	"time"
)

const rateLimitWindow = 60 * time.Second

// Progressive ban durations
var banDurations = []time.Duration{
	10 * time.Minute,
	1 * time.Hour,
	24 * time.Hour,
}

const permabanDuration = 100 * 365 * 24 * time.Hour // effectively permanent

// RateLimiter is a per-client sliding window. A client that exceeds the
// window is banned, for longer on each repeated violation.
type RateLimiter struct {
	limit int
	now   func() time.Time

	mu        sync.Mutex
	requests  map[string][]time.Time
	banned    map[string]time.Time
	banCounts map[string]int
}

// NewRateLimiter allows perMinute requests per client per window.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		limit:     perMinute,
		now:       time.Now,
		requests:  make(map[string][]time.Time),
		banned:    make(map[string]time.Time),
		banCounts: make(map[string]int),
	}
}

// Allow records a request from client and reports whether it may proceed.
func (l *RateLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	recent := l.requests[client][:0]
	for _, t := range l.requests[client] {
		if now.Sub(t) < rateLimitWindow {
			recent = append(recent, t)
		}
	}
	recent = append(recent, now)
	l.requests[client] = recent
	if len(recent) <= l.limit {
		return true
	}
	if !l.bannedLocked(client, now) {
		l.banCounts[client]++
		count := l.banCounts[client]
		if count > len(banDurations) {
			l.banned[client] = now.Add(permabanDuration)
		} else {
			l.banned[client] = now.Add(banDurations[count-1])
		}
		delete(l.requests, client)
	}
	return false
}

// IsBanned reports whether client is currently banned.
func (l *RateLimiter) IsBanned(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bannedLocked(client, l.now())
}

func (l *RateLimiter) bannedLocked(client string, now time.Time) bool {
	expiry, ok := l.banned[client]
	if !ok {
		return false
	}
	if now.After(expiry) {
		delete(l.banned, client)
		return false
	}
	return true
}
