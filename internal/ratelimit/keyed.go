// Package ratelimit keeps one token bucket per key, for HTTP clients and
// in-world command senders alike.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Keyed struct {
	mu      sync.Mutex
	clients map[string]*limiterEntry
	rps     rate.Limit
	burst   int
	now     func() time.Time
}

// New allows perMinute events per key with the given burst. Non-positive
// values fall back to 1000 per minute and a burst of 200.
func New(perMinute int, burst int) *Keyed {
	if perMinute <= 0 {
		perMinute = 1000
	}
	if burst <= 0 {
		burst = 200
	}
	return &Keyed{
		clients: map[string]*limiterEntry{},
		rps:     rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow reports whether key may proceed now, consuming a token if so.
func (k *Keyed) Allow(key string) bool {
	return k.get(key).AllowN(k.now(), 1)
}

// Prune forgets keys idle for longer than idle and returns how many were
// removed.
func (k *Keyed) Prune(idle time.Duration) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	cutoff := k.now().Add(-idle)
	n := 0
	for key, e := range k.clients {
		if e.lastSeen.Before(cutoff) {
			delete(k.clients, key)
			n++
		}
	}
	return n
}

// Len is the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.clients)
}

func (k *Keyed) get(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()
	if l, ok := k.clients[key]; ok {
		l.lastSeen = k.now()
		return l.limiter
	}
	lim := rate.NewLimiter(k.rps, k.burst)
	k.clients[key] = &limiterEntry{limiter: lim, lastSeen: k.now()}
	return lim
}
