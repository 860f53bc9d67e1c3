// Package rate provides a per-client token bucket, used to shield the
// login and signup endpoints from brute forcing.
package rate

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands every client its own token bucket, keyed by an opaque
// id (the remote host in practice). Buckets idle past Expiry minutes
// are dropped.
type Limiter struct {
	Expiry   int
	Burst    int
	LimitRPS float64

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func NewLimiter(burst int, expiry int, limitRPS float64) *Limiter {
	lm := &Limiter{
		Expiry:   expiry,
		Burst:    burst,
		LimitRPS: limitRPS,
		clients:  make(map[string]*clientLimiter),
	}
	go lm.evict()
	return lm
}

// Check reports whether the client still has budget, creating its
// bucket on first sight.
func (l *Limiter) Check(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.clients[id]
	if !ok {
		cl = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(l.LimitRPS), l.Burst),
		}
		l.clients[id] = cl
	}
	cl.lastAccess = time.Now()
	return cl.limiter.Allow()
}

func (l *Limiter) evict() {
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()

	for range tick.C {
		l.mu.Lock()
		for id, cl := range l.clients {
			if time.Since(cl.lastAccess) > time.Duration(l.Expiry)*time.Minute {
				delete(l.clients, id)
			}
		}
		l.mu.Unlock()
	}
}

// Every converts a minimum interval between requests into the
// requests-per-second figure NewLimiter expects.
func Every(interval time.Duration) float64 {
	return float64(rate.Every(interval))
}
