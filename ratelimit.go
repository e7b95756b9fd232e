package main

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Per-IP rate limiting. Entries idle past rateLimitTTL are dropped by a
// background sweep so the map doesn't grow unbounded.
const (
	rateLimitPerSecond = 5
	rateLimitBurst     = 10
	rateLimitTTL       = 10 * time.Minute
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	rateLimitMu sync.Mutex
	rateLimits  = make(map[string]*ipLimiter)
)

func init() {
	go func() {
		for range time.Tick(time.Minute) {
			rateLimitMu.Lock()
			for ip, entry := range rateLimits {
				if time.Since(entry.lastSeen) > rateLimitTTL {
					delete(rateLimits, ip)
				}
			}
			rateLimitMu.Unlock()
		}
	}()
}

// rateLimitAllow reports whether a request from remoteAddr is within the
// per-IP budget.
func rateLimitAllow(remoteAddr string) bool {
	ip, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		ip = remoteAddr
	}

	rateLimitMu.Lock()
	entry, ok := rateLimits[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rateLimitPerSecond, rateLimitBurst)}
		rateLimits[ip] = entry
	}
	entry.lastSeen = time.Now()
	rateLimitMu.Unlock()

	return entry.limiter.Allow()
}
