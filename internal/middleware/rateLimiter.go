package middleware

import (
	"sync"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"golang.org/x/time/rate"
)

var limiterInstance = NewIPRateLimiter(rate.Limit(config.RATE_LIMIT_PER_SECOND), config.BURST_RATE_LIMIT_PER_SECOND)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type IPRateLimiter struct {
	ips       map[string]*ipLimiter
	mu        sync.Mutex
	rateLimit rate.Limit
	burstRate int
	lastSweep time.Time
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{ips: make(map[string]*ipLimiter), rateLimit: r, burstRate: b, lastSweep: time.Now()}
}

// SetLimit replaces the limits for clients seen from now on.
func SetLimit(r rate.Limit, b int) {
	limiterInstance = NewIPRateLimiter(r, b)
}

func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()
	now := time.Now()
	i.sweep(now)
	entry, exists := i.ips[ip]
	if !exists {
		entry = &ipLimiter{limiter: rate.NewLimiter(i.rateLimit, i.burstRate)}
		i.ips[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// sweep forgets clients idle for longer than config.RateLimiterIdleTTL.
func (i *IPRateLimiter) sweep(now time.Time) {
	if now.Sub(i.lastSweep) < config.RateLimiterIdleTTL {
		return
	}
	for ip, entry := range i.ips {
		if now.Sub(entry.lastSeen) > config.RateLimiterIdleTTL {
			delete(i.ips, ip)
		}
	}
	i.lastSweep = now
}

//TODO: move the per ip state to redis once more than one api instance runs
