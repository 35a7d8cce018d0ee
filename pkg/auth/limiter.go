package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiterPool keeps one token bucket per caller. The gateway keys the
// bucket by whatever identifies the caller best: the API key for backend
// and admin roles, "user:<id>" for signed clients, "ip:<addr>" for
// anonymous ones.
type limiterPool struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	cfg     SecConfig
}

func (p *limiterPool) bucket(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buckets == nil {
		p.buckets = make(map[string]*rate.Limiter)
	}
	if l, ok := p.buckets[key]; ok {
		return l
	}
	rps := p.cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	burst := p.cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	p.buckets[key] = l
	return l
}

// Allow reports whether the caller behind key has budget for one more
// request right now.
func (p *limiterPool) Allow(key string) bool {
	return p.bucket(key).Allow()
}
