package ratelimit

import (
	"context"
	"sync"

	"github.com/goliatone/go-miniapp/core"
	"golang.org/x/time/rate"
)

// LimiterPolicy paces outbound calls with one token bucket per bucket key.
// With Wait set, BeforeCall blocks until a token is available or ctx ends;
// otherwise it fails fast with ThrottledError.
type LimiterPolicy struct {
	Limit rate.Limit
	Burst int
	Wait  bool

	mu       sync.Mutex
	limiters map[core.RateLimitKey]*rate.Limiter
}

func NewLimiterPolicy(perSecond float64, burst int) *LimiterPolicy {
	if burst <= 0 {
		burst = 1
	}
	return &LimiterPolicy{
		Limit:    rate.Limit(perSecond),
		Burst:    burst,
		limiters: map[core.RateLimitKey]*rate.Limiter{},
	}
}

func (p *LimiterPolicy) BeforeCall(ctx context.Context, key core.RateLimitKey) error {
	if p == nil || p.Limit <= 0 {
		return nil
	}
	key = normalizeKey(key)
	limiter := p.limiter(key)
	if p.Wait {
		return limiter.Wait(ctx)
	}
	reservation := limiter.Reserve()
	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		return ThrottledError{AppID: key.AppID, BucketKey: key.BucketKey, RetryAfter: delay}
	}
	return nil
}

func (*LimiterPolicy) AfterCall(context.Context, core.RateLimitKey, core.ResponseMeta) error {
	return nil
}

func (p *LimiterPolicy) limiter(key core.RateLimitKey) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.limiters == nil {
		p.limiters = map[core.RateLimitKey]*rate.Limiter{}
	}
	limiter, ok := p.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(p.Limit, max(p.Burst, 1))
		p.limiters[key] = limiter
	}
	return limiter
}

// ChainPolicy runs policies in order. BeforeCall stops at the first
// rejection; AfterCall runs every policy and returns the first error.
type ChainPolicy []core.RateLimitPolicy

func (c ChainPolicy) BeforeCall(ctx context.Context, key core.RateLimitKey) error {
	for _, policy := range c {
		if policy == nil {
			continue
		}
		if err := policy.BeforeCall(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (c ChainPolicy) AfterCall(ctx context.Context, key core.RateLimitKey, res core.ResponseMeta) error {
	var first error
	for _, policy := range c {
		if policy == nil {
			continue
		}
		if err := policy.AfterCall(ctx, key, res); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var (
	_ core.RateLimitPolicy = (*LimiterPolicy)(nil)
	_ core.RateLimitPolicy = ChainPolicy(nil)
)
