// Package ratelimit guards platform calls against quota exhaustion.
package ratelimit

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-miniapp/core"
)

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = time.Minute
)

// AdaptivePolicy opens a throttle window for a bucket after the platform
// answers with HTTP 429 or a quota errcode. Without a Retry-After hint the
// window doubles on each consecutive throttled answer, capped at MaxBackoff.
type AdaptivePolicy struct {
	Store          StateStore
	Now            func() time.Time
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func NewAdaptivePolicy(store StateStore) *AdaptivePolicy {
	return &AdaptivePolicy{
		Store:          store,
		Now:            func() time.Time { return time.Now().UTC() },
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
	}
}

func (p *AdaptivePolicy) BeforeCall(ctx context.Context, key core.RateLimitKey) error {
	if p.disabled() {
		return nil
	}
	state, err := p.Store.Get(ctx, normalizeKey(key))
	if errors.Is(err, ErrStateNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if wait, throttled := state.throttledAt(p.clock()); throttled {
		return ThrottledError{AppID: state.Key.AppID, BucketKey: state.Key.BucketKey, RetryAfter: wait}
	}
	return nil
}

func (p *AdaptivePolicy) AfterCall(ctx context.Context, key core.RateLimitKey, res core.ResponseMeta) error {
	if p.disabled() {
		return nil
	}
	key = normalizeKey(key)
	state, err := p.Store.Get(ctx, key)
	if errors.Is(err, ErrStateNotFound) {
		state, err = State{Key: key}, nil
	}
	if err != nil {
		return err
	}

	now := p.clock()
	state.LastStatus, state.LastErrCode, state.UpdatedAt = res.StatusCode, res.ErrCode, now
	state.Metadata = copyMetadata(state.Metadata)
	maps.Copy(state.Metadata, res.Metadata)

	hint, hinted := retryHint(res, now)
	state.RetryAfter = nil
	if hinted {
		state.RetryAfter = &hint
	}

	if !throttledResponse(res) {
		state.Attempts, state.ThrottledUntil = 0, nil
		return p.Store.Upsert(ctx, state)
	}

	state.Attempts++
	window := hint
	if !hinted {
		window = p.backoff(state.Attempts)
	}
	until := now.Add(window)
	state.ThrottledUntil = &until
	return p.Store.Upsert(ctx, state)
}

func (p *AdaptivePolicy) disabled() bool {
	return p == nil || p.Store == nil
}

func (p *AdaptivePolicy) clock() time.Time {
	if p.Now == nil {
		return time.Now().UTC()
	}
	return p.Now().UTC()
}

// backoff returns InitialBackoff * 2^(attempt-1), never above MaxBackoff.
func (p *AdaptivePolicy) backoff(attempt int) time.Duration {
	base, ceiling := p.InitialBackoff, p.MaxBackoff
	if base <= 0 {
		base = defaultInitialBackoff
	}
	if ceiling <= 0 {
		ceiling = defaultMaxBackoff
	}
	window := base
	for step := 1; step < attempt && window < ceiling; step++ {
		window *= 2
	}
	return min(window, ceiling)
}

func throttledResponse(res core.ResponseMeta) bool {
	return res.StatusCode == http.StatusTooManyRequests || core.IsRateLimitErrCode(res.ErrCode)
}

// retryHint reads an explicit RetryAfter or a Retry-After header given
// either as seconds or as an HTTP date.
func retryHint(res core.ResponseMeta, now time.Time) (time.Duration, bool) {
	if res.RetryAfter != nil && *res.RetryAfter > 0 {
		return *res.RetryAfter, true
	}
	var raw string
	for name, value := range res.Headers {
		if strings.EqualFold(strings.TrimSpace(name), "Retry-After") {
			raw = strings.TrimSpace(value)
			break
		}
	}
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, seconds > 0
	}
	if at, err := http.ParseTime(raw); err == nil && at.After(now) {
		return at.Sub(now), true
	}
	return 0, false
}

var _ core.RateLimitPolicy = (*AdaptivePolicy)(nil)
