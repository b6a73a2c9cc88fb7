package ratelimit

import (
	"context"
	"errors"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-miniapp/core"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

// State is what AdaptivePolicy remembers about one bucket between calls.
type State struct {
	Key            core.RateLimitKey
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	LastErrCode    int
	Attempts       int
	UpdatedAt      time.Time
	Metadata       map[string]any
}

func (s State) throttledAt(now time.Time) (time.Duration, bool) {
	if s.ThrottledUntil == nil || !now.Before(*s.ThrottledUntil) {
		return 0, false
	}
	return s.ThrottledUntil.Sub(now), true
}

type StateStore interface {
	Get(ctx context.Context, key core.RateLimitKey) (State, error)
	Upsert(ctx context.Context, state State) error
}

// MemoryStateStore keeps bucket state in process. Keys are normalized on
// both read and write.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[core.RateLimitKey]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[core.RateLimitKey]State)}
}

var errNilStore = errors.New("ratelimit: state store is nil")

func (s *MemoryStateStore) Get(_ context.Context, key core.RateLimitKey) (State, error) {
	if s == nil {
		return State{}, errNilStore
	}
	s.mu.RLock()
	state, found := s.states[normalizeKey(key)]
	s.mu.RUnlock()
	if !found {
		return State{}, ErrStateNotFound
	}
	state.Metadata = copyMetadata(state.Metadata)
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return errNilStore
	}
	state.Key = normalizeKey(state.Key)
	state.Metadata = copyMetadata(state.Metadata)
	s.mu.Lock()
	s.states[state.Key] = state
	s.mu.Unlock()
	return nil
}

// normalizeKey trims both parts and lowercases the bucket, so "/Foo" and
// "/foo " share a window.
func normalizeKey(key core.RateLimitKey) core.RateLimitKey {
	return core.RateLimitKey{
		AppID:     strings.TrimSpace(key.AppID),
		BucketKey: strings.ToLower(strings.TrimSpace(key.BucketKey)),
	}
}

func copyMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	maps.Copy(out, in)
	return out
}
