package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const renewalFlightKey = "access_token"

// TokenManager hands out the shared access token, renewing it through the
// token endpoint once it falls inside the safety margin.
type TokenManager struct {
	caller    *platformCaller
	store     *CredentialStore
	observer  *observer
	appID     string
	appSecret string
	now       func() time.Time
	coalesce  bool

	mu    sync.RWMutex
	token AccessToken
	group singleflight.Group
}

type TokenManagerConfig struct {
	AppID     string
	AppSecret string
	Initial   AccessToken
	Now       func() time.Time
	Coalesce  bool
}

func newTokenManager(caller *platformCaller, store *CredentialStore, obs *observer, cfg TokenManagerConfig) *TokenManager {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &TokenManager{
		caller:    caller,
		store:     store,
		observer:  obs,
		appID:     strings.TrimSpace(cfg.AppID),
		appSecret: strings.TrimSpace(cfg.AppSecret),
		now:       now,
		coalesce:  cfg.Coalesce,
		token:     cfg.Initial,
	}
}

// AccessToken returns the cached token when valid; otherwise it renews.
// Failures leave the cached token untouched.
func (m *TokenManager) AccessToken(ctx context.Context) (AccessToken, error) {
	if m == nil {
		return AccessToken{}, fmt.Errorf("core: token manager is not configured")
	}
	if current := m.Current(); current.Valid(m.now()) {
		return current, nil
	}
	if !m.coalesce {
		return m.renew(ctx)
	}
	// The shared renewal outlives any single caller; the transport timeout
	// still bounds it. Each caller stops waiting when its own ctx is done.
	shared := context.WithoutCancel(ctx)
	flight := m.group.DoChan(renewalFlightKey, func() (any, error) {
		// A caller that lost the race may find a fresh token already stored.
		if current := m.Current(); current.Valid(m.now()) {
			return current, nil
		}
		return m.renew(shared)
	})
	select {
	case <-ctx.Done():
		return AccessToken{}, ctx.Err()
	case outcome := <-flight:
		if outcome.Err != nil {
			return AccessToken{}, outcome.Err
		}
		token, _ := outcome.Val.(AccessToken)
		return token, nil
	}
}

func (m *TokenManager) renew(ctx context.Context) (token AccessToken, err error) {
	startedAt := time.Now()
	defer func() {
		m.observer.observeOperation(ctx, startedAt, "renew_access_token", err, map[string]any{
			"app_id":     m.appID,
			"expires_in": token.ExpiresIn,
		})
	}()

	res, err := m.caller.call(ctx, platformCall{
		Method: http.MethodGet,
		Path:   TokenPath,
		Query: map[string]string{
			"grant_type": "client_credential",
			"appid":      m.appID,
			"secret":     m.appSecret,
		},
		Operation: "renew_access_token",
	})
	if err != nil {
		return AccessToken{}, err
	}

	value := stringField(res.Data, "access_token")
	if value == "" {
		return AccessToken{}, newBadResponseError(nil, "core: token response has no access_token", map[string]any{
			"status_code": res.StatusCode,
		})
	}
	expiresIn, ok := intField(res.Data, "expires_in")
	if !ok {
		expiresIn, ok = intField(res.Data, "expire_in")
	}
	if !ok || expiresIn <= 0 {
		expiresIn = DefaultTokenExpiresIn
	}

	token = AccessToken{
		Token:     value,
		ExpiresIn: expiresIn,
		FetchedAt: m.now(),
	}
	// Persisting under the lock keeps hand-off order equal to update order.
	m.mu.Lock()
	m.token = token
	m.store.PersistToken(ctx, token)
	m.mu.Unlock()
	return token, nil
}

// Current returns the cached token without renewing it.
func (m *TokenManager) Current() AccessToken {
	if m == nil {
		return AccessToken{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *TokenManager) State() TokenState {
	if m == nil {
		return TokenStateEmpty
	}
	return m.Current().State(m.now())
}
