package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// SessionRegistry maps end-user identities to the session secret issued at
// their last login. Entries are overwritten on re-login and never expire.
type SessionRegistry struct {
	caller    *platformCaller
	store     *CredentialStore
	observer  *observer
	appID     string
	appSecret string

	mu       sync.RWMutex
	sessions map[string]string
}

func newSessionRegistry(
	caller *platformCaller,
	store *CredentialStore,
	obs *observer,
	appID string,
	appSecret string,
	initial map[string]string,
) *SessionRegistry {
	sessions := make(map[string]string, len(initial))
	for identity, secret := range initial {
		sessions[identity] = secret
	}
	return &SessionRegistry{
		caller:    caller,
		store:     store,
		observer:  obs,
		appID:     strings.TrimSpace(appID),
		appSecret: strings.TrimSpace(appSecret),
		sessions:  sessions,
	}
}

// ExchangeCode trades a one-time login code for the user's identity and
// session secret, records the secret and persists the whole map.
func (r *SessionRegistry) ExchangeCode(ctx context.Context, code string) (result CodeExchangeResult, err error) {
	if r == nil {
		return CodeExchangeResult{}, fmt.Errorf("core: session registry is not configured")
	}
	startedAt := time.Now()
	defer func() {
		r.observer.observeOperation(ctx, startedAt, "exchange_code", err, map[string]any{
			"app_id": r.appID,
			"openid": result.OpenID,
		})
	}()

	code = strings.TrimSpace(code)
	if code == "" {
		return CodeExchangeResult{}, newBadInputError("core: login code is required", nil)
	}

	res, err := r.caller.call(ctx, platformCall{
		Method: http.MethodGet,
		Path:   CodeExchangePath,
		Query: map[string]string{
			"appid":      r.appID,
			"secret":     r.appSecret,
			"js_code":    code,
			"grant_type": "authorization_code",
		},
		Operation: "exchange_code",
	})
	if err != nil {
		return CodeExchangeResult{}, err
	}

	openID := stringField(res.Data, "openid")
	sessionKey := stringField(res.Data, "session_key")
	if openID == "" || sessionKey == "" {
		return CodeExchangeResult{}, newBadResponseError(nil, "core: code exchange response is missing openid or session_key", map[string]any{
			"status_code": res.StatusCode,
		})
	}

	r.put(ctx, openID, sessionKey)

	return CodeExchangeResult{
		OpenID:     openID,
		SessionKey: sessionKey,
		UnionID:    stringField(res.Data, "unionid"),
		Raw:        copyAnyMap(res.Data),
	}, nil
}

// put records the secret and hands the snapshot to the store before
// releasing the lock, so snapshots reach the writer in update order.
func (r *SessionRegistry) put(ctx context.Context, identity string, secret string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[identity] = secret
	r.store.PersistSessions(ctx, cloneStringMap(r.sessions))
}

// SessionSecret returns the stored secret for identity.
func (r *SessionRegistry) SessionSecret(identity string) (string, bool) {
	if r == nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	secret, ok := r.sessions[strings.TrimSpace(identity)]
	if !ok || secret == "" {
		return "", false
	}
	return secret, true
}

func (r *SessionRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
