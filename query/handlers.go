package query

import (
	"context"
	"strings"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-miniapp/core"
)

type TokenReader interface {
	AccessToken(ctx context.Context) (core.AccessToken, error)
	TokenState() core.TokenState
}

type SessionReader interface {
	SessionSecret(identity string) (string, bool)
}

type AccessTokenQuery struct {
	reader TokenReader
}

func NewAccessTokenQuery(reader TokenReader) *AccessTokenQuery {
	return &AccessTokenQuery{reader: reader}
}

// Query returns a valid token, renewing it when the cached one is stale.
func (q *AccessTokenQuery) Query(ctx context.Context, _ AccessTokenMessage) (core.AccessToken, error) {
	if q == nil || q.reader == nil {
		return core.AccessToken{}, missingReader("token")
	}
	return q.reader.AccessToken(ctx)
}

type TokenStateQuery struct {
	reader TokenReader
}

func NewTokenStateQuery(reader TokenReader) *TokenStateQuery {
	return &TokenStateQuery{reader: reader}
}

func (q *TokenStateQuery) Query(_ context.Context, _ TokenStateMessage) (core.TokenState, error) {
	if q == nil || q.reader == nil {
		return core.TokenStateEmpty, missingReader("token")
	}
	return q.reader.TokenState(), nil
}

type SessionSecretQuery struct {
	reader SessionReader
}

func NewSessionSecretQuery(reader SessionReader) *SessionSecretQuery {
	return &SessionSecretQuery{reader: reader}
}

func (q *SessionSecretQuery) Query(_ context.Context, msg SessionSecretMessage) (SessionLookup, error) {
	if q == nil || q.reader == nil {
		return SessionLookup{}, missingReader("session")
	}
	openID := strings.TrimSpace(msg.OpenID)
	secret, ok := q.reader.SessionSecret(openID)
	return SessionLookup{OpenID: openID, SessionKey: secret, Found: ok}, nil
}

var (
	_ gocmd.Querier[AccessTokenMessage, core.AccessToken] = (*AccessTokenQuery)(nil)
	_ gocmd.Querier[TokenStateMessage, core.TokenState]   = (*TokenStateQuery)(nil)
	_ gocmd.Querier[SessionSecretMessage, SessionLookup]  = (*SessionSecretQuery)(nil)
)
