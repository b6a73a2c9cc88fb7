package core

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	PaySignatureField     = "sig"
	SessionSignatureField = "mp_sig"
)

// DefaultPaySignature signs the payload with the payment secret:
// hex(HMAC-SHA256(secret, "k1=v1&k2=v2&org_loc=<path>&method=POST&secret=<secret>")).
// Signature fields and access_token are excluded from the parameter string.
func DefaultPaySignature(payload map[string]any, path string, secret string) string {
	params := canonicalParams(payload, PaySignatureField, SessionSignatureField, AccessTokenParam)
	message := params + "&org_loc=" + path + "&method=POST&secret=" + secret
	return hmacSHA256Hex(secret, message)
}

// DefaultSessionSignature signs the pay-signed payload plus access_token with
// the user's session secret:
// hex(HMAC-SHA256(sessionKey, "<params incl. access_token and sig>&org_loc=<path>&method=POST&session_key=<sessionKey>")).
func DefaultSessionSignature(payload map[string]any, path string, accessToken string, sessionKey string) string {
	withToken := copyAnyMap(payload)
	withToken[AccessTokenParam] = accessToken
	params := canonicalParams(withToken, SessionSignatureField)
	message := params + "&org_loc=" + path + "&method=POST&session_key=" + sessionKey
	return hmacSHA256Hex(sessionKey, message)
}

func hmacSHA256Hex(key string, message string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func canonicalParams(payload map[string]any, exclude ...string) string {
	skip := make(map[string]struct{}, len(exclude))
	for _, key := range exclude {
		skip[key] = struct{}{}
	}
	keys := make([]string, 0, len(payload))
	for key := range payload {
		if _, excluded := skip[key]; excluded {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+canonicalValue(payload[key]))
	}
	return strings.Join(parts, "&")
}

func canonicalValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case int:
		return strconv.Itoa(typed)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	case int64:
		return strconv.FormatInt(typed, 10)
	case uint:
		return strconv.FormatUint(uint64(typed), 10)
	case uint64:
		return strconv.FormatUint(typed, 10)
	case float32:
		return canonicalFloat(float64(typed))
	case float64:
		return canonicalFloat(typed)
	case json.Number:
		return typed.String()
	case fmt.Stringer:
		return typed.String()
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(encoded)
	}
}

func canonicalFloat(value float64) string {
	if value == math.Trunc(value) && math.Abs(value) < 1e15 {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// SignedRequestBuilder stamps payment payloads and attaches both signatures
// before dispatching them as authenticated POSTs.
type SignedRequestBuilder struct {
	tokens           *TokenManager
	sessions         *SessionRegistry
	dispatcher       *RequestDispatcher
	observer         *observer
	appID            string
	offerID          string
	paySecret        string
	paySignature     PaySignatureFunc
	sessionSignature SessionSignatureFunc
	now              func() time.Time
}

// PreparedPayment is a stamped and signed payment payload ready to send.
type PreparedPayment struct {
	Path        string
	Payload     map[string]any
	AccessToken AccessToken
}

// Prepare runs every step of a payment request except the final dispatch.
func (b *SignedRequestBuilder) Prepare(ctx context.Context, path string, payload map[string]any) (PreparedPayment, error) {
	if b == nil {
		return PreparedPayment{}, fmt.Errorf("core: signed request builder is not configured")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return PreparedPayment{}, newBadInputError("core: payment path is required", nil)
	}
	// A payload without openid has no session either.
	identity := strings.TrimSpace(canonicalValue(payload[IdentityField]))
	sessionKey, ok := "", false
	if identity != "" {
		sessionKey, ok = b.sessions.SessionSecret(identity)
	}
	if !ok {
		return PreparedPayment{}, &SessionNotFoundError{Identity: identity}
	}

	token, err := b.tokens.AccessToken(ctx)
	if err != nil {
		return PreparedPayment{}, err
	}

	stamped := copyAnyMap(payload)
	stamped["appid"] = b.appID
	stamped["offer_id"] = b.offerID
	stamped["ts"] = b.now().Unix()
	stamped[PaySignatureField] = b.paySignature(copyAnyMap(stamped), path, b.paySecret)
	stamped[SessionSignatureField] = b.sessionSignature(copyAnyMap(stamped), path, token.Token, sessionKey)

	return PreparedPayment{Path: path, Payload: stamped, AccessToken: token}, nil
}

// PayRequest prepares the payment payload and posts it with the same token
// that was used for the session signature.
func (b *SignedRequestBuilder) PayRequest(ctx context.Context, path string, payload map[string]any) (res Response, err error) {
	startedAt := time.Now()
	defer func() {
		if b == nil {
			return
		}
		b.observer.observeOperation(ctx, startedAt, "pay_request", err, map[string]any{
			"path":     strings.TrimSpace(path),
			"method":   http.MethodPost,
			"offer_id": b.offerID,
		})
	}()

	prepared, err := b.Prepare(ctx, path, payload)
	if err != nil {
		return Response{}, err
	}
	return b.dispatcher.send(ctx, RequestOptions{
		Method: http.MethodPost,
		Path:   prepared.Path,
		Data:   prepared.Payload,
	}, prepared.AccessToken.Token, "pay_request")
}
