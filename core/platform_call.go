package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type platformCall struct {
	Method    string
	Path      string
	Query     map[string]string
	Headers   map[string]string
	Body      []byte
	Operation string
}

// platformCaller performs one transport exchange against the platform base URL
// and applies the errcode inspection every platform endpoint shares.
type platformCaller struct {
	transport TransportAdapter
	baseURL   string
	timeout   time.Duration
	appID     string
	rateLimit RateLimitPolicy
	observer  *observer
}

func (c *platformCaller) call(ctx context.Context, in platformCall) (Response, error) {
	if c == nil || c.transport == nil {
		return Response{}, fmt.Errorf("core: transport is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	method := strings.ToUpper(strings.TrimSpace(in.Method))
	if method == "" {
		method = http.MethodPost
	}
	target, err := c.resolveURL(in.Path)
	if err != nil {
		return Response{}, err
	}

	key := RateLimitKey{AppID: c.appID, BucketKey: rateLimitBucket(in.Path)}
	if c.rateLimit != nil {
		if err := c.rateLimit.BeforeCall(ctx, key); err != nil {
			return Response{}, err
		}
	}

	c.observer.trace(ctx, "platform request", map[string]any{
		"method": method,
		"path":   in.Path,
		"query":  in.Query,
	})

	res, err := c.transport.Do(ctx, TransportRequest{
		Method:  method,
		URL:     target,
		Headers: cloneStringMap(in.Headers),
		Query:   cloneStringMap(in.Query),
		Body:    in.Body,
		Timeout: c.timeout,
		Metadata: map[string]any{
			"operation": in.Operation,
		},
	})
	if err != nil {
		return Response{}, err
	}

	out := Response{
		StatusCode: res.StatusCode,
		Headers:    cloneStringMap(res.Headers),
		Body:       res.Body,
		Data:       decodeJSONObject(res.Body),
	}

	errCode, hasErrCode := platformErrCode(out.Data)
	if c.rateLimit != nil {
		if afterErr := c.rateLimit.AfterCall(ctx, key, ResponseMeta{
			StatusCode: res.StatusCode,
			ErrCode:    errCode,
			Headers:    cloneStringMap(res.Headers),
			Metadata:   copyAnyMap(res.Metadata),
		}); afterErr != nil {
			c.observer.trace(ctx, "rate limit bookkeeping failed", map[string]any{"error": afterErr.Error()})
		}
	}

	c.observer.trace(ctx, "platform response", map[string]any{
		"method":      method,
		"path":        in.Path,
		"status_code": res.StatusCode,
		"body":        out.Data,
	})

	if hasErrCode && errCode != 0 {
		errMsg, _ := out.Data["errmsg"].(string)
		return out, &PlatformError{
			ErrCode:    errCode,
			ErrMsg:     errMsg,
			StatusCode: res.StatusCode,
			Path:       in.Path,
			Body:       out.Data,
			Raw:        append([]byte(nil), res.Body...),
		}
	}
	if res.StatusCode >= http.StatusBadRequest {
		return out, goerrors.New(
			fmt.Sprintf("core: platform responded with status %d", res.StatusCode),
			goerrors.CategoryExternal,
		).
			WithCode(res.StatusCode).
			WithTextCode(ErrorExternalFailure).
			WithMetadata(map[string]any{"path": in.Path, "method": method, "status_code": res.StatusCode})
	}
	return out, nil
}

func (c *platformCaller) resolveURL(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", newBadInputError("core: request path is required", nil)
	}
	lower := strings.ToLower(path)
	if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
		return path, nil
	}
	base := strings.TrimRight(strings.TrimSpace(c.baseURL), "/")
	if base == "" {
		base = PrimaryBaseURL
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path, nil
}

func rateLimitBucket(path string) string {
	path = strings.TrimSpace(path)
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	return strings.ToLower(path)
}

func decodeJSONObject(body []byte) map[string]any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	decoded := map[string]any{}
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return nil
	}
	return decoded
}

func platformErrCode(data map[string]any) (int, bool) {
	if len(data) == 0 {
		return 0, false
	}
	raw, ok := data["errcode"]
	if !ok {
		return 0, false
	}
	switch typed := raw.(type) {
	case float64:
		return int(typed), true
	case int:
		return typed, true
	case int64:
		return int(typed), true
	case json.Number:
		value, err := typed.Int64()
		if err != nil {
			return 0, false
		}
		return int(value), true
	default:
		return 0, false
	}
}

func intField(data map[string]any, key string) (int, bool) {
	raw, ok := data[key]
	if !ok {
		return 0, false
	}
	switch typed := raw.(type) {
	case float64:
		return int(typed), true
	case int:
		return typed, true
	case int64:
		return int(typed), true
	default:
		return 0, false
	}
}

func stringField(data map[string]any, key string) string {
	value, _ := data[key].(string)
	return strings.TrimSpace(value)
}
