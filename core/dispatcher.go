package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RequestDispatcher sends authenticated requests: the current access token is
// merged into the query and platform errcodes are surfaced as errors.
type RequestDispatcher struct {
	caller   *platformCaller
	tokens   *TokenManager
	observer *observer
}

func (d *RequestDispatcher) Request(ctx context.Context, opts RequestOptions) (Response, error) {
	if d == nil {
		return Response{}, fmt.Errorf("core: request dispatcher is not configured")
	}
	if strings.TrimSpace(opts.Path) == "" {
		return Response{}, newBadInputError("core: request path is required", nil)
	}
	token, err := d.tokens.AccessToken(ctx)
	if err != nil {
		return Response{}, err
	}
	return d.send(ctx, opts, token.Token, "request")
}

func (d *RequestDispatcher) send(ctx context.Context, opts RequestOptions, accessToken string, operation string) (res Response, err error) {
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodPost
	}
	startedAt := time.Now()
	defer func() {
		d.observer.observeOperation(ctx, startedAt, operation, err, map[string]any{
			"method":      method,
			"path":        strings.TrimSpace(opts.Path),
			"status_code": res.StatusCode,
		})
	}()

	query := make(map[string]string, len(opts.Query)+1)
	for key, value := range opts.Query {
		if strings.TrimSpace(key) == "" || key == AccessTokenParam {
			continue
		}
		query[key] = value
	}
	query[AccessTokenParam] = accessToken

	headers := cloneStringMap(opts.Headers)
	body := opts.Body
	if len(body) == 0 && opts.Data != nil {
		encoded, encodeErr := json.Marshal(opts.Data)
		if encodeErr != nil {
			return Response{}, newBadInputError(fmt.Sprintf("core: encode request data: %v", encodeErr), map[string]any{
				"path": opts.Path,
			})
		}
		body = encoded
		if headerValue(headers, "Content-Type") == "" {
			headers["Content-Type"] = "application/json"
		}
	}

	return d.caller.call(ctx, platformCall{
		Method:    method,
		Path:      opts.Path,
		Query:     query,
		Headers:   headers,
		Body:      body,
		Operation: operation,
	})
}

// Upload encodes fields as multipart/form-data and sends them as an
// authenticated request.
func (d *RequestDispatcher) Upload(ctx context.Context, opts UploadOptions) (Response, error) {
	if d == nil {
		return Response{}, fmt.Errorf("core: request dispatcher is not configured")
	}
	if strings.TrimSpace(opts.Path) == "" {
		return Response{}, newBadInputError("core: upload path is required", nil)
	}
	encoded, err := EncodeMultipart(opts.Fields)
	if err != nil {
		return Response{}, err
	}
	headers := cloneStringMap(opts.Headers)
	for key, value := range encoded.Headers() {
		for existing := range headers {
			if strings.EqualFold(existing, key) {
				delete(headers, existing)
			}
		}
		headers[key] = value
	}
	token, err := d.tokens.AccessToken(ctx)
	if err != nil {
		return Response{}, err
	}
	return d.send(ctx, RequestOptions{
		Method:  opts.Method,
		Path:    opts.Path,
		Query:   opts.Query,
		Headers: headers,
		Body:    encoded.Body,
	}, token.Token, "upload")
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
