// Package transport sends platform calls over HTTP.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-miniapp/core"
)

const KindREST = "rest"

const (
	defaultRESTResponseBodyLimit int64 = 10 << 20
	defaultUserAgent                   = "go-miniapp"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter executes platform calls over net/http. Per-request timeouts
// come from TransportRequest.Timeout and fall back to DefaultTimeout.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	DefaultTimeout       time.Duration
	MaxResponseBodyBytes int64
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{}
	}
	return &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{"User-Agent": defaultUserAgent},
		DefaultTimeout:       core.DefaultTimeout,
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
	}
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

func (a *RESTAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, failure{
			category: goerrors.CategoryInternal,
			status:   http.StatusInternalServerError,
			message:  "transport: rest adapter requires an http client",
			meta:     map[string]any{"adapter": KindREST},
		}.err()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	target, err := resolveTarget(req)
	if err != nil {
		return core.TransportResponse{}, err
	}
	// Error metadata only ever carries the path: the query holds credentials.
	display := target.Scheme + "://" + target.Host + target.Path

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = a.DefaultTimeout
	}
	callCtx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(callCtx, method, target.String(), requestBody(req.Body))
	if err != nil {
		return core.TransportResponse{}, badInput("transport: create http request", map[string]any{
			"adapter": KindREST, "method": method, "url": display,
		}).wrap(err)
	}
	applyHeaders(httpReq.Header, a.DefaultHeaders)
	applyHeaders(httpReq.Header, req.Headers)

	startedAt := time.Now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		meta := map[string]any{"adapter": KindREST, "method": method, "url": display}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			meta["timeout_ms"] = timeout.Milliseconds()
			return core.TransportResponse{}, upstream(http.StatusGatewayTimeout, "transport: request timed out", meta).wrap(err)
		}
		return core.TransportResponse{}, upstream(http.StatusBadGateway, "transport: execute http request", meta).wrap(err)
	}
	defer httpRes.Body.Close()

	payload, err := readLimited(httpRes, resolveResponseBodyLimit(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes))
	if err != nil {
		return core.TransportResponse{}, err
	}
	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       payload,
		Metadata: map[string]any{
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"kind":        KindREST,
		},
	}, nil
}

// resolveTarget parses req.URL and folds req.Query over any query it already has.
func resolveTarget(req core.TransportRequest) (*url.URL, error) {
	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		return nil, badInput("transport: request url is required", map[string]any{"adapter": KindREST}).err()
	}
	target, err := url.Parse(raw)
	if err != nil {
		return nil, badInput("transport: invalid request url", map[string]any{"adapter": KindREST}).wrap(err)
	}
	values := target.Query()
	for key, value := range req.Query {
		if key = strings.TrimSpace(key); key != "" {
			values.Set(key, value)
		}
	}
	target.RawQuery = values.Encode()
	return target, nil
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func requestBody(body []byte) io.Reader {
	if len(body) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(body)
}

func applyHeaders(dst http.Header, src map[string]string) {
	for key, value := range src {
		if key = strings.TrimSpace(key); key != "" {
			dst.Set(key, strings.TrimSpace(value))
		}
	}
}

// readLimited reads at most limit bytes and fails when the body is larger.
func readLimited(res *http.Response, limit int64) ([]byte, error) {
	payload, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return nil, upstream(http.StatusBadGateway, "transport: read response body", map[string]any{
			"adapter": KindREST, "status_code": res.StatusCode,
		}).wrap(err)
	}
	if int64(len(payload)) > limit {
		return nil, upstream(http.StatusBadGateway, fmt.Sprintf("transport: response body exceeds limit of %d bytes", limit), map[string]any{
			"adapter":          KindREST,
			"status_code":      res.StatusCode,
			"response_limit_b": limit,
		}).err()
	}
	return payload, nil
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func resolveResponseBodyLimit(requestLimit int64, adapterLimit int64) int64 {
	switch {
	case requestLimit > 0:
		return requestLimit
	case adapterLimit > 0:
		return adapterLimit
	default:
		return defaultRESTResponseBodyLimit
	}
}

var _ core.TransportAdapter = (*RESTAdapter)(nil)
