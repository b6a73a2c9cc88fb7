package ratelimit

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-miniapp/core"
)

// ThrottledError is returned before a call when its bucket is still inside
// a throttle window. RetryAfter is the remaining wait.
type ThrottledError struct {
	AppID      string
	BucketKey  string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("ratelimit: bucket %q of app %q is throttled, retry in %s",
		strings.TrimSpace(e.BucketKey), strings.TrimSpace(e.AppID), e.RetryAfter)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	meta := map[string]any{
		"app_id":     strings.TrimSpace(e.AppID),
		"bucket_key": strings.TrimSpace(e.BucketKey),
	}
	if e.RetryAfter > 0 {
		meta["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ErrorRateLimited).
		WithMetadata(meta)
}
