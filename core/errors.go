package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput               = "MINIAPP_BAD_INPUT"
	ErrorUnauthenticatedSession = "MINIAPP_UNAUTHENTICATED_SESSION"
	ErrorPlatform               = "MINIAPP_PLATFORM_ERROR"
	ErrorBadResponse            = "MINIAPP_BAD_RESPONSE"
	ErrorExternalFailure        = "MINIAPP_EXTERNAL_FAILURE"
	ErrorRateLimited            = "MINIAPP_RATE_LIMITED"
	ErrorNotFound               = "MINIAPP_NOT_FOUND"
	ErrorInternal               = "MINIAPP_INTERNAL_ERROR"
)

// ErrUnauthenticatedSession is matched by errors.Is when a signed request is
// built for an identity without a stored session secret.
var ErrUnauthenticatedSession = errors.New("core: unauthenticated session")

type SessionNotFoundError struct {
	Identity string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("core: unauthenticated session for identity %q", e.Identity)
}

func (e *SessionNotFoundError) Is(target error) bool {
	return target == ErrUnauthenticatedSession
}

func (e *SessionNotFoundError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(ErrorUnauthenticatedSession).
		WithMetadata(map[string]any{"openid": e.Identity})
}

// PlatformError is a non-zero errcode reported inside an otherwise successful
// HTTP response. Body carries the whole decoded payload.
type PlatformError struct {
	ErrCode    int
	ErrMsg     string
	StatusCode int
	Path       string
	Body       map[string]any
	Raw        []byte
}

func (e *PlatformError) Error() string {
	msg := strings.TrimSpace(e.ErrMsg)
	if msg == "" {
		msg = "platform error"
	}
	return fmt.Sprintf("core: platform errcode %d: %s", e.ErrCode, msg)
}

func (e *PlatformError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"errcode": e.ErrCode,
		"errmsg":  e.ErrMsg,
	}
	if path := strings.TrimSpace(e.Path); path != "" {
		metadata["path"] = path
	}
	category := goerrors.CategoryExternal
	code := http.StatusBadGateway
	textCode := ErrorPlatform
	if IsRateLimitErrCode(e.ErrCode) {
		category = goerrors.CategoryRateLimit
		code = http.StatusTooManyRequests
		textCode = ErrorRateLimited
	}
	return goerrors.New(e.Error(), category).
		WithCode(code).
		WithTextCode(textCode).
		WithMetadata(metadata)
}

// IsRateLimitErrCode reports platform codes that signal quota exhaustion.
func IsRateLimitErrCode(code int) bool {
	return code == 45009 || code == 45011
}

// AsPlatformError unwraps a *PlatformError from err.
func AsPlatformError(err error) (*PlatformError, bool) {
	var platformErr *PlatformError
	if errors.As(err, &platformErr) {
		return platformErr, true
	}
	return nil, false
}

func newBadInputError(message string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func newBadResponseError(source error, message string, metadata map[string]any) *goerrors.Error {
	var err *goerrors.Error
	if source != nil {
		err = goerrors.Wrap(source, goerrors.CategoryExternal, message)
	} else {
		err = goerrors.New(message, goerrors.CategoryExternal)
	}
	err = err.WithCode(http.StatusBadGateway).WithTextCode(ErrorBadResponse)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// MapError converts arbitrary errors into go-errors envelopes with MINIAPP text codes.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var sessionErr *SessionNotFoundError
	if errors.As(err, &sessionErr) {
		return sessionErr.ToServiceError()
	}
	if platformErr, ok := AsPlatformError(err); ok {
		return platformErr.ToServiceError()
	}
	var convertible interface{ ToServiceError() *goerrors.Error }
	if errors.As(err, &convertible) {
		return ensureErrorEnvelope(convertible.ToServiceError())
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}
	if errors.Is(err, ErrUnauthenticatedSession) {
		return newError(err.Error(), goerrors.CategoryAuth, ErrorUnauthenticatedSession)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newError(err.Error(), goerrors.CategoryRateLimit, ErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func newError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatusForCategory(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorUnauthenticatedSession
	case goerrors.CategoryRateLimit:
		return ErrorRateLimited
	case goerrors.CategoryExternal:
		return ErrorExternalFailure
	default:
		return ErrorInternal
	}
}

func httpStatusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
