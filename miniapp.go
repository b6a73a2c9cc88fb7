// Package miniapp is a client for the mini-program server API. It keeps the
// access token and session keys fresh, signs payment requests and sends
// JSON and multipart calls with the credential attached.
package miniapp

import (
	"context"

	"github.com/goliatone/go-miniapp/core"
	"github.com/goliatone/go-miniapp/transport"
)

type Config = core.Config
type PersistenceConfig = core.PersistenceConfig
type Option = core.Option
type Client = core.Client

type AccessToken = core.AccessToken
type TokenState = core.TokenState
type CodeExchangeResult = core.CodeExchangeResult
type RequestOptions = core.RequestOptions
type UploadOptions = core.UploadOptions
type FormField = core.FormField
type AttachmentOptions = core.AttachmentOptions
type Response = core.Response

type Persistence = core.Persistence
type PersistWriter = core.PersistWriter
type DiagnosticSink = core.DiagnosticSink
type TransportAdapter = core.TransportAdapter
type RateLimitPolicy = core.RateLimitPolicy
type SecretProvider = core.SecretProvider

type PlatformError = core.PlatformError
type SessionNotFoundError = core.SessionNotFoundError

const (
	TokenStateEmpty = core.TokenStateEmpty
	TokenStateValid = core.TokenStateValid
	TokenStateStale = core.TokenStateStale
)

var (
	ErrBlobNotFound           = core.ErrBlobNotFound
	ErrUnauthenticatedSession = core.ErrUnauthenticatedSession
)

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithTransport         = core.WithTransport
	WithPersistence       = core.WithPersistence
	WithPersistWriter     = core.WithPersistWriter
	WithDiagnosticSink    = core.WithDiagnosticSink
	WithCredentialCodec   = core.WithCredentialCodec
	WithPaySignature      = core.WithPaySignature
	WithSessionSignature  = core.WithSessionSignature
	WithRateLimitPolicy   = core.WithRateLimitPolicy
	WithClock             = core.WithClock
	WithRenewalCoalescing = core.WithRenewalCoalescing
	PlainValue            = core.PlainValue
	FileAttachment        = core.FileAttachment
	NewMemoryPersistence  = core.NewMemoryPersistence
	NewAsyncPersistWriter = core.NewAsyncPersistWriter
	NewCfgxConfigProvider = core.NewCfgxConfigProvider
	MapError              = core.MapError
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewClient builds a client over the REST transport. Pass WithTransport to
// replace it.
func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	all := make([]Option, 0, len(opts)+1)
	all = append(all, core.WithTransport(transport.NewRESTAdapter(nil)))
	all = append(all, opts...)
	return core.NewClient(ctx, cfg, all...)
}
