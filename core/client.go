package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Client is the composition root: one instance per process wires the
// credential store, token manager, session registry, signed request builder
// and request dispatcher around the injected transport and persistence.
type Client struct {
	config         Config
	logger         Logger
	loggerProvider LoggerProvider
	errorMapper    ErrorMapper
	observer       *observer

	store      *CredentialStore
	writer     PersistWriter
	tokens     *TokenManager
	sessions   *SessionRegistry
	builder    *SignedRequestBuilder
	dispatcher *RequestDispatcher
}

func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	builder := defaultClientBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("miniapp", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("miniapp"); named != nil {
			logger = glog.Ensure(named)
		}
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.credentialCodec == nil {
		builder.credentialCodec = JSONCredentialCodec{}
	}
	if builder.paySignature == nil {
		builder.paySignature = DefaultPaySignature
	}
	if builder.sessionSignature == nil {
		builder.sessionSignature = DefaultSessionSignature
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(ctx, defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if err := finalConfig.ValidateCredentials(); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if builder.transport == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: transport is required"))
	}
	if builder.persistence == nil {
		builder.persistence = NewMemoryPersistence()
	}
	if builder.diagnosticSink == nil {
		builder.diagnosticSink = LoggingDiagnosticSink{Logger: logger, Enabled: finalConfig.Debug}
	}
	if builder.persistWriter == nil {
		builder.persistWriter = NewAsyncPersistWriter(builder.persistence, builder.diagnosticSink)
	}

	store, err := NewCredentialStore(CredentialStoreConfig{
		Persistence: builder.persistence,
		Writer:      builder.persistWriter,
		Codec:       builder.credentialCodec,
		Sink:        builder.diagnosticSink,
		TokenKey:    finalConfig.tokenKey(),
		SessionsKey: finalConfig.sessionsKey(),
	})
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	snapshot, err := store.Load(ctx)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	obs := &observer{logger: logger, metrics: builder.metricsRecorder, debug: finalConfig.Debug}
	caller := &platformCaller{
		transport: builder.transport,
		baseURL:   finalConfig.ResolvedBaseURL(),
		timeout:   finalConfig.Timeout(),
		appID:     strings.TrimSpace(finalConfig.AppID),
		rateLimit: builder.rateLimitPolicy,
		observer:  obs,
	}
	tokens := newTokenManager(caller, store, obs, TokenManagerConfig{
		AppID:     finalConfig.AppID,
		AppSecret: finalConfig.AppSecret,
		Initial:   snapshot.Token,
		Now:       builder.now,
		Coalesce:  builder.coalesce,
	})
	sessions := newSessionRegistry(caller, store, obs, finalConfig.AppID, finalConfig.AppSecret, snapshot.Sessions)
	dispatcher := &RequestDispatcher{caller: caller, tokens: tokens, observer: obs}
	signed := &SignedRequestBuilder{
		tokens:           tokens,
		sessions:         sessions,
		dispatcher:       dispatcher,
		observer:         obs,
		appID:            strings.TrimSpace(finalConfig.AppID),
		offerID:          strings.TrimSpace(finalConfig.OfferID),
		paySecret:        strings.TrimSpace(finalConfig.PaySecret),
		paySignature:     builder.paySignature,
		sessionSignature: builder.sessionSignature,
		now:              builder.now,
	}

	obs.trace(ctx, "client initialized", map[string]any{
		"app_id":      finalConfig.AppID,
		"base_url":    caller.baseURL,
		"timeout_ms":  caller.timeout.Milliseconds(),
		"cache_state": string(snapshot.Token.State(builder.now())),
		"sessions":    len(snapshot.Sessions),
	})

	return &Client{
		config:         finalConfig,
		logger:         logger,
		loggerProvider: provider,
		errorMapper:    builder.errorMapper,
		observer:       obs,
		store:          store,
		writer:         builder.persistWriter,
		tokens:         tokens,
		sessions:       sessions,
		builder:        signed,
		dispatcher:     dispatcher,
	}, nil
}

func (c *Client) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.config
}

func (c *Client) Logger() Logger {
	if c == nil {
		return glog.Nop()
	}
	return c.logger
}

func (c *Client) LoggerProvider() LoggerProvider {
	if c == nil {
		return nil
	}
	return c.loggerProvider
}

func (c *Client) MapError(err error) error {
	if err == nil || c == nil || c.errorMapper == nil {
		return err
	}
	if mapped := c.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}

func (c *Client) AccessToken(ctx context.Context) (AccessToken, error) {
	if c == nil {
		return AccessToken{}, fmt.Errorf("core: client is not configured")
	}
	return c.tokens.AccessToken(ctx)
}

func (c *Client) TokenState() TokenState {
	if c == nil {
		return TokenStateEmpty
	}
	return c.tokens.State()
}

func (c *Client) ExchangeCode(ctx context.Context, code string) (CodeExchangeResult, error) {
	if c == nil {
		return CodeExchangeResult{}, fmt.Errorf("core: client is not configured")
	}
	return c.sessions.ExchangeCode(ctx, code)
}

func (c *Client) SessionSecret(identity string) (string, bool) {
	if c == nil {
		return "", false
	}
	return c.sessions.SessionSecret(identity)
}

func (c *Client) PayRequest(ctx context.Context, path string, payload map[string]any) (Response, error) {
	if c == nil {
		return Response{}, fmt.Errorf("core: client is not configured")
	}
	return c.builder.PayRequest(ctx, path, payload)
}

func (c *Client) Request(ctx context.Context, opts RequestOptions) (Response, error) {
	if c == nil {
		return Response{}, fmt.Errorf("core: client is not configured")
	}
	return c.dispatcher.Request(ctx, opts)
}

func (c *Client) Upload(ctx context.Context, opts UploadOptions) (Response, error) {
	if c == nil {
		return Response{}, fmt.Errorf("core: client is not configured")
	}
	return c.dispatcher.Upload(ctx, opts)
}

// Close drains pending credential writes when the writer supports it.
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.writer == nil {
		return nil
	}
	if closer, ok := c.writer.(interface{ Close(context.Context) error }); ok {
		return closer.Close(ctx)
	}
	return nil
}

// Flush waits for pending credential writes without stopping the writer.
func (c *Client) Flush(ctx context.Context) error {
	if c == nil || c.writer == nil {
		return nil
	}
	if flusher, ok := c.writer.(interface{ Flush(context.Context) error }); ok {
		return flusher.Flush(ctx)
	}
	return nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
