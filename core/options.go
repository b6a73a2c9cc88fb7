package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type clientBuilder struct {
	runtimeConfig    Config
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	errorMapper      ErrorMapper
	configProvider   ConfigProvider
	optionsResolver  OptionsResolver
	transport        TransportAdapter
	persistence      Persistence
	persistWriter    PersistWriter
	diagnosticSink   DiagnosticSink
	credentialCodec  CredentialCodec
	paySignature     PaySignatureFunc
	sessionSignature SessionSignatureFunc
	rateLimitPolicy  RateLimitPolicy
	now              func() time.Time
	coalesce         bool
}

type Option func(*clientBuilder)

func WithLogger(logger Logger) Option {
	return func(b *clientBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *clientBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *clientBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *clientBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *clientBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *clientBuilder) {
		b.optionsResolver = resolver
	}
}

// WithTransport replaces the HTTP transport. It is required: core ships no
// concrete transport.
func WithTransport(transport TransportAdapter) Option {
	return func(b *clientBuilder) {
		b.transport = transport
	}
}

func WithPersistence(persistence Persistence) Option {
	return func(b *clientBuilder) {
		b.persistence = persistence
	}
}

// WithPersistWriter overrides the background writer that receives encoded
// credential blobs.
func WithPersistWriter(writer PersistWriter) Option {
	return func(b *clientBuilder) {
		b.persistWriter = writer
	}
}

func WithDiagnosticSink(sink DiagnosticSink) Option {
	return func(b *clientBuilder) {
		b.diagnosticSink = sink
	}
}

func WithCredentialCodec(codec CredentialCodec) Option {
	return func(b *clientBuilder) {
		b.credentialCodec = codec
	}
}

func WithPaySignature(fn PaySignatureFunc) Option {
	return func(b *clientBuilder) {
		b.paySignature = fn
	}
}

func WithSessionSignature(fn SessionSignatureFunc) Option {
	return func(b *clientBuilder) {
		b.sessionSignature = fn
	}
}

func WithRateLimitPolicy(policy RateLimitPolicy) Option {
	return func(b *clientBuilder) {
		b.rateLimitPolicy = policy
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *clientBuilder) {
		b.now = now
	}
}

// WithRenewalCoalescing toggles sharing a single in-flight token renewal
// between concurrent callers. Enabled by default.
func WithRenewalCoalescing(enabled bool) Option {
	return func(b *clientBuilder) {
		b.coalesce = enabled
	}
}

func defaultClientBuilder(runtime Config) clientBuilder {
	loggerProvider, logger := glog.Resolve("miniapp", nil, nil)
	return clientBuilder{
		runtimeConfig:    runtime,
		loggerProvider:   loggerProvider,
		logger:           logger,
		metricsRecorder:  NopMetricsRecorder{},
		errorMapper:      defaultErrorMapper,
		configProvider:   NewCfgxConfigProvider(nil),
		optionsResolver:  GoOptionsResolver{},
		credentialCodec:  JSONCredentialCodec{},
		paySignature:     DefaultPaySignature,
		sessionSignature: DefaultSessionSignature,
		now:              func() time.Time { return time.Now().UTC() },
		coalesce:         true,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return MapError(err)
}

// StaticRawConfigLoader serves a fixed raw map, mostly for tests and CLIs
// that assemble configuration themselves.
type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(key, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			layer[key] = strings.TrimSpace(value)
		}
	}
	setString("app_id", cfg.AppID)
	setString("app_secret", cfg.AppSecret)
	setString("offer_id", cfg.OfferID)
	setString("pay_secret", cfg.PaySecret)
	setString("base_url", cfg.BaseURL)
	if includeZero || cfg.TimeoutMS > 0 {
		layer["timeout_ms"] = cfg.TimeoutMS
	}
	if includeZero || cfg.Debug {
		layer["debug"] = cfg.Debug
	}

	persistence := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Persistence.TokenKey) != "" {
		persistence["token_key"] = strings.TrimSpace(cfg.Persistence.TokenKey)
	}
	if includeZero || strings.TrimSpace(cfg.Persistence.SessionsKey) != "" {
		persistence["sessions_key"] = strings.TrimSpace(cfg.Persistence.SessionsKey)
	}
	if len(persistence) > 0 {
		layer["persistence"] = persistence
	}
	return layer
}
