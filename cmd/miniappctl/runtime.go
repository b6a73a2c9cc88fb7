package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goliatone/go-miniapp"
	"github.com/goliatone/go-miniapp/adapters/gologger"
	"github.com/goliatone/go-miniapp/core"
	"github.com/goliatone/go-miniapp/ratelimit"
	"github.com/goliatone/go-miniapp/security"
	filestore "github.com/goliatone/go-miniapp/store/file"
	sqlstore "github.com/goliatone/go-miniapp/store/sql"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const (
	storeMemory   = "memory"
	storeFile     = "file"
	storeSQLite   = "sqlite"
	storePostgres = "postgres"
)

// runtime is one CLI invocation's client plus everything it must release.
type runtime struct {
	client  *miniapp.Client
	logger  *gologger.ZerologLogger
	closers []io.Closer
}

func newRuntime(ctx context.Context, flags *globalFlags, stderr io.Writer) (*runtime, error) {
	logger, err := newLogger(flags, stderr)
	if err != nil {
		return nil, err
	}
	rt := &runtime{logger: logger}

	persistence, closer, err := openPersistence(ctx, flags)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	if closer != nil {
		rt.closers = append(rt.closers, closer)
	}
	if key := envOr(flags.encryptionKey, "ENCRYPTION_KEY", ""); key != "" {
		provider, err := security.NewAppKeySecretProviderFromString(key)
		if err != nil {
			rt.release()
			return nil, err
		}
		encrypted, err := security.NewEncryptedPersistence(persistence, provider)
		if err != nil {
			rt.release()
			return nil, err
		}
		persistence = encrypted
	}

	opts := []miniapp.Option{
		miniapp.WithLogger(logger.GetLogger("miniapp")),
		miniapp.WithLoggerProvider(logger),
		miniapp.WithConfigProvider(miniapp.NewCfgxConfigProvider(envLoader{})),
		miniapp.WithPersistence(persistence),
		miniapp.WithDiagnosticSink(core.LoggingDiagnosticSink{Logger: logger.GetLogger("miniapp.persist"), Enabled: true}),
	}
	if policy := rateLimitPolicy(flags); policy != nil {
		opts = append(opts, miniapp.WithRateLimitPolicy(policy))
	}
	client, err := miniapp.NewClient(ctx, runtimeConfig(flags), opts...)
	if err != nil {
		rt.release()
		return nil, err
	}
	rt.client = client
	return rt, nil
}

// Close flushes pending credential writes before releasing the store.
func (rt *runtime) Close(ctx context.Context) error {
	if rt == nil {
		return nil
	}
	var err error
	if rt.client != nil {
		err = rt.client.Close(ctx)
	}
	rt.release()
	return err
}

func (rt *runtime) release() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i].Close()
	}
	rt.closers = nil
	if rt.logger != nil {
		_ = rt.logger.Close()
	}
}

func runtimeConfig(flags *globalFlags) miniapp.Config {
	return miniapp.Config{
		AppID:     strings.TrimSpace(flags.appID),
		AppSecret: strings.TrimSpace(flags.appSecret),
		OfferID:   strings.TrimSpace(flags.offerID),
		PaySecret: strings.TrimSpace(flags.paySecret),
		BaseURL:   strings.TrimSpace(flags.baseURL),
		TimeoutMS: flags.timeoutMS,
		Debug:     flags.debug,
	}
}

func newLogger(flags *globalFlags, stderr io.Writer) (*gologger.ZerologLogger, error) {
	level := flags.logLevel
	if flags.debug {
		level = "debug"
	}
	cfg := gologger.ZerologConfig{Level: level, Format: flags.logFormat, Output: stderr}
	if strings.TrimSpace(flags.logFile) != "" {
		cfg.File = &gologger.FileConfig{
			Filename:   flags.logFile,
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		}
	}
	return gologger.NewZerologLogger(cfg)
}

func openPersistence(ctx context.Context, flags *globalFlags) (core.Persistence, io.Closer, error) {
	kind := strings.ToLower(envOr(flags.store, "STORE", storeFile))
	dsn := envOr(flags.storeDSN, "STORE_DSN", "")
	switch kind {
	case storeMemory:
		return core.NewMemoryPersistence(), nil, nil
	case storeFile:
		if dsn == "" {
			dir, err := defaultStoreDir()
			if err != nil {
				return nil, nil, err
			}
			dsn = dir
		}
		store, err := filestore.NewStore(filestore.Config{Dir: dsn})
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case storeSQLite, storePostgres:
		if kind == storeSQLite && dsn == "" {
			dir, err := defaultStoreDir()
			if err != nil {
				return nil, nil, err
			}
			dsn = "file:" + filepath.Join(dir, "credentials.db") + "?_busy_timeout=5000"
		}
		client, err := sqlstore.Open(ctx, sqlstore.OpenConfig{Driver: kind, DSN: dsn, PingTimeout: 5 * time.Second})
		if err != nil {
			return nil, nil, err
		}
		blobs, err := sqlstore.NewBlobStoreFromPersistence(client)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		cacheService, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		cached, err := sqlstore.NewCachedBlobStore(blobs, cacheService)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return cached, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q (memory, file, sqlite or postgres)", kind)
	}
}

func defaultStoreDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	dir := filepath.Join(base, "miniappctl")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create store dir: %w", err)
	}
	return dir, nil
}

func rateLimitPolicy(flags *globalFlags) core.RateLimitPolicy {
	adaptive := ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore())
	if flags.rateLimit <= 0 {
		return adaptive
	}
	return ratelimit.ChainPolicy{ratelimit.NewLimiterPolicy(flags.rateLimit, flags.rateBurst), adaptive}
}
