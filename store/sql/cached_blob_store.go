package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-miniapp/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const blobCacheKeyPrefix = "go-miniapp::credential_blob::v1"

// CachedBlobStore fronts any Persistence with a read-through cache and
// invalidates the cached entry after each successful save.
type CachedBlobStore struct {
	base  core.Persistence
	cache repositorycache.CacheService
}

func NewCachedBlobStore(base core.Persistence, cacheService repositorycache.CacheService) (*CachedBlobStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base blob store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: blob cache service is required")
	}
	return &CachedBlobStore{base: base, cache: cacheService}, nil
}

// BlobCacheKey returns go-miniapp::credential_blob::v1::<key> with the key
// URL-path escaped.
func BlobCacheKey(key string) (string, error) {
	key, err := normalizeBlobKey(key)
	if err != nil {
		return "", err
	}
	return blobCacheKeyPrefix + "::" + url.PathEscape(key), nil
}

func (s *CachedBlobStore) Load(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached blob store is not configured")
	}
	cacheKey, err := BlobCacheKey(key)
	if err != nil {
		return nil, err
	}
	key = strings.TrimSpace(key)
	payload, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]byte, error) {
		return s.base.Load(ctx, key)
	})
	if err != nil {
		if errors.Is(err, core.ErrBlobNotFound) {
			return nil, core.ErrBlobNotFound
		}
		return nil, err
	}
	return append([]byte(nil), payload...), nil
}

func (s *CachedBlobStore) Save(ctx context.Context, key string, payload []byte) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached blob store is not configured")
	}
	cacheKey, err := BlobCacheKey(key)
	if err != nil {
		return err
	}
	if err := s.base.Save(ctx, strings.TrimSpace(key), payload); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
