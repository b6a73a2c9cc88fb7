package sqlstore

import "github.com/goliatone/go-miniapp/core"

var (
	_ core.Persistence = (*BlobStore)(nil)
	_ core.Persistence = (*CachedBlobStore)(nil)
)
