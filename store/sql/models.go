package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type blobRecord struct {
	bun.BaseModel `bun:"table:miniapp_credential_blobs,alias:mcb"`

	ID        string    `bun:"id,pk"`
	BlobKey   string    `bun:"blob_key,notnull,unique"`
	Payload   []byte    `bun:"payload,notnull"`
	Revision  int       `bun:"revision,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
