package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-miniapp/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BlobStore keeps one row per credential key and bumps its revision on
// every overwrite.
type BlobStore struct {
	db   *bun.DB
	repo repository.Repository[*blobRecord]
	now  func() time.Time
}

func NewBlobStore(db *bun.DB) (*BlobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*blobRecord](db, blobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid blob repository wiring: %w", err)
		}
	}
	return &BlobStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *BlobStore) Load(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: blob store is not configured")
	}
	key, err := normalizeBlobKey(key)
	if err != nil {
		return nil, err
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("blob_key", "=", key),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, core.ErrBlobNotFound
	}
	return append([]byte(nil), records[0].Payload...), nil
}

func (s *BlobStore) Save(ctx context.Context, key string, payload []byte) error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: blob store is not configured")
	}
	key, err := normalizeBlobKey(key)
	if err != nil {
		return err
	}
	now := s.now()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &blobRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.blob_key = ?", key).
			Limit(1).
			Scan(ctx)
		if err != nil && !isNoRows(err) {
			return err
		}
		if isNoRows(err) {
			_, createErr := s.repo.CreateTx(ctx, tx, &blobRecord{
				ID:        uuid.NewString(),
				BlobKey:   key,
				Payload:   append([]byte(nil), payload...),
				Revision:  1,
				CreatedAt: now,
				UpdatedAt: now,
			})
			return createErr
		}
		_, updateErr := tx.NewUpdate().
			Model((*blobRecord)(nil)).
			Set("payload = ?", append([]byte(nil), payload...)).
			Set("revision = revision + 1").
			Set("updated_at = ?", now).
			Where("id = ?", existing.ID).
			Exec(ctx)
		return updateErr
	})
}

// Revision reports how many times key has been written; zero when absent.
func (s *BlobStore) Revision(ctx context.Context, key string) (int, error) {
	if s == nil || s.repo == nil {
		return 0, fmt.Errorf("sqlstore: blob store is not configured")
	}
	key, err := normalizeBlobKey(key)
	if err != nil {
		return 0, err
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("blob_key", "=", key),
		repository.SelectPaginate(1, 0),
	)
	if err != nil || len(records) == 0 {
		return 0, err
	}
	return records[0].Revision, nil
}

func normalizeBlobKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", goerrors.New("sqlstore: blob key is required", goerrors.CategoryBadInput).
			WithCode(400).
			WithTextCode(core.ErrorBadInput)
	}
	return key, nil
}
