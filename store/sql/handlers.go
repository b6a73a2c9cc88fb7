package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func blobHandlers() repository.ModelHandlers[*blobRecord] {
	return repository.ModelHandlers[*blobRecord]{
		NewRecord: func() *blobRecord {
			return &blobRecord{}
		},
		GetID: func(record *blobRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *blobRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "blob_key"
		},
		GetIdentifierValue: func(record *blobRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.BlobKey)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
