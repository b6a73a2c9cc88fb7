package security

import (
	"context"
	"fmt"

	"github.com/goliatone/go-miniapp/core"
)

// AssociatedDataSealer is implemented by providers that can bind a
// ciphertext to extra authenticated data.
type AssociatedDataSealer interface {
	Seal(ctx context.Context, plaintext []byte, associatedData []byte) ([]byte, error)
	Open(ctx context.Context, ciphertext []byte, associatedData []byte) ([]byte, error)
}

// EncryptedPersistence seals every blob before it reaches Base. When the
// provider supports associated data the blob key is bound into the
// ciphertext, so a blob copied under another key fails to open.
type EncryptedPersistence struct {
	Base    core.Persistence
	Secrets core.SecretProvider
	// AllowPlaintext accepts blobs written before encryption was enabled.
	AllowPlaintext bool
}

func NewEncryptedPersistence(base core.Persistence, secrets core.SecretProvider) (*EncryptedPersistence, error) {
	if base == nil {
		return nil, fmt.Errorf("security: base persistence is required")
	}
	if secrets == nil {
		return nil, fmt.Errorf("security: secret provider is required")
	}
	return &EncryptedPersistence{Base: base, Secrets: secrets}, nil
}

func (p *EncryptedPersistence) Load(ctx context.Context, key string) ([]byte, error) {
	if p == nil || p.Base == nil || p.Secrets == nil {
		return nil, fmt.Errorf("security: encrypted persistence is not configured")
	}
	payload, err := p.Base.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !IsEnvelope(payload) && p.AllowPlaintext {
		return payload, nil
	}
	if sealer, ok := p.Secrets.(AssociatedDataSealer); ok {
		return sealer.Open(ctx, payload, []byte(key))
	}
	return p.Secrets.Decrypt(ctx, payload)
}

func (p *EncryptedPersistence) Save(ctx context.Context, key string, payload []byte) error {
	if p == nil || p.Base == nil || p.Secrets == nil {
		return fmt.Errorf("security: encrypted persistence is not configured")
	}
	var (
		sealed []byte
		err    error
	)
	if sealer, ok := p.Secrets.(AssociatedDataSealer); ok {
		sealed, err = sealer.Seal(ctx, payload, []byte(key))
	} else {
		sealed, err = p.Secrets.Encrypt(ctx, payload)
	}
	if err != nil {
		return fmt.Errorf("security: seal %s: %w", key, err)
	}
	return p.Base.Save(ctx, key, sealed)
}

var (
	_ core.Persistence     = (*EncryptedPersistence)(nil)
	_ AssociatedDataSealer = (*AppKeySecretProvider)(nil)
)
