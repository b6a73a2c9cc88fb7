package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goliatone/go-miniapp/core"
	"golang.org/x/crypto/hkdf"
)

const hkdfInfoPrefix = "go-miniapp credential encryption v"

type Option func(*AppKeySecretProvider)

// AppKeySecretProvider seals blobs with AES-256-GCM under a key derived from
// operator key material through HKDF-SHA256. Older key versions registered
// with WithPreviousKey stay readable so blobs can be rotated lazily.
type AppKeySecretProvider struct {
	key      []byte
	keyID    string
	version  int
	salt     []byte
	previous map[int][]byte
	pending  []previousKey
}

type previousKey struct {
	material []byte
	version  int
}

func WithKeyID(id string) Option {
	return func(provider *AppKeySecretProvider) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			provider.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(provider *AppKeySecretProvider) {
		if version > 0 {
			provider.version = version
		}
	}
}

// WithSalt sets the HKDF salt; typically the app id so that two apps sharing
// key material still get distinct keys.
func WithSalt(salt string) Option {
	return func(provider *AppKeySecretProvider) {
		provider.salt = []byte(strings.TrimSpace(salt))
	}
}

func WithPreviousKey(material []byte, version int) Option {
	return func(provider *AppKeySecretProvider) {
		if version <= 0 || len(bytes.TrimSpace(material)) == 0 {
			return
		}
		provider.pending = append(provider.pending, previousKey{material: bytes.TrimSpace(material), version: version})
	}
}

func NewAppKeySecretProvider(keyMaterial []byte, opts ...Option) (*AppKeySecretProvider, error) {
	material := bytes.TrimSpace(keyMaterial)
	if len(material) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	provider := &AppKeySecretProvider{
		keyID:    "app-key",
		version:  1,
		previous: map[int][]byte{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	key, err := deriveKey(material, provider.salt, provider.version)
	if err != nil {
		return nil, err
	}
	provider.key = key
	for _, prev := range provider.pending {
		if prev.version == provider.version {
			continue
		}
		derived, err := deriveKey(prev.material, provider.salt, prev.version)
		if err != nil {
			return nil, err
		}
		provider.previous[prev.version] = derived
	}
	provider.pending = nil
	return provider, nil
}

func NewAppKeySecretProviderFromString(key string, opts ...Option) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key), opts...)
}

func (p *AppKeySecretProvider) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	return p.Seal(ctx, plaintext, nil)
}

func (p *AppKeySecretProvider) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	return p.Open(ctx, ciphertext, nil)
}

// Seal encrypts plaintext bound to associatedData; Open must be given the
// same associated data.
func (p *AppKeySecretProvider) Seal(_ context.Context, plaintext []byte, associatedData []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	gcm, err := newGCM(p.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	return encodeEnvelope(envelope{
		KeyID:      p.keyID,
		Version:    p.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      encodeBase64(nonce),
		Ciphertext: encodeBase64(gcm.Seal(nil, nonce, plaintext, associatedData)),
	})
}

func (p *AppKeySecretProvider) Open(_ context.Context, ciphertext []byte, associatedData []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	parsed, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	if parsed.KeyID != "" && parsed.KeyID != p.keyID {
		return nil, fmt.Errorf("security: key id mismatch: got %q want %q", parsed.KeyID, p.keyID)
	}
	key := p.key
	if parsed.Version > 0 && parsed.Version != p.version {
		prev, ok := p.previous[parsed.Version]
		if !ok {
			return nil, fmt.Errorf("security: unknown key version %d", parsed.Version)
		}
		key = prev
	}
	nonce, err := decodeBase64("nonce", parsed.Nonce)
	if err != nil {
		return nil, err
	}
	sealed, err := decodeBase64("ciphertext payload", parsed.Ciphertext)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("security: invalid nonce size %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, associatedData)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (p *AppKeySecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.keyID
}

func (p *AppKeySecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.version
}

func deriveKey(material []byte, salt []byte, version int) ([]byte, error) {
	info := []byte(hkdfInfoPrefix + strconv.Itoa(version))
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, material, salt, info), key); err != nil {
		return nil, fmt.Errorf("security: derive key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

var _ core.SecretProvider = (*AppKeySecretProvider)(nil)
