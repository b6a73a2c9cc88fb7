package security

import (
	"bytes"
	"context"
	"testing"

	"github.com/goliatone/go-miniapp/devkit"
)

func TestEncryptedPersistenceSealsAtRest(t *testing.T) {
	base := devkit.NewMemoryPersistence()
	provider, err := NewAppKeySecretProviderFromString("operator-key", WithSalt("wx-app"))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	store, err := NewEncryptedPersistence(base, provider)
	if err != nil {
		t.Fatalf("new encrypted persistence: %v", err)
	}

	if err := devkit.ValidatePersistenceConformance(context.Background(), store, "access_token"); err != nil {
		t.Fatalf("conformance: %v", err)
	}
	raw, err := base.Load(context.Background(), "access_token")
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}
	if !IsEnvelope(raw) || bytes.Contains(raw, []byte(`"v"`)) {
		t.Fatalf("expected sealed blob at rest, got %s", raw)
	}
}

func TestEncryptedPersistenceBindsBlobKey(t *testing.T) {
	base := devkit.NewMemoryPersistence()
	provider, _ := NewAppKeySecretProviderFromString("operator-key")
	store, _ := NewEncryptedPersistence(base, provider)

	if err := store.Save(context.Background(), "session_keys", []byte(`{"U":"S"}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, _ := base.Load(context.Background(), "session_keys")
	base.Put("access_token", raw)
	if _, err := store.Load(context.Background(), "access_token"); err == nil {
		t.Fatalf("expected blob moved to another key to fail authentication")
	}
}

func TestEncryptedPersistenceAllowsLegacyPlaintext(t *testing.T) {
	base := devkit.NewMemoryPersistence()
	base.Put("access_token", []byte(`{"access_token":"X"}`))
	provider, _ := NewAppKeySecretProviderFromString("operator-key")
	store, _ := NewEncryptedPersistence(base, provider)

	if _, err := store.Load(context.Background(), "access_token"); err == nil {
		t.Fatalf("expected plaintext to be rejected by default")
	}
	store.AllowPlaintext = true
	payload, err := store.Load(context.Background(), "access_token")
	if err != nil || string(payload) != `{"access_token":"X"}` {
		t.Fatalf("expected legacy plaintext, got %q %v", payload, err)
	}
}
