package devkit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-miniapp/core"
)

func ValidateTransportAdapterConformance(
	ctx context.Context,
	adapter core.TransportAdapter,
	request core.TransportRequest,
) error {
	if adapter == nil {
		return fmt.Errorf("devkit: transport adapter is required")
	}
	if strings.TrimSpace(adapter.Kind()) == "" {
		return fmt.Errorf("devkit: transport adapter kind is required")
	}
	_, err := adapter.Do(ctx, request)
	return err
}

// ValidatePersistenceConformance checks the blob contract every store must
// honor: absent keys report ErrBlobNotFound and the latest save wins.
func ValidatePersistenceConformance(ctx context.Context, store core.Persistence, key string) error {
	if store == nil {
		return fmt.Errorf("devkit: persistence is required")
	}
	if _, err := store.Load(ctx, key+".absent"); !errors.Is(err, core.ErrBlobNotFound) {
		return fmt.Errorf("devkit: expected ErrBlobNotFound for absent key, got %v", err)
	}
	if err := store.Save(ctx, key, []byte(`{"v":1}`)); err != nil {
		return fmt.Errorf("devkit: first save: %w", err)
	}
	if err := store.Save(ctx, key, []byte(`{"v":2}`)); err != nil {
		return fmt.Errorf("devkit: overwrite: %w", err)
	}
	loaded, err := store.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("devkit: load: %w", err)
	}
	if !bytes.Equal(loaded, []byte(`{"v":2}`)) {
		return fmt.Errorf("devkit: expected latest payload, got %q", loaded)
	}
	return nil
}
