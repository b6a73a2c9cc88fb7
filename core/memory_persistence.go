package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryPersistence keeps blobs in process memory. State is lost on exit.
type MemoryPersistence struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{blobs: map[string][]byte{}}
}

func (p *MemoryPersistence) Load(_ context.Context, key string) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("core: memory persistence is nil")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	payload, ok := p.blobs[strings.TrimSpace(key)]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return append([]byte(nil), payload...), nil
}

func (p *MemoryPersistence) Save(_ context.Context, key string, payload []byte) error {
	if p == nil {
		return fmt.Errorf("core: memory persistence is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("core: persistence key is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.blobs == nil {
		p.blobs = map[string][]byte{}
	}
	p.blobs[key] = append([]byte(nil), payload...)
	return nil
}

var _ Persistence = (*MemoryPersistence)(nil)
