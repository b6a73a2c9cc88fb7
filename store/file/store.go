// Package file persists credential blobs as one file per key.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-miniapp/core"
)

const (
	DefaultDirMode  os.FileMode = 0o700
	DefaultFileMode os.FileMode = 0o600
	blobExtension               = ".json"
)

type Config struct {
	Dir      string
	DirMode  os.FileMode
	FileMode os.FileMode
}

// Store writes each blob atomically through a temp file and rename so a
// crash never leaves a half-written credential on disk.
type Store struct {
	mu       sync.Mutex
	dir      string
	fileMode os.FileMode
}

func NewStore(cfg Config) (*Store, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, goerrors.New("file: directory is required", goerrors.CategoryBadInput).
			WithCode(400).
			WithTextCode(core.ErrorBadInput)
	}
	dirMode := cfg.DirMode
	if dirMode == 0 {
		dirMode = DefaultDirMode
	}
	fileMode := cfg.FileMode
	if fileMode == 0 {
		fileMode = DefaultFileMode
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("file: create directory %s: %w", dir, err)
	}
	return &Store{dir: dir, fileMode: fileMode}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Load(_ context.Context, key string) ([]byte, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	payload, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, core.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("file: read %s: %w", key, err)
	}
	return payload, nil
}

func (s *Store) Save(ctx context.Context, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("file: create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("file: write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("file: sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("file: close %s: %w", key, err)
	}
	if err := os.Chmod(tmpName, s.fileMode); err != nil {
		cleanup()
		return fmt.Errorf("file: chmod %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("file: replace %s: %w", key, err)
	}
	return nil
}

func (s *Store) pathFor(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", goerrors.New("file: invalid blob key", goerrors.CategoryBadInput).
			WithCode(400).
			WithTextCode(core.ErrorBadInput).
			WithMetadata(map[string]any{"key": key})
	}
	return filepath.Join(s.dir, key+blobExtension), nil
}

var _ core.Persistence = (*Store)(nil)
