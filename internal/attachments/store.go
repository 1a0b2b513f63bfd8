package attachments

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/soaringjerry/Footprint/internal/models"
)

var ErrUnsafePath = errors.New("attachment path escapes the store root")

// cleanKey validates a slash-separated storage key.
func cleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" || strings.Contains(key, "\\") || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, key)
	}
	c := path.Clean(key)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, key)
	}
	return c, nil
}

// DiskStore keeps attachments as files below a base directory.
type DiskStore struct {
	root   string
	logger zerolog.Logger
}

func NewDiskStore(root string, logger zerolog.Logger) (*DiskStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{root: abs, logger: logger.With().Str("component", "attachments").Logger()}, nil
}

func (s *DiskStore) Root() string { return s.root }

func (s *DiskStore) resolve(key string) (string, error) {
	c, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(c)), nil
}

// Upload writes through a temporary file so a reader never sees a partial
// document.
func (s *DiskStore) Upload(ctx context.Context, key string, blob models.Blob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create attachment dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(blob.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("write attachment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close attachment: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("store attachment: %w", err)
	}
	s.logger.Debug().Str("path", key).Int("bytes", len(blob.Data)).Msg("attachment stored")
	return nil
}

func (s *DiskStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}

func (s *DiskStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dst, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dst)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

// MemoryStore is an in-process AttachmentStore for tests and demos.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]models.Blob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: map[string]models.Blob{}}
}

func (s *MemoryStore) Upload(ctx context.Context, key string, blob models.Blob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := cleanKey(key)
	if err != nil {
		return err
	}
	blob.Data = append([]byte(nil), blob.Data...)
	s.mu.Lock()
	s.blobs[c] = blob
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.blobs, path.Clean(key))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	_, ok := s.blobs[path.Clean(key)]
	s.mu.RUnlock()
	return ok, nil
}

// Get returns a stored blob.
func (s *MemoryStore) Get(key string) (models.Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[path.Clean(key)]
	return b, ok
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
