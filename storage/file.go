package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	scriptdesk "github.com/goliatone/go-scriptdesk"
)

// FileKV stores one JSON file per key under dir. Writes go to a temp file
// that is renamed over the target.
type FileKV struct {
	mu  sync.Mutex
	dir string
}

func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "create storage dir", err, map[string]any{"dir": dir})
	}
	return &FileKV{dir: dir}, nil
}

func (s *FileKV) Dir() string { return s.dir }

func (s *FileKV) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := validKey(key); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "read "+key, err, map[string]any{"key": key})
	}
	return raw, true, nil
}

func (s *FileKV) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+key+"-*.tmp")
	if err != nil {
		return scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "write "+key, err, map[string]any{"key": key})
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "write "+key, err, map[string]any{"key": key})
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "sync "+key, err, map[string]any{"key": key})
	}
	if err := tmp.Close(); err != nil {
		return scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "close "+key, err, map[string]any{"key": key})
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		return scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "commit "+key, err, map[string]any{"key": key})
	}
	return nil
}

func (s *FileKV) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "delete "+key, err, map[string]any{"key": key})
	}
	return nil
}
