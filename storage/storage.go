package storage

import (
	"context"
	"encoding/json"
	"maps"
	"strings"
	"sync"

	scriptdesk "github.com/goliatone/go-scriptdesk"
)

// Keys persisted by scriptdesk.
const (
	KeyCurrentUser = "currentUser"
	KeyExecutions  = "scriptExecutions"
)

// KV is durable local state addressed by key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// GetJSON decodes key into out. It reports false when the key is absent.
// Malformed JSON is returned as an error so callers can fall back to defaults.
func GetJSON(ctx context.Context, kv KV, key string, out any) (bool, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "decode "+key, err, map[string]any{"key": key})
	}
	return true, nil
}

func PutJSON(ctx context.Context, kv KV, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "encode "+key, err, map[string]any{"key": key})
	}
	return kv.Put(ctx, key, raw)
}

func validKey(key string) error {
	if strings.TrimSpace(key) == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "invalid storage key", nil, map[string]any{"key": key})
	}
	return nil
}

// Memory keeps values in process memory.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Snapshot copies the current contents.
func (m *Memory) Snapshot() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.data)
}
