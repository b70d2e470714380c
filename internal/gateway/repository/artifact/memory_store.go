package artifact

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Object
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Object),
	}
}

func (s *MemoryStore) Put(_ context.Context, obj Object) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	key, err := normalizeKey(obj.Key)
	if err != nil {
		return err
	}
	obj.Key = key
	obj.Content = append([]byte(nil), obj.Content...)
	obj.Size = int64(len(obj.Content))
	obj.Meta = cloneMeta(obj.Meta)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = obj
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (Object, error) {
	if s == nil {
		return Object{}, fmt.Errorf("store is nil")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return Object{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.data[key]
	if !ok {
		return Object{}, ErrNotFound
	}
	obj.Content = append([]byte(nil), obj.Content...)
	obj.Meta = cloneMeta(obj.Meta)
	return obj, nil
}

func (s *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	prefix = strings.TrimLeft(strings.TrimSpace(prefix), "/")
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, 16)
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

// GetURL returns "" so callers fall back to the gateway's own download route.
func (s *MemoryStore) GetURL(context.Context, string) (string, error) {
	return "", nil
}

func cloneMeta(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
