package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type MemorySource struct {
	mu   sync.RWMutex
	byID map[string]Entry
}

func NewMemorySource(entries ...Entry) *MemorySource {
	s := &MemorySource{byID: make(map[string]Entry, len(entries))}
	_ = s.Upsert(context.Background(), entries...)
	return s
}

func (s *MemorySource) Upsert(_ context.Context, entries ...Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if n, ok := normalizeEntry(e); ok {
			s.byID[n.ID] = n
		}
	}
	return nil
}

func (s *MemorySource) Get(_ context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// Search matches case-insensitively on the name, ordered by name then id.
func (s *MemorySource) Search(ctx context.Context, query string, limit int) ([]Entry, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	s.mu.RLock()
	matches := make([]Entry, 0, len(s.byID))
	for _, e := range s.byID {
		if needle == "" || strings.Contains(strings.ToLower(e.Name), needle) {
			matches = append(matches, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Name != matches[j].Name {
			return matches[i].Name < matches[j].Name
		}
		return matches[i].ID < matches[j].ID
	})
	total := len(matches)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, total, nil
}
