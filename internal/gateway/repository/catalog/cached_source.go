package catalog

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheEntries = 1024

type searchResult struct {
	entries []Entry
	total   int
}

// CachedSource memoizes search pages. Writes through it purge the cache.
type CachedSource struct {
	origin Source
	pages  *lru.Cache[string, searchResult]
}

func NewCachedSource(origin Source, size int) (*CachedSource, error) {
	if origin == nil {
		return nil, fmt.Errorf("origin source is nil")
	}
	if size <= 0 {
		size = DefaultCacheEntries
	}
	pages, err := lru.New[string, searchResult](size)
	if err != nil {
		return nil, err
	}
	return &CachedSource{origin: origin, pages: pages}, nil
}

func (s *CachedSource) Search(ctx context.Context, query string, limit int) ([]Entry, int, error) {
	key := fmt.Sprintf("%d|%s", limit, strings.ToLower(strings.TrimSpace(query)))
	if cached, ok := s.pages.Get(key); ok {
		return append([]Entry(nil), cached.entries...), cached.total, nil
	}
	entries, total, err := s.origin.Search(ctx, query, limit)
	if err != nil {
		return nil, 0, err
	}
	s.pages.Add(key, searchResult{entries: append([]Entry(nil), entries...), total: total})
	return entries, total, nil
}

func (s *CachedSource) Get(ctx context.Context, id string) (Entry, error) {
	return s.origin.Get(ctx, id)
}

func (s *CachedSource) Upsert(ctx context.Context, entries ...Entry) error {
	w, ok := s.origin.(Writer)
	if !ok {
		return fmt.Errorf("catalog source is read-only")
	}
	err := w.Upsert(ctx, entries...)
	s.pages.Purge()
	return err
}

func (s *CachedSource) Len() int {
	return s.pages.Len()
}
