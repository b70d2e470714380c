// Package artifact puts a read-through memory cache in front of an upload
// store so repeated downloads and presigned links skip the origin.
package artifact

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	memcache "formkit/internal/cache/memory"
	artifactrepo "formkit/internal/gateway/repository/artifact"
)

type Store = artifactrepo.Store

type CacheConfig struct {
	BlobTTL        time.Duration
	BlobMaxEntries int
	BlobMaxBytes   int

	ListTTL        time.Duration
	ListMaxEntries int

	// URLTTL must stay below the origin's presign expiry.
	URLTTL        time.Duration
	URLMaxEntries int

	Clock clock.PassiveClock
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		BlobTTL:        5 * time.Minute,
		BlobMaxEntries: 256,
		BlobMaxBytes:   64 * 1024 * 1024, // 64MiB
		ListTTL:        30 * time.Second,
		ListMaxEntries: 128,
		URLTTL:         30 * time.Minute,
		URLMaxEntries:  1024,
	}
}

func (c CacheConfig) withDefaults() CacheConfig {
	def := DefaultCacheConfig()
	if c.BlobTTL <= 0 {
		c.BlobTTL = def.BlobTTL
	}
	if c.BlobMaxEntries <= 0 {
		c.BlobMaxEntries = def.BlobMaxEntries
	}
	if c.BlobMaxBytes < 0 {
		c.BlobMaxBytes = def.BlobMaxBytes
	}
	if c.ListTTL <= 0 {
		c.ListTTL = def.ListTTL
	}
	if c.ListMaxEntries <= 0 {
		c.ListMaxEntries = def.ListMaxEntries
	}
	if c.URLTTL <= 0 {
		c.URLTTL = def.URLTTL
	}
	if c.URLMaxEntries <= 0 {
		c.URLMaxEntries = def.URLMaxEntries
	}
	if c.Clock == nil {
		c.Clock = clock.RealClock{}
	}
	return c
}

type MetricsSnapshot struct {
	BlobHits       uint64
	BlobMisses     uint64
	ListHits       uint64
	ListMisses     uint64
	URLHits        uint64
	URLMisses      uint64
	OriginReads    uint64
	OriginWrites   uint64
	OriginReadErr  uint64
	OriginWriteErr uint64
}

type metrics struct {
	blobHits       atomic.Uint64
	blobMisses     atomic.Uint64
	listHits       atomic.Uint64
	listMisses     atomic.Uint64
	urlHits        atomic.Uint64
	urlMisses      atomic.Uint64
	originReads    atomic.Uint64
	originWrites   atomic.Uint64
	originReadErr  atomic.Uint64
	originWriteErr atomic.Uint64
}

type CachedStore struct {
	origin Store

	blobCache *memcache.LRUTTL[string, artifactrepo.Object]
	listCache *memcache.LRUTTL[string, []string]
	urlCache  *memcache.LRUTTL[string, string]
	metrics   metrics
}

func NewCachedStore(origin Store, cfg CacheConfig) *CachedStore {
	cfg = cfg.withDefaults()
	return &CachedStore{
		origin:    origin,
		blobCache: memcache.NewLRUTTLWithClock[string, artifactrepo.Object](cfg.BlobMaxEntries, cfg.BlobMaxBytes, cfg.BlobTTL, cfg.Clock),
		listCache: memcache.NewLRUTTLWithClock[string, []string](cfg.ListMaxEntries, 0, cfg.ListTTL, cfg.Clock),
		urlCache:  memcache.NewLRUTTLWithClock[string, string](cfg.URLMaxEntries, 0, cfg.URLTTL, cfg.Clock),
	}
}

// Put writes through and primes the blob cache. Every cached listing is
// dropped since any prefix may now include the new key.
func (s *CachedStore) Put(ctx context.Context, obj artifactrepo.Object) error {
	s.metrics.originWrites.Add(1)
	if err := s.origin.Put(ctx, obj); err != nil {
		s.metrics.originWriteErr.Add(1)
		return err
	}
	key := cacheKey(obj.Key)
	obj.Key = key
	obj.Content = append([]byte(nil), obj.Content...)
	obj.Size = int64(len(obj.Content))
	s.blobCache.Set(key, obj, len(obj.Content))
	s.listCache.Clear()
	s.urlCache.Delete(key)
	return nil
}

func (s *CachedStore) Get(ctx context.Context, key string) (artifactrepo.Object, error) {
	key = cacheKey(key)
	if obj, ok := s.blobCache.Get(key); ok {
		s.metrics.blobHits.Add(1)
		return copyObject(obj), nil
	}
	s.metrics.blobMisses.Add(1)
	s.metrics.originReads.Add(1)

	obj, err := s.origin.Get(ctx, key)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return artifactrepo.Object{}, err
	}
	cached := copyObject(obj)
	s.blobCache.Set(key, cached, len(cached.Content))
	return copyObject(cached), nil
}

func (s *CachedStore) GetURL(ctx context.Context, key string) (string, error) {
	key = cacheKey(key)
	if cached, ok := s.urlCache.Get(key); ok {
		s.metrics.urlHits.Add(1)
		return cached, nil
	}
	s.metrics.urlMisses.Add(1)
	s.metrics.originReads.Add(1)

	url, err := s.origin.GetURL(ctx, key)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return "", err
	}
	if strings.TrimSpace(url) != "" {
		s.urlCache.Set(key, url, len(url))
	}
	return url, nil
}

func (s *CachedStore) List(ctx context.Context, prefix string) ([]string, error) {
	prefix = cacheKey(prefix)
	if list, ok := s.listCache.Get(prefix); ok {
		s.metrics.listHits.Add(1)
		return append([]string(nil), list...), nil
	}
	s.metrics.listMisses.Add(1)
	s.metrics.originReads.Add(1)

	list, err := s.origin.List(ctx, prefix)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return nil, err
	}
	copied := append([]string(nil), list...)
	approxBytes := 0
	for _, v := range copied {
		approxBytes += len(v)
	}
	s.listCache.Set(prefix, copied, approxBytes)
	return append([]string(nil), copied...), nil
}

func (s *CachedStore) Metrics() MetricsSnapshot {
	if s == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		BlobHits:       s.metrics.blobHits.Load(),
		BlobMisses:     s.metrics.blobMisses.Load(),
		ListHits:       s.metrics.listHits.Load(),
		ListMisses:     s.metrics.listMisses.Load(),
		URLHits:        s.metrics.urlHits.Load(),
		URLMisses:      s.metrics.urlMisses.Load(),
		OriginReads:    s.metrics.originReads.Load(),
		OriginWrites:   s.metrics.originWrites.Load(),
		OriginReadErr:  s.metrics.originReadErr.Load(),
		OriginWriteErr: s.metrics.originWriteErr.Load(),
	}
}

func cacheKey(key string) string {
	return strings.TrimLeft(strings.TrimSpace(key), "/")
}

func copyObject(obj artifactrepo.Object) artifactrepo.Object {
	obj.Content = append([]byte(nil), obj.Content...)
	if obj.Meta != nil {
		meta := make(map[string]string, len(obj.Meta))
		for k, v := range obj.Meta {
			meta[k] = v
		}
		obj.Meta = meta
	}
	return obj
}
