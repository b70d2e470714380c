package typeahead

import (
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	memcache "formkit/internal/cache/memory"
)

const (
	DefaultDebounce        = 400 * time.Millisecond
	DefaultCacheTTL        = 60 * time.Second
	DefaultCacheMaxEntries = 128
	DefaultPageSize        = 20
)

// Config configures a Resolver. Items selects local mode; otherwise Fetch is required.
type Config[T any] struct {
	// Items is a static, caller-owned option set. Non-nil means local mode.
	Items []Option[T]
	// Fetch queries the remote source in remote mode.
	Fetch FetchFunc[T]

	Debounce       time.Duration
	MinQueryLength int
	CacheTTL       time.Duration
	// CacheMaxEntries bounds the number of cached queries.
	CacheMaxEntries int
	// Cache overrides the per-instance cache. It must not be shared between resolvers.
	Cache *memcache.LRUTTL[string, []Option[T]]
	// PageSize is forwarded to Fetch as Request.Limit.
	PageSize int

	Clock  clock.WithDelayedExecution
	Logger logr.Logger

	OnResults func([]Option[T])
	OnLoading func(bool)
	OnError   func(error)

	// FormatLabel renders the selected option. Defaults to Option.Label.
	FormatLabel func(Option[T]) string
	// Placeholder is rendered when the selected ID is not in the current result set.
	Placeholder string
}

func (c Config[T]) withDefaults() Config[T] {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.MinQueryLength < 0 {
		c.MinQueryLength = 0
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.CacheMaxEntries <= 0 {
		c.CacheMaxEntries = DefaultCacheMaxEntries
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Clock == nil {
		c.Clock = clock.RealClock{}
	}
	return c
}
