// Package typeahead turns live query text into selectable option lists, either
// by filtering a static set or by querying a remote source under debounce,
// cache and cancellation discipline.
package typeahead

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	memcache "formkit/internal/cache/memory"
	"formkit/internal/remote"
)

// ErrNoSource is returned by New when neither Items nor Fetch is configured.
var ErrNoSource = errors.New("typeahead: either Items or Fetch is required")

// State is a consistent snapshot of what the resolver currently displays.
type State[T any] struct {
	Query   string
	Results []Option[T]
	Loading bool
	// Err is the last non-cancellation failure, cleared by the next success.
	Err error
}

type MetricsSnapshot struct {
	CacheHits   uint64
	CacheMisses uint64
	Fetches     uint64
	Superseded  uint64
	Failures    uint64
}

type metrics struct {
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64
	fetches     atomic.Uint64
	superseded  atomic.Uint64
	failures    atomic.Uint64
}

type eventKind int

const (
	evQuery eventKind = iota
	evOpen
	evTimer
	evFetched
	evClearCache
	evBarrier
)

type event[T any] struct {
	kind   eventKind
	query  string
	seq    uint64
	result FetchResult[T]
	err    error
	done   chan struct{}
}

// Resolver resolves queries to options. In remote mode all state transitions
// happen on a single loop goroutine; callbacks are invoked from it in order.
type Resolver[T any] struct {
	cfg   Config[T]
	local bool
	cache *memcache.LRUTTL[string, []Option[T]]
	clock clock.WithDelayedExecution
	log   logr.Logger

	ctx    context.Context
	cancel context.CancelFunc

	qmu   sync.Mutex
	queue []event[T]
	wake  chan struct{}

	done       chan struct{}
	exited     chan struct{}
	closeOnce  sync.Once
	closed     atomic.Bool
	inCallback atomic.Bool

	mu   sync.RWMutex
	snap State[T]

	// owned by the loop goroutine
	query     string
	timer     clock.Timer
	timerSeq  uint64
	reqSeq    uint64
	cancelReq context.CancelFunc

	metrics metrics
}

// New builds a Resolver. Remote resolvers start their loop goroutine
// immediately; call Close to release it.
func New[T any](cfg Config[T]) (*Resolver[T], error) {
	if cfg.Items == nil && cfg.Fetch == nil {
		return nil, ErrNoSource
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	r := &Resolver[T]{
		cfg:    cfg,
		local:  cfg.Items != nil,
		clock:  cfg.Clock,
		log:    cfg.Logger.WithName("typeahead"),
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	if r.local {
		r.snap.Results = filterOptions(cfg.Items, "")
		close(r.exited)
		return r, nil
	}
	r.cache = cfg.Cache
	if r.cache == nil {
		r.cache = memcache.NewLRUTTLWithClock[string, []Option[T]](cfg.CacheMaxEntries, 0, cfg.CacheTTL, cfg.Clock)
	}
	go r.loop()
	return r, nil
}

// SetQuery reports a query change, typically one keystroke.
func (r *Resolver[T]) SetQuery(q string) {
	if r == nil || r.closed.Load() {
		return
	}
	if r.local {
		r.filterLocal(q)
		return
	}
	r.post(event[T]{kind: evQuery, query: q})
}

// Open populates the list for the current query without waiting for the
// debounce, as when a dropdown opens.
func (r *Resolver[T]) Open() {
	if r == nil || r.closed.Load() {
		return
	}
	if r.local {
		r.filterLocal(r.State().Query)
		return
	}
	r.post(event[T]{kind: evOpen})
}

// ClearCache drops every cached result set.
func (r *Resolver[T]) ClearCache() {
	if r == nil || r.local || r.closed.Load() {
		return
	}
	r.post(event[T]{kind: evClearCache})
}

// State returns a snapshot safe to read from any goroutine.
func (r *Resolver[T]) State() State[T] {
	if r == nil {
		return State[T]{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.snap
	out.Results = append([]Option[T](nil), r.snap.Results...)
	return out
}

// Label renders the selected id. It never triggers a fetch: an id outside
// the current result set renders the placeholder.
func (r *Resolver[T]) Label(id string) string {
	if r == nil {
		return ""
	}
	var pool []Option[T]
	if r.local {
		pool = r.cfg.Items
	} else {
		r.mu.RLock()
		pool = r.snap.Results
		r.mu.RUnlock()
	}
	for _, opt := range pool {
		if opt.ID != id {
			continue
		}
		if r.cfg.FormatLabel != nil {
			return r.cfg.FormatLabel(opt)
		}
		return opt.Label
	}
	return r.cfg.Placeholder
}

func (r *Resolver[T]) Metrics() MetricsSnapshot {
	if r == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		CacheHits:   r.metrics.cacheHits.Load(),
		CacheMisses: r.metrics.cacheMisses.Load(),
		Fetches:     r.metrics.fetches.Load(),
		Superseded:  r.metrics.superseded.Load(),
		Failures:    r.metrics.failures.Load(),
	}
}

// Close cancels the in-flight request and the pending debounce timer. Once
// Close returns no callback starts and State no longer changes. Calling
// Close from inside a callback is allowed; a Close that overlaps a running
// callback does not wait for that callback to return.
func (r *Resolver[T]) Close() {
	if r == nil {
		return
	}
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed.Store(true)
		r.mu.Unlock()
		r.cancel()
		close(r.done)
	})
	if !r.inCallback.Load() {
		<-r.exited
	}
}

func (r *Resolver[T]) filterLocal(q string) {
	results := filterOptions(r.cfg.Items, q)
	if !r.update(func(st *State[T]) {
		st.Query = q
		st.Results = results
	}) {
		return
	}
	if r.cfg.OnResults != nil {
		r.emit(func() { r.cfg.OnResults(results) })
	}
}

func (r *Resolver[T]) post(ev event[T]) {
	if r.closed.Load() {
		if ev.done != nil {
			close(ev.done)
		}
		return
	}
	r.qmu.Lock()
	r.queue = append(r.queue, ev)
	r.qmu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Resolver[T]) drain() []event[T] {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	batch := r.queue
	r.queue = nil
	return batch
}

func (r *Resolver[T]) loop() {
	defer close(r.exited)
	defer r.shutdown()
	for {
		select {
		case <-r.done:
			return
		case <-r.wake:
		}
		for {
			batch := r.drain()
			if len(batch) == 0 {
				break
			}
			for _, ev := range batch {
				if r.closed.Load() {
					if ev.done != nil {
						close(ev.done)
					}
					continue
				}
				r.handle(ev)
			}
		}
	}
}

func (r *Resolver[T]) shutdown() {
	r.stopTimer()
	if r.cancelReq != nil {
		r.cancelReq()
		r.cancelReq = nil
	}
	for _, ev := range r.drain() {
		if ev.done != nil {
			close(ev.done)
		}
	}
}

func (r *Resolver[T]) handle(ev event[T]) {
	switch ev.kind {
	case evQuery:
		r.onQuery(ev.query)
	case evOpen:
		key := strings.TrimSpace(r.query)
		if r.gated(key) {
			return
		}
		r.stopTimer()
		r.resolve(key)
	case evTimer:
		if ev.seq != r.timerSeq || r.timer == nil {
			return
		}
		r.timer = nil
		r.resolve(ev.query)
	case evFetched:
		r.onFetched(ev)
	case evClearCache:
		r.cache.Clear()
	case evBarrier:
		close(ev.done)
	}
}

func (r *Resolver[T]) gated(key string) bool {
	n := utf8.RuneCountInString(key)
	return n > 0 && n < r.cfg.MinQueryLength
}

func (r *Resolver[T]) onQuery(q string) {
	r.query = q
	r.update(func(st *State[T]) { st.Query = q })

	r.stopTimer()
	key := strings.TrimSpace(q)
	if r.gated(key) {
		return
	}
	r.timerSeq++
	seq := r.timerSeq
	// AfterFunc callbacks may run under the clock's lock; only enqueue here.
	r.timer = r.clock.AfterFunc(r.cfg.Debounce, func() {
		r.post(event[T]{kind: evTimer, seq: seq, query: key})
	})
}

func (r *Resolver[T]) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// invalidate cancels the in-flight request so its completion is discarded.
func (r *Resolver[T]) invalidate() {
	if r.cancelReq != nil {
		r.cancelReq()
		r.cancelReq = nil
		r.metrics.superseded.Add(1)
	}
	r.reqSeq++
}

func (r *Resolver[T]) resolve(key string) {
	if items, ok := r.cache.Get(key); ok {
		r.metrics.cacheHits.Add(1)
		r.invalidate()
		r.log.V(1).Info("cache hit", "queryLen", len(key), "results", len(items))
		r.publish(items, nil)
		return
	}
	r.metrics.cacheMisses.Add(1)
	r.invalidate()
	seq := r.reqSeq
	ctx, cancel := context.WithCancel(r.ctx)
	r.cancelReq = cancel
	r.setLoading(true)
	r.metrics.fetches.Add(1)
	r.log.V(1).Info("fetch", "queryLen", len(key), "seq", seq)

	fetch := r.cfg.Fetch
	req := Request{Query: key, Limit: r.cfg.PageSize}
	go func() {
		res, err := safeFetch(ctx, fetch, req)
		r.post(event[T]{kind: evFetched, seq: seq, query: key, result: res, err: err})
	}()
}

func safeFetch[T any](ctx context.Context, fetch FetchFunc[T], req Request) (res FetchResult[T], err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("typeahead: fetch panicked: %v", p)
		}
	}()
	res, err = fetch(ctx, req)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return res, err
}

func (r *Resolver[T]) onFetched(ev event[T]) {
	if ev.seq != r.reqSeq {
		return
	}
	if r.cancelReq != nil {
		r.cancelReq()
		r.cancelReq = nil
	}
	if ev.err != nil {
		if remote.IsCanceled(ev.err) {
			r.setLoading(false)
			return
		}
		r.metrics.failures.Add(1)
		r.log.Error(ev.err, "fetch failed", "queryLen", len(ev.query), "kind", remote.Classify(nil, ev.err).String())
		r.publish([]Option[T]{}, ev.err)
		return
	}
	items := normalize(ev.result)
	if ev.result.Shape == ShapeInvalid {
		r.log.Info("unrecognised response shape, treating as empty", "queryLen", len(ev.query))
	}
	r.cache.Set(ev.query, items, len(items))
	r.publish(items, nil)
}

func (r *Resolver[T]) setLoading(loading bool) {
	var changed bool
	if !r.update(func(st *State[T]) {
		changed = st.Loading != loading
		st.Loading = loading
	}) {
		return
	}
	if changed && r.cfg.OnLoading != nil {
		r.emit(func() { r.cfg.OnLoading(loading) })
	}
}

func (r *Resolver[T]) publish(items []Option[T], err error) {
	var wasLoading bool
	if !r.update(func(st *State[T]) {
		wasLoading = st.Loading
		st.Results = items
		st.Loading = false
		st.Err = err
	}) {
		return
	}

	if wasLoading && r.cfg.OnLoading != nil {
		r.emit(func() { r.cfg.OnLoading(false) })
	}
	if r.cfg.OnResults != nil {
		r.emit(func() { r.cfg.OnResults(append([]Option[T]{}, items...)) })
	}
	if err != nil && r.cfg.OnError != nil {
		r.emit(func() { r.cfg.OnError(err) })
	}
}

// update applies fn to the snapshot unless the resolver is closed. Close
// flips the flag under the same lock, so State is frozen once Close returns.
func (r *Resolver[T]) update(fn func(*State[T])) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return false
	}
	fn(&r.snap)
	return true
}

// emit marks the callback before checking closed. Close sets closed before
// reading the mark, so a Close that sees no callback running is never
// followed by one.
func (r *Resolver[T]) emit(fn func()) {
	r.inCallback.Store(true)
	defer r.inCallback.Store(false)
	if r.closed.Load() {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Error(fmt.Errorf("%v", p), "callback panicked")
		}
	}()
	fn()
}
