// Package devotional orchestrates fetching a devotional for a verse: cache
// first, then the generator, with a stale-cache fallback when the generator
// cannot be reached.
package devotional

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"devotional/internal/cache"
	"devotional/internal/core"
	"devotional/internal/prompt"
)

// DefaultTimeout bounds a single generator call.
const DefaultTimeout = 60 * time.Second

// Fetch states, in the order a fetch moves through them.
const (
	StateLookingUp = "looking_up"
	StateHit       = "hit"
	StateMiss      = "miss"
	StateFetching  = "fetching"
	StateSuccess   = "success"
	StateFailed    = "failed"
)

// Cache is the part of cache.Manager the orchestrator uses.
type Cache interface {
	Lookup(ctx context.Context, key string) (entry *cache.Entry, fresh bool, ok bool)
	GetStale(ctx context.Context, key string) (*cache.Entry, bool)
	Put(ctx context.Context, key string, record core.DevotionalRecord) error
	Expire(ctx context.Context, key string) (bool, error)
}

// Hooks observes fetch outcomes. Nil funcs are skipped.
type Hooks struct {
	// OnFetchDone receives the provenance source, or the error type on failure.
	OnFetchDone func(outcome string, duration time.Duration)
}

// Orchestrator runs one fetch at a time.
type Orchestrator struct {
	// mu is held for the whole of Fetch.
	mu sync.Mutex

	cache     Cache
	generator core.Generator
	prompts   *prompt.Builder
	timeout   time.Duration
	now       func() time.Time
	hooks     Hooks

	lastMu sync.RWMutex
	last   *core.Verse
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithPromptBuilder replaces the embedded prompt template.
func WithPromptBuilder(b *prompt.Builder) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.prompts = b
		}
	}
}

// WithClock replaces time.Now for the date in the prompt.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithHooks registers outcome callbacks.
func WithHooks(h Hooks) Option {
	return func(o *Orchestrator) {
		o.hooks = h
	}
}

// NewOrchestrator creates an orchestrator over c and gen.
func NewOrchestrator(c Cache, gen core.Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cache:     c,
		generator: gen,
		prompts:   prompt.Default(),
		timeout:   DefaultTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Fetch returns the devotional for verse. A valid cache entry is returned
// without any remote call. Otherwise the generator is asked, its output is
// decoded and cached. When the generator is unreachable an expired entry is
// served as stale and kept; every other failure is returned as a
// *core.FetchError and an expired entry is evicted.
func (o *Orchestrator) Fetch(ctx context.Context, verse core.Verse) (*core.Devotional, error) {
	if err := verse.Reference.Validate(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	ctx, requestID := core.EnsureRequestID(ctx)
	key := verse.Reference.Key()
	start := time.Now()
	log := slog.With("key", key, "request_id", requestID)

	log.Debug("devotional fetch", "state", StateLookingUp)
	entry, fresh, found := o.cache.Lookup(ctx, key)
	if found && fresh {
		log.Info("devotional fetch", "state", StateHit, "cached_at", entry.CachedAt)
		o.done(string(core.ProvenanceCached), start)
		return &core.Devotional{Key: key, Record: entry.Record, Provenance: core.Cached(entry.CachedAt)}, nil
	}
	expired := found
	log.Debug("devotional fetch", "state", StateMiss, "expired", expired)

	o.setLastAttempted(verse)

	log.Info("devotional fetch", "state", StateFetching, "generator", o.generator.Name())
	content, err := o.generate(ctx, verse)
	if err != nil {
		return o.fail(ctx, log, key, err, expired, start)
	}

	record, err := cache.DecodeRecord([]byte(content))
	if err != nil {
		ferr := core.NewMalformedResponseError(o.generator.Name(), "devotional did not match the expected shape", err)
		return o.fail(ctx, log, key, ferr, expired, start)
	}

	if err := o.cache.Put(ctx, key, record); err != nil {
		log.Warn("failed to cache devotional", "error", err)
	}

	log.Info("devotional fetch", "state", StateSuccess, "source", core.ProvenanceFresh, "duration", time.Since(start))
	o.done(string(core.ProvenanceFresh), start)
	return &core.Devotional{Key: key, Record: record, Provenance: core.Fresh()}, nil
}

// Retry fetches the last verse that missed the cache again. It is the only
// way a failed fetch is repeated.
func (o *Orchestrator) Retry(ctx context.Context) (*core.Devotional, error) {
	verse, ok := o.LastAttempted()
	if !ok {
		return nil, core.NewInvalidRequestError("nothing to retry: no devotional has been requested yet", nil)
	}
	return o.Fetch(ctx, verse)
}

// LastAttempted returns the verse of the most recent cache miss.
func (o *Orchestrator) LastAttempted() (core.Verse, bool) {
	o.lastMu.RLock()
	defer o.lastMu.RUnlock()
	if o.last == nil {
		return core.Verse{}, false
	}
	return *o.last, true
}

func (o *Orchestrator) setLastAttempted(v core.Verse) {
	o.lastMu.Lock()
	defer o.lastMu.Unlock()
	o.last = &v
}

func (o *Orchestrator) generate(ctx context.Context, verse core.Verse) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	content, err := o.generator.Generate(callCtx, o.prompts.Build(verse, o.now()))
	if err != nil {
		// The caller's own cancellation wins over whatever the generator saw.
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", core.NewCancelledError(o.generator.Name(), ctx.Err())
		}
		return "", core.ClassifyTransportError(o.generator.Name(), err)
	}
	return content, nil
}

// fail settles a failed generation. Only connectivity loss may fall back to
// the cache; after any other failure an expired entry is evicted.
func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, key string, err error, expired bool, start time.Time) (*core.Devotional, error) {
	var ferr *core.FetchError
	if !errors.As(err, &ferr) {
		ferr = core.ClassifyTransportError(o.generator.Name(), err)
	}

	if ferr.Type != core.ErrorTypeOffline && expired {
		if _, err := o.cache.Expire(context.WithoutCancel(ctx), key); err != nil {
			log.Warn("failed to evict expired devotional", "error", err)
		}
	}

	if ferr.Type == core.ErrorTypeOffline {
		if entry, ok := o.cache.GetStale(ctx, key); ok {
			log.Warn("devotional fetch", "state", StateSuccess, "source", core.ProvenanceStaleOffline,
				"cached_at", entry.CachedAt, "error", ferr)
			o.done(string(core.ProvenanceStaleOffline), start)
			return &core.Devotional{Key: key, Record: entry.Record, Provenance: core.StaleOffline(entry.CachedAt)}, nil
		}
		ferr = core.NewOfflineNoCacheError(key, ferr)
	}

	log.Warn("devotional fetch", "state", StateFailed, "error_type", ferr.Type, "error", ferr)
	o.done(string(ferr.Type), start)
	return nil, ferr
}

func (o *Orchestrator) done(outcome string, start time.Time) {
	if o.hooks.OnFetchDone != nil {
		o.hooks.OnFetchDone(outcome, time.Since(start))
	}
}
