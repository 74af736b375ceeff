// Package cache keeps generated devotionals keyed by scripture reference.
// Entries live in two parallel mappings (records and cached-at timestamps)
// persisted as two slots of a storage.Store and written together.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"devotional/internal/core"
	"devotional/internal/storage"
)

// Slot names used in the backing store.
const (
	RecordsSlot    = "cached_devotionals"
	TimestampsSlot = "cached_devotionals_timestamps"
)

// DefaultTTL is how long an entry counts as valid: seven days.
const DefaultTTL = 604800 * time.Second

// Lookup results reported to Hooks.OnLookup.
const (
	LookupHit     = "hit"
	LookupMiss    = "miss"
	LookupExpired = "expired"
	LookupCorrupt = "corrupt"
	LookupStale   = "stale"
)

// Hooks receives cache events. Nil funcs are skipped.
type Hooks struct {
	OnLookup func(result string)
	OnEvict  func(reason string)
}

// Entry is a decoded record with the time it was stored.
type Entry struct {
	Record   core.DevotionalRecord
	CachedAt time.Time
}

// EntryInfo describes a stored key without decoding its record.
type EntryInfo struct {
	Key      string    `json:"key"`
	CachedAt time.Time `json:"cached_at"`
	Expired  bool      `json:"expired"`
}

// Manager is the devotional cache. It is safe for concurrent use; Get takes
// the write lock because an expired read evicts.
type Manager struct {
	mu    sync.RWMutex
	store storage.Store
	ttl   time.Duration
	now   func() time.Time
	hooks Hooks
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithHooks registers event callbacks.
func WithHooks(h Hooks) Option {
	return func(m *Manager) {
		m.hooks = h
	}
}

// NewManager creates a cache manager on top of store.
func NewManager(store storage.Store, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the configured time-to-live.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// index is the in-memory form of both slots.
type index struct {
	records    map[string]json.RawMessage
	timestamps map[string]float64
}

// get returns the raw record and timestamp for key; ok is false unless the
// key is in both mappings.
func (idx *index) get(key string) (json.RawMessage, float64, bool) {
	raw, hasRecord := idx.records[key]
	ts, hasTimestamp := idx.timestamps[key]
	return raw, ts, hasRecord && hasTimestamp
}

// without removes key from both mappings and returns idx.
func (idx *index) without(key string) *index {
	delete(idx.records, key)
	delete(idx.timestamps, key)
	return idx
}

// Get returns the entry for key if it is still within the TTL. An expired
// entry is removed from both mappings before reporting absence. Storage and
// decode failures are logged and reported as absence.
func (m *Manager) Get(ctx context.Context, key string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.load(ctx)
	if err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
		m.lookup(LookupMiss)
		return nil, false
	}

	raw, ts, ok := idx.get(key)
	if !ok {
		m.lookup(LookupMiss)
		return nil, false
	}
	if !m.valid(ts) {
		if _, err := m.expire(ctx, key); err != nil {
			slog.Warn("failed to evict expired cache entry", "key", key, "error", err)
		}
		m.lookup(LookupExpired)
		return nil, false
	}

	record, err := DecodeRecord(raw)
	if err != nil {
		m.corrupt(key, err)
		return nil, false
	}

	m.lookup(LookupHit)
	return &Entry{Record: record, CachedAt: epochToTime(ts)}, true
}

// Lookup returns the entry for key and whether it is still within the TTL.
// Unlike Get it never evicts: an expired entry stays in place until the
// caller settles it with Expire or overwrites it with Put.
func (m *Manager) Lookup(ctx context.Context, key string) (entry *Entry, fresh bool, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, err := m.load(ctx)
	if err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
		m.lookup(LookupMiss)
		return nil, false, false
	}

	raw, ts, found := idx.get(key)
	if !found {
		m.lookup(LookupMiss)
		return nil, false, false
	}

	record, err := DecodeRecord(raw)
	if err != nil {
		m.corrupt(key, err)
		return nil, false, false
	}

	entry = &Entry{Record: record, CachedAt: epochToTime(ts)}
	if !m.valid(ts) {
		m.lookup(LookupExpired)
		return entry, false, true
	}
	m.lookup(LookupHit)
	return entry, true, true
}

// Expire removes key if its entry is past the TTL and reports whether it
// did. A fresh entry is left alone, including one written since the caller
// last read it.
func (m *Manager) Expire(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expire(ctx, key)
}

// GetStale returns the entry for key regardless of age. It never evicts.
// It is the offline fallback read and is reported to Hooks as a stale lookup.
func (m *Manager) GetStale(ctx context.Context, key string) (*Entry, bool) {
	entry, ok := m.read(ctx, key, true)
	if ok {
		m.lookup(LookupStale)
	}
	return entry, ok
}

// Peek returns the entry for key regardless of age, for inspection. It never
// evicts and reports nothing to Hooks.
func (m *Manager) Peek(ctx context.Context, key string) (*Entry, bool) {
	return m.read(ctx, key, false)
}

func (m *Manager) read(ctx context.Context, key string, report bool) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, err := m.load(ctx)
	if err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
		return nil, false
	}

	raw, ts, ok := idx.get(key)
	if !ok {
		return nil, false
	}

	record, err := DecodeRecord(raw)
	if err != nil {
		if report {
			m.corrupt(key, err)
		} else {
			slog.Warn("cache entry is corrupt, ignoring", "key", key, "error", err)
		}
		return nil, false
	}
	return &Entry{Record: record, CachedAt: epochToTime(ts)}, true
}

// GetCachedAt returns when key was stored, ignoring the TTL.
func (m *Manager) GetCachedAt(ctx context.Context, key string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, err := m.load(ctx)
	if err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
		return time.Time{}, false
	}
	ts, ok := idx.timestamps[key]
	if !ok {
		return time.Time{}, false
	}
	return epochToTime(ts), true
}

// Put stores record under key with the current time, replacing any previous
// entry. Both mappings are written in one store operation.
func (m *Manager) Put(ctx context.Context, key string, record core.DevotionalRecord) error {
	data, err := EncodeRecord(record)
	if err != nil {
		return fmt.Errorf("failed to encode devotional %q: %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	err = m.update(ctx, func(idx *index) bool {
		idx.records[key] = data
		idx.timestamps[key] = timeToEpoch(m.now())
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to store devotional %q: %w", key, err)
	}
	return nil
}

// Evict removes key from both mappings. Evicting an absent key is a no-op.
func (m *Manager) Evict(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed bool
	err := m.update(ctx, func(idx *index) bool {
		_, hasRecord := idx.records[key]
		_, hasTimestamp := idx.timestamps[key]
		removed = hasRecord || hasTimestamp
		if removed {
			idx.without(key)
		}
		return removed
	})
	if err != nil {
		return fmt.Errorf("failed to evict devotional %q: %w", key, err)
	}
	if removed {
		m.evicted("manual")
	}
	return nil
}

// Clear removes every entry.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.RemoveAll(ctx, RecordsSlot, TimestampsSlot); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	m.evicted("clear")
	return nil
}

// Entries lists every stored key sorted by key.
func (m *Manager) Entries(ctx context.Context) ([]EntryInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, err := m.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cache index: %w", err)
	}

	entries := make([]EntryInfo, 0, len(idx.timestamps))
	for key, ts := range idx.timestamps {
		entries = append(entries, EntryInfo{
			Key:      key,
			CachedAt: epochToTime(ts),
			Expired:  !m.valid(ts),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// expire removes key if it is still past the TTL when the write happens.
// The caller holds the write lock.
func (m *Manager) expire(ctx context.Context, key string) (bool, error) {
	var removed bool
	err := m.update(ctx, func(idx *index) bool {
		_, ts, ok := idx.get(key)
		removed = ok && !m.valid(ts)
		if removed {
			idx.without(key)
		}
		return removed
	})
	if err != nil {
		return false, fmt.Errorf("failed to evict devotional %q: %w", key, err)
	}
	if removed {
		m.evicted("expired")
		slog.Debug("cache entry expired", "key", key)
	}
	return removed, nil
}

func (m *Manager) valid(ts float64) bool {
	age := timeToEpoch(m.now()) - ts
	return age <= m.ttl.Seconds()
}

// load reads both slots.
func (m *Manager) load(ctx context.Context) (*index, error) {
	recordData, _, err := m.store.Get(ctx, RecordsSlot)
	if err != nil {
		return nil, err
	}
	tsData, _, err := m.store.Get(ctx, TimestampsSlot)
	if err != nil {
		return nil, err
	}
	return decodeIndex(recordData, tsData), nil
}

// update applies mutate to the current index and writes both slots back in
// one step when mutate reports a change. Stores implementing storage.Updater
// run the whole read-modify-write atomically against other processes, and
// mutate may then run more than once. The caller holds the write lock.
func (m *Manager) update(ctx context.Context, mutate func(idx *index) bool) error {
	if u, ok := m.store.(storage.Updater); ok {
		return u.Update(ctx, []string{RecordsSlot, TimestampsSlot}, func(current map[string][]byte) (map[string][]byte, error) {
			idx := decodeIndex(current[RecordsSlot], current[TimestampsSlot])
			if !mutate(idx) {
				return nil, nil
			}
			return idx.encode()
		})
	}

	idx, err := m.load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cache index: %w", err)
	}
	if !mutate(idx) {
		return nil
	}
	values, err := idx.encode()
	if err != nil {
		return err
	}
	return m.store.SetMany(ctx, values)
}

// decodeIndex parses both slots. A slot that cannot be parsed is treated as
// empty, and keys present in only one mapping are dropped so the pairing
// holds.
func decodeIndex(recordData, tsData []byte) *index {
	idx := &index{
		records:    make(map[string]json.RawMessage),
		timestamps: make(map[string]float64),
	}
	if len(recordData) > 0 {
		if err := json.Unmarshal(recordData, &idx.records); err != nil {
			slog.Warn("cache records slot is corrupt, treating as empty", "error", err)
			idx.records = make(map[string]json.RawMessage)
		}
	}
	if len(tsData) > 0 {
		if err := json.Unmarshal(tsData, &idx.timestamps); err != nil {
			slog.Warn("cache timestamps slot is corrupt, treating as empty", "error", err)
			idx.timestamps = make(map[string]float64)
		}
	}

	for key := range idx.records {
		if _, ok := idx.timestamps[key]; !ok {
			delete(idx.records, key)
		}
	}
	for key := range idx.timestamps {
		if _, ok := idx.records[key]; !ok {
			delete(idx.timestamps, key)
		}
	}
	return idx
}

// encode serializes both mappings as slot values.
func (idx *index) encode() (map[string][]byte, error) {
	recordData, err := json.Marshal(idx.records)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal records: %w", err)
	}
	tsData, err := json.Marshal(idx.timestamps)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal timestamps: %w", err)
	}
	return map[string][]byte{
		RecordsSlot:    recordData,
		TimestampsSlot: tsData,
	}, nil
}

func (m *Manager) corrupt(key string, err error) {
	cerr := core.NewCacheCorruptError(key, err)
	slog.Warn("cache entry is corrupt, ignoring", "key", key, "error_type", cerr.Type, "error", cerr)
	m.lookup(LookupCorrupt)
}

func (m *Manager) lookup(result string) {
	if m.hooks.OnLookup != nil {
		m.hooks.OnLookup(result)
	}
}

func (m *Manager) evicted(reason string) {
	if m.hooks.OnEvict != nil {
		m.hooks.OnEvict(reason)
	}
}

// Timestamps are stored as fractional seconds since the Unix epoch.
func timeToEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func epochToTime(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9)))
}
