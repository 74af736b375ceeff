package core

import (
	"fmt"
	"time"
)

// ScriptureReference identifies a single verse. It is a value type and is
// never mutated after construction.
type ScriptureReference struct {
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse"`
}

// NewScriptureReference builds a reference from its parts.
func NewScriptureReference(book string, chapter, verse int) ScriptureReference {
	return ScriptureReference{Book: book, Chapter: chapter, Verse: verse}
}

// Key returns the cache key for the reference, e.g. "Psalms 23:4".
func (r ScriptureReference) Key() string {
	return fmt.Sprintf("%s %d:%d", r.Book, r.Chapter, r.Verse)
}

// String implements fmt.Stringer
func (r ScriptureReference) String() string {
	return r.Key()
}

// Validate checks that the reference can produce a meaningful key.
func (r ScriptureReference) Validate() error {
	if r.Book == "" {
		return NewInvalidRequestError("book is required", nil)
	}
	if r.Chapter <= 0 || r.Verse <= 0 {
		return NewInvalidRequestError(fmt.Sprintf("chapter and verse must be positive, got %d:%d", r.Chapter, r.Verse), nil)
	}
	return nil
}

// Verse is a resolved reference together with its text. The text feeds the
// generation prompt; only the reference takes part in the cache key.
type Verse struct {
	Reference ScriptureReference `json:"reference"`
	Text      string             `json:"text"`
}

// DevotionalRecord is the structured devotional produced by the generator and
// stored in the cache. Every field is required.
type DevotionalRecord struct {
	Title                string   `json:"title"`
	Subtitle             string   `json:"subtitle"`
	Reference            string   `json:"reference"`
	VerseText            string   `json:"verse"`
	ContextualBackground string   `json:"contextual_background"`
	HistoricalInsights   string   `json:"historical_insights"`
	LinguisticInsights   string   `json:"linguistic_insights"`
	ModernRelevance      string   `json:"modern_relevance"`
	ReflectionQuestions  []string `json:"reflection_questions"`
	Prayer               string   `json:"prayer"`
}

// ProvenanceSource tells where a returned devotional came from.
type ProvenanceSource string

const (
	// ProvenanceFresh marks a devotional generated by this request
	ProvenanceFresh ProvenanceSource = "fresh"
	// ProvenanceCached marks a devotional served from a valid cache entry
	ProvenanceCached ProvenanceSource = "cached"
	// ProvenanceStaleOffline marks an expired entry served because the generator was unreachable
	ProvenanceStaleOffline ProvenanceSource = "stale_offline"
)

// Provenance tags a returned devotional with its origin.
type Provenance struct {
	Source   ProvenanceSource `json:"source"`
	CachedAt *time.Time       `json:"cached_at,omitempty"`
}

// Fresh returns the provenance of a newly generated devotional.
func Fresh() Provenance {
	return Provenance{Source: ProvenanceFresh}
}

// Cached returns the provenance of a cache hit.
func Cached(at time.Time) Provenance {
	return Provenance{Source: ProvenanceCached, CachedAt: &at}
}

// StaleOffline returns the provenance of an offline fallback.
func StaleOffline(at time.Time) Provenance {
	return Provenance{Source: ProvenanceStaleOffline, CachedAt: &at}
}

// Devotional is a record together with its provenance.
type Devotional struct {
	Key        string           `json:"key"`
	Record     DevotionalRecord `json:"devotional"`
	Provenance Provenance       `json:"provenance"`
}

// RawVerse is a verse as returned by the Bible API, before book name resolution.
// All fields are strings on the wire.
type RawVerse struct {
	BookID  string `json:"b"`
	Chapter string `json:"c"`
	Verse   string `json:"v"`
	Text    string `json:"t"`
}
