package devotional

import (
	"context"
	"log/slog"

	"devotional/internal/bible"
	"devotional/internal/core"
)

// Service draws a random verse, resolves its book name and fetches the
// devotional for it.
type Service struct {
	orchestrator *Orchestrator
	verses       core.VerseSource
	names        core.BookNameResolver
	translation  string
	sourceName   string
}

// NewService creates a Service. names may be nil, in which case every book
// is displayed as "Book {id}".
func NewService(o *Orchestrator, verses core.VerseSource, names core.BookNameResolver, translation string) *Service {
	return &Service{
		orchestrator: o,
		verses:       verses,
		names:        names,
		translation:  translation,
		sourceName:   "bible",
	}
}

// Orchestrator returns the wrapped orchestrator.
func (s *Service) Orchestrator() *Orchestrator {
	return s.orchestrator
}

// RandomVerse fetches and resolves a random verse without generating.
func (s *Service) RandomVerse(ctx context.Context) (core.Verse, error) {
	raw, err := s.verses.RandomVerse(ctx, s.translation)
	if err != nil {
		ferr := core.ClassifyTransportError(s.sourceName, err)
		if ferr.Type == core.ErrorTypeOffline {
			// There is no verse and so no cache key to fall back on.
			return core.Verse{}, core.NewOfflineNoCacheError("a random verse", ferr)
		}
		return core.Verse{}, ferr
	}
	return bible.ToVerse(ctx, s.names, raw, s.sourceName)
}

// Random draws a verse and fetches its devotional.
func (s *Service) Random(ctx context.Context) (*core.Devotional, error) {
	ctx, _ = core.EnsureRequestID(ctx)
	verse, err := s.RandomVerse(ctx)
	if err != nil {
		slog.Warn("random verse failed", "request_id", core.GetRequestID(ctx), "error", err)
		return nil, err
	}
	return s.orchestrator.Fetch(ctx, verse)
}

// Fetch fetches the devotional for a caller-supplied verse.
func (s *Service) Fetch(ctx context.Context, verse core.Verse) (*core.Devotional, error) {
	return s.orchestrator.Fetch(ctx, verse)
}

// Retry repeats the last cache miss.
func (s *Service) Retry(ctx context.Context) (*core.Devotional, error) {
	return s.orchestrator.Retry(ctx)
}

// LastAttempted returns the verse of the most recent cache miss.
func (s *Service) LastAttempted() (core.Verse, bool) {
	return s.orchestrator.LastAttempted()
}
