// Package core defines the core interfaces and types for the devotional service.
package core

import "context"

// Generator turns a prompt into the raw text of a devotional. Errors are
// *FetchError values classified by the implementation.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)

	// Name identifies the generator in logs and errors
	Name() string
}

// VerseSource returns a random verse for a translation.
type VerseSource interface {
	RandomVerse(ctx context.Context, translation string) (*RawVerse, error)
}

// BookNameResolver maps a book identifier to its display name.
type BookNameResolver interface {
	BookName(ctx context.Context, id string) (string, error)
}
