// Package bible resolves book identifiers to display names and turns raw
// verses from the verse source into references.
package bible

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"devotional/internal/core"
)

// bookNames lists the 66 books of the Protestant canon in KJV order.
var bookNames = [...]string{
	"Genesis", "Exodus", "Leviticus", "Numbers", "Deuteronomy", "Joshua", "Judges", "Ruth", "1 Samuel",
	"2 Samuel", "1 Kings", "2 Kings", "1 Chronicles", "2 Chronicles", "Ezra", "Nehemiah", "Esther",
	"Job", "Psalms", "Proverbs", "Ecclesiastes", "Song of Solomon", "Isaiah", "Jeremiah", "Lamentations",
	"Ezekiel", "Daniel", "Hosea", "Joel", "Amos", "Obadiah", "Jonah", "Micah", "Nahum", "Habakkuk",
	"Zephaniah", "Haggai", "Zechariah", "Malachi", "Matthew", "Mark", "Luke", "John", "Acts", "Romans",
	"1 Corinthians", "2 Corinthians", "Galatians", "Ephesians", "Philippians", "Colossians",
	"1 Thessalonians", "2 Thessalonians", "1 Timothy", "2 Timothy", "Titus", "Philemon", "Hebrews",
	"James", "1 Peter", "2 Peter", "1 John", "2 John", "3 John", "Jude", "Revelation",
}

// BookCount is the number of books StaticResolver knows.
const BookCount = len(bookNames)

// StaticResolver maps ordinals 1..66 to book names and passes non-numeric
// identifiers through unchanged.
type StaticResolver struct{}

// BookName implements core.BookNameResolver.
func (StaticResolver) BookName(_ context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("empty book id")
	}
	n, err := strconv.Atoi(id)
	if err != nil {
		return id, nil
	}
	if n < 1 || n > BookCount {
		return "", fmt.Errorf("book ordinal %d out of range 1-%d", n, BookCount)
	}
	return bookNames[n-1], nil
}

// ChainResolver tries each resolver in order and returns the first name found.
type ChainResolver []core.BookNameResolver

// BookName implements core.BookNameResolver.
func (c ChainResolver) BookName(ctx context.Context, id string) (string, error) {
	var lastErr error
	for _, r := range c {
		name, err := r.BookName(ctx, id)
		if err == nil && name != "" {
			return name, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no resolver knows book %q", id)
	}
	return "", lastErr
}

// DisplayName resolves id with r and falls back to "Book {id}". Resolution
// failure never blocks devotional generation.
func DisplayName(ctx context.Context, r core.BookNameResolver, id string) string {
	if r != nil {
		name, err := r.BookName(ctx, id)
		if err == nil && name != "" {
			return name
		}
		if err != nil {
			slog.Debug("book name lookup failed, using fallback", "book_id", id, "error", err)
		}
	}
	return "Book " + id
}

// ToVerse converts a raw verse into a core.Verse with a display book name.
// Chapter and verse numbers that do not parse make the payload malformed.
func ToVerse(ctx context.Context, r core.BookNameResolver, raw *core.RawVerse, provider string) (core.Verse, error) {
	if raw == nil {
		return core.Verse{}, core.NewMalformedResponseError(provider, "no verse in response", nil)
	}
	chapter, err := strconv.Atoi(strings.TrimSpace(raw.Chapter))
	if err != nil || chapter <= 0 {
		return core.Verse{}, core.NewMalformedResponseError(provider, fmt.Sprintf("invalid chapter %q", raw.Chapter), err)
	}
	verse, err := strconv.Atoi(strings.TrimSpace(raw.Verse))
	if err != nil || verse <= 0 {
		return core.Verse{}, core.NewMalformedResponseError(provider, fmt.Sprintf("invalid verse %q", raw.Verse), err)
	}
	if strings.TrimSpace(raw.BookID) == "" {
		return core.Verse{}, core.NewMalformedResponseError(provider, "verse has no book id", nil)
	}

	return core.Verse{
		Reference: core.NewScriptureReference(DisplayName(ctx, r, strings.TrimSpace(raw.BookID)), chapter, verse),
		Text:      raw.Text,
	}, nil
}
