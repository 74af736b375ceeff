package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"devotional/internal/core"
)

// ErrInvalidRecord is wrapped by every encode/decode failure.
var ErrInvalidRecord = errors.New("invalid devotional record")

// wireRecord mirrors core.DevotionalRecord with pointer fields so a missing
// (or null) field can be told apart from an empty one.
type wireRecord struct {
	Title                *string   `json:"title"`
	Subtitle             *string   `json:"subtitle"`
	Reference            *string   `json:"reference"`
	VerseText            *string   `json:"verse"`
	ContextualBackground *string   `json:"contextual_background"`
	HistoricalInsights   *string   `json:"historical_insights"`
	LinguisticInsights   *string   `json:"linguistic_insights"`
	ModernRelevance      *string   `json:"modern_relevance"`
	ReflectionQuestions  *[]string `json:"reflection_questions"`
	Prayer               *string   `json:"prayer"`
}

// EncodeRecord serializes a record. Records that could not be decoded again
// are rejected up front.
func EncodeRecord(record core.DevotionalRecord) ([]byte, error) {
	if record.ReflectionQuestions == nil {
		return nil, fmt.Errorf("%w: reflection_questions is nil", ErrInvalidRecord)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return data, nil
}

// DecodeRecord parses a record. Missing or null fields, wrong types and
// trailing data are errors; unknown fields are ignored. A shape mismatch
// never yields a partially filled record.
func DecodeRecord(data []byte) (core.DevotionalRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	var w wireRecord
	if err := dec.Decode(&w); err != nil {
		return core.DevotionalRecord{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return core.DevotionalRecord{}, fmt.Errorf("%w: trailing data after record", ErrInvalidRecord)
	}

	required := []struct {
		name    string
		missing bool
	}{
		{"title", w.Title == nil},
		{"subtitle", w.Subtitle == nil},
		{"reference", w.Reference == nil},
		{"verse", w.VerseText == nil},
		{"contextual_background", w.ContextualBackground == nil},
		{"historical_insights", w.HistoricalInsights == nil},
		{"linguistic_insights", w.LinguisticInsights == nil},
		{"modern_relevance", w.ModernRelevance == nil},
		{"reflection_questions", w.ReflectionQuestions == nil},
		{"prayer", w.Prayer == nil},
	}
	for _, field := range required {
		if field.missing {
			return core.DevotionalRecord{}, fmt.Errorf("%w: missing required field %q", ErrInvalidRecord, field.name)
		}
	}

	return core.DevotionalRecord{
		Title:                *w.Title,
		Subtitle:             *w.Subtitle,
		Reference:            *w.Reference,
		VerseText:            *w.VerseText,
		ContextualBackground: *w.ContextualBackground,
		HistoricalInsights:   *w.HistoricalInsights,
		LinguisticInsights:   *w.LinguisticInsights,
		ModernRelevance:      *w.ModernRelevance,
		ReflectionQuestions:  *w.ReflectionQuestions,
		Prayer:               *w.Prayer,
	}, nil
}
