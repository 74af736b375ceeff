package cache

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devotional/internal/core"
)

const validRecordJSON = `{
	"title": "Still Waters",
	"subtitle": "Rest",
	"reference": "Psalms 23:2",
	"verse": "He maketh me to lie down in green pastures",
	"contextual_background": "bg",
	"historical_insights": "hist",
	"linguistic_insights": "ling",
	"modern_relevance": "today",
	"reflection_questions": ["one", "two"],
	"prayer": "Amen"
}`

func TestDecodeRecord_Valid(t *testing.T) {
	record, err := DecodeRecord([]byte(validRecordJSON))
	require.NoError(t, err)
	assert.Equal(t, "Still Waters", record.Title)
	assert.Equal(t, "He maketh me to lie down in green pastures", record.VerseText)
	assert.Equal(t, []string{"one", "two"}, record.ReflectionQuestions)
}

func TestDecodeRecord_EmptyValuesAreAllowed(t *testing.T) {
	data := `{"title":"","subtitle":"","reference":"","verse":"","contextual_background":"",
		"historical_insights":"","linguistic_insights":"","modern_relevance":"",
		"reflection_questions":[],"prayer":""}`
	record, err := DecodeRecord([]byte(data))
	require.NoError(t, err)
	assert.NotNil(t, record.ReflectionQuestions)
	assert.Empty(t, record.ReflectionQuestions)
}

func TestDecodeRecord_IgnoresUnknownFields(t *testing.T) {
	data := `{"date":"today",` + validRecordJSON[1:]
	record, err := DecodeRecord([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "Still Waters", record.Title)
	assert.Equal(t, "Amen", record.Prayer)

	encoded, err := EncodeRecord(record)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "date", "unknown fields are not carried into the cache")
}

func TestDecodeRecord_Rejects(t *testing.T) {
	withField := func(field string, value any) []byte {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(validRecordJSON), &m))
		if value == nil {
			delete(m, field)
		} else {
			m[field] = value
		}
		data, err := json.Marshal(m)
		require.NoError(t, err)
		return data
	}

	tests := []struct {
		name string
		data []byte
	}{
		{name: "missing prayer", data: withField("prayer", nil)},
		{name: "missing reflection questions", data: withField("reflection_questions", nil)},
		{name: "wrong type", data: withField("reflection_questions", "not a list")},
		{name: "null field", data: []byte(`{"title":null,"subtitle":"","reference":"","verse":"","contextual_background":"","historical_insights":"","linguistic_insights":"","modern_relevance":"","reflection_questions":[],"prayer":""}`)},
		{name: "trailing data", data: []byte(validRecordJSON + `{}`)},
		{name: "not json", data: []byte(`Here is your devotional!`)},
		{name: "empty", data: nil},
		{name: "array", data: []byte(`[]`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRecord(tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRecord))
		})
	}
}

func TestEncodeRecord(t *testing.T) {
	record := core.DevotionalRecord{Title: "T", ReflectionQuestions: []string{"q"}}
	data, err := EncodeRecord(record)
	require.NoError(t, err)

	decoded, err := DecodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, record, decoded)

	_, err = EncodeRecord(core.DevotionalRecord{Title: "T"})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}
