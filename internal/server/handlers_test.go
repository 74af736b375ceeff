package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devotional/internal/cache"
	"devotional/internal/core"
	"devotional/internal/storage"
)

// mockService implements DevotionalService for testing
type mockService struct {
	devotional *core.Devotional
	err        error
	fetched    []core.Verse
	last       *core.Verse
}

func (m *mockService) Random(context.Context) (*core.Devotional, error) {
	return m.devotional, m.err
}

func (m *mockService) Fetch(_ context.Context, verse core.Verse) (*core.Devotional, error) {
	m.fetched = append(m.fetched, verse)
	return m.devotional, m.err
}

func (m *mockService) Retry(context.Context) (*core.Devotional, error) {
	return m.devotional, m.err
}

func (m *mockService) LastAttempted() (core.Verse, bool) {
	if m.last == nil {
		return core.Verse{}, false
	}
	return *m.last, true
}

func sampleDevotional() *core.Devotional {
	at := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	return &core.Devotional{
		Key: "Psalms 23:1",
		Record: core.DevotionalRecord{
			Title:               "The Shepherd",
			Reference:           "Psalms 23:1",
			ReflectionQuestions: []string{"q"},
		},
		Provenance: core.StaleOffline(at),
	}
}

func newTestCache(t *testing.T, now func() time.Time) *cache.Manager {
	t.Helper()
	store := storage.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	return cache.NewManager(store, cache.WithClock(now))
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRandom(t *testing.T) {
	svc := &mockService{devotional: sampleDevotional()}
	srv := New(svc, newTestCache(t, time.Now), nil)

	rec := serve(srv, http.MethodGet, "/v1/devotionals/random", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got core.Devotional
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Psalms 23:1", got.Key)
	assert.Equal(t, core.ProvenanceStaleOffline, got.Provenance.Source)
	require.NotNil(t, got.Provenance.CachedAt)
}

func TestFetch(t *testing.T) {
	svc := &mockService{devotional: sampleDevotional()}
	srv := New(svc, newTestCache(t, time.Now), nil)

	rec := serve(srv, http.MethodPost, "/v1/devotionals", `{"book":"Psalms","chapter":23,"verse":1,"text":"The LORD is my shepherd"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	require.Len(t, svc.fetched, 1)
	assert.Equal(t, "Psalms 23:1", svc.fetched[0].Reference.Key())
	assert.Equal(t, "The LORD is my shepherd", svc.fetched[0].Text)
}

func TestFetchInvalidBody(t *testing.T) {
	svc := &mockService{}
	srv := New(svc, newTestCache(t, time.Now), nil)

	rec := serve(srv, http.MethodPost, "/v1/devotionals", `{"book":"Psalms","chapter":"twenty-three"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	assert.Empty(t, svc.fetched)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{name: "offline no cache", err: core.NewOfflineNoCacheError("Psalms 23:1", nil), wantStatus: http.StatusServiceUnavailable, wantType: "offline_no_cache"},
		{name: "timeout", err: core.NewTimeoutError("groq", context.DeadlineExceeded), wantStatus: http.StatusGatewayTimeout, wantType: "timeout"},
		{name: "malformed", err: core.NewMalformedResponseError("groq", "bad", nil), wantStatus: http.StatusBadGateway, wantType: "malformed_response"},
		{name: "authentication", err: core.NewAuthenticationError("groq", "bad key"), wantStatus: http.StatusBadGateway, wantType: "authentication_error"},
		{name: "server", err: core.NewServerError("groq", 500, "boom", nil), wantStatus: http.StatusBadGateway, wantType: "server_error"},
		{name: "invalid", err: core.NewInvalidRequestError("book is required", nil), wantStatus: http.StatusBadRequest, wantType: "invalid_request_error"},
		{name: "untyped", err: context.Canceled, wantStatus: http.StatusInternalServerError, wantType: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(&mockService{err: tt.err}, newTestCache(t, time.Now), nil)

			rec := serve(srv, http.MethodPost, "/v1/devotionals/retry", "")
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body struct {
				Error struct {
					Type    string `json:"type"`
					Message string `json:"message"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantType, body.Error.Type)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestLastAttempted(t *testing.T) {
	svc := &mockService{}
	srv := New(svc, newTestCache(t, time.Now), nil)

	rec := serve(srv, http.MethodGet, "/v1/devotionals/last", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	svc.last = &core.Verse{Reference: core.NewScriptureReference("John", 3, 16), Text: "For God so loved"}
	rec = serve(srv, http.MethodGet, "/v1/devotionals/last", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"book":"John"`)
}

func TestCacheRoutes(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	entries := newTestCache(t, clock)
	record := core.DevotionalRecord{Title: "Shepherd", ReflectionQuestions: []string{"q"}}
	require.NoError(t, entries.Put(ctx, "Psalms 23:1", record))
	require.NoError(t, entries.Put(ctx, "John 3:16", record))

	srv := New(&mockService{}, entries, nil)
	srv.handler.now = func() time.Time { return now.Add(8 * 24 * time.Hour) }

	rec := serve(srv, http.MethodGet, "/v1/cache", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ttl_seconds":604800`)
	assert.Contains(t, rec.Body.String(), `"key":"John 3:16"`)

	rec = serve(srv, http.MethodGet, "/v1/cache/Psalms%2023:1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var entry CacheEntryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, "Psalms 23:1", entry.Key)
	assert.True(t, entry.Expired)
	assert.Equal(t, "Shepherd", entry.Devotional.Title)

	rec = serve(srv, http.MethodDelete, "/v1/cache/Psalms%2023:1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(srv, http.MethodGet, "/v1/cache/Psalms%2023:1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(srv, http.MethodDelete, "/v1/cache", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := entries.GetStale(ctx, "John 3:16")
	assert.False(t, ok)
}

func TestGetCache_InspectionIsNotALookup(t *testing.T) {
	ctx := context.Background()
	var lookups []string
	store := storage.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	entries := cache.NewManager(store, cache.WithHooks(cache.Hooks{
		OnLookup: func(result string) { lookups = append(lookups, result) },
	}))
	require.NoError(t, entries.Put(ctx, "Psalms 23:1", core.DevotionalRecord{Title: "Shepherd", ReflectionQuestions: []string{"q"}}))

	srv := New(&mockService{}, entries, nil)
	rec := serve(srv, http.MethodGet, "/v1/cache/Psalms%2023:1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = serve(srv, http.MethodGet, "/v1/cache/John%203:16", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	assert.Empty(t, lookups, "reading an entry for display must not move the lookup metrics")
}

func TestHealth(t *testing.T) {
	srv := New(&mockService{}, newTestCache(t, time.Now), &Config{MasterKey: "secret"})

	rec := serve(srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected health body: %s", rec.Body.String())
	}
}
