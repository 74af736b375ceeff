// Package server provides HTTP handlers and server setup for the devotional service.
package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"devotional/internal/cache"
	"devotional/internal/core"
)

// DevotionalService is the fetch surface the handlers call.
type DevotionalService interface {
	Random(ctx context.Context) (*core.Devotional, error)
	Fetch(ctx context.Context, verse core.Verse) (*core.Devotional, error)
	Retry(ctx context.Context) (*core.Devotional, error)
	LastAttempted() (core.Verse, bool)
}

// CacheAdmin is the cache surface the handlers call.
type CacheAdmin interface {
	Peek(ctx context.Context, key string) (*cache.Entry, bool)
	Entries(ctx context.Context) ([]cache.EntryInfo, error)
	Evict(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	TTL() time.Duration
}

// Handler holds the HTTP handlers
type Handler struct {
	service DevotionalService
	entries CacheAdmin
	now     func() time.Time
}

// NewHandler creates a new handler
func NewHandler(service DevotionalService, entries CacheAdmin) *Handler {
	return &Handler{
		service: service,
		entries: entries,
		now:     time.Now,
	}
}

// FetchRequest is the body of POST /v1/devotionals.
type FetchRequest struct {
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse"`
	Text    string `json:"text"`
}

// CacheEntryResponse is returned by GET /v1/cache/:key.
type CacheEntryResponse struct {
	Key        string                `json:"key"`
	CachedAt   time.Time             `json:"cached_at"`
	Expired    bool                  `json:"expired"`
	Devotional core.DevotionalRecord `json:"devotional"`
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Random handles GET /v1/devotionals/random
func (h *Handler) Random(c echo.Context) error {
	d, err := h.service.Random(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// Fetch handles POST /v1/devotionals
func (h *Handler) Fetch(c echo.Context) error {
	var req FetchRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	verse := core.Verse{
		Reference: core.NewScriptureReference(req.Book, req.Chapter, req.Verse),
		Text:      req.Text,
	}
	d, err := h.service.Fetch(c.Request().Context(), verse)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// Retry handles POST /v1/devotionals/retry
func (h *Handler) Retry(c echo.Context) error {
	d, err := h.service.Retry(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// LastAttempted handles GET /v1/devotionals/last
func (h *Handler) LastAttempted(c echo.Context) error {
	verse, ok := h.service.LastAttempted()
	if !ok {
		return handleError(c, core.NewNotFoundError("no devotional has been requested yet"))
	}
	return c.JSON(http.StatusOK, verse)
}

// ListCache handles GET /v1/cache
func (h *Handler) ListCache(c echo.Context) error {
	entries, err := h.entries.Entries(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ttl_seconds": int64(h.entries.TTL().Seconds()),
		"entries":     entries,
	})
}

// GetCache handles GET /v1/cache/:key. Expired entries are reported, not evicted.
func (h *Handler) GetCache(c echo.Context) error {
	key, err := cacheKeyParam(c)
	if err != nil {
		return handleError(c, err)
	}
	entry, ok := h.entries.Peek(c.Request().Context(), key)
	if !ok {
		return handleError(c, core.NewNotFoundError("no cached devotional for "+key))
	}
	return c.JSON(http.StatusOK, CacheEntryResponse{
		Key:        key,
		CachedAt:   entry.CachedAt,
		Expired:    h.now().Sub(entry.CachedAt) > h.entries.TTL(),
		Devotional: entry.Record,
	})
}

// EvictCache handles DELETE /v1/cache/:key
func (h *Handler) EvictCache(c echo.Context) error {
	key, err := cacheKeyParam(c)
	if err != nil {
		return handleError(c, err)
	}
	if err := h.entries.Evict(c.Request().Context(), key); err != nil {
		return handleError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ClearCache handles DELETE /v1/cache
func (h *Handler) ClearCache(c echo.Context) error {
	if err := h.entries.Clear(c.Request().Context()); err != nil {
		return handleError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// cacheKeyParam returns the unescaped :key path parameter, e.g. "Psalms 23:1".
func cacheKeyParam(c echo.Context) (string, error) {
	key, err := url.PathUnescape(c.Param("key"))
	if err != nil {
		return "", core.NewInvalidRequestError("invalid cache key", err)
	}
	if key == "" {
		return "", core.NewInvalidRequestError("cache key is required", nil)
	}
	return key, nil
}

// handleError converts service errors to appropriate HTTP responses
func handleError(c echo.Context, err error) error {
	var fetchErr *core.FetchError
	if errors.As(err, &fetchErr) {
		return c.JSON(fetchErr.HTTPStatusCode(), fetchErr.ToJSON())
	}

	// Fallback for unexpected errors
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}
