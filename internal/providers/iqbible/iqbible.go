// Package iqbible fetches random verses and book names from the IQ Bible API
// on RapidAPI.
package iqbible

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"devotional/internal/core"
	"devotional/internal/httpclient"
	"devotional/internal/pkg/llmclient"
)

const (
	// DefaultBaseURL is the RapidAPI endpoint of IQ Bible
	DefaultBaseURL = "https://iq-bible.p.rapidapi.com"
	// DefaultHost is sent as x-rapidapi-host
	DefaultHost = "iq-bible.p.rapidapi.com"
	// DefaultTranslation is the King James Version
	DefaultTranslation = "kjv"

	providerName = "iqbible"
)

// Options configures a Client.
type Options struct {
	BaseURL        string
	Host           string
	HTTPClient     *http.Client
	CircuitBreaker *llmclient.CircuitBreakerConfig
}

// Client implements core.VerseSource and core.BookNameResolver.
type Client struct {
	client *llmclient.Client
	apiKey string
	host   string
}

// New creates an IQ Bible client.
func New(apiKey string, opts Options) *Client {
	c := &Client{apiKey: apiKey, host: opts.Host}
	if c.host == "" {
		c.host = DefaultHost
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = httpclient.NewDefaultHTTPClient()
	}

	cfg := llmclient.DefaultConfig(providerName, strings.TrimRight(baseURL, "/"))
	cfg.CircuitBreaker = opts.CircuitBreaker
	c.client = llmclient.NewWithHTTPClient(httpClient, cfg, c.setHeaders)
	return c
}

// Name identifies the verse source in errors
func (c *Client) Name() string {
	return providerName
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-rapidapi-key", c.apiKey)
	req.Header.Set("x-rapidapi-host", c.host)
}

// RandomVerse returns one random verse of translation. The API answers with
// an array; only its first element is used.
func (c *Client) RandomVerse(ctx context.Context, translation string) (*core.RawVerse, error) {
	if translation == "" {
		translation = DefaultTranslation
	}

	var verses []core.RawVerse
	err := c.client.Do(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/GetRandomVerse?versionId=" + url.QueryEscape(translation),
	}, &verses)
	if err != nil {
		return nil, err
	}
	if len(verses) == 0 {
		return nil, core.NewMalformedResponseError(providerName, "no verse in response", nil)
	}
	return &verses[0], nil
}

// BookName looks up the English name of a book id.
func (c *Client) BookName(ctx context.Context, id string) (string, error) {
	resp, err := c.client.DoRaw(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/GetBookNameByBookId?bookId=" + url.QueryEscape(id) + "&language=english",
	})
	if err != nil {
		return "", err
	}

	if !json.Valid(resp.Body) {
		return "", core.NewMalformedResponseError(providerName, "book name response is not valid JSON", nil)
	}
	name := gjson.GetBytes(resp.Body, "0.n")
	if name.Type != gjson.String || name.String() == "" {
		return "", core.NewMalformedResponseError(providerName, "book name missing from response", nil)
	}
	return name.String(), nil
}
