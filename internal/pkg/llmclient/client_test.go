package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"devotional/internal/core"
)

func TestClient_Do_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"hello"}`))
	}))
	defer server.Close()

	client := New(
		DefaultConfig("test", server.URL),
		func(req *http.Request) {
			req.Header.Set("X-Test", "value")
		},
	)

	var result struct {
		Message string `json:"message"`
	}
	err := client.Do(context.Background(), Request{
		Method:   http.MethodGet,
		Endpoint: "/test",
	}, &result)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Message != "hello" {
		t.Errorf("expected message 'hello', got '%s'", result.Message)
	}
}

func TestClient_Do_WithRequestBody(t *testing.T) {
	var receivedBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type 'application/json', got '%s'", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &receivedBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := New(DefaultConfig("test", server.URL), nil)

	requestBody := map[string]string{"input": "test"}
	var result map[string]string
	err := client.Do(context.Background(), Request{
		Method:   http.MethodPost,
		Endpoint: "/test",
		Body:     requestBody,
	}, &result)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receivedBody["input"] != "test" {
		t.Errorf("expected input 'test', got '%v'", receivedBody["input"])
	}
}

func TestClient_Do_Headers(t *testing.T) {
	var receivedHeaders http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New(
		DefaultConfig("test", server.URL),
		func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer token")
		},
	)

	ctx := core.WithRequestID(context.Background(), "req-123")
	err := client.Do(ctx, Request{
		Method:   http.MethodGet,
		Endpoint: "/test",
		Headers: map[string]string{
			"X-Custom": "custom-value",
		},
	}, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receivedHeaders.Get("Authorization") != "Bearer token" {
		t.Errorf("expected Authorization header 'Bearer token', got '%s'", receivedHeaders.Get("Authorization"))
	}
	if receivedHeaders.Get("X-Custom") != "custom-value" {
		t.Errorf("expected X-Custom header 'custom-value', got '%s'", receivedHeaders.Get("X-Custom"))
	}
	if receivedHeaders.Get("X-Request-ID") != "req-123" {
		t.Errorf("expected X-Request-ID 'req-123', got '%s'", receivedHeaders.Get("X-Request-ID"))
	}
}

func TestClient_Do_ErrorParsing(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantType   core.ErrorType
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "unauthorized",
			statusCode: http.StatusUnauthorized,
			body:       `{"error":{"message":"Invalid API Key"}}`,
			wantType:   core.ErrorTypeAuthentication,
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "Invalid API Key",
		},
		{
			name:       "forbidden",
			statusCode: http.StatusForbidden,
			body:       `{"message":"You are not subscribed to this API."}`,
			wantType:   core.ErrorTypeAuthentication,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "internal server error",
			statusCode: http.StatusInternalServerError,
			body:       `{"error":{"message":"boom"}}`,
			wantType:   core.ErrorTypeServer,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "boom",
		},
		{
			name:       "not found",
			statusCode: http.StatusNotFound,
			body:       `not json`,
			wantType:   core.ErrorTypeServer,
			wantStatus: http.StatusNotFound,
			wantMsg:    "not json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := New(DefaultConfig("test", server.URL), nil)
			err := client.Do(context.Background(), Request{
				Method:   http.MethodGet,
				Endpoint: "/test",
			}, nil)

			var fetchErr *core.FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("expected FetchError, got %T", err)
			}
			if fetchErr.Type != tt.wantType {
				t.Errorf("expected error type %s, got %s", tt.wantType, fetchErr.Type)
			}
			if fetchErr.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, fetchErr.StatusCode)
			}
			if tt.wantMsg != "" && fetchErr.Message != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, fetchErr.Message)
			}
		})
	}
}

func TestClient_Do_SingleAttempt(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"busy"}}`))
	}))
	defer server.Close()

	client := New(DefaultConfig("test", server.URL), nil)
	err := client.Do(context.Background(), Request{Method: http.MethodGet, Endpoint: "/test"}, nil)

	if !core.IsType(err, core.ErrorTypeServer) {
		t.Fatalf("expected server error, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", got)
	}
}

func TestClient_Do_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":`))
	}))
	defer server.Close()

	client := New(DefaultConfig("test", server.URL), nil)
	var result map[string]string
	err := client.Do(context.Background(), Request{Method: http.MethodGet, Endpoint: "/test"}, &result)

	if !core.IsType(err, core.ErrorTypeMalformedResponse) {
		t.Fatalf("expected malformed response error, got %v", err)
	}
}

func TestClient_TransportErrors(t *testing.T) {
	t.Run("deadline is a timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer server.Close()

		client := New(DefaultConfig("test", server.URL), nil)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := client.Do(ctx, Request{Method: http.MethodGet, Endpoint: "/test"}, nil)
		if !core.IsType(err, core.ErrorTypeTimeout) {
			t.Fatalf("expected timeout error, got %v", err)
		}
	})

	t.Run("client timeout is a timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer server.Close()

		client := NewWithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}, DefaultConfig("test", server.URL), nil)
		err := client.Do(context.Background(), Request{Method: http.MethodGet, Endpoint: "/test"}, nil)
		if !core.IsType(err, core.ErrorTypeTimeout) {
			t.Fatalf("expected timeout error, got %v", err)
		}
	})

	t.Run("cancellation is cancelled", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer server.Close()

		client := New(DefaultConfig("test", server.URL), nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := client.Do(ctx, Request{Method: http.MethodGet, Endpoint: "/test"}, nil)
		if !core.IsType(err, core.ErrorTypeCancelled) {
			t.Fatalf("expected cancelled error, got %v", err)
		}
	})

	t.Run("refused connection is offline", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		client := New(DefaultConfig("test", url), nil)
		err := client.Do(context.Background(), Request{Method: http.MethodGet, Endpoint: "/test"}, nil)
		if !core.IsType(err, core.ErrorTypeOffline) {
			t.Fatalf("expected offline error, got %v", err)
		}
	})
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"Server error"}}`))
	}))
	defer server.Close()

	config := DefaultConfig("test", server.URL)
	config.CircuitBreaker = &CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          1 * time.Second,
	}
	client := New(config, nil)

	for i := 0; i < 5; i++ {
		_ = client.Do(context.Background(), Request{
			Method:   http.MethodGet,
			Endpoint: "/test",
		}, nil)
	}

	err := client.Do(context.Background(), Request{
		Method:   http.MethodGet,
		Endpoint: "/test",
	}, nil)

	var fetchErr *core.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %T", err)
	}
	if fetchErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, fetchErr.StatusCode)
	}
	if !strings.Contains(fetchErr.Message, "circuit breaker") {
		t.Errorf("expected circuit breaker message, got: %s", fetchErr.Message)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("expected 3 attempts before circuit opened, got %d", atomic.LoadInt32(&attempts))
	}
	if client.CircuitState() != "open" {
		t.Errorf("expected circuit state 'open', got %q", client.CircuitState())
	}
}

func TestCircuitBreaker_ClosesAfterTimeout(t *testing.T) {
	var shouldSucceed atomic.Bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSucceed.Load() {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"Server error"}}`))
	}))
	defer server.Close()

	config := DefaultConfig("test", server.URL)
	config.CircuitBreaker = &CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          50 * time.Millisecond,
	}
	client := New(config, nil)

	for i := 0; i < 2; i++ {
		_ = client.Do(context.Background(), Request{
			Method:   http.MethodGet,
			Endpoint: "/test",
		}, nil)
	}

	if err := client.Do(context.Background(), Request{Method: http.MethodGet, Endpoint: "/test"}, nil); err == nil {
		t.Fatal("expected circuit to be open")
	}

	time.Sleep(100 * time.Millisecond)
	shouldSucceed.Store(true)

	var result struct {
		Success bool `json:"success"`
	}
	err := client.Do(context.Background(), Request{
		Method:   http.MethodGet,
		Endpoint: "/test",
	}, &result)

	if err != nil {
		t.Fatalf("expected success after timeout, got: %v", err)
	}
	if !result.Success {
		t.Error("expected success to be true")
	}
	if client.CircuitState() != "closed" {
		t.Errorf("expected circuit state 'closed', got %q", client.CircuitState())
	}
}

func TestCircuitBreaker_State(t *testing.T) {
	cb := newCircuitBreaker(3, 2, time.Minute)

	if state := cb.State(); state != "closed" {
		t.Errorf("expected initial state 'closed', got '%s'", state)
	}

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	if state := cb.State(); state != "open" {
		t.Errorf("expected state 'open' after failures, got '%s'", state)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("groq", "https://api.groq.com/openai/v1")

	if config.ProviderName != "groq" {
		t.Errorf("expected provider name 'groq', got '%s'", config.ProviderName)
	}
	if config.CircuitBreaker != nil {
		t.Error("expected circuit breaker to be disabled by default")
	}
	if New(config, nil).CircuitState() != "disabled" {
		t.Error("expected CircuitState 'disabled' without a breaker")
	}
}

func TestClient_SetBaseURL(t *testing.T) {
	client := New(DefaultConfig("test", "http://old.example"), nil)
	client.SetBaseURL("http://new.example")

	if client.BaseURL() != "http://new.example" {
		t.Errorf("expected base URL 'http://new.example', got '%s'", client.BaseURL())
	}
}
