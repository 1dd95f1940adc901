package api

import (
	"context"
	stdjson "encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://airvpn.org/api", "test-key")

		if c.baseURL != "https://airvpn.org/api" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://airvpn.org/api")
		}
		if c.apiKey != "test-key" {
			t.Errorf("apiKey = %q, want %q", c.apiKey, "test-key")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 0 {
			t.Errorf("maxRetries = %d, want 0 (single attempt)", c.maxRetries)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with retries option", func(t *testing.T) {
		c := NewClient("https://airvpn.org/api", "", WithRetries(5, 2*time.Second))
		if c.maxRetries != 5 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 5)
		}
		if c.retryBackoff != 2*time.Second {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, 2*time.Second)
		}
	})

	t.Run("with logger option", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		c := NewClient("https://airvpn.org/api", "", WithLogger(logger))
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("nil logger keeps default", func(t *testing.T) {
		c := NewClient("https://airvpn.org/api", "", WithLogger(nil))
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("https://airvpn.org/api", "", WithHTTPClient(customClient), WithTimeout(5*time.Second))
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
		if customClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want %v", customClient.Timeout, 5*time.Second)
		}
	})

	t.Run("base url and key are normalized", func(t *testing.T) {
		tests := []struct {
			base, key         string
			wantBase, wantKey string
		}{
			{"", "k", DefaultBaseURL, "k"},
			{"https://airvpn.org/api/", " k\n", "https://airvpn.org/api", "k"},
			{" http://127.0.0.1:8080// ", "", "http://127.0.0.1:8080", ""},
		}
		for _, tt := range tests {
			c := NewClient(tt.base, tt.key)
			if c.baseURL != tt.wantBase || c.apiKey != tt.wantKey {
				t.Errorf("NewClient(%q, %q) = %q, %q; want %q, %q",
					tt.base, tt.key, c.baseURL, c.apiKey, tt.wantBase, tt.wantKey)
			}
		}
	})

	t.Run("invalid options keep defaults", func(t *testing.T) {
		c := NewClient("", "", WithRetries(-1, time.Second), WithTimeout(0), WithHTTPClient(nil))
		if c.maxRetries != 0 {
			t.Errorf("maxRetries = %d, want 0", c.maxRetries)
		}
		if c.httpClient == nil || c.httpClient.Timeout != 30*time.Second {
			t.Errorf("httpClient = %+v, want default with 30s timeout", c.httpClient)
		}
	})
}

// TestAPIError tests the APIError type.
func TestAPIError(t *testing.T) {
	err := &APIError{
		StatusCode: 403,
		Message:    "Forbidden",
		Body:       []byte(`{"result": "not authorized"}`),
	}
	expected := "airvpn api error 403: Forbidden"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}

	tests := []struct {
		code     int
		expected bool
	}{
		{500, true},
		{503, true},
		{429, true},
		{400, false},
		{401, false},
		{404, false},
	}
	for _, tt := range tests {
		err := &APIError{StatusCode: tt.code}
		if got := err.IsRetryable(); got != tt.expected {
			t.Errorf("IsRetryable() for status %d = %v, want %v", tt.code, got, tt.expected)
		}
	}
}

// TestDoRequest tests the HTTP request functionality.
func TestDoRequest(t *testing.T) {
	t.Run("key and format sent as query parameters", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("Accept header = %q, want %q", r.Header.Get("Accept"), "application/json")
			}
			if got := r.URL.Query().Get("key"); got != "test-key" {
				t.Errorf("key = %q, want %q", got, "test-key")
			}
			if got := r.URL.Query().Get("format"); got != "json" {
				t.Errorf("format = %q, want %q", got, "json")
			}
			if got := r.Header.Get("User-Agent"); !strings.HasPrefix(got, "airvpn-bridge/") {
				t.Errorf("User-Agent = %q, want airvpn-bridge/ prefix", got)
			}
			if r.Header.Get("Authorization") != "" {
				t.Errorf("Authorization header should be empty, got %q", r.Header.Get("Authorization"))
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status": "ok"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "test-key")
		body, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"status": "ok"}` {
			t.Errorf("body = %q, want %q", string(body), `{"status": "ok"}`)
		}
	})

	t.Run("request without API key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Has("key") {
				t.Errorf("key should be absent, got %q", r.URL.Query().Get("key"))
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		if _, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("5xx error returns APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`internal error`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != 500 {
			t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, 500)
		}
		if !strings.Contains(string(apiErr.Body), "internal error") {
			t.Errorf("Body should contain 'internal error', got %q", string(apiErr.Body))
		}
	})

	t.Run("transport error does not leak the key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		c := NewClient(url, "s3cr3t-key")
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if strings.Contains(err.Error(), "s3cr3t-key") {
			t.Errorf("error leaks api key: %v", err)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.doRequest(ctx, http.MethodGet, "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error should wrap context.Canceled, got %v", err)
		}
	})
}

// TestDoWithRetry tests the opt-in retry logic.
func TestDoWithRetry(t *testing.T) {
	t.Run("single attempt by default", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil); err == nil {
			t.Fatal("expected error, got nil")
		}
		if got := attempts.Load(); got != 1 {
			t.Errorf("attempts = %d, want 1", got)
		}
	})

	t.Run("retries on 5xx and succeeds", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(3, 10*time.Millisecond))
		body, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"ok": true}` {
			t.Errorf("body = %q, want %q", string(body), `{"ok": true}`)
		}
		if got := attempts.Load(); got != 3 {
			t.Errorf("attempts = %d, want 3", got)
		}
	})

	t.Run("does not retry on 4xx", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(3, 10*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil); err == nil {
			t.Fatal("expected error, got nil")
		}
		if got := attempts.Load(); got != 1 {
			t.Errorf("attempts = %d, want 1", got)
		}
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(2, 10*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "max retries exceeded") {
			t.Errorf("error should contain 'max retries exceeded', got %v", err)
		}
		if got := attempts.Load(); got != 3 {
			t.Errorf("attempts = %d, want 3", got)
		}
	})
}

func TestGetUserInfo(t *testing.T) {
	t.Run("user and sessions", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != PathUserInfo {
				t.Errorf("path = %q, want %q", r.URL.Path, PathUserInfo)
			}
			w.Write([]byte(`{
				"user": {"login": "alice", "credits": 10, "connected": true},
				"sessions": [{"device_name": "laptop", "bytes_read": 123456789012}]
			}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		resp, err := c.GetUserInfo(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if login, _ := resp.User.String("login"); login != "alice" {
			t.Errorf("login = %q, want %q", login, "alice")
		}
		if v, _ := resp.User.Value("credits"); v != stdjson.Number("10") {
			t.Errorf("credits = %#v, want json.Number(\"10\")", v)
		}
		if len(resp.Sessions) != 1 {
			t.Fatalf("len(Sessions) = %d, want 1", len(resp.Sessions))
		}
		if n, ok := resp.Sessions[0].Int64("bytes_read"); !ok || n != 123456789012 {
			t.Errorf("bytes_read = %d, %v, want 123456789012, true", n, ok)
		}
	})

	t.Run("wrong shape is a DecodeError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"user": "alice"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		_, err := c.GetUserInfo(context.Background())
		var decErr *DecodeError
		if !errors.As(err, &decErr) {
			t.Fatalf("expected *DecodeError, got %T (%v)", err, err)
		}
		if decErr.Path != PathUserInfo {
			t.Errorf("Path = %q, want %q", decErr.Path, PathUserInfo)
		}
	})
}

func TestGetDevices(t *testing.T) {
	t.Run("device list", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != PathDevices {
				t.Errorf("path = %q, want %q", r.URL.Path, PathDevices)
			}
			w.Write([]byte(`{"devices": [{"id": 1, "name": "laptop"}, {"id": 2, "name": "phone"}]}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		resp, err := c.GetDevices(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(resp.Devices) != 2 {
			t.Fatalf("len(Devices) = %d, want 2", len(resp.Devices))
		}
		if name, _ := resp.Devices[1].String("name"); name != "phone" {
			t.Errorf("Devices[1].name = %q, want %q", name, "phone")
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"devices": [`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		_, err := c.GetDevices(context.Background())
		var decErr *DecodeError
		if !errors.As(err, &decErr) {
			t.Fatalf("expected *DecodeError, got %T (%v)", err, err)
		}
	})
}
