package tguard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"relay-gate/internal/verification/domain"
)

func newTestClient() *Client {
	c := NewClient(0, 0, zerolog.Nop())
	c.nowF = func() time.Time { return time.Date(2025, 12, 27, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(0, -1, zerolog.Nop())
	if c.CreateTimeout != DefaultCreateTimeout {
		t.Errorf("CreateTimeout = %v, want %v", c.CreateTimeout, DefaultCreateTimeout)
	}
	if c.PollTimeout != DefaultPollTimeout {
		t.Errorf("PollTimeout = %v, want %v", c.PollTimeout, DefaultPollTimeout)
	}
	if c.HTTPClient == nil {
		t.Fatal("HTTPClient should be set")
	}
}

func TestCreateSession_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want %q", r.Method, http.MethodPost)
		}
		if r.URL.Path != "/api/verification/create" {
			t.Errorf("path = %q, want /api/verification/create", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "test-api-key" {
			t.Errorf("X-API-Key = %q, want test-api-key", r.Header.Get("X-API-Key"))
		}
		var body map[string]interface{}
		if err := jsoniter.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Decode body: %v", err)
		}
		if body["user_id"] != float64(42) {
			t.Errorf("user_id = %v, want 42", body["user_id"])
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"token":"tok-1","verification_url":"https://tguard.example/v/tok-1"}`))
	}))
	defer server.Close()

	s, err := newTestClient().CreateSession(context.Background(), server.URL+"/", "test-api-key", 42)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if s.Token != "tok-1" || s.VerificationURL != "https://tguard.example/v/tok-1" {
		t.Errorf("session = %+v", s)
	}
	if s.UserID != 42 || s.TTL != domain.ExternalSessionTTL {
		t.Errorf("session user/ttl = %d/%v, want 42/%v", s.UserID, s.TTL, domain.ExternalSessionTTL)
	}
}

func TestCreateSession_NotConfigured(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	testCases := []struct {
		name, url, key string
	}{
		{"no url", "", "k"},
		{"no key", server.URL, ""},
		{"blank url", "   ", "k"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestClient().CreateSession(context.Background(), tc.url, tc.key, 1)
			if !errors.Is(err, domain.ErrInvalidConfiguration) {
				t.Errorf("error = %v, want InvalidConfiguration", err)
			}
			if !errors.Is(err, domain.ErrNotConfigured) {
				t.Errorf("error = %v, want ErrNotConfigured cause", err)
			}
		})
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("provider calls = %d, want 0", n)
	}
}

func TestCreateSession_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	_, err := newTestClient().CreateSession(context.Background(), server.URL, "k", 1)
	if !errors.Is(err, domain.ErrProviderError) {
		t.Fatalf("error = %v, want ProviderError", err)
	}
	var e *domain.Error
	if !errors.As(err, &e) {
		t.Fatal("error should be a *domain.Error")
	}
	if e.StatusCode != http.StatusInternalServerError || e.Body != "boom" {
		t.Errorf("status/body = %d/%q, want 500/boom", e.StatusCode, e.Body)
	}
}

func TestCreateSession_InvalidResponse(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"missing token", `{"verification_url":"https://x"}`},
		{"missing url", `{"token":"t"}`},
		{"not json", `<html>`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := newTestClient().CreateSession(context.Background(), server.URL, "k", 1)
			if !errors.Is(err, domain.ErrInvalidProviderResponse) {
				t.Errorf("error = %v, want InvalidProviderResponse", err)
			}
		})
	}
}

func TestCreateSession_TransportFailureIsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient().CreateSession(context.Background(), url, "k", 1)
	if domain.KindOf(err) != domain.KindProviderError {
		t.Errorf("KindOf = %v, want provider_error", domain.KindOf(err))
	}
	if !errors.Is(err, domain.ErrTransportFailure) {
		t.Errorf("error = %v, want TransportFailure cause", err)
	}
}

func TestCreateSession_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	c := newTestClient()
	c.CreateTimeout = 50 * time.Millisecond
	_, err := c.CreateSession(context.Background(), server.URL, "k", 1)
	if !errors.Is(err, domain.ErrProviderError) || !errors.Is(err, domain.ErrTransportFailure) {
		t.Errorf("error = %v, want ProviderError wrapping TransportFailure", err)
	}
}

func TestPollStatus(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
		want   domain.Status
	}{
		{"completed", http.StatusOK, `{"completed":true}`, domain.StatusCompleted},
		{"pending", http.StatusOK, `{"completed":false}`, domain.StatusPending},
		{"not found", http.StatusNotFound, ``, domain.StatusNotFound},
		{"server error", http.StatusBadGateway, `oops`, domain.StatusPending},
		{"bad json", http.StatusOK, `{`, domain.StatusPending},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("method = %q, want GET", r.Method)
				}
				if !strings.HasPrefix(r.URL.Path, "/api/v1/verification-status/") {
					t.Errorf("path = %q", r.URL.Path)
				}
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			if got := newTestClient().PollStatus(context.Background(), server.URL, "tok"); got != tc.want {
				t.Errorf("PollStatus = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPollStatus_EscapesToken(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	newTestClient().PollStatus(context.Background(), server.URL+"//", "a/b c")
	if gotPath != "/api/v1/verification-status/a%2Fb%20c" {
		t.Errorf("path = %q, want escaped token", gotPath)
	}
}

func TestPollStatus_InconclusiveWithoutProvider(t *testing.T) {
	c := newTestClient()
	if got := c.PollStatus(context.Background(), "", "tok"); got != domain.StatusPending {
		t.Errorf("PollStatus(no url) = %v, want pending", got)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()
	if got := c.PollStatus(context.Background(), url, "tok"); got != domain.StatusPending {
		t.Errorf("PollStatus(down) = %v, want pending", got)
	}
}

func TestPollStatus_NotFoundIsStable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient()
	for i := 0; i < 2; i++ {
		if got := c.PollStatus(context.Background(), server.URL, "stale"); got != domain.StatusNotFound {
			t.Errorf("call %d: PollStatus = %v, want not_found", i, got)
		}
	}
}
