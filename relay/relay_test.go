package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/a-h/agentui/apierr"
	"github.com/a-h/agentui/config"
)

var log = slog.New(slog.NewJSONHandler(io.Discard, nil))

func newConfig(baseURL string) config.Config {
	return config.Config{
		N8NBaseURL:   baseURL,
		N8NUsername:  "user",
		N8NPassword:  "pass",
		Environment:  "development",
		RelayTimeout: time.Second,
		RouteTimeout: 2 * time.Second,
	}
}

func TestURL(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		webhookID   string
		expected    string
	}{
		{
			name:        "production uses the live path",
			environment: "production",
			webhookID:   "images",
			expected:    "https://n8n.example.com/webhook/images",
		},
		{
			name:        "other environments use the test path",
			environment: "staging",
			webhookID:   "images",
			expected:    "https://n8n.example.com/webhook-test/images",
		},
		{
			name:        "missing ids default to conversation",
			environment: "production",
			expected:    "https://n8n.example.com/webhook/conversation",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newConfig("https://n8n.example.com/")
			cfg.Environment = tt.environment
			actual, err := New(log, cfg, nil).URL(tt.webhookID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if actual != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, actual)
			}
		})
	}
}

func TestURLRejectsPathEscapes(t *testing.T) {
	for _, id := range []string{
		"../../rest/workflows",
		"..",
		"images/../../rest",
		"./images",
		"images/",
		"/images",
		"%2e%2e/rest",
		"images?x=1",
		"images#top",
		`..\rest`,
	} {
		t.Run(id, func(t *testing.T) {
			_, err := New(log, newConfig("https://n8n.example.com"), nil).URL(id)
			var ve apierr.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected a validation error, got %v", err)
			}
		})
	}
}

func TestForwardDoesNotCallInvalidWebhooks(t *testing.T) {
	var called bool
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer s.Close()

	_, err := New(log, newConfig(s.URL), s.Client()).Forward(context.Background(), "../../rest/workflows", "application/json", strings.NewReader(`{}`))
	var ve apierr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if called {
		t.Error("expected no request to be sent")
	}
}

func TestForward(t *testing.T) {
	var gotPath, gotUser, gotPass, gotCache, gotContentType, gotBody string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		gotCache = r.Header.Get("Cache-Control")
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"image":"https://example.com/a.png"}]`)
	}))
	defer s.Close()

	c := New(log, newConfig(s.URL), s.Client())
	actual, err := c.Forward(context.Background(), "images", "application/json", strings.NewReader(`{"prompt":"hi"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(actual) != `[{"image":"https://example.com/a.png"}]` {
		t.Errorf("expected body to be passed through, got %s", actual)
	}
	if gotPath != "/webhook-test/images" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotUser != "user" || gotPass != "pass" {
		t.Errorf("unexpected basic auth %q:%q", gotUser, gotPass)
	}
	if gotCache != "no-store" {
		t.Errorf("expected no-store, got %q", gotCache)
	}
	if gotContentType != "application/json" {
		t.Errorf("unexpected content type %q", gotContentType)
	}
	if gotBody != `{"prompt":"hi"}` {
		t.Errorf("unexpected body %q", gotBody)
	}
}

func TestForwardErrors(t *testing.T) {
	t.Run("non-2xx responses are upstream errors", func(t *testing.T) {
		s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "workflow not found", http.StatusNotFound)
		}))
		defer s.Close()
		_, err := New(log, newConfig(s.URL), s.Client()).Forward(context.Background(), "", "application/json", strings.NewReader(`{}`))
		var ue apierr.UpstreamError
		if !errors.As(err, &ue) {
			t.Fatalf("expected upstream error, got %v", err)
		}
		if ue.Status != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", ue.Status)
		}
		if err.Error() != "n8n responded with status 404" {
			t.Errorf("unexpected message %q", err.Error())
		}
	})
	t.Run("slow webhooks time out", func(t *testing.T) {
		release := make(chan struct{})
		s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer s.Close()
		defer close(release)
		cfg := newConfig(s.URL)
		cfg.RelayTimeout = 50 * time.Millisecond
		_, err := New(log, cfg, s.Client()).Forward(context.Background(), "", "application/json", strings.NewReader(`{}`))
		var te apierr.TimeoutError
		if !errors.As(err, &te) {
			t.Fatalf("expected timeout error, got %v", err)
		}
	})
	t.Run("unreachable hosts are transport errors", func(t *testing.T) {
		s := httptest.NewServer(http.NotFoundHandler())
		url := s.URL
		s.Close()
		_, err := New(log, newConfig(url), nil).Forward(context.Background(), "", "application/json", strings.NewReader(`{}`))
		var te apierr.TransportError
		if !errors.As(err, &te) {
			t.Fatalf("expected transport error, got %v", err)
		}
	})
	t.Run("invalid JSON is rejected", func(t *testing.T) {
		s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "Workflow was started")
		}))
		defer s.Close()
		_, err := New(log, newConfig(s.URL), s.Client()).Forward(context.Background(), "", "application/json", strings.NewReader(`{}`))
		if err == nil {
			t.Fatal("expected error")
		}
	})
}
