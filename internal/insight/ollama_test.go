package insight

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNoopGenerator(t *testing.T) {
	var g Noop
	narrative, err := g.Narrate(context.Background(), "anything")
	if err != nil {
		t.Fatalf("noop must never fail: %v", err)
	}
	if narrative != "" {
		t.Errorf("noop must produce no narrative, got %q", narrative)
	}
	if g.Name() != "noop" {
		t.Errorf("expected name noop, got %q", g.Name())
	}
}

func TestOllamaNarrate(t *testing.T) {
	var gotReq generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "  Two incidents share a root cause.  ", Done: true})
	}))
	defer server.Close()

	g := NewOllamaGenerator(OllamaConfig{BaseURL: server.URL, Model: "test-model"})
	narrative, err := g.Narrate(context.Background(), "Association between a and b")
	if err != nil {
		t.Fatalf("narrate: %v", err)
	}
	if narrative != "Two incidents share a root cause." {
		t.Errorf("expected trimmed narrative, got %q", narrative)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("expected model test-model, got %q", gotReq.Model)
	}
	if gotReq.Stream {
		t.Error("streaming must be disabled")
	}
	if !strings.Contains(gotReq.Prompt, "Association between a and b") {
		t.Errorf("prompt should carry the subject, got %q", gotReq.Prompt)
	}
}

func TestOllamaNarrate_EmptySubject(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	g := NewOllamaGenerator(OllamaConfig{BaseURL: server.URL})
	narrative, err := g.Narrate(context.Background(), "   ")
	if err != nil {
		t.Fatalf("narrate: %v", err)
	}
	if narrative != "" || calls != 0 {
		t.Errorf("blank subject should short-circuit, got %q after %d calls", narrative, calls)
	}
}

func TestOllamaNarrate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	g := NewOllamaGenerator(OllamaConfig{BaseURL: server.URL})
	if _, err := g.Narrate(context.Background(), "subject"); err == nil {
		t.Fatal("expected an error from a 500 response")
	}
}

func TestOllamaBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	g := NewOllamaGenerator(OllamaConfig{BaseURL: server.URL})
	for i := 0; i < 3; i++ {
		if _, err := g.Narrate(context.Background(), "subject"); err == nil {
			t.Fatalf("call %d should have failed", i)
		}
	}

	_, err := g.Narrate(context.Background(), "subject")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after 3 consecutive failures, got %v", err)
	}
	if calls != 3 {
		t.Errorf("open breaker must not reach the server, saw %d calls", calls)
	}
}

func TestOllamaHealthCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/version" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	if err := NewOllamaGenerator(OllamaConfig{BaseURL: healthy.URL}).HealthCheck(context.Background()); err != nil {
		t.Errorf("healthy instance reported unhealthy: %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer down.Close()

	if err := NewOllamaGenerator(OllamaConfig{BaseURL: down.URL}).HealthCheck(context.Background()); err == nil {
		t.Error("unhealthy instance reported healthy")
	}
}

func TestOllamaName(t *testing.T) {
	g := NewOllamaGenerator(OllamaConfig{})
	if g.Name() != "ollama/phi3:mini" {
		t.Errorf("expected default model in name, got %q", g.Name())
	}
}
