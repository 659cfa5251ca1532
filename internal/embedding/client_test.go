package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeEndpoint(t *testing.T) {
	t.Parallel()

	if got := NormalizeEndpoint("http://127.0.0.1:8844"); got != "http://127.0.0.1:8844/embed" {
		t.Fatalf("unexpected endpoint normalization: %q", got)
	}
	if got := NormalizeEndpoint("http://127.0.0.1:8844/v1/embeddings"); got != "http://127.0.0.1:8844/v1/embeddings" {
		t.Fatalf("unexpected endpoint normalization for explicit path: %q", got)
	}
	if got := NormalizeEndpoint(" "); got != DefaultEndpoint {
		t.Fatalf("expected default endpoint, got %q", got)
	}
}

func TestEmbedUsesTextsPayload(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Texts) != 1 || req.Texts[0] != "Lambda\n\nCold starts" || req.MaxLength != DefaultMaxLength {
			t.Errorf("unexpected request: %#v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float64{{0.1, 0.2}}})
	}))
	defer server.Close()

	client := NewClient(Options{Endpoint: server.URL})
	vec, err := client.Embed(context.Background(), Input("Lambda", "Cold starts"))
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 || vec[1] != 0.2 {
		t.Fatalf("unexpected vector: %#v", vec)
	}
}

func TestEmbedBatchOpenAIStyleResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Input) != 2 || len(req.Texts) != 0 {
			t.Errorf("expected input payload, got %#v", req)
		}
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[2]},{"index":0,"embedding":[1]}]}`))
	}))
	defer server.Close()

	client := NewClient(Options{Endpoint: server.URL + "/v1/embeddings"})
	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vectors) != 2 || vectors[0][0] != 1 || vectors[1][0] != 2 {
		t.Fatalf("expected vectors ordered by index, got %#v", vectors)
	}
}

func TestEmbedReportsServiceErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(Options{Endpoint: server.URL})
	if _, err := client.Embed(context.Background(), "text"); err == nil {
		t.Fatalf("expected error for 503 response")
	}
	if _, err := client.Embed(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty input")
	}
}
