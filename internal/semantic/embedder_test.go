package semantic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewOllamaEmbedderValidation(t *testing.T) {
	tests := []struct {
		name      string
		serverURL string
		model     string
		dimension int
		wantErr   bool
	}{
		{"valid", "http://localhost:11434", "nomic-embed-text", 768, false},
		{"empty server defaults", "", "nomic-embed-text", 768, false},
		{"bare host gets scheme", "embed-host:11434", "nomic-embed-text", 768, false},
		{"missing model", "http://localhost:11434", "", 768, true},
		{"zero dimension", "http://localhost:11434", "m", 0, true},
		{"negative dimension", "http://localhost:11434", "m", -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOllamaEmbedder(tt.serverURL, tt.model, tt.dimension)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewOllamaEmbedder() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %q, want /api/embeddings", r.URL.Path)
		}
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" || req.Prompt != "hello" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": []float64{0.1, 0.2, 0.3},
		})
	}))
	defer srv.Close()

	emb, err := NewOllamaEmbedder(srv.URL, "test-model", 3)
	if err != nil {
		t.Fatalf("NewOllamaEmbedder() error = %v", err)
	}

	vec, err := emb.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("vec = %v", vec)
	}
}

func TestOllamaEmbedDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": []float64{0.1, 0.2},
		})
	}))
	defer srv.Close()

	emb, err := NewOllamaEmbedder(srv.URL, "test-model", 768)
	if err != nil {
		t.Fatalf("NewOllamaEmbedder() error = %v", err)
	}

	_, err = emb.Embed(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "dimension") {
		t.Errorf("Embed() error = %v, want dimension mismatch", err)
	}
}

func TestOllamaEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `model "missing" not found`, http.StatusNotFound)
	}))
	defer srv.Close()

	emb, err := NewOllamaEmbedder(srv.URL, "missing", 768)
	if err != nil {
		t.Fatalf("NewOllamaEmbedder() error = %v", err)
	}

	_, err = emb.Embed(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Embed() error = %v, want status in message", err)
	}
}
